// Package reports builds financial statements from posted journal data.
package reports

import (
	"context"
	"errors"
	"strings"
	"time"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/ledger"
	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	// Tolerance is the largest accepted gap in the balance sheet and
	// trial balance checks.
	Tolerance decimal.Decimal
}

type Generator struct {
	db   *gorm.DB
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewGenerator(db *gorm.DB, opts Options, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Tolerance.IsZero() {
		opts.Tolerance = decimal.New(1, -2)
	}
	return &Generator{db: db, opts: opts, log: log, now: time.Now}
}

type AccountLine struct {
	AccountID     uint            `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Balance       decimal.Decimal `json:"balance"`
}

type Section struct {
	Accounts []AccountLine   `json:"accounts"`
	Total    decimal.Decimal `json:"total"`
}

func (s *Section) add(a *models.Account, amount decimal.Decimal) {
	line := AccountLine{AccountID: a.ID, AccountNumber: a.AccountNumber, Name: a.Name, Balance: amount}
	if a.Category != nil {
		line.Category = a.Category.Name
	}
	s.Accounts = append(s.Accounts, line)
	s.Total = s.Total.Add(amount)
}

func newSection() Section {
	return Section{Accounts: []AccountLine{}, Total: decimal.Zero}
}

type BalanceSheet struct {
	AsOf        time.Time `json:"as_of"`
	GeneratedAt time.Time `json:"generated_at"`
	Assets      Section   `json:"assets"`
	Liabilities Section   `json:"liabilities"`
	Equity      Section   `json:"equity"`
	// CurrentEarnings is cumulative revenue less expenses not yet closed
	// into an equity account.
	CurrentEarnings           decimal.Decimal `json:"current_earnings"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"total_liabilities_and_equity"`
	IsBalanced                bool            `json:"is_balanced"`
	Comparative               *BalanceSheet   `json:"comparative,omitempty"`
}

func (g *Generator) BalanceSheet(ctx context.Context, asOf time.Time, comparative bool) (*BalanceSheet, error) {
	bs, err := g.balanceSheet(ctx, ledger.DateOnly(asOf), comparative)
	if err != nil {
		g.log.Error("balance sheet failed", zap.Error(err))
		return nil, apperr.Wrap(err, "Failed to generate balance sheet")
	}
	return bs, nil
}

func (g *Generator) balanceSheet(ctx context.Context, asOf time.Time, comparative bool) (*BalanceSheet, error) {
	db := g.db.WithContext(ctx)
	accounts, err := activeAccounts(db)
	if err != nil {
		return nil, err
	}

	bs := &BalanceSheet{
		AsOf:            asOf,
		GeneratedAt:     g.now().UTC(),
		Assets:          newSection(),
		Liabilities:     newSection(),
		Equity:          newSection(),
		CurrentEarnings: decimal.Zero,
	}
	for i := range accounts {
		a := &accounts[i]
		bal, err := ledger.GetBalance(db, a, &asOf)
		if err != nil {
			return nil, err
		}
		switch a.AccountType.Code {
		case models.TypeAsset:
			bs.Assets.add(a, bal)
		case models.TypeLiability:
			bs.Liabilities.add(a, bal)
		case models.TypeEquity:
			bs.Equity.add(a, bal)
		case models.TypeRevenue:
			bs.CurrentEarnings = bs.CurrentEarnings.Add(bal)
		case models.TypeExpense:
			bs.CurrentEarnings = bs.CurrentEarnings.Sub(bal)
		}
	}

	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.Equity.Total).Add(bs.CurrentEarnings)
	gap := bs.Assets.Total.Sub(bs.TotalLiabilitiesAndEquity).Abs()
	bs.IsBalanced = gap.LessThanOrEqual(g.opts.Tolerance)
	if !bs.IsBalanced {
		g.log.Warn("balance sheet does not balance",
			zap.String("as_of", asOf.Format(time.DateOnly)),
			zap.String("assets", bs.Assets.Total.StringFixed(2)),
			zap.String("liabilities_and_equity", bs.TotalLiabilitiesAndEquity.StringFixed(2)))
	}

	if comparative {
		prev, err := g.balanceSheet(ctx, asOf.AddDate(-1, 0, 0), false)
		if err != nil {
			return nil, err
		}
		bs.Comparative = prev
	}
	return bs, nil
}

type IncomeStatement struct {
	Start       time.Time        `json:"start_date"`
	End         time.Time        `json:"end_date"`
	GeneratedAt time.Time        `json:"generated_at"`
	Revenue     Section          `json:"revenue"`
	Expenses    Section          `json:"expenses"`
	NetIncome   decimal.Decimal  `json:"net_income"`
	Comparative *IncomeStatement `json:"comparative,omitempty"`
}

func (g *Generator) IncomeStatement(ctx context.Context, start, end time.Time, comparative bool) (*IncomeStatement, error) {
	start, end = ledger.DateOnly(start), ledger.DateOnly(end)
	if err := checkPeriod(start, end); err != nil {
		return nil, err
	}
	is, err := g.incomeStatement(ctx, start, end, comparative)
	if err != nil {
		g.log.Error("income statement failed", zap.Error(err))
		return nil, apperr.Wrap(err, "Failed to generate income statement")
	}
	return is, nil
}

func (g *Generator) incomeStatement(ctx context.Context, start, end time.Time, comparative bool) (*IncomeStatement, error) {
	db := g.db.WithContext(ctx)
	accounts, err := activeAccounts(db, models.TypeRevenue, models.TypeExpense)
	if err != nil {
		return nil, err
	}

	is := &IncomeStatement{
		Start:       start,
		End:         end,
		GeneratedAt: g.now().UTC(),
		Revenue:     newSection(),
		Expenses:    newSection(),
	}
	for i := range accounts {
		a := &accounts[i]
		activity, err := ledger.PeriodActivity(db, a, start, end)
		if err != nil {
			return nil, err
		}
		if a.AccountType.Code == models.TypeRevenue {
			is.Revenue.add(a, activity)
		} else {
			is.Expenses.add(a, activity)
		}
	}
	is.NetIncome = is.Revenue.Total.Sub(is.Expenses.Total)

	if comparative {
		days := int(end.Sub(start).Hours()/24) + 1
		prev, err := g.incomeStatement(ctx, start.AddDate(0, 0, -days), start.AddDate(0, 0, -1), false)
		if err != nil {
			return nil, err
		}
		is.Comparative = prev
	}
	return is, nil
}

type TrialBalanceLine struct {
	AccountID     uint                   `json:"account_id"`
	AccountNumber string                 `json:"account_number"`
	Name          string                 `json:"name"`
	AccountType   models.AccountTypeCode `json:"account_type"`
	Debit         decimal.Decimal        `json:"debit"`
	Credit        decimal.Decimal        `json:"credit"`
}

type TrialBalance struct {
	AsOf         time.Time          `json:"as_of"`
	GeneratedAt  time.Time          `json:"generated_at"`
	Accounts     []TrialBalanceLine `json:"accounts"`
	TotalDebits  decimal.Decimal    `json:"total_debits"`
	TotalCredits decimal.Decimal    `json:"total_credits"`
	Difference   decimal.Decimal    `json:"difference"`
	IsBalanced   bool               `json:"is_balanced"`
}

// TrialBalance lists every active account in its natural column. A balance
// that went negative is shown as a positive amount in the other column.
func (g *Generator) TrialBalance(ctx context.Context, asOf time.Time) (*TrialBalance, error) {
	tb, err := g.trialBalance(ctx, ledger.DateOnly(asOf))
	if err != nil {
		g.log.Error("trial balance failed", zap.Error(err))
		return nil, apperr.Wrap(err, "Failed to generate trial balance")
	}
	return tb, nil
}

func (g *Generator) trialBalance(ctx context.Context, asOf time.Time) (*TrialBalance, error) {
	db := g.db.WithContext(ctx)
	accounts, err := activeAccounts(db)
	if err != nil {
		return nil, err
	}

	tb := &TrialBalance{
		AsOf:         asOf,
		GeneratedAt:  g.now().UTC(),
		Accounts:     make([]TrialBalanceLine, 0, len(accounts)),
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
	}
	for i := range accounts {
		a := &accounts[i]
		bal, err := ledger.GetBalance(db, a, &asOf)
		if err != nil {
			return nil, err
		}
		line := TrialBalanceLine{
			AccountID:     a.ID,
			AccountNumber: a.AccountNumber,
			Name:          a.Name,
			AccountType:   a.AccountType.Code,
			Debit:         decimal.Zero,
			Credit:        decimal.Zero,
		}
		debitSide := a.IsDebitBalance()
		if bal.IsNegative() {
			debitSide = !debitSide
		}
		if debitSide {
			line.Debit = bal.Abs()
		} else {
			line.Credit = bal.Abs()
		}
		tb.TotalDebits = tb.TotalDebits.Add(line.Debit)
		tb.TotalCredits = tb.TotalCredits.Add(line.Credit)
		tb.Accounts = append(tb.Accounts, line)
	}
	tb.Difference = tb.TotalDebits.Sub(tb.TotalCredits)
	tb.IsBalanced = tb.Difference.Abs().LessThanOrEqual(g.opts.Tolerance)
	if !tb.IsBalanced {
		g.log.Warn("trial balance does not balance",
			zap.String("as_of", asOf.Format(time.DateOnly)),
			zap.String("difference", tb.Difference.StringFixed(2)))
	}
	return tb, nil
}

type LedgerLine struct {
	Date              time.Time       `json:"date"`
	TransactionID     uint            `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	Description       string          `json:"description"`
	Debit             decimal.Decimal `json:"debit"`
	Credit            decimal.Decimal `json:"credit"`
	// Balance runs item by item; DayBalance is the balance at the end of
	// Date, which is what GetBalance reports for that date.
	Balance    decimal.Decimal `json:"balance"`
	DayBalance decimal.Decimal `json:"day_balance"`
}

type GeneralLedger struct {
	AccountID      uint                   `json:"account_id"`
	AccountNumber  string                 `json:"account_number"`
	AccountName    string                 `json:"account_name"`
	AccountType    models.AccountTypeCode `json:"account_type"`
	Start          time.Time              `json:"start_date"`
	End            time.Time              `json:"end_date"`
	GeneratedAt    time.Time              `json:"generated_at"`
	OpeningBalance decimal.Decimal        `json:"opening_balance"`
	Lines          []LedgerLine           `json:"entries"`
	ClosingBalance decimal.Decimal        `json:"closing_balance"`
}

// GeneralLedger lists an account's posted lines in [start, end] with a
// running balance that starts from the balance at the end of start-1.
func (g *Generator) GeneralLedger(ctx context.Context, accountID uint, start, end time.Time) (*GeneralLedger, error) {
	start, end = ledger.DateOnly(start), ledger.DateOnly(end)
	if err := checkPeriod(start, end); err != nil {
		return nil, err
	}
	db := g.db.WithContext(ctx)

	var acct models.Account
	if err := db.Preload("AccountType").First(&acct, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Account", accountID)
		}
		return nil, apperr.Internal("Failed to generate general ledger", err)
	}

	dayBefore := start.AddDate(0, 0, -1)
	opening, err := ledger.GetBalance(db, &acct, &dayBefore)
	if err != nil {
		return nil, apperr.Internal("Failed to generate general ledger", err)
	}
	postings, err := ledger.Postings(db, acct.ID, &start, &end)
	if err != nil {
		return nil, apperr.Internal("Failed to generate general ledger", err)
	}

	gl := &GeneralLedger{
		AccountID:      acct.ID,
		AccountNumber:  acct.AccountNumber,
		AccountName:    acct.Name,
		Start:          start,
		End:            end,
		GeneratedAt:    g.now().UTC(),
		OpeningBalance: opening,
		Lines:          make([]LedgerLine, 0, len(postings)),
	}
	if acct.AccountType != nil {
		gl.AccountType = acct.AccountType.Code
	}

	running := opening
	for _, p := range postings {
		running = running.Add(ledger.Signed(acct.BalanceType, p.DebitAmount, p.CreditAmount))
		gl.Lines = append(gl.Lines, LedgerLine{
			Date:              p.TransactionDate,
			TransactionID:     p.TransactionID,
			TransactionNumber: p.TransactionNumber,
			Description:       p.Description,
			Debit:             p.DebitAmount,
			Credit:            p.CreditAmount,
			Balance:           running,
		})
	}
	// Fill end-of-day balances from the last line of each date.
	for i := len(gl.Lines) - 1; i >= 0; i-- {
		if i == len(gl.Lines)-1 || !gl.Lines[i].Date.Equal(gl.Lines[i+1].Date) {
			gl.Lines[i].DayBalance = gl.Lines[i].Balance
		} else {
			gl.Lines[i].DayBalance = gl.Lines[i+1].DayBalance
		}
	}
	gl.ClosingBalance = running
	return gl, nil
}

type CashFlowStatement struct {
	Start               time.Time       `json:"start_date"`
	End                 time.Time       `json:"end_date"`
	GeneratedAt         time.Time       `json:"generated_at"`
	OperatingActivities decimal.Decimal `json:"operating_activities"`
	InvestingActivities decimal.Decimal `json:"investing_activities"`
	FinancingActivities decimal.Decimal `json:"financing_activities"`
	NetCashFlow         decimal.Decimal `json:"net_cash_flow"`
	BeginningCash       decimal.Decimal `json:"beginning_cash"`
	EndingCash          decimal.Decimal `json:"ending_cash"`
}

// CashFlowStatement classifies period activity: operating is revenue less
// expenses, investing is the outflow into fixed assets and financing is the
// growth of liabilities and equity.
func (g *Generator) CashFlowStatement(ctx context.Context, start, end time.Time) (*CashFlowStatement, error) {
	start, end = ledger.DateOnly(start), ledger.DateOnly(end)
	if err := checkPeriod(start, end); err != nil {
		return nil, err
	}
	cf, err := g.cashFlow(ctx, start, end)
	if err != nil {
		g.log.Error("cash flow statement failed", zap.Error(err))
		return nil, apperr.Wrap(err, "Failed to generate cash flow statement")
	}
	return cf, nil
}

func (g *Generator) cashFlow(ctx context.Context, start, end time.Time) (*CashFlowStatement, error) {
	db := g.db.WithContext(ctx)
	accounts, err := activeAccounts(db)
	if err != nil {
		return nil, err
	}

	cf := &CashFlowStatement{
		Start:               start,
		End:                 end,
		GeneratedAt:         g.now().UTC(),
		OperatingActivities: decimal.Zero,
		InvestingActivities: decimal.Zero,
		FinancingActivities: decimal.Zero,
		BeginningCash:       decimal.Zero,
		EndingCash:          decimal.Zero,
	}
	dayBefore := start.AddDate(0, 0, -1)

	for i := range accounts {
		a := &accounts[i]
		activity, err := ledger.PeriodActivity(db, a, start, end)
		if err != nil {
			return nil, err
		}
		switch a.AccountType.Code {
		case models.TypeRevenue:
			cf.OperatingActivities = cf.OperatingActivities.Add(activity)
		case models.TypeExpense:
			cf.OperatingActivities = cf.OperatingActivities.Sub(activity)
		case models.TypeAsset:
			if isFixedAsset(a) {
				cf.InvestingActivities = cf.InvestingActivities.Sub(activity)
			}
		case models.TypeLiability, models.TypeEquity:
			cf.FinancingActivities = cf.FinancingActivities.Add(activity)
		}

		if a.IsCashAccount {
			begin, err := ledger.GetBalance(db, a, &dayBefore)
			if err != nil {
				return nil, err
			}
			ending, err := ledger.GetBalance(db, a, &end)
			if err != nil {
				return nil, err
			}
			cf.BeginningCash = cf.BeginningCash.Add(begin)
			cf.EndingCash = cf.EndingCash.Add(ending)
		}
	}
	cf.NetCashFlow = cf.OperatingActivities.Add(cf.InvestingActivities).Add(cf.FinancingActivities)
	return cf, nil
}

func isFixedAsset(a *models.Account) bool {
	if a.Category == nil {
		return false
	}
	return strings.Contains(strings.ToLower(a.Category.Code), "fixed") ||
		strings.Contains(strings.ToLower(a.Category.Name), "fixed")
}

func checkPeriod(start, end time.Time) error {
	if start.After(end) {
		return apperr.Validation("Start date must be before end date.")
	}
	return nil
}

// activeAccounts loads active, non-deleted accounts with type and category,
// optionally restricted to the given type codes.
func activeAccounts(db *gorm.DB, codes ...models.AccountTypeCode) ([]models.Account, error) {
	q := db.Model(&models.Account{}).
		Preload("AccountType").
		Preload("Category").
		Where("accounts.is_active = ? AND accounts.is_deleted = ?", true, false)
	if len(codes) > 0 {
		q = q.Joins("JOIN account_types aty ON aty.id = accounts.account_type_id").
			Where("aty.code IN ?", codes)
	}
	var out []models.Account
	if err := q.Order("accounts.account_number").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
