package ledger

import (
	"time"

	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Posting is one journal item of a posted transaction, flattened with the
// transaction fields reports need.
type Posting struct {
	ItemID            uint            `json:"item_id"`
	TransactionID     uint            `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	TransactionDate   time.Time       `json:"transaction_date"`
	Description       string          `json:"description"`
	DebitAmount       decimal.Decimal `json:"debit_amount"`
	CreditAmount      decimal.Decimal `json:"credit_amount"`
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Signed applies an account's polarity to a debit/credit pair: debit-normal
// accounts grow with debits, credit-normal accounts with credits.
func Signed(balanceType models.NormalBalance, debit, credit decimal.Decimal) decimal.Decimal {
	if balanceType == models.BalanceCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// Postings returns the posted items on an account with transaction dates in
// [from, to], oldest first. Either bound may be nil.
func Postings(db *gorm.DB, accountID uint, from, to *time.Time) ([]Posting, error) {
	q := db.Table("journal_items AS ji").
		Select(`ji.id AS item_id, t.id AS transaction_id, t.transaction_number, t.transaction_date,
			COALESCE(NULLIF(ji.description, ''), t.description) AS description,
			ji.debit_amount, ji.credit_amount`).
		Joins("JOIN journal_entries je ON je.id = ji.journal_entry_id").
		Joins("JOIN transactions t ON t.id = je.transaction_id").
		Where("ji.account_id = ? AND t.status IN ?", accountID, models.PostedStatuses)
	if from != nil {
		q = q.Where("t.transaction_date >= ?", DateOnly(*from))
	}
	if to != nil {
		q = q.Where("t.transaction_date <= ?", DateOnly(*to))
	}

	var rows []Posting
	if err := q.Order("t.transaction_date, t.id, ji.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetBalance folds the journal into the account's balance as of asOf, or
// over all posted history when asOf is nil. The cached CurrentBalance is
// never consulted.
func GetBalance(db *gorm.DB, account *models.Account, asOf *time.Time) (decimal.Decimal, error) {
	rows, err := Postings(db, account.ID, nil, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	balance := account.OpeningBalance
	for _, r := range rows {
		balance = balance.Add(Signed(account.BalanceType, r.DebitAmount, r.CreditAmount))
	}
	return balance, nil
}

// PeriodActivity is the polarity-signed movement of posted items dated
// within [start, end], without the opening balance.
func PeriodActivity(db *gorm.DB, account *models.Account, start, end time.Time) (decimal.Decimal, error) {
	rows, err := Postings(db, account.ID, &start, &end)
	if err != nil {
		return decimal.Zero, err
	}
	activity := decimal.Zero
	for _, r := range rows {
		activity = activity.Add(Signed(account.BalanceType, r.DebitAmount, r.CreditAmount))
	}
	return activity, nil
}

// UpdateBalance refreshes the cached current_balance from the full journal.
// Callers that need lost-update protection lock the row first.
func UpdateBalance(db *gorm.DB, account *models.Account) error {
	balance, err := GetBalance(db, account, nil)
	if err != nil {
		return err
	}
	if err := db.Model(&models.Account{}).
		Where("id = ?", account.ID).
		Update("current_balance", balance).Error; err != nil {
		return err
	}
	account.CurrentBalance = balance
	return nil
}

// BalanceDrift is an account whose cached balance disagrees with the journal.
type BalanceDrift struct {
	AccountID     uint            `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Cached        decimal.Decimal `json:"cached"`
	Computed      decimal.Decimal `json:"computed"`
	Repaired      bool            `json:"repaired"`
}

// ReconcileBalances compares every account's cache with the journal and,
// when repair is set, rewrites the drifting ones under a row lock.
func ReconcileBalances(db *gorm.DB, repair bool) ([]BalanceDrift, error) {
	var accounts []models.Account
	if err := db.Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}

	drifts := []BalanceDrift{}
	for i := range accounts {
		acct := &accounts[i]
		computed, err := GetBalance(db, acct, nil)
		if err != nil {
			return nil, err
		}
		if computed.Equal(acct.CurrentBalance) {
			continue
		}
		drift := BalanceDrift{
			AccountID:     acct.ID,
			AccountNumber: acct.AccountNumber,
			Cached:        acct.CurrentBalance,
			Computed:      computed,
		}
		if repair {
			err := db.Transaction(func(tx *gorm.DB) error {
				locked, err := LockAccount(tx, acct.ID)
				if err != nil {
					return err
				}
				return UpdateBalance(tx, locked)
			})
			if err != nil {
				return nil, err
			}
			drift.Repaired = true
		}
		drifts = append(drifts, drift)
	}
	return drifts, nil
}
