package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/models"
	"ledger-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var alice = Actor{ID: 1, Name: "alice"}

type recordingAudit struct {
	mu   sync.Mutex
	acts []Activity
	err  error
}

func (r *recordingAudit) LogActivity(_ context.Context, db *gorm.DB, act Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acts = append(r.acts, act)
	if r.err != nil {
		// Write first so the test can see the savepoint rollback.
		_ = db.Create(&models.AuditLog{EntityType: act.EntityType, EntityID: act.EntityID, Action: act.Action}).Error
		return r.err
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, _ Actor, title, _ string, _ models.NotificationKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

type harness struct {
	db     *gorm.DB
	fx     *testutil.Fixture
	svc    *Service
	audit  *recordingAudit
	notify *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	h := &harness{
		db:     db,
		fx:     testutil.NewFixture(t, db),
		audit:  &recordingAudit{},
		notify: &recordingNotifier{},
	}
	h.svc = NewService(db, h.audit, h.notify, Options{LockTimeout: time.Second}, zap.NewNop())
	return h
}

// simple builds a one-entry transfer: debit one account, credit the other.
func (h *harness) simple(debit, credit *models.Account, amount string, date time.Time) CreateTransactionInput {
	return CreateTransactionInput{
		Description:       "Transfer",
		TransactionDate:   date,
		TransactionTypeID: h.fx.TxType.ID,
		Entries: []EntryInput{{
			Description: "Transfer",
			Items: []ItemInput{
				{AccountID: debit.ID, DebitAmount: testutil.Dec(amount)},
				{AccountID: credit.ID, CreditAmount: testutil.Dec(amount)},
			},
		}},
	}
}

func (h *harness) createAndPost(t *testing.T, in CreateTransactionInput) *models.Transaction {
	t.Helper()
	tx, err := h.svc.CreateTransaction(context.Background(), in, alice)
	require.NoError(t, err)
	require.NoError(t, h.svc.PostTransaction(context.Background(), tx.ID, alice))
	return tx
}

func (h *harness) balance(t *testing.T, a *models.Account) string {
	t.Helper()
	return testutil.Reload(t, h.db, a).CurrentBalance.StringFixed(2)
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func requireCode(t *testing.T, err error, code string) apperr.Error {
	t.Helper()
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok, "expected apperr.Error, got %T: %v", err, err)
	require.Equal(t, code, e.Code, e.Error())
	return e
}

func TestPost_CashAndCapital(t *testing.T) {
	h := newHarness(t)
	cash := h.fx.Account(t, models.TypeAsset, "Cash", testutil.Opening("10000.00"), testutil.Cash())
	capital := h.fx.Account(t, models.TypeEquity, "Capital")

	tx := h.createAndPost(t, h.simple(cash, capital, "500.00", testutil.Today()))

	assert.Equal(t, "10500.00", h.balance(t, cash))
	assert.Equal(t, "500.00", h.balance(t, capital))

	stored, err := h.svc.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPosted, stored.Status)
	require.NotNil(t, stored.PostedAt)
	require.NotNil(t, stored.PostedByID)
	assert.Equal(t, alice.ID, *stored.PostedByID)

	assert.Equal(t, []string{"Transaction posted successfully"}, h.notify.titles)
	require.Len(t, h.audit.acts, 2)
	assert.Equal(t, models.AuditActionCreate, h.audit.acts[0].Action)
	assert.Equal(t, tx.TransactionNumber, h.audit.acts[0].Changes["transaction_number"])
	assert.Equal(t, models.AuditActionPost, h.audit.acts[1].Action)
}

func TestVoid_RestoresBalances(t *testing.T) {
	h := newHarness(t)
	cash := h.fx.Account(t, models.TypeAsset, "Cash", testutil.Opening("10000.00"))
	capital := h.fx.Account(t, models.TypeEquity, "Capital")
	tx := h.createAndPost(t, h.simple(cash, capital, "500.00", testutil.Today()))

	reversal, err := h.svc.VoidTransaction(context.Background(), tx.ID, alice, "entered twice")
	require.NoError(t, err)

	assert.Equal(t, "10000.00", h.balance(t, cash))
	assert.Equal(t, "0.00", h.balance(t, capital))

	original, err := h.svc.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVoided, original.Status)
	assert.True(t, original.IsPosted())

	var reversals []models.Transaction
	require.NoError(t, h.db.Where("reversal_of_id = ?", tx.ID).Find(&reversals).Error)
	require.Len(t, reversals, 1)
	assert.Equal(t, reversal.ID, reversals[0].ID)
	assert.Equal(t, models.StatusPosted, reversals[0].Status)
	assert.Equal(t, "Reversal of "+tx.TransactionNumber+" - entered twice", reversals[0].Description)
	assert.True(t, reversals[0].Amount.Equal(tx.Amount))

	full, err := h.svc.GetTransaction(context.Background(), reversal.ID)
	require.NoError(t, err)
	items := full.JournalEntries[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, cash.ID, items[0].AccountID)
	assert.Equal(t, "500.00", items[0].CreditAmount.StringFixed(2))
	assert.True(t, items[0].DebitAmount.IsZero())
	assert.Equal(t, capital.ID, items[1].AccountID)
	assert.Equal(t, "500.00", items[1].DebitAmount.StringFixed(2))

	var actions []models.AuditAction
	for _, a := range h.audit.acts {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []models.AuditAction{
		models.AuditActionCreate, models.AuditActionPost, models.AuditActionPost, models.AuditActionVoid,
	}, actions)
}

func TestCreate_UnbalancedPersistsNothing(t *testing.T) {
	h := newHarness(t)
	a := h.fx.Account(t, models.TypeExpense, "Rent")
	b := h.fx.Account(t, models.TypeAsset, "Bank")

	txBefore := count(t, h.db, &models.Transaction{})
	itemsBefore := count(t, h.db, &models.JournalItem{})

	in := h.simple(a, b, "500.00", testutil.Today())
	in.Entries[0].Items[1].CreditAmount = testutil.Dec("400.00")

	_, err := h.svc.CreateTransaction(context.Background(), in, alice)
	e := requireCode(t, err, apperr.CodeValidation)
	assert.Contains(t, e.Details, "Transaction is not balanced. Debits: 500.00, Credits: 400.00.")

	assert.Equal(t, txBefore, count(t, h.db, &models.Transaction{}))
	assert.Equal(t, itemsBefore, count(t, h.db, &models.JournalItem{}))
	assert.Equal(t, int64(0), count(t, h.db, &models.JournalEntry{}))
	assert.Empty(t, h.audit.acts)
}

func TestCreate_ItemWithBothSides(t *testing.T) {
	h := newHarness(t)
	a := h.fx.Account(t, models.TypeAsset, "Cash")

	in := CreateTransactionInput{
		Description:       "Broken",
		TransactionTypeID: h.fx.TxType.ID,
		Entries: []EntryInput{{Items: []ItemInput{
			{AccountID: a.ID, DebitAmount: testutil.Dec("100.00"), CreditAmount: testutil.Dec("100.00")},
		}}},
	}
	_, err := h.svc.CreateTransaction(context.Background(), in, alice)
	e := requireCode(t, err, apperr.CodeValidation)
	assert.Contains(t, e.Error(), "cannot have both a debit and a credit amount")
	assert.Equal(t, int64(0), count(t, h.db, &models.Transaction{}))
}

func TestPost_AccountWithoutPostingStaysDraft(t *testing.T) {
	h := newHarness(t)
	cash := h.fx.Account(t, models.TypeAsset, "Cash")
	locked := h.fx.Account(t, models.TypeRevenue, "Sales")

	tx, err := h.svc.CreateTransaction(context.Background(), h.simple(cash, locked, "75.00", testutil.Today()), alice)
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&models.Account{}).Where("id = ?", locked.ID).Update("allow_posting", false).Error)

	err = h.svc.PostTransaction(context.Background(), tx.ID, alice)
	e := requireCode(t, err, apperr.CodeValidation)
	assert.Contains(t, e.Details, "Account "+locked.AccountNumber+" does not allow posting.")
	assert.Contains(t, e.Details, "Account "+locked.AccountNumber+" is not active or does not allow posting.")

	stored, err := h.svc.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, stored.Status)
	assert.Nil(t, stored.PostedAt)
	assert.Equal(t, "0.00", h.balance(t, cash))
	assert.Empty(t, h.notify.titles)
}

func TestCreate_RejectsNonPostableAccount(t *testing.T) {
	h := newHarness(t)
	cash := h.fx.Account(t, models.TypeAsset, "Cash")
	closed := h.fx.Account(t, models.TypeLiability, "Old loan", testutil.NoPosting(), testutil.Inactive())

	_, err := h.svc.CreateTransaction(context.Background(), h.simple(cash, closed, "10.00", testutil.Today()), alice)
	e := requireCode(t, err, apperr.CodeValidation)
	assert.Contains(t, e.Details, "Account "+closed.AccountNumber+" is not active.")
	assert.Contains(t, e.Details, "Account "+closed.AccountNumber+" does not allow posting.")
}

func TestValidateTransaction_AggregatesEverything(t *testing.T) {
	acct := &models.Account{AccountNumber: "1001", IsActive: true, AllowPosting: true}
	deleted := &models.Account{AccountNumber: "2001", IsDeleted: true}

	tx := &models.Transaction{JournalEntries: []models.JournalEntry{
		{Description: "Empty"},
		{Description: "Lines", Items: []models.JournalItem{
			{AccountID: 1, Account: acct},
			{AccountID: 2, Account: deleted, DebitAmount: testutil.Dec("-5")},
		}},
	}}

	err := ValidateTransaction(tx)
	e := requireCode(t, err, apperr.CodeValidation)
	assert.Equal(t, []string{
		"Transaction is not balanced. Debits: -5.00, Credits: 0.00.",
		"Journal entry 'Empty' must have at least one item.",
		"Journal entry 'Lines' is not balanced. Debits: -5.00, Credits: 0.00.",
		"Journal item for account 1001 must have either a debit or credit amount.",
		"Journal item for account 2001 cannot have a negative amount.",
		"Account 2001 is not active or does not allow posting.",
		"Account 2001 is not active.",
		"Account 2001 does not allow posting.",
		"Account 2001 has been deleted.",
	}, e.Details)

	assert.NoError(t, ValidateTransaction(&models.Transaction{JournalEntries: []models.JournalEntry{
		{Items: []models.JournalItem{
			{AccountID: 1, Account: acct, DebitAmount: testutil.Dec("1")},
			{AccountID: 1, Account: acct, CreditAmount: testutil.Dec("1")},
		}},
	}}))

	err = ValidateTransaction(&models.Transaction{})
	e = requireCode(t, err, apperr.CodeValidation)
	assert.Equal(t, []string{"Transaction must have at least one journal entry."}, e.Details)
}

func TestCreate_InputChecks(t *testing.T) {
	h := newHarness(t)
	cash := h.fx.Account(t, models.TypeAsset, "Cash")
	sales := h.fx.Account(t, models.TypeRevenue, "Sales")

	t.Run("future date", func(t *testing.T) {
		in := h.simple(cash, sales, "1.00", testutil.Today().AddDate(0, 0, 1))
		_, err := h.svc.CreateTransaction(context.Background(), in, alice)
		e := requireCode(t, err, apperr.CodeValidation)
		assert.Contains(t, e.Details, "Transaction date cannot be in the future.")
	})

	t.Run("no entries", func(t *testing.T) {
		in := h.simple(cash, sales, "1.00", testutil.Today())
		in.Entries = nil
		_, err := h.svc.CreateTransaction(context.Background(), in, alice)
		e := requireCode(t, err, apperr.CodeValidation)
		assert.Contains(t, e.Details, "Transaction must have at least one journal entry.")
		assert.Contains(t, e.Details, "Transaction amount must be greater than zero.")
	})

	t.Run("entry without items", func(t *testing.T) {
		in := h.simple(cash, sales, "1.00", testutil.Today())
		in.Entries = append(in.Entries, EntryInput{Description: "empty"})
		_, err := h.svc.CreateTransaction(context.Background(), in, alice)
		e := requireCode(t, err, apperr.CodeValidation)
		assert.Contains(t, e.Details, "Journal entry 2 must have at least one item.")
	})

	t.Run("unknown account", func(t *testing.T) {
		in := h.simple(cash, &models.Account{ID: 9999}, "1.00", testutil.Today())
		_, err := h.svc.CreateTransaction(context.Background(), in, alice)
		requireCode(t, err, apperr.CodeNotFound)
	})

	t.Run("unknown type", func(t *testing.T) {
		in := h.simple(cash, sales, "1.00", testutil.Today())
		in.TransactionTypeID = 9999
		_, err := h.svc.CreateTransaction(context.Background(), in, alice)
		requireCode(t, err, apperr.CodeNotFound)
	})

	t.Run("amount defaults to debits", func(t *testing.T) {
		in := h.simple(cash, sales, "12.345", time.Time{})
		tx, err := h.svc.CreateTransaction(context.Background(), in, alice)
		require.NoError(t, err)
		assert.Equal(t, "12.35", tx.Amount.StringFixed(2))
		assert.Equal(t, testutil.Today(), DateOnly(tx.TransactionDate))
		assert.Equal(t, models.StatusDraft, tx.Status)
	})

	t.Run("negative amount", func(t *testing.T) {
		in := h.simple(cash, sales, "1.00", testutil.Today())
		in.Amount = testutil.Dec("-3")
		_, err := h.svc.CreateTransaction(context.Background(), in, alice)
		e := requireCode(t, err, apperr.CodeValidation)
		assert.Contains(t, e.Details, "Transaction amount must be greater than zero.")
	})
}

func TestPost_Twice(t *testing.T) {
	h := newHarness(t)
	cash := h.fx.Account(t, models.TypeAsset, "Cash")
	loan := h.fx.Account(t, models.TypeLiability, "Loan")
	tx := h.createAndPost(t, h.simple(cash, loan, "250.00", testutil.Today()))

	err := h.svc.PostTransaction(context.Background(), tx.ID, alice)
	e := requireCode(t, err, apperr.CodeConflict)
	assert.Equal(t, "Transaction is already posted.", e.Message)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	assert.Equal(t, "250.00", h.balance(t, cash))
	assert.Equal(t, "250.00", h.balance(t, loan))
}

func TestPost_Unknown(t *testing.T) {
	h := newHarness(t)
	err := h.svc.PostTransaction(context.Background(), 42, alice)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestVoid_Preconditions(t *testing.T) {
	h := newHarness(t)
	cash := h.fx.Account(t, models.TypeAsset, "Cash")
	loan := h.fx.Account(t, models.TypeLiability, "Loan")

	draft, err := h.svc.CreateTransaction(context.Background(), h.simple(cash, loan, "5.00", testutil.Today()), alice)
	require.NoError(t, err)
	_, err = h.svc.VoidTransaction(context.Background(), draft.ID, alice, "")
	e := requireCode(t, err, apperr.CodeConflict)
	assert.Equal(t, "Only posted transactions can be voided.", e.Message)

	require.NoError(t, h.svc.PostTransaction(context.Background(), draft.ID, alice))
	rev, err := h.svc.VoidTransaction(context.Background(), draft.ID, alice, "")
	require.NoError(t, err)
	assert.Equal(t, "Reversal of "+draft.TransactionNumber, rev.Description)

	_, err = h.svc.VoidTransaction(context.Background(), draft.ID, alice, "")
	e = requireCode(t, err, apperr.CodeConflict)
	assert.Equal(t, "Transaction is already voided.", e.Message)

	err = h.svc.PostTransaction(context.Background(), draft.ID, alice)
	requireCode(t, err, apperr.CodeConflict)

	_, err = h.svc.VoidTransaction(context.Background(), 777, alice, "")
	requireCode(t, err, apperr.CodeNotFound)

	assert.Equal(t, int64(2), count(t, h.db, &models.Transaction{}))
	assert.Equal(t, "0.00", h.balance(t, cash))
}

func TestAuditFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	h.audit.err = errors.New("audit store unavailable")
	h.notify.err = errors.New("smtp down")
	cash := h.fx.Account(t, models.TypeAsset, "Cash")
	sales := h.fx.Account(t, models.TypeRevenue, "Sales")

	tx := h.createAndPost(t, h.simple(cash, sales, "40.00", testutil.Today()))
	_, err := h.svc.VoidTransaction(context.Background(), tx.ID, alice, "test")
	require.NoError(t, err)

	assert.Len(t, h.audit.acts, 4)
	assert.Equal(t, int64(0), count(t, h.db, &models.AuditLog{}), "savepoint rollback discards partial audit writes")
	assert.Equal(t, "0.00", h.balance(t, cash))
}

func TestTransactionNumbers(t *testing.T) {
	h := newHarness(t)
	day := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	h.svc = NewService(h.db, nil, nil, Options{Clock: func() time.Time { return day }}, nil)
	cash := h.fx.Account(t, models.TypeAsset, "Cash")
	sales := h.fx.Account(t, models.TypeRevenue, "Sales")

	first, err := h.svc.CreateTransaction(context.Background(), h.simple(cash, sales, "1.00", testutil.Date(2024, 3, 1)), alice)
	require.NoError(t, err)
	second, err := h.svc.CreateTransaction(context.Background(), h.simple(cash, sales, "1.00", testutil.Date(2024, 2, 1)), alice)
	require.NoError(t, err)

	assert.Equal(t, "TXN202403090001", first.TransactionNumber)
	assert.Equal(t, "TXN202403090002", second.TransactionNumber)

	day = day.AddDate(0, 0, 1)
	third, err := h.svc.CreateTransaction(context.Background(), h.simple(cash, sales, "1.00", testutil.Date(2024, 3, 1)), alice)
	require.NoError(t, err)
	assert.Equal(t, "TXN202403100001", third.TransactionNumber)
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cash := h.fx.Account(t, models.TypeAsset, "Cash")
	sales := h.fx.Account(t, models.TypeRevenue, "Sales")
	rent := h.fx.Account(t, models.TypeExpense, "Rent")

	posted := h.createAndPost(t, h.simple(cash, sales, "900.00", testutil.Today().AddDate(0, 0, -3)))
	draft, err := h.svc.CreateTransaction(ctx, h.simple(rent, cash, "100.00", testutil.Today()), alice)
	require.NoError(t, err)

	drafts, err := h.svc.ListTransactions(ctx, TransactionFilter{Status: models.StatusDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)

	large := testutil.Dec("500")
	big, err := h.svc.ListTransactions(ctx, TransactionFilter{MinAmount: &large, TypeCode: "JOURNAL"})
	require.NoError(t, err)
	require.Len(t, big, 1)
	assert.Equal(t, posted.ID, big[0].ID)

	all, err := h.svc.ListTransactions(ctx, TransactionFilter{Search: "TXN"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, draft.ID, all[0].ID, "newest first")

	onCash, err := h.svc.AccountTransactions(ctx, cash.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, onCash, 1, "drafts are not part of the account history")
	assert.Equal(t, posted.ID, onCash[0].ID)

	_, err = h.svc.AccountTransactions(ctx, 999, nil, nil)
	requireCode(t, err, apperr.CodeNotFound)

	sum, err := h.svc.Summary(ctx, posted.ID)
	require.NoError(t, err)
	assert.True(t, sum.IsBalanced)
	assert.Equal(t, 1, sum.EntryCount)
	assert.Equal(t, 2, sum.ItemCount)
	assert.Equal(t, 2, sum.AccountCount)
	assert.Equal(t, "900.00", sum.TotalDebits.StringFixed(2))

	_, err = h.svc.GetTransaction(ctx, 12345)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestPost_ConcurrentOnSharedAccount(t *testing.T) {
	h := newHarness(t)
	cash := h.fx.Account(t, models.TypeAsset, "Cash", testutil.Opening("1000.00"))
	sales := h.fx.Account(t, models.TypeRevenue, "Sales")

	const n = 8
	ids := make([]uint, n)
	for i := range ids {
		tx, err := h.svc.CreateTransaction(context.Background(), h.simple(cash, sales, "10.00", testutil.Today()), alice)
		require.NoError(t, err)
		ids[i] = tx.ID
	}

	errs := make(chan error, n)
	for _, id := range ids {
		go func(id uint) {
			errs <- h.svc.PostTransaction(context.Background(), id, alice)
		}(id)
	}
	for range ids {
		require.NoError(t, <-errs)
	}

	assert.Equal(t, "1080.00", h.balance(t, cash))
	assert.Equal(t, "80.00", h.balance(t, sales))
	assert.Equal(t, int64(n), count(t, h.db.Where("status = ?", models.StatusPosted), &models.Transaction{}))
}
