package accounts

import (
	"context"
	"testing"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/ledger"
	"ledger-backend/internal/models"
	"ledger-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var admin = ledger.Actor{ID: 1, Name: "admin"}

type captureAudit struct {
	acts []ledger.Activity
}

func (c *captureAudit) LogActivity(_ context.Context, _ *gorm.DB, act ledger.Activity) error {
	c.acts = append(c.acts, act)
	return nil
}

func newTestService(t *testing.T) (*Service, *testutil.Fixture, *captureAudit) {
	t.Helper()
	db := testutil.NewDB(t)
	fx := testutil.NewFixture(t, db)
	audit := &captureAudit{}
	return NewService(db, audit, zap.NewNop()), fx, audit
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok, "expected apperr.Error, got %T: %v", err, err)
	require.Equal(t, code, e.Code, e.Error())
}

func u(v uint) *uint { return &v }

func TestCreateAccountType(t *testing.T) {
	svc := NewService(testutil.NewDB(t), nil, nil)
	ctx := context.Background()

	at, err := svc.CreateAccountType(ctx, AccountTypeInput{Code: "asset", Name: "Assets"})
	require.NoError(t, err)
	assert.Equal(t, models.TypeAsset, at.Code)
	assert.Equal(t, models.BalanceDebit, at.NormalBalance)

	_, err = svc.CreateAccountType(ctx, AccountTypeInput{Code: models.TypeAsset})
	requireCode(t, err, apperr.CodeValidation)

	_, err = svc.CreateAccountType(ctx, AccountTypeInput{Code: models.TypeRevenue, NormalBalance: models.BalanceDebit})
	requireCode(t, err, apperr.CodeValidation)

	_, err = svc.CreateAccountType(ctx, AccountTypeInput{Code: "GOODWILL"})
	requireCode(t, err, apperr.CodeValidation)

	types, err := svc.ListAccountTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 1)
}

func TestCategoryTree(t *testing.T) {
	svc, fx, _ := newTestService(t)
	ctx := context.Background()
	assetType := fx.Types[models.TypeAsset].ID

	current, err := svc.CreateCategory(ctx, CategoryInput{Code: "CUR", Name: "Current Assets", AccountTypeID: assetType})
	require.NoError(t, err)
	cashCat, err := svc.CreateCategory(ctx, CategoryInput{Code: "CASH", Name: "Cash", AccountTypeID: assetType, ParentCategoryID: &current.ID})
	require.NoError(t, err)
	petty, err := svc.CreateCategory(ctx, CategoryInput{Code: "PETTY", Name: "Petty Cash", AccountTypeID: assetType, ParentCategoryID: &cashCat.ID})
	require.NoError(t, err)

	path, err := svc.CategoryPath(ctx, petty.ID)
	require.NoError(t, err)
	assert.Equal(t, "Current Assets > Cash > Petty Cash", path)

	t.Run("self parent", func(t *testing.T) {
		_, err := svc.SetCategoryParent(ctx, current.ID, &current.ID)
		requireCode(t, err, apperr.CodeValidation)
	})

	t.Run("descendant parent", func(t *testing.T) {
		_, err := svc.SetCategoryParent(ctx, current.ID, &petty.ID)
		requireCode(t, err, apperr.CodeValidation)
		reloaded, err := findCategory(fx.DB, current.ID)
		require.NoError(t, err)
		assert.Nil(t, reloaded.ParentCategoryID)
	})

	t.Run("other type", func(t *testing.T) {
		_, err := svc.SetCategoryParent(ctx, petty.ID, &fx.Categories[models.TypeExpense].ID)
		requireCode(t, err, apperr.CodeValidation)
	})

	t.Run("unknown parent", func(t *testing.T) {
		_, err := svc.SetCategoryParent(ctx, petty.ID, u(9999))
		requireCode(t, err, apperr.CodeNotFound)
	})

	t.Run("move to root", func(t *testing.T) {
		moved, err := svc.SetCategoryParent(ctx, petty.ID, nil)
		require.NoError(t, err)
		assert.Nil(t, moved.ParentCategoryID)
		path, err := svc.CategoryPath(ctx, petty.ID)
		require.NoError(t, err)
		assert.Equal(t, "Petty Cash", path)
	})

	t.Run("duplicate code", func(t *testing.T) {
		_, err := svc.CreateCategory(ctx, CategoryInput{Code: "CASH", Name: "Again", AccountTypeID: assetType})
		requireCode(t, err, apperr.CodeValidation)
	})

	cats, err := svc.ListCategories(ctx, models.TypeAsset)
	require.NoError(t, err)
	assert.Len(t, cats, 4)
}

func TestCategoryPath_StoredCycle(t *testing.T) {
	svc, fx, _ := newTestService(t)
	ctx := context.Background()
	assetType := fx.Types[models.TypeAsset].ID

	a, err := svc.CreateCategory(ctx, CategoryInput{Code: "A", Name: "A", AccountTypeID: assetType})
	require.NoError(t, err)
	b, err := svc.CreateCategory(ctx, CategoryInput{Code: "B", Name: "B", AccountTypeID: assetType, ParentCategoryID: &a.ID})
	require.NoError(t, err)
	// Corrupt the tree behind the service's back.
	require.NoError(t, fx.DB.Model(&models.AccountCategory{}).Where("id = ?", a.ID).Update("parent_category_id", b.ID).Error)

	_, err = svc.CategoryPath(ctx, b.ID)
	requireCode(t, err, apperr.CodeValidation)
}

func TestCreateAccount(t *testing.T) {
	svc, fx, audit := newTestService(t)
	ctx := context.Background()

	in := AccountInput{
		AccountNumber:  "1010",
		Name:           "Cash on hand",
		AccountTypeID:  fx.Types[models.TypeAsset].ID,
		CategoryID:     fx.Categories[models.TypeAsset].ID,
		OpeningBalance: testutil.Dec("125.456"),
		IsCashAccount:  true,
	}
	acct, err := svc.CreateAccount(ctx, in, admin)
	require.NoError(t, err)
	assert.Equal(t, models.BalanceDebit, acct.BalanceType)
	assert.Equal(t, "125.46", acct.OpeningBalance.StringFixed(2))
	assert.True(t, acct.CurrentBalance.Equal(acct.OpeningBalance))
	assert.True(t, acct.AllowPosting)
	assert.True(t, acct.IsActive)
	require.Len(t, audit.acts, 1)
	assert.Equal(t, models.AuditActionCreate, audit.acts[0].Action)
	assert.Equal(t, "account", audit.acts[0].EntityType)

	t.Run("duplicate number", func(t *testing.T) {
		_, err := svc.CreateAccount(ctx, in, admin)
		requireCode(t, err, apperr.CodeValidation)
		assert.Contains(t, err.Error(), "duplicate account number")
	})

	t.Run("bad number and name aggregate", func(t *testing.T) {
		bad := in
		bad.AccountNumber = "1-0"
		bad.Name = " "
		_, err := svc.CreateAccount(ctx, bad, admin)
		requireCode(t, err, apperr.CodeValidation)
		e, _ := apperr.As(err)
		assert.Len(t, e.Details, 2)
	})

	t.Run("balance type mismatch", func(t *testing.T) {
		bad := in
		bad.AccountNumber = "1011"
		bad.BalanceType = models.BalanceCredit
		_, err := svc.CreateAccount(ctx, bad, admin)
		requireCode(t, err, apperr.CodeValidation)
		assert.Contains(t, err.Error(), "Balance type must match account type normal balance.")
	})

	t.Run("category of another type", func(t *testing.T) {
		bad := in
		bad.AccountNumber = "1012"
		bad.CategoryID = fx.Categories[models.TypeRevenue].ID
		_, err := svc.CreateAccount(ctx, bad, admin)
		requireCode(t, err, apperr.CodeValidation)
	})

	t.Run("unknown type", func(t *testing.T) {
		bad := in
		bad.AccountNumber = "1013"
		bad.AccountTypeID = 999
		_, err := svc.CreateAccount(ctx, bad, admin)
		requireCode(t, err, apperr.CodeNotFound)
	})

	t.Run("posting disabled", func(t *testing.T) {
		off := false
		header := in
		header.AccountNumber = "1000"
		header.AllowPosting = &off
		acct, err := svc.CreateAccount(ctx, header, admin)
		require.NoError(t, err)
		assert.False(t, acct.AllowPosting)
		assert.False(t, acct.CanPostTransactions())
	})
}

func TestUpdateAndDeleteAccount(t *testing.T) {
	svc, fx, audit := newTestService(t)
	ctx := context.Background()
	acct := fx.Account(t, models.TypeExpense, "Office")

	name := "Office supplies"
	off := false
	updated, err := svc.UpdateAccount(ctx, acct.ID, AccountUpdate{Name: &name, AllowPosting: &off}, admin)
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.False(t, updated.AllowPosting)
	assert.Equal(t, acct.AccountNumber, updated.AccountNumber)

	empty := ""
	_, err = svc.UpdateAccount(ctx, acct.ID, AccountUpdate{Name: &empty}, admin)
	requireCode(t, err, apperr.CodeValidation)

	require.NoError(t, svc.DeleteAccount(ctx, acct.ID, admin))
	require.NoError(t, svc.DeleteAccount(ctx, acct.ID, admin), "deleting twice is a no-op")

	stored := testutil.Reload(t, fx.DB, acct)
	assert.True(t, stored.IsDeleted)
	assert.False(t, stored.IsActive)

	_, err = svc.UpdateAccount(ctx, acct.ID, AccountUpdate{Name: &name}, admin)
	requireCode(t, err, apperr.CodeConflict)

	listed, err := svc.ListAccounts(ctx, AccountFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)
	listed, err = svc.ListAccounts(ctx, AccountFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	err = svc.DeleteAccount(ctx, 999, admin)
	requireCode(t, err, apperr.CodeNotFound)

	actions := make([]models.AuditAction, 0, len(audit.acts))
	for _, a := range audit.acts {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []models.AuditAction{models.AuditActionUpdate, models.AuditActionDelete}, actions)
}

func TestListAccounts_Filters(t *testing.T) {
	svc, fx, _ := newTestService(t)
	ctx := context.Background()
	fx.Account(t, models.TypeAsset, "Petty cash", testutil.Cash())
	fx.Account(t, models.TypeAsset, "Equipment")
	fx.Account(t, models.TypeRevenue, "Sales", testutil.Inactive())

	yes := true
	cash, err := svc.ListAccounts(ctx, AccountFilter{Cash: &yes})
	require.NoError(t, err)
	require.Len(t, cash, 1)
	assert.Equal(t, "Petty cash", cash[0].Name)

	assets, err := svc.ListAccounts(ctx, AccountFilter{TypeCode: models.TypeAsset})
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	active, err := svc.ListAccounts(ctx, AccountFilter{Active: &yes})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	found, err := svc.ListAccounts(ctx, AccountFilter{Search: "Equip"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.NotNil(t, found[0].AccountType)
}

func TestChartOfAccounts(t *testing.T) {
	svc, fx, _ := newTestService(t)
	fx.Account(t, models.TypeAsset, "Cash")
	fx.Account(t, models.TypeAsset, "Old", testutil.Inactive())
	fx.Account(t, models.TypeEquity, "Capital")

	chart, err := svc.ChartOfAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, chart, len(models.AccountTypeCodes))

	byCode := map[models.AccountTypeCode]ChartType{}
	for _, ct := range chart {
		byCode[ct.Code] = ct
	}
	require.Len(t, byCode[models.TypeAsset].Categories, 1)
	assert.Len(t, byCode[models.TypeAsset].Categories[0].Accounts, 1)
	assert.Equal(t, models.BalanceCredit, byCode[models.TypeEquity].NormalBalance)
	assert.NotNil(t, byCode[models.TypeExpense].Categories[0].Accounts)
}

func TestBalanceAndRefresh(t *testing.T) {
	svc, fx, _ := newTestService(t)
	ctx := context.Background()
	posting := ledger.NewService(fx.DB, nil, nil, ledger.Options{}, nil)

	cash := fx.Account(t, models.TypeAsset, "Cash", testutil.Opening("40.00"))
	sales := fx.Account(t, models.TypeRevenue, "Sales")
	tx, err := posting.CreateTransaction(ctx, ledger.CreateTransactionInput{
		Description:       "Sale",
		TransactionTypeID: fx.TxType.ID,
		Entries: []ledger.EntryInput{{Items: []ledger.ItemInput{
			{AccountID: cash.ID, DebitAmount: testutil.Dec("60.00")},
			{AccountID: sales.ID, CreditAmount: testutil.Dec("60.00")},
		}}},
	}, admin)
	require.NoError(t, err)
	require.NoError(t, posting.PostTransaction(ctx, tx.ID, admin))

	bal, err := svc.Balance(ctx, cash.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "100.00", bal.Balance.StringFixed(2))
	assert.Equal(t, "100.00", bal.CachedBalance.StringFixed(2))

	yesterday := testutil.Today().AddDate(0, 0, -1)
	bal, err = svc.Balance(ctx, cash.ID, &yesterday)
	require.NoError(t, err)
	assert.Equal(t, "40.00", bal.Balance.StringFixed(2))

	require.NoError(t, fx.DB.Model(&models.Account{}).Where("id = ?", cash.ID).Update("current_balance", testutil.Dec("0")).Error)
	drifts, err := svc.Reconcile(ctx, false)
	require.NoError(t, err)
	require.Len(t, drifts, 1)

	refreshed, err := svc.RefreshBalance(ctx, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", refreshed.CurrentBalance.StringFixed(2))

	drifts, err = svc.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	_, err = svc.RefreshBalance(ctx, 999)
	requireCode(t, err, apperr.CodeNotFound)
	_, err = svc.Balance(ctx, 999, nil)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestTransactionTypes(t *testing.T) {
	svc := NewService(testutil.NewDB(t), nil, nil)
	ctx := context.Background()

	tt, err := svc.CreateTransactionType(ctx, TransactionTypeInput{Code: " sale ", Name: "Sale"})
	require.NoError(t, err)
	assert.Equal(t, "SALE", tt.Code)

	_, err = svc.CreateTransactionType(ctx, TransactionTypeInput{Code: "SALE", Name: "Again"})
	requireCode(t, err, apperr.CodeValidation)

	_, err = svc.CreateTransactionType(ctx, TransactionTypeInput{})
	requireCode(t, err, apperr.CodeValidation)

	list, err := svc.ListTransactionTypes(ctx, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
