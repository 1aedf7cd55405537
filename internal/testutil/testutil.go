// Package testutil provides isolated SQLite ledgers and fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"ledger-backend/internal/database"
	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Date returns midnight UTC, the form every ledger date is stored in.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Today is the current UTC date at midnight.
func Today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return Date(y, m, d)
}

// Fixture is a small chart of accounts: one type per code, one category per type.
type Fixture struct {
	DB         *gorm.DB
	Types      map[models.AccountTypeCode]*models.AccountType
	Categories map[models.AccountTypeCode]*models.AccountCategory
	TxType     *models.TransactionType
	seq        int
}

func NewFixture(t testing.TB, db *gorm.DB) *Fixture {
	t.Helper()
	f := &Fixture{
		DB:         db,
		Types:      map[models.AccountTypeCode]*models.AccountType{},
		Categories: map[models.AccountTypeCode]*models.AccountCategory{},
	}
	for _, code := range models.AccountTypeCodes {
		at := &models.AccountType{Code: code, Name: string(code), NormalBalance: models.NormalBalanceFor(code), IsActive: true}
		require.NoError(t, db.Create(at).Error)
		f.Types[code] = at

		cat := &models.AccountCategory{Code: string(code)[:3] + "-GEN", Name: "General " + strings.ToLower(string(code)), AccountTypeID: at.ID, IsActive: true}
		require.NoError(t, db.Create(cat).Error)
		f.Categories[code] = cat
	}
	f.TxType = &models.TransactionType{Code: "JOURNAL", Name: "Journal", IsActive: true}
	require.NoError(t, db.Create(f.TxType).Error)
	return f
}

// AccountOption tweaks an account before it is stored.
type AccountOption func(*models.Account)

func Opening(amount string) AccountOption {
	return func(a *models.Account) {
		a.OpeningBalance = Dec(amount)
		a.CurrentBalance = a.OpeningBalance
	}
}

func Cash() AccountOption { return func(a *models.Account) { a.IsCashAccount = true } }

func NoPosting() AccountOption { return func(a *models.Account) { a.AllowPosting = false } }

func Inactive() AccountOption { return func(a *models.Account) { a.IsActive = false } }

func InCategory(c *models.AccountCategory) AccountOption {
	return func(a *models.Account) { a.CategoryID = c.ID }
}

// Account stores a postable account of the given type.
func (f *Fixture) Account(t testing.TB, code models.AccountTypeCode, name string, opts ...AccountOption) *models.Account {
	t.Helper()
	f.seq++
	a := &models.Account{
		AccountNumber:  fmt.Sprintf("%d%03d", typeDigit(code), f.seq),
		Name:           name,
		AccountTypeID:  f.Types[code].ID,
		CategoryID:     f.Categories[code].ID,
		BalanceType:    models.NormalBalanceFor(code),
		OpeningBalance: decimal.Zero,
		CurrentBalance: decimal.Zero,
		IsActive:       true,
		AllowPosting:   true,
	}
	for _, o := range opts {
		o(a)
	}
	require.NoError(t, f.DB.Create(a).Error)
	require.NoError(t, f.DB.Preload("AccountType").Preload("Category").First(a, a.ID).Error)
	return a
}

func typeDigit(code models.AccountTypeCode) int {
	for i, c := range models.AccountTypeCodes {
		if c == code {
			return i + 1
		}
	}
	return 9
}

// Reload fetches the stored state of an account.
func Reload(t testing.TB, db *gorm.DB, a *models.Account) *models.Account {
	t.Helper()
	var out models.Account
	require.NoError(t, db.Preload("AccountType").Preload("Category").First(&out, a.ID).Error)
	return &out
}
