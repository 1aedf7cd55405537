package setup

import (
	"context"
	"errors"
	"fmt"

	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result counts rows created by a seed run; existing rows are left as they are.
type Result struct {
	AccountTypes     int
	Categories       int
	Accounts         int
	TransactionTypes int
}

func (r Result) Total() int {
	return r.AccountTypes + r.Categories + r.Accounts + r.TransactionTypes
}

// Seed stores the chart in one transaction. Rows are matched by their
// natural keys (type code, category code within its type, account number,
// transaction type code), so running it again creates nothing.
func Seed(ctx context.Context, db *gorm.DB, chart *Chart, log *zap.Logger) (Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var res Result

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		types := map[models.AccountTypeCode]*models.AccountType{}
		for _, spec := range chart.AccountTypes {
			at := models.AccountType{
				Code:          spec.Code,
				Name:          spec.Name,
				NormalBalance: spec.NormalBalance,
				Description:   spec.Description,
				IsActive:      true,
			}
			created, err := firstOrCreate(tx, &at, "code = ?", spec.Code)
			if err != nil {
				return fmt.Errorf("account type %s: %w", spec.Code, err)
			}
			if created {
				res.AccountTypes++
			}
			types[spec.Code] = &at
		}

		categories := map[string]*models.AccountCategory{}
		categoryTypes := map[string]*models.AccountType{}
		for _, spec := range chart.Categories {
			at := types[spec.Type]
			cat := models.AccountCategory{
				Code:          spec.Code,
				Name:          spec.Name,
				Description:   spec.Description,
				AccountTypeID: at.ID,
				SortOrder:     spec.SortOrder,
				IsActive:      true,
			}
			if spec.Parent != "" {
				cat.ParentCategoryID = &categories[spec.Parent].ID
			}
			created, err := firstOrCreate(tx, &cat, "code = ? AND account_type_id = ?", spec.Code, at.ID)
			if err != nil {
				return fmt.Errorf("category %s: %w", spec.Code, err)
			}
			if created {
				res.Categories++
			}
			categories[spec.Code] = &cat
			categoryTypes[spec.Code] = at
		}

		for _, spec := range chart.Accounts {
			cat := categories[spec.Category]
			at := categoryTypes[spec.Category]
			opening := decimal.Zero
			if spec.OpeningBalance != "" {
				opening = decimal.RequireFromString(spec.OpeningBalance).Round(2)
			}
			acct := models.Account{
				AccountNumber:   spec.Number,
				Name:            spec.Name,
				Description:     spec.Description,
				AccountTypeID:   at.ID,
				CategoryID:      cat.ID,
				BalanceType:     at.NormalBalance,
				OpeningBalance:  opening,
				CurrentBalance:  opening,
				IsActive:        true,
				AllowPosting:    !spec.NoPosting,
				IsCashAccount:   spec.Cash,
				IsBankAccount:   spec.Bank,
				IsContraAccount: spec.Contra,
				SortOrder:       spec.SortOrder,
			}
			created, err := firstOrCreate(tx, &acct, "account_number = ?", spec.Number)
			if err != nil {
				return fmt.Errorf("account %s: %w", spec.Number, err)
			}
			if created {
				res.Accounts++
			}
		}

		for _, spec := range chart.TransactionTypes {
			tt := models.TransactionType{Code: spec.Code, Name: spec.Name, Description: spec.Description, IsActive: true}
			created, err := firstOrCreate(tx, &tt, "code = ?", spec.Code)
			if err != nil {
				return fmt.Errorf("transaction type %s: %w", spec.Code, err)
			}
			if created {
				res.TransactionTypes++
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	log.Info("chart of accounts seeded",
		zap.Int("account_types", res.AccountTypes),
		zap.Int("categories", res.Categories),
		zap.Int("accounts", res.Accounts),
		zap.Int("transaction_types", res.TransactionTypes))
	return res, nil
}

// firstOrCreate loads the row matching the query into dest, or inserts dest
// when there is none. It reports whether a row was inserted.
func firstOrCreate[T any](tx *gorm.DB, dest *T, query string, args ...any) (bool, error) {
	var existing T
	err := tx.Where(query, args...).First(&existing).Error
	if err == nil {
		*dest = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := tx.Create(dest).Error; err != nil {
		return false, err
	}
	return true, nil
}
