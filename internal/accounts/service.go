// Package accounts manages the chart of accounts: account types, the
// category tree, accounts and transaction types.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/ledger"
	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var accountNumberRe = regexp.MustCompile(`^[A-Za-z0-9]{3,20}$`)

type Service struct {
	db    *gorm.DB
	audit ledger.AuditSink
	log   *zap.Logger
}

func NewService(db *gorm.DB, audit ledger.AuditSink, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, audit: audit, log: log}
}

type AccountTypeInput struct {
	Code          models.AccountTypeCode `json:"code"`
	Name          string                 `json:"name"`
	NormalBalance models.NormalBalance   `json:"normal_balance"`
	Description   string                 `json:"description"`
}

// CreateAccountType stores a type whose normal balance must agree with its code.
func (s *Service) CreateAccountType(ctx context.Context, in AccountTypeInput) (*models.AccountType, error) {
	in.Code = models.AccountTypeCode(strings.ToUpper(strings.TrimSpace(string(in.Code))))
	if !in.Code.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("Unknown account type code %q.", in.Code))
	}
	expected := models.NormalBalanceFor(in.Code)
	if in.NormalBalance == "" {
		in.NormalBalance = expected
	}
	if in.NormalBalance != expected {
		return nil, apperr.Validation(fmt.Sprintf("Account type %s must have a %s normal balance.", in.Code, expected))
	}
	if in.Name == "" {
		in.Name = string(in.Code)
	}

	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.AccountType{}).Where("code = ?", in.Code).Count(&n).Error; err != nil {
		return nil, apperr.Internal("Failed to create account type", err)
	}
	if n > 0 {
		return nil, apperr.Validation(fmt.Sprintf("Account type %s already exists.", in.Code))
	}

	at := &models.AccountType{
		Code:          in.Code,
		Name:          in.Name,
		NormalBalance: in.NormalBalance,
		Description:   in.Description,
		IsActive:      true,
	}
	if err := db.Create(at).Error; err != nil {
		return nil, apperr.Internal("Failed to create account type", err)
	}
	return at, nil
}

func (s *Service) ListAccountTypes(ctx context.Context) ([]models.AccountType, error) {
	var out []models.AccountType
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, apperr.Internal("Failed to list account types", err)
	}
	return out, nil
}

type CategoryInput struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	AccountTypeID    uint   `json:"account_type_id"`
	ParentCategoryID *uint  `json:"parent_category_id"`
	SortOrder        int    `json:"sort_order"`
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*models.AccountCategory, error) {
	in.Code = strings.TrimSpace(in.Code)
	var errs []string
	if in.Code == "" {
		errs = append(errs, "Category code is required.")
	}
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, "Category name is required.")
	}
	if len(errs) > 0 {
		return nil, apperr.Validation(errs...)
	}

	var created *models.AccountCategory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findAccountType(tx, in.AccountTypeID); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.AccountCategory{}).
			Where("code = ? AND account_type_id = ?", in.Code, in.AccountTypeID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Validation(fmt.Sprintf("Category %s already exists for this account type.", in.Code))
		}

		cat := &models.AccountCategory{
			Code:          in.Code,
			Name:          in.Name,
			Description:   in.Description,
			AccountTypeID: in.AccountTypeID,
			SortOrder:     in.SortOrder,
			IsActive:      true,
		}
		if in.ParentCategoryID != nil {
			parent, err := findCategory(tx, *in.ParentCategoryID)
			if err != nil {
				return err
			}
			if parent.AccountTypeID != in.AccountTypeID {
				return apperr.Validation("Parent category must belong to the same account type.")
			}
			cat.ParentCategoryID = in.ParentCategoryID
		}
		if err := tx.Create(cat).Error; err != nil {
			return err
		}
		created = cat
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to create category")
	}
	return created, nil
}

func (s *Service) ListCategories(ctx context.Context, typeCode models.AccountTypeCode) ([]models.AccountCategory, error) {
	q := s.db.WithContext(ctx).Preload("AccountType")
	if typeCode != "" {
		q = q.Joins("JOIN account_types aty ON aty.id = account_categories.account_type_id").
			Where("aty.code = ?", typeCode)
	}
	var out []models.AccountCategory
	if err := q.Order("account_categories.sort_order, account_categories.code").Find(&out).Error; err != nil {
		return nil, apperr.Internal("Failed to list categories", err)
	}
	return out, nil
}

// SetCategoryParent moves a category in the tree. A nil parent makes it a
// root. Assignments that would close a cycle are rejected.
func (s *Service) SetCategoryParent(ctx context.Context, categoryID uint, parentID *uint) (*models.AccountCategory, error) {
	var updated *models.AccountCategory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cat, err := findCategory(tx, categoryID)
		if err != nil {
			return err
		}

		if parentID != nil {
			if *parentID == categoryID {
				return apperr.Validation("A category cannot be its own parent.")
			}
			parent, err := findCategory(tx, *parentID)
			if err != nil {
				return err
			}
			if parent.AccountTypeID != cat.AccountTypeID {
				return apperr.Validation("Parent category must belong to the same account type.")
			}
			ancestors, err := ancestorIDs(tx, parent)
			if err != nil {
				return err
			}
			for _, id := range ancestors {
				if id == categoryID {
					return apperr.Validation(fmt.Sprintf("Category %s cannot be placed under its own descendant %s.", cat.Code, parent.Code))
				}
			}
		}

		if err := tx.Model(cat).Update("parent_category_id", parentID).Error; err != nil {
			return err
		}
		cat.ParentCategoryID = parentID
		updated = cat
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to update category")
	}
	return updated, nil
}

// ancestorIDs walks parent links upward from start, start included.
// A cycle already present in stored data is reported instead of looping.
func ancestorIDs(tx *gorm.DB, start *models.AccountCategory) ([]uint, error) {
	visited := map[uint]bool{}
	var ids []uint
	cur := start
	for {
		if visited[cur.ID] {
			return nil, apperr.Validation(fmt.Sprintf("Category tree contains a cycle at %s.", cur.Code))
		}
		visited[cur.ID] = true
		ids = append(ids, cur.ID)
		if cur.ParentCategoryID == nil {
			return ids, nil
		}
		next, err := findCategory(tx, *cur.ParentCategoryID)
		if err != nil {
			return nil, err
		}
		cur = next
	}
}

// CategoryPath renders "Root > Child > Leaf".
func (s *Service) CategoryPath(ctx context.Context, categoryID uint) (string, error) {
	db := s.db.WithContext(ctx)

	var names []string
	visited := map[uint]bool{}
	id := &categoryID
	for id != nil {
		if visited[*id] {
			return "", apperr.Validation(fmt.Sprintf("Category tree contains a cycle at category %d.", *id))
		}
		visited[*id] = true
		cat, err := findCategory(db, *id)
		if err != nil {
			return "", apperr.Wrap(err, "Failed to resolve category path")
		}
		names = append(names, cat.Name)
		id = cat.ParentCategoryID
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, " > "), nil
}

type AccountInput struct {
	AccountNumber   string               `json:"account_number"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	AccountTypeID   uint                 `json:"account_type_id"`
	CategoryID      uint                 `json:"category_id"`
	BalanceType     models.NormalBalance `json:"balance_type"`
	OpeningBalance  decimal.Decimal      `json:"opening_balance"`
	AllowPosting    *bool                `json:"allow_posting"`
	IsCashAccount   bool                 `json:"is_cash_account"`
	IsBankAccount   bool                 `json:"is_bank_account"`
	IsContraAccount bool                 `json:"is_contra_account"`
	SortOrder       int                  `json:"sort_order"`
	Notes           string               `json:"notes"`
}

func (s *Service) CreateAccount(ctx context.Context, in AccountInput, actor ledger.Actor) (*models.Account, error) {
	in.AccountNumber = strings.TrimSpace(in.AccountNumber)
	var errs []string
	if !accountNumberRe.MatchString(in.AccountNumber) {
		errs = append(errs, "Account number must be 3 to 20 letters or digits.")
	}
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, "Account name is required.")
	}
	if len(errs) > 0 {
		return nil, apperr.Validation(errs...)
	}

	var created *models.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Account{}).Where("account_number = ?", in.AccountNumber).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Validation(fmt.Sprintf("Account with number %s already exists (duplicate account number).", in.AccountNumber))
		}

		at, err := findAccountType(tx, in.AccountTypeID)
		if err != nil {
			return err
		}
		cat, err := findCategory(tx, in.CategoryID)
		if err != nil {
			return err
		}
		if cat.AccountTypeID != at.ID {
			return apperr.Validation("Account category must belong to the account's type.")
		}

		if in.BalanceType == "" {
			in.BalanceType = at.NormalBalance
		}
		if in.BalanceType != at.NormalBalance {
			return apperr.Validation("Balance type must match account type normal balance.")
		}

		allowPosting := true
		if in.AllowPosting != nil {
			allowPosting = *in.AllowPosting
		}
		opening := in.OpeningBalance.Round(2)

		acct := &models.Account{
			AccountNumber:   in.AccountNumber,
			Name:            in.Name,
			Description:     in.Description,
			AccountTypeID:   at.ID,
			CategoryID:      cat.ID,
			BalanceType:     in.BalanceType,
			OpeningBalance:  opening,
			CurrentBalance:  opening,
			IsActive:        true,
			AllowPosting:    allowPosting,
			IsCashAccount:   in.IsCashAccount,
			IsBankAccount:   in.IsBankAccount,
			IsContraAccount: in.IsContraAccount,
			SortOrder:       in.SortOrder,
			Notes:           in.Notes,
		}
		if err := tx.Create(acct).Error; err != nil {
			return err
		}
		acct.AccountType = at
		acct.Category = cat
		created = acct
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to create account")
	}

	s.record(ctx, actor, models.AuditActionCreate, created, map[string]any{
		"account_number":  created.AccountNumber,
		"opening_balance": created.OpeningBalance.StringFixed(2),
	})
	return created, nil
}

// AccountUpdate changes descriptive fields and flags; type, number and
// opening balance are fixed once an account exists.
type AccountUpdate struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	IsActive        *bool   `json:"is_active"`
	AllowPosting    *bool   `json:"allow_posting"`
	IsCashAccount   *bool   `json:"is_cash_account"`
	IsBankAccount   *bool   `json:"is_bank_account"`
	IsContraAccount *bool   `json:"is_contra_account"`
	SortOrder       *int    `json:"sort_order"`
	Notes           *string `json:"notes"`
}

func (u AccountUpdate) changes() map[string]any {
	m := map[string]any{}
	if u.Name != nil {
		m["name"] = *u.Name
	}
	if u.Description != nil {
		m["description"] = *u.Description
	}
	if u.IsActive != nil {
		m["is_active"] = *u.IsActive
	}
	if u.AllowPosting != nil {
		m["allow_posting"] = *u.AllowPosting
	}
	if u.IsCashAccount != nil {
		m["is_cash_account"] = *u.IsCashAccount
	}
	if u.IsBankAccount != nil {
		m["is_bank_account"] = *u.IsBankAccount
	}
	if u.IsContraAccount != nil {
		m["is_contra_account"] = *u.IsContraAccount
	}
	if u.SortOrder != nil {
		m["sort_order"] = *u.SortOrder
	}
	if u.Notes != nil {
		m["notes"] = *u.Notes
	}
	return m
}

func (s *Service) UpdateAccount(ctx context.Context, id uint, in AccountUpdate, actor ledger.Actor) (*models.Account, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, apperr.Validation("Account name is required.")
	}
	changes := in.changes()

	db := s.db.WithContext(ctx)
	acct, err := findAccount(db, id)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to update account")
	}
	if acct.IsDeleted {
		return nil, apperr.Conflict(fmt.Sprintf("Account %s has been deleted.", acct.AccountNumber))
	}
	if len(changes) > 0 {
		if err := db.Model(&models.Account{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return nil, apperr.Internal("Failed to update account", err)
		}
	}

	updated, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, models.AuditActionUpdate, updated, changes)
	return updated, nil
}

// DeleteAccount soft-deletes; journal items keep referencing the row.
func (s *Service) DeleteAccount(ctx context.Context, id uint, actor ledger.Actor) error {
	db := s.db.WithContext(ctx)
	acct, err := findAccount(db, id)
	if err != nil {
		return apperr.Wrap(err, "Failed to delete account")
	}
	if acct.IsDeleted {
		return nil
	}
	if err := db.Model(&models.Account{}).Where("id = ?", id).
		Updates(map[string]any{"is_deleted": true, "is_active": false}).Error; err != nil {
		return apperr.Internal("Failed to delete account", err)
	}
	s.record(ctx, actor, models.AuditActionDelete, acct, map[string]any{"is_deleted": true})
	return nil
}

func (s *Service) GetAccount(ctx context.Context, id uint) (*models.Account, error) {
	acct, err := findAccount(s.db.WithContext(ctx).Preload("AccountType").Preload("Category"), id)
	if err != nil {
		return nil, apperr.Wrap(err, "Failed to load account")
	}
	return acct, nil
}

type AccountFilter struct {
	TypeCode       models.AccountTypeCode
	Active         *bool
	Cash           *bool
	Bank           *bool
	Search         string
	IncludeDeleted bool
}

func (s *Service) ListAccounts(ctx context.Context, f AccountFilter) ([]models.Account, error) {
	q := s.db.WithContext(ctx).Model(&models.Account{}).Preload("AccountType").Preload("Category")
	if !f.IncludeDeleted {
		q = q.Where("accounts.is_deleted = ?", false)
	}
	if f.TypeCode != "" {
		q = q.Joins("JOIN account_types aty ON aty.id = accounts.account_type_id").Where("aty.code = ?", f.TypeCode)
	}
	if f.Active != nil {
		q = q.Where("accounts.is_active = ?", *f.Active)
	}
	if f.Cash != nil {
		q = q.Where("accounts.is_cash_account = ?", *f.Cash)
	}
	if f.Bank != nil {
		q = q.Where("accounts.is_bank_account = ?", *f.Bank)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("(accounts.account_number LIKE ? OR accounts.name LIKE ?)", like, like)
	}

	var out []models.Account
	if err := q.Order("accounts.account_number").Find(&out).Error; err != nil {
		return nil, apperr.Internal("Failed to list accounts", err)
	}
	return out, nil
}

type ChartCategory struct {
	ID       uint             `json:"id"`
	Code     string           `json:"code"`
	Name     string           `json:"name"`
	ParentID *uint            `json:"parent_category_id"`
	Accounts []models.Account `json:"accounts"`
}

type ChartType struct {
	Code          models.AccountTypeCode `json:"code"`
	Name          string                 `json:"name"`
	NormalBalance models.NormalBalance   `json:"normal_balance"`
	Categories    []ChartCategory        `json:"categories"`
}

// ChartOfAccounts groups active accounts by type and category.
func (s *Service) ChartOfAccounts(ctx context.Context) ([]ChartType, error) {
	db := s.db.WithContext(ctx)

	var types []models.AccountType
	if err := db.Where("is_active = ?", true).Order("id").Find(&types).Error; err != nil {
		return nil, apperr.Internal("Failed to load chart of accounts", err)
	}
	var cats []models.AccountCategory
	if err := db.Where("is_active = ?", true).Order("sort_order, code").Find(&cats).Error; err != nil {
		return nil, apperr.Internal("Failed to load chart of accounts", err)
	}
	var accts []models.Account
	if err := db.Where("is_active = ? AND is_deleted = ?", true, false).
		Order("sort_order, account_number").Find(&accts).Error; err != nil {
		return nil, apperr.Internal("Failed to load chart of accounts", err)
	}

	byCategory := map[uint][]models.Account{}
	for _, a := range accts {
		byCategory[a.CategoryID] = append(byCategory[a.CategoryID], a)
	}

	chart := make([]ChartType, 0, len(types))
	for _, t := range types {
		ct := ChartType{Code: t.Code, Name: t.Name, NormalBalance: t.NormalBalance, Categories: []ChartCategory{}}
		for _, c := range cats {
			if c.AccountTypeID != t.ID {
				continue
			}
			list := byCategory[c.ID]
			if list == nil {
				list = []models.Account{}
			}
			ct.Categories = append(ct.Categories, ChartCategory{
				ID: c.ID, Code: c.Code, Name: c.Name, ParentID: c.ParentCategoryID, Accounts: list,
			})
		}
		chart = append(chart, ct)
	}
	return chart, nil
}

type AccountBalance struct {
	AccountID     uint                 `json:"account_id"`
	AccountNumber string               `json:"account_number"`
	Name          string               `json:"name"`
	BalanceType   models.NormalBalance `json:"balance_type"`
	AsOf          *time.Time           `json:"as_of"`
	Balance       decimal.Decimal      `json:"balance"`
	CachedBalance decimal.Decimal      `json:"cached_balance"`
}

// Balance computes the journal balance as of asOf (all history when nil).
func (s *Service) Balance(ctx context.Context, id uint, asOf *time.Time) (*AccountBalance, error) {
	acct, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	bal, err := ledger.GetBalance(s.db.WithContext(ctx), acct, asOf)
	if err != nil {
		return nil, apperr.Internal("Failed to compute balance", err)
	}
	return &AccountBalance{
		AccountID:     acct.ID,
		AccountNumber: acct.AccountNumber,
		Name:          acct.Name,
		BalanceType:   acct.BalanceType,
		AsOf:          asOf,
		Balance:       bal,
		CachedBalance: acct.CurrentBalance,
	}, nil
}

// RefreshBalance rewrites one account's cached balance under a row lock.
func (s *Service) RefreshBalance(ctx context.Context, id uint) (*models.Account, error) {
	drift, err := s.refresh(ctx, id)
	if err != nil {
		return nil, err
	}
	if drift {
		s.log.Warn("account balance cache drifted", zap.Uint("account_id", id))
	}
	return s.GetAccount(ctx, id)
}

func (s *Service) refresh(ctx context.Context, id uint) (bool, error) {
	var drift bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := ledger.LockAccount(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Account", id)
			}
			return err
		}
		cached := acct.CurrentBalance
		if err := ledger.UpdateBalance(tx, acct); err != nil {
			return err
		}
		drift = !cached.Equal(acct.CurrentBalance)
		return nil
	})
	if err != nil {
		return false, apperr.Wrap(err, "Failed to update balance")
	}
	return drift, nil
}

func (s *Service) Reconcile(ctx context.Context, repair bool) ([]ledger.BalanceDrift, error) {
	drifts, err := ledger.ReconcileBalances(s.db.WithContext(ctx), repair)
	if err != nil {
		return nil, apperr.Internal("Failed to reconcile balances", err)
	}
	if len(drifts) > 0 {
		s.log.Warn("balance drift detected", zap.Int("accounts", len(drifts)), zap.Bool("repaired", repair))
	}
	return drifts, nil
}

type TransactionTypeInput struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Service) CreateTransactionType(ctx context.Context, in TransactionTypeInput) (*models.TransactionType, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	var errs []string
	if in.Code == "" {
		errs = append(errs, "Transaction type code is required.")
	}
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, "Transaction type name is required.")
	}
	if len(errs) > 0 {
		return nil, apperr.Validation(errs...)
	}

	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.TransactionType{}).Where("code = ?", in.Code).Count(&n).Error; err != nil {
		return nil, apperr.Internal("Failed to create transaction type", err)
	}
	if n > 0 {
		return nil, apperr.Validation(fmt.Sprintf("Transaction type %s already exists.", in.Code))
	}

	tt := &models.TransactionType{Code: in.Code, Name: in.Name, Description: in.Description, IsActive: true}
	if err := db.Create(tt).Error; err != nil {
		return nil, apperr.Internal("Failed to create transaction type", err)
	}
	return tt, nil
}

func (s *Service) ListTransactionTypes(ctx context.Context, activeOnly bool) ([]models.TransactionType, error) {
	q := s.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []models.TransactionType
	if err := q.Order("code").Find(&out).Error; err != nil {
		return nil, apperr.Internal("Failed to list transaction types", err)
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, actor ledger.Actor, action models.AuditAction, acct *models.Account, changes map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.LogActivity(ctx, s.db.WithContext(ctx), ledger.Activity{
		Actor:          actor,
		Action:         action,
		EntityType:     "account",
		EntityID:       acct.ID,
		Representation: acct.Label(),
		Changes:        changes,
	})
	if err != nil {
		s.log.Error("audit log failed", zap.String("action", string(action)), zap.Uint("account_id", acct.ID), zap.Error(err))
	}
}

func findAccountType(db *gorm.DB, id uint) (*models.AccountType, error) {
	var at models.AccountType
	if err := db.First(&at, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Account type", id)
		}
		return nil, err
	}
	return &at, nil
}

func findCategory(db *gorm.DB, id uint) (*models.AccountCategory, error) {
	var c models.AccountCategory
	if err := db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Account category", id)
		}
		return nil, err
	}
	return &c, nil
}

func findAccount(db *gorm.DB, id uint) (*models.Account, error) {
	var a models.Account
	if err := db.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Account", id)
		}
		return nil, err
	}
	return &a, nil
}
