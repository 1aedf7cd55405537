package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type NormalBalance string

const (
	BalanceDebit  NormalBalance = "DEBIT"
	BalanceCredit NormalBalance = "CREDIT"
)

type AccountTypeCode string

const (
	TypeAsset     AccountTypeCode = "ASSET"
	TypeLiability AccountTypeCode = "LIABILITY"
	TypeEquity    AccountTypeCode = "EQUITY"
	TypeRevenue   AccountTypeCode = "REVENUE"
	TypeExpense   AccountTypeCode = "EXPENSE"
)

// AccountTypeCodes lists the codes in chart order.
var AccountTypeCodes = []AccountTypeCode{TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense}

func (c AccountTypeCode) Valid() bool {
	switch c {
	case TypeAsset, TypeLiability, TypeEquity, TypeRevenue, TypeExpense:
		return true
	}
	return false
}

// NormalBalanceFor returns the polarity an account type code implies.
// Assets and expenses grow with debits, everything else with credits.
func NormalBalanceFor(code AccountTypeCode) NormalBalance {
	if code == TypeAsset || code == TypeExpense {
		return BalanceDebit
	}
	return BalanceCredit
}

type AccountType struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Code          AccountTypeCode `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	NormalBalance NormalBalance   `gorm:"size:10;not null" json:"normal_balance"`
	Description   string          `gorm:"size:255" json:"description"`
	IsActive      bool            `gorm:"not null" json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AccountCategory groups accounts of one type; categories form a tree via ParentCategoryID.
type AccountCategory struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	Code             string           `gorm:"size:20;not null;uniqueIndex:idx_category_code_type" json:"code"`
	Name             string           `gorm:"size:100;not null" json:"name"`
	Description      string           `gorm:"size:255" json:"description"`
	AccountTypeID    uint             `gorm:"not null;uniqueIndex:idx_category_code_type" json:"account_type_id"`
	AccountType      *AccountType     `gorm:"constraint:OnDelete:RESTRICT" json:"account_type,omitempty"`
	ParentCategoryID *uint            `gorm:"index" json:"parent_category_id"`
	ParentCategory   *AccountCategory `gorm:"foreignKey:ParentCategoryID;constraint:OnDelete:RESTRICT" json:"-"`
	SortOrder        int              `json:"sort_order"`
	IsActive         bool             `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Account is a ledger account. CurrentBalance is a cache of the journal fold
// and is only ever written by the balance engine.
type Account struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	AccountNumber string           `gorm:"size:20;uniqueIndex;not null" json:"account_number"`
	Name          string           `gorm:"size:200;not null" json:"name"`
	Description   string           `gorm:"size:500" json:"description"`
	AccountTypeID uint             `gorm:"not null;index" json:"account_type_id"`
	AccountType   *AccountType     `gorm:"constraint:OnDelete:RESTRICT" json:"account_type,omitempty"`
	CategoryID    uint             `gorm:"not null;index" json:"category_id"`
	Category      *AccountCategory `gorm:"constraint:OnDelete:RESTRICT" json:"category,omitempty"`
	BalanceType   NormalBalance    `gorm:"size:10;not null" json:"balance_type"`

	OpeningBalance decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"opening_balance"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"current_balance"`

	IsActive        bool   `gorm:"not null" json:"is_active"`
	AllowPosting    bool   `gorm:"not null" json:"allow_posting"`
	IsDeleted       bool   `gorm:"not null;index" json:"is_deleted"`
	IsCashAccount   bool   `gorm:"not null" json:"is_cash_account"`
	IsBankAccount   bool   `gorm:"not null" json:"is_bank_account"`
	IsContraAccount bool   `gorm:"not null" json:"is_contra_account"`
	SortOrder       int    `json:"sort_order"`
	Notes           string `gorm:"type:text" json:"notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Account) CanPostTransactions() bool {
	return a.IsActive && a.AllowPosting && !a.IsDeleted
}

func (a *Account) IsDebitBalance() bool  { return a.BalanceType == BalanceDebit }
func (a *Account) IsCreditBalance() bool { return a.BalanceType == BalanceCredit }

// Label renders the account the way validation messages refer to it.
func (a *Account) Label() string {
	return a.AccountNumber + " - " + a.Name
}

type TransactionType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"size:30;uniqueIndex;not null" json:"code"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
