package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusDraft   TransactionStatus = "DRAFT"
	StatusPending TransactionStatus = "PENDING"
	StatusPosted  TransactionStatus = "POSTED"
	StatusVoided  TransactionStatus = "VOIDED"
)

// PostedStatuses are the statuses whose items count toward balances.
// A voided transaction stays in the journal; its reversal cancels it.
var PostedStatuses = []TransactionStatus{StatusPosted, StatusVoided}

type Transaction struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	TransactionNumber string            `gorm:"size:30;uniqueIndex;not null" json:"transaction_number"`
	ReferenceNumber   string            `gorm:"size:100" json:"reference_number"`
	Description       string            `gorm:"size:500;not null" json:"description"`
	TransactionDate   time.Time         `gorm:"type:date;not null;index" json:"transaction_date"`
	TransactionTypeID uint              `gorm:"not null;index" json:"transaction_type_id"`
	TransactionType   *TransactionType  `gorm:"constraint:OnDelete:RESTRICT" json:"transaction_type,omitempty"`
	Amount            decimal.Decimal   `gorm:"type:decimal(18,2);not null" json:"amount"`
	Status            TransactionStatus `gorm:"size:20;not null;index" json:"status"`

	PostedAt    *time.Time `json:"posted_at"`
	PostedByID  *uint      `json:"posted_by_id"`
	CreatedByID *uint      `json:"created_by_id"`

	// ReversalOfID links a reversal to the transaction it voids.
	ReversalOfID *uint  `gorm:"index" json:"reversal_of_id"`
	Notes        string `gorm:"type:text" json:"notes"`
	IsDeleted    bool   `gorm:"not null" json:"is_deleted"`

	JournalEntries []JournalEntry `gorm:"constraint:OnDelete:CASCADE" json:"journal_entries"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Transaction) IsPosted() bool {
	return t.Status == StatusPosted || t.Status == StatusVoided
}

// CanTransitionTo reports whether the status machine allows moving to next.
func (t *Transaction) CanTransitionTo(next TransactionStatus) bool {
	switch t.Status {
	case StatusDraft, StatusPending:
		return next == StatusPosted
	case StatusPosted:
		return next == StatusVoided
	}
	return false
}

func (t *Transaction) TotalDebits() decimal.Decimal {
	total := decimal.Zero
	for i := range t.JournalEntries {
		total = total.Add(t.JournalEntries[i].TotalDebits())
	}
	return total
}

func (t *Transaction) TotalCredits() decimal.Decimal {
	total := decimal.Zero
	for i := range t.JournalEntries {
		total = total.Add(t.JournalEntries[i].TotalCredits())
	}
	return total
}

func (t *Transaction) IsBalanced() bool {
	return t.TotalDebits().Equal(t.TotalCredits())
}

// AccountIDs returns the distinct accounts the transaction touches, in ascending order.
func (t *Transaction) AccountIDs() []uint {
	seen := make(map[uint]struct{})
	var ids []uint
	for _, e := range t.JournalEntries {
		for _, it := range e.Items {
			if _, ok := seen[it.AccountID]; ok {
				continue
			}
			seen[it.AccountID] = struct{}{}
			ids = append(ids, it.AccountID)
		}
	}
	slices.Sort(ids)
	return ids
}

type JournalEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TransactionID uint            `gorm:"not null;index" json:"transaction_id"`
	Description   string          `gorm:"size:500" json:"description"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	SortOrder     int             `json:"sort_order"`
	Items         []JournalItem   `gorm:"foreignKey:JournalEntryID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (e *JournalEntry) TotalDebits() decimal.Decimal {
	total := decimal.Zero
	for _, it := range e.Items {
		total = total.Add(it.DebitAmount)
	}
	return total
}

func (e *JournalEntry) TotalCredits() decimal.Decimal {
	total := decimal.Zero
	for _, it := range e.Items {
		total = total.Add(it.CreditAmount)
	}
	return total
}

func (e *JournalEntry) IsBalanced() bool {
	return e.TotalDebits().Equal(e.TotalCredits())
}

// JournalItem is one debit or credit line; exactly one side is nonzero.
type JournalItem struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	JournalEntryID uint            `gorm:"not null;index" json:"journal_entry_id"`
	AccountID      uint            `gorm:"not null;index" json:"account_id"`
	Account        *Account        `gorm:"constraint:OnDelete:RESTRICT" json:"account,omitempty"`
	DebitAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"debit_amount"`
	CreditAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"credit_amount"`
	Description    string          `gorm:"size:500" json:"description"`
	SortOrder      int             `json:"sort_order"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NetAmount is debit minus credit.
func (i *JournalItem) NetAmount() decimal.Decimal {
	return i.DebitAmount.Sub(i.CreditAmount)
}

// Side returns the populated side, or "" when the item is malformed.
func (i *JournalItem) Side() NormalBalance {
	d, c := !i.DebitAmount.IsZero(), !i.CreditAmount.IsZero()
	switch {
	case d && !c:
		return BalanceDebit
	case c && !d:
		return BalanceCredit
	}
	return ""
}
