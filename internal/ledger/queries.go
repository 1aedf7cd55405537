package ledger

import (
	"context"
	"errors"
	"time"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (s *Service) GetTransaction(ctx context.Context, id uint) (*models.Transaction, error) {
	t, err := loadTransaction(s.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Transaction", id)
		}
		return nil, apperr.Internal("Failed to load transaction", err)
	}
	return t, nil
}

type TransactionFilter struct {
	Status    models.TransactionStatus
	TypeCode  string
	Start     *time.Time
	End       *time.Time
	MinAmount *decimal.Decimal
	Search    string
	Limit     int
}

// ListTransactions returns transaction headers, newest first.
func (s *Service) ListTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	q := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Preload("TransactionType").
		Where("transactions.is_deleted = ?", false)

	if f.Status != "" {
		q = q.Where("transactions.status = ?", f.Status)
	}
	if f.TypeCode != "" {
		q = q.Joins("JOIN transaction_types tt ON tt.id = transactions.transaction_type_id").
			Where("tt.code = ?", f.TypeCode)
	}
	if f.Start != nil {
		q = q.Where("transactions.transaction_date >= ?", DateOnly(*f.Start))
	}
	if f.End != nil {
		q = q.Where("transactions.transaction_date <= ?", DateOnly(*f.End))
	}
	if f.MinAmount != nil {
		q = q.Where("transactions.amount >= ?", *f.MinAmount)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("(transactions.transaction_number LIKE ? OR transactions.description LIKE ? OR transactions.reference_number LIKE ?)",
			like, like, like)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var out []models.Transaction
	if err := q.Order("transactions.transaction_date DESC, transactions.id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, apperr.Internal("Failed to list transactions", err)
	}
	return out, nil
}

type TransactionSummary struct {
	TransactionID     uint                     `json:"transaction_id"`
	TransactionNumber string                   `json:"transaction_number"`
	Status            models.TransactionStatus `json:"status"`
	Amount            decimal.Decimal          `json:"amount"`
	TotalDebits       decimal.Decimal          `json:"total_debits"`
	TotalCredits      decimal.Decimal          `json:"total_credits"`
	IsBalanced        bool                     `json:"is_balanced"`
	EntryCount        int                      `json:"entry_count"`
	ItemCount         int                      `json:"item_count"`
	AccountCount      int                      `json:"account_count"`
}

func (s *Service) Summary(ctx context.Context, id uint) (*TransactionSummary, error) {
	t, err := s.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	items := 0
	for _, e := range t.JournalEntries {
		items += len(e.Items)
	}
	return &TransactionSummary{
		TransactionID:     t.ID,
		TransactionNumber: t.TransactionNumber,
		Status:            t.Status,
		Amount:            t.Amount,
		TotalDebits:       t.TotalDebits(),
		TotalCredits:      t.TotalCredits(),
		IsBalanced:        t.IsBalanced(),
		EntryCount:        len(t.JournalEntries),
		ItemCount:         items,
		AccountCount:      len(t.AccountIDs()),
	}, nil
}

// AccountTransactions lists posted transactions with at least one item on
// the account, oldest first.
func (s *Service) AccountTransactions(ctx context.Context, accountID uint, start, end *time.Time) ([]models.Transaction, error) {
	db := s.db.WithContext(ctx)
	if err := db.First(&models.Account{}, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Account", accountID)
		}
		return nil, apperr.Internal("Failed to load account", err)
	}

	touching := db.Table("journal_items ji").
		Select("je.transaction_id").
		Joins("JOIN journal_entries je ON je.id = ji.journal_entry_id").
		Where("ji.account_id = ?", accountID)

	q := db.Model(&models.Transaction{}).
		Preload("TransactionType").
		Where("id IN (?)", touching).
		Where("status IN ?", models.PostedStatuses)
	if start != nil {
		q = q.Where("transaction_date >= ?", DateOnly(*start))
	}
	if end != nil {
		q = q.Where("transaction_date <= ?", DateOnly(*end))
	}

	var out []models.Transaction
	if err := q.Order("transaction_date, id").Find(&out).Error; err != nil {
		return nil, apperr.Internal("Failed to list account transactions", err)
	}
	return out, nil
}
