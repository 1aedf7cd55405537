// Package ledger implements double-entry posting: building transactions,
// validating them, posting and voiding, and folding the journal into balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	// LockTimeout bounds account row-lock waits during posting (Postgres only).
	LockTimeout time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Service struct {
	db       *gorm.DB
	audit    AuditSink
	notifier Notifier
	opts     Options
	log      *zap.Logger
}

func NewService(db *gorm.DB, audit AuditSink, notifier Notifier, opts Options, log *zap.Logger) *Service {
	if audit == nil {
		audit = nopAudit{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, audit: audit, notifier: notifier, opts: opts, log: log}
}

func (s *Service) now() time.Time {
	return s.opts.Clock().UTC()
}

type ItemInput struct {
	AccountID    uint            `json:"account_id"`
	DebitAmount  decimal.Decimal `json:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
	Description  string          `json:"description"`
}

type EntryInput struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	SortOrder   int             `json:"sort_order"`
	Items       []ItemInput     `json:"items"`
}

type CreateTransactionInput struct {
	Description       string
	TransactionDate   time.Time
	TransactionTypeID uint
	// Amount defaults to the total of the debit lines when zero.
	Amount          decimal.Decimal
	ReferenceNumber string
	Notes           string
	Entries         []EntryInput
}

func (in *CreateTransactionInput) totalDebits() decimal.Decimal {
	total := decimal.Zero
	for _, e := range in.Entries {
		for _, it := range e.Items {
			total = total.Add(it.DebitAmount.Round(2))
		}
	}
	return total
}

// CreateTransaction stores a DRAFT transaction with its entries and items and
// validates it. Nothing is persisted unless the whole transaction is valid.
func (s *Service) CreateTransaction(ctx context.Context, in CreateTransactionInput, actor Actor) (*models.Transaction, error) {
	if err := s.checkInput(&in); err != nil {
		return nil, err
	}

	var created *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkReferences(tx, &in); err != nil {
			return err
		}

		number, err := nextTransactionNumber(tx, s.now())
		if err != nil {
			return err
		}

		t := &models.Transaction{
			TransactionNumber: number,
			ReferenceNumber:   in.ReferenceNumber,
			Description:       in.Description,
			TransactionDate:   in.TransactionDate,
			TransactionTypeID: in.TransactionTypeID,
			Amount:            in.Amount,
			Status:            models.StatusDraft,
			CreatedByID:       actor.UserID(),
			Notes:             in.Notes,
		}
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		if err := createEntries(tx, t.ID, in.Entries); err != nil {
			return err
		}

		loaded, err := loadTransaction(tx, t.ID)
		if err != nil {
			return err
		}
		if err := ValidateTransaction(loaded); err != nil {
			return err
		}

		s.recordActivity(ctx, tx, Activity{
			Actor:          actor,
			Action:         models.AuditActionCreate,
			EntityType:     "transaction",
			EntityID:       loaded.ID,
			Representation: representation(loaded),
			Changes:        map[string]any{"transaction_number": loaded.TransactionNumber},
		})
		created = loaded
		return nil
	})
	if err != nil {
		s.log.Warn("transaction not created", zap.Error(err), zap.Uint("actor_id", actor.ID))
		return nil, apperr.Wrap(err, "Failed to create transaction")
	}

	s.log.Info("transaction created",
		zap.String("transaction_number", created.TransactionNumber),
		zap.Uint("actor_id", actor.ID))
	return created, nil
}

// checkInput rejects malformed input before any row is written.
func (s *Service) checkInput(in *CreateTransactionInput) error {
	var errs []string

	if in.Description == "" {
		errs = append(errs, "Transaction description is required.")
	}
	if len(in.Entries) == 0 {
		errs = append(errs, "Transaction must have at least one journal entry.")
	}
	for i, e := range in.Entries {
		if len(e.Items) == 0 {
			errs = append(errs, fmt.Sprintf("Journal entry %d must have at least one item.", i+1))
		}
	}

	today := DateOnly(s.now())
	if in.TransactionDate.IsZero() {
		in.TransactionDate = today
	}
	in.TransactionDate = DateOnly(in.TransactionDate)
	if in.TransactionDate.After(today) {
		errs = append(errs, "Transaction date cannot be in the future.")
	}

	in.Amount = in.Amount.Round(2)
	if in.Amount.IsZero() {
		in.Amount = in.totalDebits()
	}
	if !in.Amount.IsPositive() {
		errs = append(errs, "Transaction amount must be greater than zero.")
	}

	if len(errs) > 0 {
		return apperr.Validation(errs...)
	}
	return nil
}

func checkReferences(tx *gorm.DB, in *CreateTransactionInput) error {
	var tt models.TransactionType
	if err := tx.First(&tt, in.TransactionTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Transaction type", in.TransactionTypeID)
		}
		return err
	}

	var ids []uint
	seen := make(map[uint]bool)
	for _, e := range in.Entries {
		for _, it := range e.Items {
			if !seen[it.AccountID] {
				seen[it.AccountID] = true
				ids = append(ids, it.AccountID)
			}
		}
	}

	var found []uint
	if err := tx.Model(&models.Account{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return err
	}
	exists := make(map[uint]bool, len(found))
	for _, id := range found {
		exists[id] = true
	}
	for _, id := range ids {
		if !exists[id] {
			return apperr.NotFound("Account", id)
		}
	}
	return nil
}

func createEntries(tx *gorm.DB, transactionID uint, entries []EntryInput) error {
	for i, e := range entries {
		entry := &models.JournalEntry{
			TransactionID: transactionID,
			Description:   e.Description,
			Amount:        e.Amount.Round(2),
			SortOrder:     e.SortOrder,
		}
		if entry.SortOrder == 0 {
			entry.SortOrder = i + 1
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		items := make([]models.JournalItem, 0, len(e.Items))
		for j, it := range e.Items {
			items = append(items, models.JournalItem{
				JournalEntryID: entry.ID,
				AccountID:      it.AccountID,
				DebitAmount:    it.DebitAmount.Round(2),
				CreditAmount:   it.CreditAmount.Round(2),
				Description:    it.Description,
				SortOrder:      j + 1,
			})
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// PostTransaction posts a DRAFT or PENDING transaction and refreshes the
// cached balance of every account it touches.
func (s *Service) PostTransaction(ctx context.Context, transactionID uint, actor Actor) error {
	var posted *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.post(ctx, tx, transactionID, actor)
		posted = t
		return err
	})
	if err != nil {
		s.log.Warn("transaction not posted", zap.Uint("transaction_id", transactionID), zap.Error(err))
		return apperr.Wrap(err, "Failed to post transaction")
	}

	s.log.Info("transaction posted",
		zap.String("transaction_number", posted.TransactionNumber),
		zap.Uint("actor_id", actor.ID))
	s.notifyPosted(ctx, actor, posted)
	return nil
}

// post is the posting path shared by PostTransaction and VoidTransaction.
// tx must be an open database transaction.
func (s *Service) post(ctx context.Context, tx *gorm.DB, transactionID uint, actor Actor) (*models.Transaction, error) {
	if err := setLockTimeout(tx, s.opts.LockTimeout); err != nil {
		return nil, err
	}

	head, err := lockTransaction(tx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Transaction", transactionID)
		}
		return nil, err
	}
	if head.IsPosted() || !head.CanTransitionTo(models.StatusPosted) {
		return nil, apperr.Conflict("Transaction is already posted.")
	}

	t, err := loadTransaction(tx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransaction(t); err != nil {
		return nil, err
	}

	now := s.now()
	res := tx.Model(&models.Transaction{}).
		Where("id = ? AND status IN ?", t.ID, []models.TransactionStatus{models.StatusDraft, models.StatusPending}).
		Updates(map[string]any{
			"status":       models.StatusPosted,
			"posted_at":    now,
			"posted_by_id": actor.UserID(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict("Transaction is already posted.")
	}
	t.Status = models.StatusPosted
	t.PostedAt = &now
	t.PostedByID = actor.UserID()

	// Ascending id order keeps concurrent posts from deadlocking.
	for _, id := range t.AccountIDs() {
		acct, err := LockAccount(tx, id)
		if err != nil {
			return nil, fmt.Errorf("locking account %d: %w", id, err)
		}
		if err := UpdateBalance(tx, acct); err != nil {
			return nil, fmt.Errorf("updating balance of account %s: %w", acct.AccountNumber, err)
		}
	}

	s.recordActivity(ctx, tx, Activity{
		Actor:          actor,
		Action:         models.AuditActionPost,
		EntityType:     "transaction",
		EntityID:       t.ID,
		Representation: representation(t),
		Changes:        map[string]any{"status": models.StatusPosted},
	})
	return t, nil
}

// VoidTransaction reverses a POSTED transaction: it creates and posts a
// mirror transaction with every debit and credit swapped, then marks the
// original VOIDED. Returns the posted reversal.
func (s *Service) VoidTransaction(ctx context.Context, transactionID uint, actor Actor, reason string) (*models.Transaction, error) {
	var reversal *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		head, err := lockTransaction(tx, transactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Transaction", transactionID)
			}
			return err
		}
		switch {
		case head.Status == models.StatusVoided:
			return apperr.Conflict("Transaction is already voided.")
		case !head.IsPosted():
			return apperr.Conflict("Only posted transactions can be voided.")
		}

		original, err := loadTransaction(tx, transactionID)
		if err != nil {
			return err
		}

		rev, err := s.createReversal(tx, original, actor, reason)
		if err != nil {
			return err
		}
		if reversal, err = s.post(ctx, tx, rev.ID, actor); err != nil {
			return err
		}

		if err := tx.Model(&models.Transaction{}).
			Where("id = ?", original.ID).
			Update("status", models.StatusVoided).Error; err != nil {
			return err
		}

		s.recordActivity(ctx, tx, Activity{
			Actor:          actor,
			Action:         models.AuditActionVoid,
			EntityType:     "transaction",
			EntityID:       original.ID,
			Representation: representation(original),
			Changes: map[string]any{
				"status":   models.StatusVoided,
				"reason":   reason,
				"reversal": reversal.TransactionNumber,
			},
		})
		return nil
	})
	if err != nil {
		s.log.Warn("transaction not voided", zap.Uint("transaction_id", transactionID), zap.Error(err))
		return nil, apperr.Wrap(err, "Failed to void transaction")
	}

	s.log.Info("transaction voided",
		zap.Uint("transaction_id", transactionID),
		zap.String("reversal_number", reversal.TransactionNumber),
		zap.String("reason", reason))
	s.notifyPosted(ctx, actor, reversal)
	return reversal, nil
}

func (s *Service) createReversal(tx *gorm.DB, original *models.Transaction, actor Actor, reason string) (*models.Transaction, error) {
	number, err := nextTransactionNumber(tx, s.now())
	if err != nil {
		return nil, err
	}

	description := "Reversal of " + original.TransactionNumber
	if reason != "" {
		description += " - " + reason
	}
	originalID := original.ID

	rev := &models.Transaction{
		TransactionNumber: number,
		ReferenceNumber:   original.TransactionNumber,
		Description:       description,
		TransactionDate:   DateOnly(s.now()),
		TransactionTypeID: original.TransactionTypeID,
		Amount:            original.Amount,
		Status:            models.StatusDraft,
		CreatedByID:       actor.UserID(),
		ReversalOfID:      &originalID,
	}
	if err := tx.Create(rev).Error; err != nil {
		return nil, err
	}

	entries := make([]EntryInput, 0, len(original.JournalEntries))
	for _, e := range original.JournalEntries {
		in := EntryInput{Description: e.Description, Amount: e.Amount, SortOrder: e.SortOrder}
		for _, it := range e.Items {
			in.Items = append(in.Items, ItemInput{
				AccountID:    it.AccountID,
				DebitAmount:  it.CreditAmount,
				CreditAmount: it.DebitAmount,
				Description:  it.Description,
			})
		}
		entries = append(entries, in)
	}
	if err := createEntries(tx, rev.ID, entries); err != nil {
		return nil, err
	}
	return rev, nil
}

// recordActivity writes the audit record under a savepoint so a failing
// sink leaves the surrounding transaction usable.
func (s *Service) recordActivity(ctx context.Context, tx *gorm.DB, act Activity) {
	const savepoint = "ledger_audit"
	if err := tx.SavePoint(savepoint).Error; err != nil {
		s.log.Error("audit savepoint failed", zap.Error(err))
		return
	}
	if err := s.audit.LogActivity(ctx, tx, act); err != nil {
		s.log.Error("audit log failed",
			zap.String("action", string(act.Action)),
			zap.Uint("entity_id", act.EntityID),
			zap.Error(err))
		if err := tx.RollbackTo(savepoint).Error; err != nil {
			s.log.Error("audit savepoint rollback failed", zap.Error(err))
		}
	}
}

func (s *Service) notifyPosted(ctx context.Context, actor Actor, t *models.Transaction) {
	msg := fmt.Sprintf("Transaction %s has been posted.", t.TransactionNumber)
	if err := s.notifier.Notify(ctx, actor, "Transaction posted successfully", msg, models.NotificationSuccess); err != nil {
		s.log.Warn("notification failed",
			zap.String("transaction_number", t.TransactionNumber),
			zap.Error(err))
	}
}

func loadTransaction(db *gorm.DB, id uint) (*models.Transaction, error) {
	var t models.Transaction
	err := db.
		Preload("TransactionType").
		Preload("JournalEntries", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, id") }).
		Preload("JournalEntries.Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, id") }).
		Preload("JournalEntries.Items.Account").
		First(&t, id).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func representation(t *models.Transaction) string {
	return fmt.Sprintf("%s - %s", t.TransactionNumber, t.Description)
}
