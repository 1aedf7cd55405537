package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"ledger-backend/internal/ledger"
	"ledger-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store persists ledger activity as AuditLog rows.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// LogActivity writes through db so the row commits or rolls back with the
// caller's transaction. Every row written under the same context shares a
// correlation id.
func (s *Store) LogActivity(ctx context.Context, db *gorm.DB, act ledger.Activity) error {
	if db == nil {
		db = s.db
	}

	changes := "{}"
	if act.Changes != nil {
		b, err := json.Marshal(act.Changes)
		if err != nil {
			return fmt.Errorf("encoding audit changes: %w", err)
		}
		changes = string(b)
	}

	repr := truncate(act.Representation, 255)

	log := models.AuditLog{
		CorrelationID:  CorrelationID(ctx),
		UserID:         act.Actor.UserID(),
		UserName:       act.Actor.Name,
		EntityType:     act.EntityType,
		EntityID:       act.EntityID,
		Action:         act.Action,
		Representation: repr,
		Changes:        changes,
	}
	if err := db.WithContext(ctx).Create(&log).Error; err != nil {
		return fmt.Errorf("saving audit log: %w", err)
	}
	return nil
}

type correlationKey struct{}

// WithCorrelationID attaches an id for the audit rows written under ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id on ctx, or a fresh one.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

type Filter struct {
	EntityType    string
	EntityID      uint
	UserID        uint
	Action        models.AuditAction
	CorrelationID string
	Since         *time.Time
	Limit         int
}

// List returns audit rows, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.CorrelationID != "" {
		q = q.Where("correlation_id = ?", f.CorrelationID)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	var logs []models.AuditLog
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
