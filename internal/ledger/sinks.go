package ledger

import (
	"context"

	"ledger-backend/internal/models"

	"gorm.io/gorm"
)

// Actor identifies who performs a ledger operation.
type Actor struct {
	ID   uint
	Name string
}

func (a Actor) UserID() *uint {
	if a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

// Activity is one audit record emitted by a ledger operation.
type Activity struct {
	Actor          Actor
	Action         models.AuditAction
	EntityType     string
	EntityID       uint
	Representation string
	Changes        map[string]any
}

// AuditSink records activity inside the caller's database transaction.
// Failures are logged by the service and never abort the operation.
type AuditSink interface {
	LogActivity(ctx context.Context, db *gorm.DB, act Activity) error
}

// Notifier delivers user-facing messages after a ledger operation commits.
type Notifier interface {
	Notify(ctx context.Context, actor Actor, title, message string, kind models.NotificationKind) error
}

type nopAudit struct{}

func (nopAudit) LogActivity(context.Context, *gorm.DB, Activity) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Actor, string, string, models.NotificationKind) error {
	return nil
}
