package models

import "time"

type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
	AuditActionPost   AuditAction = "POST"
	AuditActionVoid   AuditAction = "VOID"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	// CorrelationID ties together every row written by one ledger operation.
	CorrelationID string `gorm:"size:36;index" json:"correlation_id"`

	UserID   *uint  `gorm:"index" json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"` // denormalized

	// e.g. "transaction", "account"
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Action         AuditAction `gorm:"size:20;index" json:"action"`
	Representation string      `gorm:"size:255" json:"representation"`

	// JSON object of the changed fields
	Changes string `gorm:"type:text" json:"changes"`
}
