package models

import "time"

type NotificationKind string

const (
	NotificationInfo    NotificationKind = "info"
	NotificationSuccess NotificationKind = "success"
	NotificationWarning NotificationKind = "warning"
	NotificationError   NotificationKind = "error"
)

type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    *uint            `gorm:"index" json:"user_id"`
	Title     string           `gorm:"size:200;not null" json:"title"`
	Message   string           `gorm:"type:text" json:"message"`
	Kind      NotificationKind `gorm:"size:20;not null" json:"kind"`
	IsRead    bool             `gorm:"not null" json:"is_read"`
	CreatedAt time.Time        `gorm:"index" json:"created_at"`
}
