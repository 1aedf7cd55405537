// Package notify stores user-facing notifications raised by ledger operations.
package notify

import (
	"context"
	"fmt"

	"ledger-backend/internal/ledger"
	"ledger-backend/internal/models"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Notify stores a notification addressed to the actor. Anonymous actors get
// a broadcast row with no user.
func (s *Store) Notify(ctx context.Context, actor ledger.Actor, title, message string, kind models.NotificationKind) error {
	if kind == "" {
		kind = models.NotificationInfo
	}
	n := models.Notification{
		UserID:  actor.UserID(),
		Title:   title,
		Message: message,
		Kind:    kind,
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("saving notification: %w", err)
	}
	return nil
}

// ForUser lists the user's notifications and broadcasts, newest first.
func (s *Store) ForUser(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ? OR user_id IS NULL", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead flags one notification as read. It reports false when the
// notification does not belong to the user.
func (s *Store) MarkRead(ctx context.Context, userID, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND (user_id = ? OR user_id IS NULL)", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
