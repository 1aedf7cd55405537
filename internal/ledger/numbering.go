package ledger

import (
	"fmt"
	"strconv"
	"time"

	"ledger-backend/internal/models"

	"gorm.io/gorm"
)

const numberPrefix = "TXN"

// nextTransactionNumber returns TXN<YYYYMMDD><seq> for the day of now.
// It must run inside the creating transaction; the unique index rejects
// a number taken by a concurrent creator.
func nextTransactionNumber(tx *gorm.DB, now time.Time) (string, error) {
	prefix := numberPrefix + now.Format("20060102")

	var last []string
	err := tx.Model(&models.Transaction{}).
		Where("transaction_number LIKE ?", prefix+"%").
		Order("LENGTH(transaction_number) DESC, transaction_number DESC").
		Limit(1).
		Pluck("transaction_number", &last).Error
	if err != nil {
		return "", err
	}

	seq := 1
	if len(last) > 0 {
		n, err := strconv.Atoi(last[0][len(prefix):])
		if err != nil {
			return "", fmt.Errorf("unexpected transaction number %q: %w", last[0], err)
		}
		seq = n + 1
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}
