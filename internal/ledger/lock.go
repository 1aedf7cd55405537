package ledger

import (
	"fmt"
	"time"

	"ledger-backend/internal/database"
	"ledger-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate adds SELECT ... FOR UPDATE where the store supports row locks.
// SQLite serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if database.IsPostgres(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// setLockTimeout bounds row-lock waits for the rest of the transaction.
func setLockTimeout(tx *gorm.DB, d time.Duration) error {
	if d <= 0 || !database.IsPostgres(tx) {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}

// LockAccount loads an account with a row lock held until tx ends. Callers
// locking several accounts take them in ascending id order.
func LockAccount(tx *gorm.DB, id uint) (*models.Account, error) {
	var acct models.Account
	if err := forUpdate(tx).First(&acct, id).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

func lockTransaction(tx *gorm.DB, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := forUpdate(tx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
