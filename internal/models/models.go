// Package models holds the gorm entities of the ledger.
package models

// All lists every entity in migration order.
func All() []any {
	return []any{
		&User{},
		&AccountType{},
		&AccountCategory{},
		&Account{},
		&TransactionType{},
		&Transaction{},
		&JournalEntry{},
		&JournalItem{},
		&AuditLog{},
		&Notification{},
	}
}
