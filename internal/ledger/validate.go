package ledger

import (
	"fmt"

	"ledger-backend/internal/apperr"
	"ledger-backend/internal/models"
)

// ValidateTransaction checks a fully loaded transaction (entries, items and
// item accounts) and reports every violation at once.
func ValidateTransaction(t *models.Transaction) error {
	var errs []string

	if len(t.JournalEntries) == 0 {
		errs = append(errs, "Transaction must have at least one journal entry.")
	}

	if debits, credits := t.TotalDebits(), t.TotalCredits(); !debits.Equal(credits) {
		errs = append(errs, fmt.Sprintf("Transaction is not balanced. Debits: %s, Credits: %s.",
			debits.StringFixed(2), credits.StringFixed(2)))
	}

	var accounts []*models.Account
	seen := make(map[uint]bool)

	for i := range t.JournalEntries {
		entry := &t.JournalEntries[i]
		name := entry.Description
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}

		if len(entry.Items) == 0 {
			errs = append(errs, fmt.Sprintf("Journal entry '%s' must have at least one item.", name))
			continue
		}
		if debits, credits := entry.TotalDebits(), entry.TotalCredits(); !debits.Equal(credits) {
			errs = append(errs, fmt.Sprintf("Journal entry '%s' is not balanced. Debits: %s, Credits: %s.",
				name, debits.StringFixed(2), credits.StringFixed(2)))
		}

		for j := range entry.Items {
			item := &entry.Items[j]
			errs = append(errs, validateItem(item)...)
			if item.Account != nil && !seen[item.AccountID] {
				seen[item.AccountID] = true
				accounts = append(accounts, item.Account)
			}
		}
	}

	for _, acct := range accounts {
		if !acct.IsActive {
			errs = append(errs, fmt.Sprintf("Account %s is not active.", acct.AccountNumber))
		}
		if !acct.AllowPosting {
			errs = append(errs, fmt.Sprintf("Account %s does not allow posting.", acct.AccountNumber))
		}
		if acct.IsDeleted {
			errs = append(errs, fmt.Sprintf("Account %s has been deleted.", acct.AccountNumber))
		}
	}

	if len(errs) > 0 {
		return apperr.Validation(errs...)
	}
	return nil
}

func validateItem(item *models.JournalItem) []string {
	if item.Account == nil {
		return []string{fmt.Sprintf("Journal item references unknown account %d.", item.AccountID)}
	}
	number := item.Account.AccountNumber

	var errs []string
	if item.DebitAmount.IsNegative() || item.CreditAmount.IsNegative() {
		errs = append(errs, fmt.Sprintf("Journal item for account %s cannot have a negative amount.", number))
	}
	hasDebit, hasCredit := !item.DebitAmount.IsZero(), !item.CreditAmount.IsZero()
	switch {
	case !hasDebit && !hasCredit:
		errs = append(errs, fmt.Sprintf("Journal item for account %s must have either a debit or credit amount.", number))
	case hasDebit && hasCredit:
		errs = append(errs, fmt.Sprintf("Journal item for account %s cannot have both a debit and a credit amount.", number))
	}
	if !item.Account.CanPostTransactions() {
		errs = append(errs, fmt.Sprintf("Account %s is not active or does not allow posting.", number))
	}
	return errs
}
