package store

import (
	"context"
	"fmt"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

// EmailStore persists normalized emails keyed by provider message id.
type EmailStore interface {
	// UpsertEmail inserts email or overwrites every mutable field of the
	// existing row with the same id.
	UpsertEmail(ctx context.Context, email model.Email) error

	// ListEmails returns up to limit emails, most recent first. Emails
	// without a parsed date sort last.
	ListEmails(ctx context.Context, limit int) ([]model.Email, error)

	// GetEmail returns a single email by id.
	GetEmail(ctx context.Context, id string) (*model.Email, error)
}

// Ledger is the append-only record of actions applied to messages.
type Ledger interface {
	RecordAction(ctx context.Context, entry model.LedgerEntry) error
	ListActions(ctx context.Context, emailID string) ([]model.LedgerEntry, error)
	CountActionsByRule(ctx context.Context) ([]model.RuleActionCount, error)
}

// Store combines the email store, the ledger and reporting queries.
type Store interface {
	EmailStore
	Ledger

	Stats(ctx context.Context) (*model.Stats, error)
	Close() error
}

// StoreError reports a failed store operation on one key.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
