package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

type ledgerRow struct {
	ID          string `db:"id"`
	EmailID     string `db:"email_id"`
	RuleID      string `db:"rule_id"`
	ActionType  string `db:"action_type"`
	ActionValue string `db:"action_value"`
	AppliedAt   string `db:"applied_at"`
}

// RecordAction appends an entry to the action ledger. If the entry has no
// ID a new UUID is generated; a zero AppliedAt is set to now.
func (s *SQLiteStore) RecordAction(ctx context.Context, entry model.LedgerEntry) error {
	if entry.EmailID == "" {
		return &StoreError{Op: "record action", Err: errors.New("empty email id")}
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.AppliedAt.IsZero() {
		entry.AppliedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_actions (id, email_id, rule_id, action_type, action_value, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EmailID, entry.RuleID, string(entry.ActionType),
		entry.ActionValue, formatTime(entry.AppliedAt),
	)
	if err != nil {
		return &StoreError{Op: "record action", Key: entry.EmailID, Err: err}
	}

	return nil
}

// ListActions returns the ledger entries for one email in the order they
// were applied. An empty emailID lists every entry.
func (s *SQLiteStore) ListActions(ctx context.Context, emailID string) ([]model.LedgerEntry, error) {
	query := `SELECT id, email_id, rule_id, action_type, action_value, applied_at
		FROM rule_actions`
	var args []interface{}
	if emailID != "" {
		query += " WHERE email_id = ?"
		args = append(args, emailID)
	}
	query += " ORDER BY applied_at, rowid"

	var rows []ledgerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &StoreError{Op: "list actions", Key: emailID, Err: err}
	}

	entries := make([]model.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		appliedAt, err := parseTime(r.AppliedAt)
		if err != nil {
			return nil, &StoreError{Op: "list actions", Key: r.ID, Err: err}
		}
		entries = append(entries, model.LedgerEntry{
			ID:          r.ID,
			EmailID:     r.EmailID,
			RuleID:      r.RuleID,
			ActionType:  model.ActionType(r.ActionType),
			ActionValue: r.ActionValue,
			AppliedAt:   appliedAt,
		})
	}

	return entries, nil
}

// CountActionsByRule aggregates the ledger by rule id and action type,
// largest groups first.
func (s *SQLiteStore) CountActionsByRule(ctx context.Context) ([]model.RuleActionCount, error) {
	var counts []model.RuleActionCount
	err := s.db.SelectContext(ctx, &counts, `
		SELECT rule_id, action_type, COUNT(*) AS count
		FROM rule_actions
		GROUP BY rule_id, action_type
		ORDER BY count DESC, rule_id, action_type`)
	if err != nil {
		return nil, &StoreError{Op: "count actions", Err: err}
	}
	return counts, nil
}
