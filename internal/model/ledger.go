package model

import "time"

// LedgerEntry records one action that was actually applied to a message.
// Entries are append-only and carry no uniqueness constraint.
type LedgerEntry struct {
	// ID is the unique identifier for this entry.
	ID string `json:"id"`

	// EmailID is the provider message the action was applied to.
	EmailID string `json:"email_id"`

	// RuleID identifies the rule that triggered the action.
	RuleID string `json:"rule_id"`

	// ActionType is the kind of action applied.
	ActionType ActionType `json:"action_type"`

	// ActionValue is the action's value as configured in the rule.
	ActionValue string `json:"action_value"`

	// AppliedAt is when the action was recorded.
	AppliedAt time.Time `json:"applied_at"`
}

// RuleActionCount aggregates ledger entries by rule and action type.
type RuleActionCount struct {
	RuleID     string     `db:"rule_id" json:"rule_id"`
	ActionType ActionType `db:"action_type" json:"action_type"`
	Count      int        `db:"count" json:"count"`
}
