package model

import (
	"strconv"
	"strings"
)

// Field identifies which part of an email a condition inspects.
type Field string

const (
	FieldFrom     Field = "from"
	FieldTo       Field = "to"
	FieldSubject  Field = "subject"
	FieldMessage  Field = "message"
	FieldReceived Field = "received"

	// FieldUnknown is assigned to unrecognized field names. Conditions on
	// it never match.
	FieldUnknown Field = ""
)

// ParseField maps a rule-file field name onto a Field. Matching is
// case-insensitive; anything unrecognized becomes FieldUnknown.
func ParseField(s string) Field {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldFrom, FieldTo, FieldSubject, FieldMessage, FieldReceived:
		return f
	default:
		return FieldUnknown
	}
}

// IsText reports whether the field holds free text rather than a date.
func (f Field) IsText() bool {
	switch f {
	case FieldFrom, FieldTo, FieldSubject, FieldMessage:
		return true
	}
	return false
}

// Op is the comparison a condition performs.
type Op string

const (
	OpContains    Op = "contains"
	OpNotContains Op = "does not contain"
	OpEquals      Op = "equals"
	OpNotEquals   Op = "does not equal"
	OpGreaterThan Op = "greater than"
	OpLessThan    Op = "less than"

	// OpUnknown is assigned to unrecognized predicates. Conditions using
	// it never match.
	OpUnknown Op = ""
)

// ParseOp maps a rule-file predicate onto an Op. Inner whitespace is
// collapsed so "does  not contain" still parses.
func ParseOp(s string) Op {
	norm := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	switch op := Op(norm); op {
	case OpContains, OpNotContains, OpEquals, OpNotEquals,
		OpGreaterThan, OpLessThan:
		return op
	default:
		return OpUnknown
	}
}

// Match selects how a rule combines its conditions.
type Match string

const (
	MatchAll Match = "all"
	MatchAny Match = "any"
)

// ParseMatch maps a rule predicate onto a Match. Unrecognized values
// fall back to MatchAll.
func ParseMatch(s string) Match {
	if strings.EqualFold(strings.TrimSpace(s), string(MatchAny)) {
		return MatchAny
	}
	return MatchAll
}

// ActionType names a state change applied to a message on the provider.
type ActionType string

const (
	ActionMarkAsRead  ActionType = "mark_as_read"
	ActionMoveMessage ActionType = "move_message"
)

// ParseActionType lower-cases and trims s. Unrecognized types are kept
// verbatim so they can be reported; see Supported.
func ParseActionType(s string) ActionType {
	return ActionType(strings.ToLower(strings.TrimSpace(s)))
}

// Supported reports whether the executor knows how to apply the type.
func (t ActionType) Supported() bool {
	return t == ActionMarkAsRead || t == ActionMoveMessage
}

// Condition is a single predicate over one email field.
type Condition struct {
	Field     Field  `json:"field"`
	Predicate Op     `json:"predicate"`
	Value     string `json:"value"`
}

// Action is a state change to apply when a rule matches.
type Action struct {
	Type ActionType `json:"type"`

	// Value is "true"/"false" for mark_as_read and the destination label
	// name for move_message.
	Value string `json:"value"`
}

// BoolValue interprets Value as a boolean. Anything that does not parse
// as true is false.
func (a Action) BoolValue() bool {
	b, err := strconv.ParseBool(strings.TrimSpace(a.Value))
	return err == nil && b
}

// Rule is a named set of conditions and the actions to run on a match.
type Rule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Predicate  Match       `json:"predicate"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// RuleSet is the ordered collection of rules in effect for one
// processing run.
type RuleSet []Rule

// DefaultRuleSet returns the rule used when no rule file exists: mark
// anything that looks like a newsletter as read.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		{
			ID:        "rule1",
			Name:      "Mark newsletters as read",
			Predicate: MatchAny,
			Conditions: []Condition{
				{Field: FieldFrom, Predicate: OpContains, Value: "newsletter"},
				{Field: FieldSubject, Predicate: OpContains, Value: "newsletter"},
			},
			Actions: []Action{
				{Type: ActionMarkAsRead, Value: "true"},
			},
		},
	}
}
