// Package rules evaluates user-defined rules against stored emails and
// loads the rule set from disk.
//
// Evaluation is pure: nothing in this package talks to the mail provider
// or the store. Malformed rules never produce errors; a condition that
// cannot be understood simply does not match.
package rules

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

// daysPerMonth approximates a month for "received" conditions. Calendar
// month arithmetic is intentionally not used.
const daysPerMonth = 30

const day = 24 * time.Hour

// maxAgeDays is the largest age in days a time.Duration can hold.
const maxAgeDays = int64(math.MaxInt64 / int64(day))

// EvaluateCondition reports whether email satisfies c, using the current
// time for "received" comparisons.
func EvaluateCondition(email model.Email, c model.Condition) bool {
	return EvaluateConditionAt(email, c, time.Now())
}

// EvaluateConditionAt is EvaluateCondition with an explicit clock.
func EvaluateConditionAt(email model.Email, c model.Condition, now time.Time) bool {
	switch {
	case c.Field == model.FieldReceived:
		return evaluateReceived(email.ParsedDate, c.Predicate, c.Value, now)
	case c.Field.IsText():
		return evaluateText(textField(email, c.Field), c.Predicate, c.Value)
	default:
		return false
	}
}

// textField returns the email attribute a text condition inspects.
func textField(email model.Email, f model.Field) string {
	switch f {
	case model.FieldFrom:
		return email.Sender
	case model.FieldTo:
		return email.Recipient
	case model.FieldSubject:
		return email.Subject
	case model.FieldMessage:
		return email.Body
	}
	return ""
}

func evaluateText(fieldValue string, op model.Op, value string) bool {
	haystack := strings.ToLower(fieldValue)
	needle := strings.ToLower(value)

	switch op {
	case model.OpContains:
		return strings.Contains(haystack, needle)
	case model.OpNotContains:
		return !strings.Contains(haystack, needle)
	case model.OpEquals:
		return haystack == needle
	case model.OpNotEquals:
		return haystack != needle
	default:
		return false
	}
}

// evaluateReceived compares the email date against now minus the amount
// described by value ("5 days", "2 months"). Both comparisons are strict,
// so an email exactly on the threshold matches neither. Ages too large for
// a time.Duration put the threshold beyond any representable email date.
func evaluateReceived(parsed *time.Time, op model.Op, value string, now time.Time) bool {
	if parsed == nil {
		return false
	}

	days, ok := parseAgeDays(value)
	if !ok {
		return false
	}

	var threshold time.Time
	switch {
	case days > maxAgeDays:
		threshold = time.Time{}
	case days < -maxAgeDays:
		return op == model.OpGreaterThan
	default:
		threshold = now.In(parsed.Location()).Add(-time.Duration(days) * day)
	}

	switch op {
	case model.OpGreaterThan:
		return parsed.Before(threshold)
	case model.OpLessThan:
		return parsed.After(threshold)
	default:
		return false
	}
}

// parseAgeDays parses "<integer amount> <unit>" where unit starts with
// "day" or "month" and returns the age in days. Amounts are clamped just
// past maxAgeDays so the month conversion cannot overflow.
func parseAgeDays(value string) (int64, bool) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return 0, false
	}

	amount, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	amount = max(min(amount, maxAgeDays+1), -maxAgeDays-1)

	unit := strings.ToLower(parts[1])
	switch {
	case strings.HasPrefix(unit, "day"):
		return amount, true
	case strings.HasPrefix(unit, "month"):
		return amount * daysPerMonth, true
	default:
		return 0, false
	}
}
