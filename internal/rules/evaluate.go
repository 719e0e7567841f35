package rules

import (
	"time"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

// Evaluate reports whether email matches rule.
func Evaluate(email model.Email, rule model.Rule) bool {
	return EvaluateAt(email, rule, time.Now())
}

// EvaluateAt is Evaluate with an explicit clock. A rule without
// conditions never matches, whatever its predicate.
func EvaluateAt(email model.Email, rule model.Rule, now time.Time) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	if rule.Predicate == model.MatchAny {
		for _, c := range rule.Conditions {
			if EvaluateConditionAt(email, c, now) {
				return true
			}
		}
		return false
	}

	for _, c := range rule.Conditions {
		if !EvaluateConditionAt(email, c, now) {
			return false
		}
	}
	return true
}

// MatchingRules returns the rules in rs that match email, preserving
// rule set order.
func MatchingRules(email model.Email, rs model.RuleSet, now time.Time) []model.Rule {
	var matched []model.Rule
	for _, r := range rs {
		if EvaluateAt(email, r, now) {
			matched = append(matched, r)
		}
	}
	return matched
}
