package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

func TestEvaluateAt(t *testing.T) {
	email := model.Email{
		Sender:     "Weekly Newsletter <news@example.com>",
		Subject:    "Hello",
		ParsedDate: daysAgo(1),
	}

	fromNews := model.Condition{Field: model.FieldFrom, Predicate: model.OpContains, Value: "newsletter"}
	subjectNews := model.Condition{Field: model.FieldSubject, Predicate: model.OpContains, Value: "newsletter"}
	recent := model.Condition{Field: model.FieldReceived, Predicate: model.OpLessThan, Value: "2 days"}

	tests := []struct {
		name string
		rule model.Rule
		want bool
	}{
		{"all with every condition true", model.Rule{Predicate: model.MatchAll, Conditions: []model.Condition{fromNews, recent}}, true},
		{"all with one condition false", model.Rule{Predicate: model.MatchAll, Conditions: []model.Condition{fromNews, subjectNews}}, false},
		{"any with one condition true", model.Rule{Predicate: model.MatchAny, Conditions: []model.Condition{subjectNews, fromNews}}, true},
		{"any with no condition true", model.Rule{Predicate: model.MatchAny, Conditions: []model.Condition{subjectNews}}, false},
		{"all without conditions", model.Rule{Predicate: model.MatchAll}, false},
		{"any without conditions", model.Rule{Predicate: model.MatchAny}, false},
		{"unknown condition fails all", model.Rule{Predicate: model.MatchAll, Conditions: []model.Condition{fromNews, {Field: model.FieldUnknown}}}, false},
		{"unknown condition ignored by any", model.Rule{Predicate: model.MatchAny, Conditions: []model.Condition{{Predicate: model.OpUnknown}, fromNews}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateAt(email, tt.rule, testNow))
		})
	}
}

func TestDefaultRuleMatchesNewsletters(t *testing.T) {
	rule := model.DefaultRuleSet()[0]

	assert.True(t, EvaluateAt(model.Email{Sender: "newsletter@example.com"}, rule, testNow))
	assert.True(t, EvaluateAt(model.Email{Subject: "Monthly Newsletter"}, rule, testNow))
	assert.False(t, EvaluateAt(model.Email{Sender: "boss@example.com", Subject: "Meeting"}, rule, testNow))
}

func TestMatchingRulesKeepsOrder(t *testing.T) {
	email := model.Email{Subject: "invoice newsletter"}
	rs := model.RuleSet{
		{ID: "a", Predicate: model.MatchAll, Conditions: []model.Condition{{Field: model.FieldSubject, Predicate: model.OpContains, Value: "invoice"}}},
		{ID: "b", Predicate: model.MatchAll, Conditions: []model.Condition{{Field: model.FieldSubject, Predicate: model.OpContains, Value: "receipt"}}},
		{ID: "c", Predicate: model.MatchAny, Conditions: []model.Condition{{Field: model.FieldSubject, Predicate: model.OpContains, Value: "newsletter"}}},
	}

	matched := MatchingRules(email, rs, testNow)

	ids := make([]string, 0, len(matched))
	for _, r := range matched {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}
