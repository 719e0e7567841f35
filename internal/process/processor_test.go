package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binaryash/gmail-rulemaster/internal/action"
	"github.com/binaryash/gmail-rulemaster/internal/model"
	"github.com/binaryash/gmail-rulemaster/internal/provider"
	"github.com/binaryash/gmail-rulemaster/internal/rules"
	"github.com/binaryash/gmail-rulemaster/internal/store"
	"github.com/binaryash/gmail-rulemaster/internal/testutil"
)

func newProcessor(s Store, src rules.Source, p provider.MailProvider, workers int) *Processor {
	x := action.NewExecutor(0, 1, time.Second, zerolog.Nop())
	return NewProcessor(s, src, p, x, Options{BatchSize: 100, Workers: workers}, zerolog.Nop())
}

func seed(t *testing.T, s *store.SQLiteStore, p *testutil.FakeProvider, emails ...model.Email) {
	t.Helper()
	for _, e := range emails {
		require.NoError(t, s.UpsertEmail(context.Background(), e))
		p.AddMessage(&provider.RawMessage{ID: e.ID, LabelIDs: e.Labels})
	}
}

func TestProcessOnceNewsletterRule(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := testutil.NewFakeProvider()
	seed(t, s, p,
		model.Email{ID: "news", Sender: "newsletter@example.com", Subject: "Weekly", Labels: []string{"INBOX", "UNREAD"}},
		model.Email{ID: "boss", Sender: "boss@example.com", Subject: "Meeting", Labels: []string{"INBOX", "UNREAD"}},
	)

	proc := newProcessor(s, rules.Static(model.DefaultRuleSet()), p, 2)

	n, err := proc.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	calls := p.Modifies()
	require.Len(t, calls, 1)
	assert.Equal(t, "news", calls[0].ID)
	assert.Equal(t, []string{provider.LabelUnread}, calls[0].Mod.Remove)
	assert.Equal(t, []string{"INBOX"}, p.Message("news").LabelIDs)

	entries, err := s.ListActions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "news", entries[0].EmailID)
	assert.Equal(t, "rule1", entries[0].RuleID)
	assert.Equal(t, model.ActionMarkAsRead, entries[0].ActionType)
	assert.Equal(t, "true", entries[0].ActionValue)
}

func TestProcessOnceReappliesWithoutDedup(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := testutil.NewFakeProvider()
	seed(t, s, p, model.Email{ID: "news", Subject: "Newsletter"})

	proc := newProcessor(s, rules.Static(model.DefaultRuleSet()), p, 1)

	for i := 0; i < 2; i++ {
		n, err := proc.ProcessOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	entries, err := s.ListActions(context.Background(), "news")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestProcessOnceActionsRunInOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := testutil.NewFakeProvider()
	seed(t, s, p, model.Email{ID: "inv", Subject: "Invoice #12"})

	rs := model.RuleSet{{
		ID:         "finance",
		Predicate:  model.MatchAll,
		Conditions: []model.Condition{{Field: model.FieldSubject, Predicate: model.OpContains, Value: "invoice"}},
		Actions: []model.Action{
			{Type: model.ActionMoveMessage, Value: "Finance"},
			{Type: "forward", Value: "someone@example.com"},
			{Type: model.ActionMarkAsRead, Value: "true"},
		},
	}}

	n, err := newProcessor(s, rules.Static(rs), p, 1).ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	calls := p.Modifies()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"Label_1"}, calls[0].Mod.Add)
	assert.Equal(t, []string{provider.LabelUnread}, calls[1].Mod.Remove)

	entries, err := s.ListActions(context.Background(), "inv")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	types := []model.ActionType{entries[0].ActionType, entries[1].ActionType}
	assert.ElementsMatch(t, []model.ActionType{model.ActionMoveMessage, model.ActionMarkAsRead}, types)
}

func TestProcessOnceFailedActionNotCounted(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := testutil.NewFakeProvider()
	seed(t, s, p,
		model.Email{ID: "a", Subject: "newsletter a"},
		model.Email{ID: "b", Subject: "newsletter b"},
	)
	p.ModifyErrs["a"] = errors.New("backend error")

	n, err := newProcessor(s, rules.Static(model.DefaultRuleSet()), p, 2).ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := s.ListActions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].EmailID)
}

func TestProcessOnceAuthErrorAborts(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := testutil.NewFakeProvider()
	seed(t, s, p, model.Email{ID: "a", Subject: "newsletter"})
	p.ModifyErrs["a"] = &provider.AuthError{Provider: "fake", Message: "token revoked"}

	_, err := newProcessor(s, rules.Static(model.DefaultRuleSet()), p, 1).ProcessOnce(context.Background())
	require.Error(t, err)
	assert.True(t, provider.IsAuthError(err))
}

func TestProcessOnceNoRules(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := testutil.NewFakeProvider()
	seed(t, s, p, model.Email{ID: "a", Subject: "newsletter"})

	n, err := newProcessor(s, rules.Static(nil), p, 1).ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, p.Modifies())
}

func TestProcessOnceBatchSize(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := testutil.NewFakeProvider()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"oldest", "middle", "newest"} {
		d := base.Add(time.Duration(i) * time.Hour)
		seed(t, s, p, model.Email{ID: id, Subject: "newsletter", ParsedDate: &d})
	}

	x := action.NewExecutor(0, 1, time.Second, zerolog.Nop())
	proc := NewProcessor(s, rules.Static(model.DefaultRuleSet()), p, x, Options{BatchSize: 2, Workers: 1}, zerolog.Nop())

	n, err := proc.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids := map[string]bool{}
	for _, c := range p.Modifies() {
		ids[c.ID] = true
	}
	assert.Equal(t, map[string]bool{"newest": true, "middle": true}, ids)
}

type failingSource struct{ err error }

func (f failingSource) Load(context.Context) (model.RuleSet, error) { return nil, f.err }

func TestProcessOnceRuleLoadError(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := testutil.NewFakeProvider()
	boom := errors.New("permission denied")

	_, err := newProcessor(s, failingSource{err: boom}, p, 1).ProcessOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestProcessOnceReceivedRule(t *testing.T) {
	s := testutil.NewTestStore(t)
	p := testutil.NewFakeProvider()

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	old := now.Add(-10 * 24 * time.Hour)
	recent := now.Add(-1 * 24 * time.Hour)
	seed(t, s, p,
		model.Email{ID: "old", ParsedDate: &old},
		model.Email{ID: "recent", ParsedDate: &recent},
		model.Email{ID: "undated"},
	)

	rs := model.RuleSet{{
		ID:         "archive-old",
		Predicate:  model.MatchAll,
		Conditions: []model.Condition{{Field: model.FieldReceived, Predicate: model.OpGreaterThan, Value: "5 days"}},
		Actions:    []model.Action{{Type: model.ActionMoveMessage, Value: "TRASH"}},
	}}

	proc := newProcessor(s, rules.Static(rs), p, 2)
	proc.now = func() time.Time { return now }

	n, err := proc.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	calls := p.Modifies()
	require.Len(t, calls, 1)
	assert.Equal(t, "old", calls[0].ID)
}
