package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binaryash/gmail-rulemaster/internal/model"
	"github.com/binaryash/gmail-rulemaster/internal/testutil"
)

func TestStats(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	day := func(d int) *time.Time {
		t := time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC)
		return &t
	}

	for _, e := range []model.Email{
		{ID: "1", Sender: "Alice <alice@example.com>", ParsedDate: day(1), Labels: []string{"INBOX", "UNREAD"}},
		{ID: "2", Sender: "Alice <alice@example.com>", ParsedDate: day(1), IsRead: true, Labels: []string{"INBOX"}},
		{ID: "3", Sender: "bob@example.com", ParsedDate: day(2), IsRead: true, Labels: []string{"Label_1"}},
		{ID: "4", Sender: "Alice <alice@other.org>", IsRead: true},
	} {
		require.NoError(t, s.UpsertEmail(ctx, e))
	}
	require.NoError(t, s.RecordAction(ctx, model.LedgerEntry{EmailID: "1", RuleID: "rule1", ActionType: model.ActionMarkAsRead}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalEmails)
	assert.Equal(t, 1, stats.UnreadEmails)
	assert.Equal(t, []model.DayCount{
		{Date: "2024-03-02", Count: 1},
		{Date: "2024-03-01", Count: 2},
	}, stats.EmailsByDay)
	assert.Equal(t, []model.SenderCount{
		{Sender: "Alice", Count: 3},
		{Sender: "bob@example.com", Count: 1},
	}, stats.TopSenders)
	assert.Equal(t, []model.LabelCount{
		{Label: "INBOX", Count: 2},
		{Label: "Label_1", Count: 1},
		{Label: "UNREAD", Count: 1},
	}, stats.Labels)
	assert.Equal(t, []model.RuleActionCount{
		{RuleID: "rule1", ActionType: model.ActionMarkAsRead, Count: 1},
	}, stats.RuleActions)
}

func TestStatsEmptyStore(t *testing.T) {
	s := testutil.NewTestStore(t)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEmails)
	assert.Zero(t, stats.UnreadEmails)
	assert.Empty(t, stats.EmailsByDay)
	assert.Empty(t, stats.TopSenders)
	assert.Empty(t, stats.Labels)
	assert.Empty(t, stats.RuleActions)
}
