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

func TestRecordActionAppends(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	entry := model.LedgerEntry{
		EmailID:     "m1",
		RuleID:      "rule1",
		ActionType:  model.ActionMarkAsRead,
		ActionValue: "true",
	}
	require.NoError(t, s.RecordAction(ctx, entry))
	require.NoError(t, s.RecordAction(ctx, entry))

	entries, err := s.ListActions(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "rule1", e.RuleID)
		assert.Equal(t, model.ActionMarkAsRead, e.ActionType)
		assert.Equal(t, "true", e.ActionValue)
		assert.False(t, e.AppliedAt.IsZero())
	}
}

func TestRecordActionKeepsAppliedAt(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.RecordAction(ctx, model.LedgerEntry{
		ID: "fixed", EmailID: "m1", RuleID: "r", ActionType: model.ActionMoveMessage, ActionValue: "Finance", AppliedAt: at,
	}))

	entries, err := s.ListActions(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fixed", entries[0].ID)
	assert.True(t, entries[0].AppliedAt.Equal(at))
}

func TestRecordActionRequiresEmailID(t *testing.T) {
	s := testutil.NewTestStore(t)
	assert.Error(t, s.RecordAction(context.Background(), model.LedgerEntry{RuleID: "r"}))
}

func TestListActionsFiltersByEmail(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordAction(ctx, model.LedgerEntry{EmailID: "m1", RuleID: "r1", ActionType: model.ActionMarkAsRead}))
	require.NoError(t, s.RecordAction(ctx, model.LedgerEntry{EmailID: "m2", RuleID: "r1", ActionType: model.ActionMarkAsRead}))

	entries, err := s.ListActions(ctx, "m2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m2", entries[0].EmailID)

	all, err := s.ListActions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCountActionsByRule(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	record := func(rule string, typ model.ActionType, n int) {
		for i := 0; i < n; i++ {
			require.NoError(t, s.RecordAction(ctx, model.LedgerEntry{EmailID: "m", RuleID: rule, ActionType: typ}))
		}
	}
	record("r1", model.ActionMarkAsRead, 3)
	record("r1", model.ActionMoveMessage, 1)
	record("r2", model.ActionMoveMessage, 2)

	counts, err := s.CountActionsByRule(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.RuleActionCount{
		{RuleID: "r1", ActionType: model.ActionMarkAsRead, Count: 3},
		{RuleID: "r2", ActionType: model.ActionMoveMessage, Count: 2},
		{RuleID: "r1", ActionType: model.ActionMoveMessage, Count: 1},
	}, counts)
}
