package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileLoaderParsesRules(t *testing.T) {
	path := writeFile(t, "rules.json", `{
  "rules": [
    {
      "id": "r1",
      "name": "Old invoices",
      "predicate": "All",
      "conditions": [
        {"field": "Subject", "predicate": "Contains", "value": "invoice"},
        {"field": "received", "predicate": "greater than", "value": "2 months"}
      ],
      "actions": [
        {"type": "move_message", "value": "Finance"},
        {"type": "mark_as_read", "value": true}
      ]
    },
    {
      "predicate": "any",
      "conditions": [{"field": "cc", "predicate": "matches", "value": 7}],
      "actions": [{"type": "archive", "value": "x"}]
    }
  ]
}`)

	rs, err := NewFileLoader(path, false, zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rs, 2)

	first := rs[0]
	assert.Equal(t, "r1", first.ID)
	assert.Equal(t, "Old invoices", first.Name)
	assert.Equal(t, model.MatchAll, first.Predicate)
	assert.Equal(t, []model.Condition{
		{Field: model.FieldSubject, Predicate: model.OpContains, Value: "invoice"},
		{Field: model.FieldReceived, Predicate: model.OpGreaterThan, Value: "2 months"},
	}, first.Conditions)
	assert.Equal(t, []model.Action{
		{Type: model.ActionMoveMessage, Value: "Finance"},
		{Type: model.ActionMarkAsRead, Value: "true"},
	}, first.Actions)

	second := rs[1]
	assert.Equal(t, "unknown", second.ID)
	assert.Equal(t, "Rule unknown", second.Name)
	assert.Equal(t, model.MatchAny, second.Predicate)
	assert.Equal(t, model.FieldUnknown, second.Conditions[0].Field)
	assert.Equal(t, model.OpUnknown, second.Conditions[0].Predicate)
	assert.Equal(t, "7", second.Conditions[0].Value)
	assert.False(t, second.Actions[0].Type.Supported())
}

func TestFileLoaderYAML(t *testing.T) {
	path := writeFile(t, "rules.yaml", `
rules:
  - id: y1
    name: Promotions
    predicate: any
    conditions:
      - field: from
        predicate: does not contain
        value: "@work.example.com"
    actions:
      - type: move_message
        value: Promotions
`)

	rs, err := NewFileLoader(path, false, zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, model.OpNotContains, rs[0].Conditions[0].Predicate)
	assert.Equal(t, "Promotions", rs[0].Actions[0].Value)
}

func TestFileLoaderMissingFileWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.json")

	rs, err := NewFileLoader(path, true, zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRuleSet(), rs)

	// The written file round-trips through the loader.
	require.FileExists(t, path)
	again, err := NewFileLoader(path, true, zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRuleSet(), again)
}

func TestFileLoaderMissingFileWithoutWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")

	rs, err := NewFileLoader(path, false, zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRuleSet(), rs)
	assert.NoFileExists(t, path)
}

func TestFileLoaderMalformedFileYieldsEmptySet(t *testing.T) {
	path := writeFile(t, "rules.json", `{"rules": [ {"id": "broken",`)

	rs, err := NewFileLoader(path, false, zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rs)
	assert.Empty(t, rs)
}

func TestFileLoaderPicksUpEdits(t *testing.T) {
	path := writeFile(t, "rules.json", `{"rules": []}`)
	loader := NewFileLoader(path, false, zerolog.Nop())

	rs, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rs)

	require.NoError(t, WriteRuleSet(path, model.DefaultRuleSet()))

	rs, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs, 1)
}

func TestFileLoaderFillsMissingNames(t *testing.T) {
	path := writeFile(t, "rules.json", `{"rules":[{"id":"j","conditions":[{"field":"to","predicate":"equals","value":"me"}]}]}`)
	loader := NewFileLoader(path, false, zerolog.Nop())

	rs, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "Rule j", rs[0].Name)
	assert.Equal(t, model.MatchAll, rs[0].Predicate)
}

func TestStaticSource(t *testing.T) {
	src := Static(model.DefaultRuleSet())
	rs, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRuleSet(), rs)
}
