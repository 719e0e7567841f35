package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binaryash/gmail-rulemaster/internal/credential"
	"github.com/binaryash/gmail-rulemaster/internal/model"
	"github.com/binaryash/gmail-rulemaster/internal/provider"
	"github.com/binaryash/gmail-rulemaster/internal/testutil"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 10 * time.Millisecond
)

func testConfig(t *testing.T) *model.AppConfig {
	t.Helper()
	cfg := model.DefaultAppConfig()
	dir := t.TempDir()
	cfg.Database.Path = ":memory:"
	cfg.Rules.Path = filepath.Join(dir, "rules.json")
	cfg.Provider.RatePerSec = 0
	return cfg
}

func newTestApp(t *testing.T, cfg *model.AppConfig, opts ...Option) *App {
	t.Helper()
	a, err := New(cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func message(id, from, subject string) *provider.RawMessage {
	return &provider.RawMessage{
		ID:       id,
		LabelIDs: []string{provider.LabelInbox, provider.LabelUnread},
		Headers: []provider.Header{
			{Name: "From", Value: from},
			{Name: "To", Value: "me@example.com"},
			{Name: "Subject", Value: subject},
			{Name: "Date", Value: "Tue, 19 Mar 2024 10:30:00 +0000"},
		},
		Payload: &provider.Part{MimeType: "text/plain", Body: []byte("body of " + id)},
	}
}

func TestRunSyncsAndAppliesDefaultRules(t *testing.T) {
	cfg := testConfig(t)
	p := testutil.NewFakeProvider()
	p.AddMessage(message("m1", "Weekly Newsletter <newsletter@example.com>", "This week"))
	p.AddMessage(message("m2", "Boss <boss@example.com>", "Meeting"))

	a := newTestApp(t, cfg, WithProvider(p))
	ctx := context.Background()

	synced, applied, err := a.Run(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	assert.Equal(t, 1, applied)

	_, err = os.Stat(cfg.Rules.Path)
	require.NoError(t, err, "default rule file should be written")

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEmails)

	entries, err := a.Actions(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionMarkAsRead, entries[0].ActionType)

	assert.Equal(t, []string{provider.LabelInbox}, p.Message("m1").LabelIDs)
}

func TestProcessPicksUpRuleFileEdits(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rules.WriteDefault = false
	p := testutil.NewFakeProvider()
	p.AddMessage(message("m1", "billing@example.com", "Invoice 42"))

	a := newTestApp(t, cfg, WithProvider(p))
	ctx := context.Background()

	_, err := a.Sync(ctx, 10)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfg.Rules.Path, []byte(`{"rules":[{
		"id":"inv","name":"Invoices","predicate":"All",
		"conditions":[{"field":"Subject","predicate":"contains","value":"invoice"}],
		"actions":[{"type":"move_message","value":"TRASH"}]
	}]}`), 0o600))

	n, err := a.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	calls := p.Modifies()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{provider.LabelTrash}, calls[0].Mod.Add)

	rs, err := a.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "inv", rs[0].ID)
}

func TestRulesDoesNotNeedProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.Type = "bogus"

	a := newTestApp(t, cfg)
	rs, err := a.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRuleSet(), rs)
	assert.Empty(t, a.Statuses())

	_, err = a.Sync(context.Background(), 10)
	assert.ErrorContains(t, err, `unknown provider type "bogus"`)
}

func TestIMAPWithoutPasswordIsAuthError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.Type = model.ProviderIMAP
	cfg.IMAP.Username = "me@example.com"

	a := newTestApp(t, cfg, WithCredentials(credential.Memory{}))
	_, err := a.Process(context.Background())
	require.Error(t, err)
	assert.True(t, provider.IsAuthError(err))
}

func TestIMAPProviderBuiltFromStoredPassword(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.Type = model.ProviderIMAP
	cfg.IMAP.Username = "me@example.com"

	creds := credential.Memory{}
	a := newTestApp(t, cfg, WithCredentials(creds))
	require.NoError(t, a.SetCredential(credential.IMAPPasswordKey("me@example.com"), "s3cret"))

	p, err := a.buildProvider(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestGmailWithoutTokenIsAuthError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gmail.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")

	a := newTestApp(t, cfg, WithCredentials(credential.Memory{}))
	_, err := a.Sync(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, provider.IsAuthError(err))
}

func TestWatchStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"
	p := testutil.NewFakeProvider()
	p.AddMessage(message("m1", "a@example.com", "hello"))

	a := newTestApp(t, cfg, WithProvider(p))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()

	require.Eventually(t, func() bool {
		for _, s := range a.Statuses() {
			if s.Pipeline == "process" && !s.LastRun.IsZero() {
				return true
			}
		}
		return false
	}, testTimeout, testTick)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("watch did not stop")
	}
}
