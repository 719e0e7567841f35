// Package app wires the store, provider, rule loader and pipelines
// together from an AppConfig. The command line front end is a thin layer
// over it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/binaryash/gmail-rulemaster/internal/action"
	"github.com/binaryash/gmail-rulemaster/internal/credential"
	"github.com/binaryash/gmail-rulemaster/internal/metrics"
	"github.com/binaryash/gmail-rulemaster/internal/model"
	"github.com/binaryash/gmail-rulemaster/internal/process"
	"github.com/binaryash/gmail-rulemaster/internal/provider"
	"github.com/binaryash/gmail-rulemaster/internal/provider/gmail"
	"github.com/binaryash/gmail-rulemaster/internal/provider/imapmail"
	"github.com/binaryash/gmail-rulemaster/internal/rules"
	"github.com/binaryash/gmail-rulemaster/internal/store"
	appsync "github.com/binaryash/gmail-rulemaster/internal/sync"
)

const shutdownTimeout = 5 * time.Second

// App owns the long-lived resources of one rulemaster invocation. The
// mail provider is created on first use so that offline commands such as
// stats never need credentials.
type App struct {
	cfg   *model.AppConfig
	store *store.SQLiteStore
	rules *rules.FileLoader
	log   zerolog.Logger

	mu        gosync.Mutex
	creds     credential.Store
	provider  provider.MailProvider
	syncer    *appsync.Syncer
	processor *process.Processor
	poller    *appsync.Poller
}

// Option customizes an App.
type Option func(*App)

// WithProvider uses p instead of building one from the configuration.
func WithProvider(p provider.MailProvider) Option {
	return func(a *App) { a.provider = p }
}

// WithCredentials uses s instead of the system keyring.
func WithCredentials(s credential.Store) Option {
	return func(a *App) { a.creds = s }
}

// New opens the email store and prepares the rule loader.
func New(cfg *model.AppConfig, log zerolog.Logger, opts ...Option) (*App, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &App{
		cfg:   cfg,
		store: s,
		rules: rules.NewFileLoader(cfg.Rules.Path, cfg.Rules.WriteDefault, log),
		log:   log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// Sync copies up to maxMessages recent messages into the store.
func (a *App) Sync(ctx context.Context, maxMessages int) (int, error) {
	if err := a.init(ctx); err != nil {
		return 0, err
	}
	return a.syncer.SyncOnce(ctx, maxMessages)
}

// Process applies the current rule file to the stored emails.
func (a *App) Process(ctx context.Context) (int, error) {
	if err := a.init(ctx); err != nil {
		return 0, err
	}
	return a.processor.ProcessOnce(ctx)
}

// Run syncs and then processes. Processing is skipped when sync fails.
func (a *App) Run(ctx context.Context, maxMessages int) (synced, applied int, err error) {
	synced, err = a.Sync(ctx, maxMessages)
	if err != nil {
		return synced, 0, fmt.Errorf("sync: %w", err)
	}
	applied, err = a.Process(ctx)
	if err != nil {
		return synced, applied, fmt.Errorf("process: %w", err)
	}
	return synced, applied, nil
}

// Watch runs the poller until ctx is cancelled, serving metrics when an
// address is configured.
func (a *App) Watch(ctx context.Context) error {
	if err := a.init(ctx); err != nil {
		return err
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		stop, err := a.serveMetrics(addr)
		if err != nil {
			return err
		}
		defer stop()
	}

	return a.poller.Run(ctx)
}

// Statuses reports the watch loop's pipeline states. It is empty until
// the pipelines have been initialized.
func (a *App) Statuses() []appsync.Status {
	a.mu.Lock()
	p := a.poller
	a.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Statuses()
}

// Stats summarizes the stored emails and the action ledger.
func (a *App) Stats(ctx context.Context) (*model.Stats, error) {
	return a.store.Stats(ctx)
}

// Rules returns the rule set a processing run would use right now.
func (a *App) Rules(ctx context.Context) (model.RuleSet, error) {
	return a.rules.Load(ctx)
}

// Actions lists ledger entries, optionally for one email.
func (a *App) Actions(ctx context.Context, emailID string) ([]model.LedgerEntry, error) {
	return a.store.ListActions(ctx, emailID)
}

// SetCredential stores a secret in the credential store.
func (a *App) SetCredential(key, value string) error {
	creds, err := a.credentials()
	if err != nil {
		return err
	}
	return creds.Set(key, value)
}

// init builds the provider and pipelines once.
func (a *App) init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.poller != nil {
		return nil
	}

	if a.provider == nil {
		p, err := a.buildProvider(ctx)
		if err != nil {
			return err
		}
		a.provider = p
	}

	a.syncer = appsync.NewSyncer(a.provider, a.store, appsync.Options{
		Query:       a.cfg.Provider.Query,
		Workers:     a.cfg.Sync.Workers,
		CallTimeout: a.cfg.Provider.CallTimeout,
	}, a.log)

	executor := action.NewExecutor(a.cfg.Provider.RatePerSec, a.cfg.Provider.Burst, a.cfg.Provider.CallTimeout, a.log)
	a.processor = process.NewProcessor(a.store, a.rules, a.provider, executor, process.Options{
		BatchSize: a.cfg.Process.BatchSize,
		Workers:   a.cfg.Process.Workers,
	}, a.log)

	a.poller = appsync.NewPoller(a.syncer, a.processor, a.cfg.Watch.Interval, a.cfg.Sync.MaxMessages, a.log)
	return nil
}

func (a *App) buildProvider(ctx context.Context) (provider.MailProvider, error) {
	switch a.cfg.Provider.Type {
	case model.ProviderGmail:
		creds, err := a.credentials()
		if err != nil {
			a.log.Warn().Err(err).Msg("keyring unavailable, using token file only")
		}
		c, err := gmail.NewClient(ctx, gmail.Config{
			CredentialsFile: a.cfg.Gmail.CredentialsFile,
			TokenFile:       a.cfg.Gmail.TokenFile,
			User:            a.cfg.Gmail.User,
		}, creds, a.log)
		if err != nil {
			return nil, err
		}
		return c, nil

	case model.ProviderIMAP:
		creds, err := a.credentials()
		if err != nil {
			return nil, err
		}
		password, err := creds.Get(credential.IMAPPasswordKey(a.cfg.IMAP.Username))
		if err != nil {
			return nil, &provider.AuthError{
				Provider: model.ProviderIMAP,
				Message:  fmt.Sprintf("no password stored for %s", a.cfg.IMAP.Username),
				Err:      err,
			}
		}
		return imapmail.New(imapmail.Config{
			Host:     a.cfg.IMAP.Host,
			Port:     a.cfg.IMAP.Port,
			Username: a.cfg.IMAP.Username,
			Password: password,
			TLS:      a.cfg.IMAP.TLS,
			Mailbox:  a.cfg.IMAP.Mailbox,
		}, a.log), nil
	}
	return nil, fmt.Errorf("unknown provider type %q", a.cfg.Provider.Type)
}

// credentials opens the system keyring on first use.
func (a *App) credentials() (credential.Store, error) {
	if a.creds != nil {
		return a.creds, nil
	}
	k, err := credential.Open(model.ConfigDir())
	if err != nil {
		return nil, err
	}
	a.creds = k
	return k, nil
}

// serveMetrics starts the Prometheus endpoint and returns a function that
// shuts it down.
func (a *App) serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	a.log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
