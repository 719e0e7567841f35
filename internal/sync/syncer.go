// Package sync ingests messages from the mail provider into the email
// store and drives the periodic sync-then-process loop.
package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/binaryash/gmail-rulemaster/internal/metrics"
	"github.com/binaryash/gmail-rulemaster/internal/provider"
	"github.com/binaryash/gmail-rulemaster/internal/store"
)

// fetchTimeout is the default maximum time allowed for a single provider call.
const fetchTimeout = 30 * time.Second

// Options configures a Syncer.
type Options struct {
	// Query is passed to the provider when listing messages.
	Query string

	// Workers bounds concurrent detail fetches. Values below 1 mean 1.
	Workers int

	// CallTimeout bounds each provider call. Zero means fetchTimeout.
	CallTimeout time.Duration
}

// Syncer copies recent messages from a provider into the email store.
type Syncer struct {
	provider provider.MailProvider
	store    store.EmailStore
	opts     Options
	log      zerolog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(p provider.MailProvider, s store.EmailStore, opts Options, log zerolog.Logger) *Syncer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = fetchTimeout
	}
	return &Syncer{
		provider: p,
		store:    s,
		opts:     opts,
		log:      log.With().Str("component", "sync").Logger(),
	}
}

// SyncOnce lists up to maxMessages message ids, fetches and normalizes
// each one and upserts it. Messages that fail to fetch or store are
// logged and skipped. It returns the number of messages stored. An
// authentication failure aborts the run and is returned.
func (s *Syncer) SyncOnce(ctx context.Context, maxMessages int) (int, error) {
	if maxMessages <= 0 {
		return 0, nil
	}

	ids, err := s.listIDs(ctx, maxMessages)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int("count", len(ids)).Msg("listed messages")

	var stored atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for _, id := range ids {
		g.Go(func() error {
			if err := s.syncMessage(gctx, id); err != nil {
				if provider.IsAuthError(err) {
					return err
				}
				s.log.Warn().Err(err).Str("email_id", id).Msg("skipping message")
				return nil
			}
			stored.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(stored.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(stored.Load()), err
	}

	n := int(stored.Load())
	s.log.Info().Int("stored", n).Int("listed", len(ids)).Msg("sync complete")
	return n, nil
}

// listIDs pages through the provider until maxMessages ids are collected
// or the listing is exhausted.
func (s *Syncer) listIDs(ctx context.Context, maxMessages int) ([]string, error) {
	var ids []string
	pageToken := ""

	for len(ids) < maxMessages {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		page, err := s.provider.ListMessageIDs(callCtx, maxMessages-len(ids), s.opts.Query, pageToken)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}

		ids = append(ids, page.IDs...)
		if page.NextPageToken == "" || len(page.IDs) == 0 {
			break
		}
		pageToken = page.NextPageToken
	}

	if len(ids) > maxMessages {
		ids = ids[:maxMessages]
	}
	return ids, nil
}

func (s *Syncer) syncMessage(ctx context.Context, id string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	raw, err := s.provider.GetMessageDetail(callCtx, id)
	cancel()
	if err != nil {
		metrics.SyncFailures.WithLabelValues("fetch").Inc()
		return fmt.Errorf("fetching message %s: %w", id, err)
	}

	email := provider.Normalize(raw)
	if email.ID == "" {
		email.ID = id
	}

	if err := s.store.UpsertEmail(ctx, email); err != nil {
		metrics.SyncFailures.WithLabelValues("store").Inc()
		return err
	}

	metrics.MessagesSynced.Inc()
	return nil
}
