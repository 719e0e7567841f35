// Package process applies the rule set to stored emails.
package process

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/binaryash/gmail-rulemaster/internal/action"
	"github.com/binaryash/gmail-rulemaster/internal/metrics"
	"github.com/binaryash/gmail-rulemaster/internal/model"
	"github.com/binaryash/gmail-rulemaster/internal/provider"
	"github.com/binaryash/gmail-rulemaster/internal/rules"
	"github.com/binaryash/gmail-rulemaster/internal/store"
)

const defaultBatchSize = 100

// Store is the part of the store the processor needs.
type Store interface {
	store.EmailStore
	store.Ledger
}

// Options configures a Processor.
type Options struct {
	// BatchSize is the number of most recent emails considered per run.
	BatchSize int

	// Workers bounds how many emails are processed concurrently. Actions
	// for a single email always run sequentially.
	Workers int
}

// Processor evaluates rules against stored emails and applies the
// actions of matching rules through the provider.
type Processor struct {
	store    Store
	rules    rules.Source
	provider provider.MailProvider
	executor *action.Executor
	opts     Options
	now      func() time.Time
	log      zerolog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(
	s Store,
	src rules.Source,
	p provider.MailProvider,
	x *action.Executor,
	opts Options,
	log zerolog.Logger,
) *Processor {
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Processor{
		store:    s,
		rules:    src,
		provider: p,
		executor: x,
		opts:     opts,
		now:      time.Now,
		log:      log.With().Str("component", "process").Logger(),
	}
}

// ProcessOnce loads the rule set, evaluates every rule against the most
// recent batch of emails and applies the actions of matching rules. It
// returns the number of actions applied. Failed and unsupported actions
// are not counted. An authentication failure aborts the run.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	runID := uuid.New().String()
	log := p.log.With().Str("run_id", runID).Logger()

	rs, err := p.rules.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading rules: %w", err)
	}
	if len(rs) == 0 {
		log.Info().Msg("no rules loaded, nothing to do")
		return 0, nil
	}

	emails, err := p.store.ListEmails(ctx, p.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing emails: %w", err)
	}
	log.Info().Int("emails", len(emails)).Int("rules", len(rs)).Msg("processing emails")

	now := p.now()
	var applied atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, email := range emails {
		g.Go(func() error {
			n, err := p.processEmail(gctx, log, email, rs, now)
			applied.Add(int64(n))
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return int(applied.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(applied.Load()), err
	}

	total := int(applied.Load())
	log.Info().Int("applied", total).Msg("processing complete")
	return total, nil
}

// processEmail runs every matching rule's actions for one email in rule
// order. Only authentication errors are returned.
func (p *Processor) processEmail(
	ctx context.Context,
	log zerolog.Logger,
	email model.Email,
	rs model.RuleSet,
	now time.Time,
) (int, error) {
	applied := 0

	for _, rule := range rules.MatchingRules(email, rs, now) {
		metrics.RulesMatched.WithLabelValues(rule.ID).Inc()
		log.Debug().
			Str("email_id", email.ID).
			Str("rule_id", rule.ID).
			Str("rule", rule.Name).
			Msg("rule matched")

		for _, a := range rule.Actions {
			if err := ctx.Err(); err != nil {
				return applied, nil
			}

			res, err := p.executor.Apply(ctx, p.provider, email, a)
			if err != nil {
				metrics.ActionFailures.WithLabelValues(string(a.Type)).Inc()
				if provider.IsAuthError(err) {
					return applied, err
				}
				log.Warn().Err(err).
					Str("email_id", email.ID).
					Str("rule_id", rule.ID).
					Msg("action failed")
				continue
			}
			if !res.Applied {
				log.Warn().
					Str("email_id", email.ID).
					Str("rule_id", rule.ID).
					Str("action_type", string(a.Type)).
					Msg(res.Description)
				continue
			}

			applied++
			metrics.ActionsApplied.WithLabelValues(string(a.Type)).Inc()
			log.Info().
				Str("email_id", email.ID).
				Str("rule_id", rule.ID).
				Msg(res.Description)

			if err := p.store.RecordAction(ctx, model.LedgerEntry{
				EmailID:     email.ID,
				RuleID:      rule.ID,
				ActionType:  a.Type,
				ActionValue: a.Value,
			}); err != nil {
				log.Error().Err(err).Str("email_id", email.ID).Msg("failed to record action")
			}
		}
	}

	return applied, nil
}
