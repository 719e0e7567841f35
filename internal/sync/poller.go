package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/binaryash/gmail-rulemaster/internal/metrics"
	"github.com/binaryash/gmail-rulemaster/internal/provider"
)

// State represents the current state of a pipeline in the poller.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Pipeline names reported in Status.
const (
	PipelineSync    = "sync"
	PipelineProcess = "process"
)

// Status holds the last known state of one pipeline.
type Status struct {
	Pipeline  string
	State     State
	LastRun   time.Time
	LastCount int
	Error     error
}

// Processor runs one processing pass over stored emails.
type Processor interface {
	ProcessOnce(ctx context.Context) (int, error)
}

// ErrAlreadyRunning is returned by Run when the poller is already active.
var ErrAlreadyRunning = errors.New("poller already running")

// Poller periodically syncs new messages and then applies rules to them.
type Poller struct {
	syncer      *Syncer
	processor   Processor
	interval    time.Duration
	maxMessages int
	statuses    map[string]*Status
	triggerCh   chan struct{}
	mu          gosync.Mutex
	running     bool
	log         zerolog.Logger
}

// NewPoller creates a Poller that runs every interval. A non-positive
// interval defaults to five minutes.
func NewPoller(s *Syncer, p Processor, interval time.Duration, maxMessages int, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{
		syncer:      s,
		processor:   p,
		interval:    interval,
		maxMessages: maxMessages,
		statuses: map[string]*Status{
			PipelineSync:    {Pipeline: PipelineSync},
			PipelineProcess: {Pipeline: PipelineProcess},
		},
		triggerCh: make(chan struct{}, 1),
		log:       log.With().Str("component", "poller").Logger(),
	}
}

// Run performs an immediate cycle, then one per interval or Trigger call,
// until ctx is cancelled. It returns nil on cancellation and the error
// when a cycle fails authentication.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Do an initial cycle immediately
	if err := p.cycle(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.triggerCh:
		}
		if err := p.cycle(ctx); err != nil {
			return err
		}
	}
}

// Trigger requests an immediate cycle. It never blocks; a trigger that
// arrives while one is already pending is dropped.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Statuses returns the current status of the sync and process pipelines,
// in that order.
func (p *Poller) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return []Status{*p.statuses[PipelineSync], *p.statuses[PipelineProcess]}
}

// cycle runs sync then process. Only authentication failures are returned;
// other errors are recorded in the status and the loop carries on.
func (p *Poller) cycle(ctx context.Context) error {
	synced, err := p.runPipeline(ctx, PipelineSync, func(ctx context.Context) (int, error) {
		return p.syncer.SyncOnce(ctx, p.maxMessages)
	})
	if err != nil && (provider.IsAuthError(err) || ctx.Err() != nil) {
		return p.stopErr(ctx, err)
	}

	applied, err := p.runPipeline(ctx, PipelineProcess, p.processor.ProcessOnce)
	if err != nil && (provider.IsAuthError(err) || ctx.Err() != nil) {
		return p.stopErr(ctx, err)
	}

	p.log.Info().Int("synced", synced).Int("applied", applied).Msg("cycle complete")
	return nil
}

func (p *Poller) stopErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	p.log.Error().Err(err).Msg("authentication failed, stopping")
	return err
}

func (p *Poller) runPipeline(ctx context.Context, name string, fn func(context.Context) (int, error)) (int, error) {
	p.setStatus(name, StateRunning, 0, nil)

	start := time.Now()
	n, err := fn(ctx)
	metrics.RunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RunErrors.WithLabelValues(name).Inc()
		p.setStatus(name, StateError, n, err)
		p.log.Warn().Err(err).Str("pipeline", name).Msg("run failed")
		return n, err
	}

	metrics.LastSuccess.WithLabelValues(name).SetToCurrentTime()
	p.setStatus(name, StateIdle, n, nil)
	return n, nil
}

// setStatus updates the status for a pipeline.
func (p *Poller) setStatus(name string, state State, count int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[name]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state != StateRunning {
		status.LastCount = count
	}
	if state == StateIdle {
		status.LastRun = time.Now()
	}
}
