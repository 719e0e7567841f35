// Package action applies rule actions to messages on the mail provider.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/binaryash/gmail-rulemaster/internal/model"
	"github.com/binaryash/gmail-rulemaster/internal/provider"
)

// Descriptions returned by Apply.
const (
	DescMarkedRead    = "marked as read"
	DescMarkedUnread  = "marked as unread"
	DescNotSupported  = "action not supported"
	descMovedToPrefix = "moved to "
)

// errEmptyDestination is returned for move_message without a value.
var errEmptyDestination = errors.New("empty destination label")

// ActionError reports a recognized action that could not be applied.
type ActionError struct {
	EmailID string
	Type    model.ActionType
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("applying %s to %s: %v", e.Type, e.EmailID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Result describes the outcome of a single Apply call.
type Result struct {
	// Description is a short human-readable summary, e.g. "moved to Finance".
	Description string

	// Applied is true only when a recognized action succeeded on the
	// provider. Unsupported actions report false with a nil error.
	Applied bool
}

// Executor translates actions into provider calls. Each call runs under
// its own timeout and waits on a shared rate limiter.
type Executor struct {
	limiter *rate.Limiter
	timeout time.Duration
	log     zerolog.Logger
}

// NewExecutor creates an executor. A non-positive ratePerSec disables
// throttling; a non-positive timeout disables per-call deadlines.
func NewExecutor(ratePerSec float64, burst int, timeout time.Duration, log zerolog.Logger) *Executor {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	if burst < 1 {
		burst = 1
	}
	return &Executor{
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		log:     log.With().Str("component", "action").Logger(),
	}
}

// Apply performs a on email through p.
func (x *Executor) Apply(ctx context.Context, p provider.MailProvider, email model.Email, a model.Action) (Result, error) {
	switch a.Type {
	case model.ActionMarkAsRead:
		return x.markAsRead(ctx, p, email, a)
	case model.ActionMoveMessage:
		return x.moveMessage(ctx, p, email, a)
	default:
		x.log.Debug().
			Str("email_id", email.ID).
			Str("action_type", string(a.Type)).
			Msg("skipping unsupported action")
		return Result{Description: DescNotSupported}, nil
	}
}

func (x *Executor) markAsRead(ctx context.Context, p provider.MailProvider, email model.Email, a model.Action) (Result, error) {
	mod := provider.LabelModification{Add: []string{provider.LabelUnread}}
	desc := DescMarkedUnread
	if a.BoolValue() {
		mod = provider.LabelModification{Remove: []string{provider.LabelUnread}}
		desc = DescMarkedRead
	}

	if err := x.modify(ctx, p, email.ID, mod); err != nil {
		return Result{}, &ActionError{EmailID: email.ID, Type: a.Type, Err: err}
	}
	return Result{Description: desc, Applied: true}, nil
}

func (x *Executor) moveMessage(ctx context.Context, p provider.MailProvider, email model.Email, a model.Action) (Result, error) {
	if a.Value == "" {
		return Result{}, &ActionError{EmailID: email.ID, Type: a.Type, Err: errEmptyDestination}
	}

	labelID := a.Value
	if !provider.IsSystemLocation(a.Value) {
		id, err := x.resolve(ctx, p, a.Value)
		if err != nil {
			return Result{}, &ActionError{EmailID: email.ID, Type: a.Type, Err: fmt.Errorf("resolving label %q: %w", a.Value, err)}
		}
		labelID = id
	}

	mod := provider.LabelModification{
		Add:    []string{labelID},
		Remove: []string{provider.LabelInbox},
	}
	if err := x.modify(ctx, p, email.ID, mod); err != nil {
		return Result{}, &ActionError{EmailID: email.ID, Type: a.Type, Err: err}
	}
	return Result{Description: descMovedToPrefix + a.Value, Applied: true}, nil
}

func (x *Executor) modify(ctx context.Context, p provider.MailProvider, id string, mod provider.LabelModification) error {
	if err := x.limiter.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := x.callContext(ctx)
	defer cancel()
	return p.ModifyLabels(callCtx, id, mod)
}

func (x *Executor) resolve(ctx context.Context, p provider.MailProvider, name string) (string, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return "", err
	}
	callCtx, cancel := x.callContext(ctx)
	defer cancel()
	return p.ResolveOrCreateLabel(callCtx, name)
}

func (x *Executor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if x.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, x.timeout)
}
