// Package gmail implements provider.MailProvider on top of the Gmail REST
// API. Calls pass through a circuit breaker so that a failing API is not
// hammered by every worker in the sync and processing pools.
package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/binaryash/gmail-rulemaster/internal/credential"
	"github.com/binaryash/gmail-rulemaster/internal/provider"
)

const providerName = "gmail"

// Config holds the Gmail client settings.
type Config struct {
	// CredentialsFile is the OAuth client secret downloaded from the
	// Google Cloud console.
	CredentialsFile string

	// TokenFile holds a previously authorized token. It is consulted when
	// the credential store has none.
	TokenFile string

	// User is the mailbox owner, normally "me".
	User string
}

// Client is a Gmail-backed provider.MailProvider.
type Client struct {
	svc  *gmailapi.Service
	user string
	cb   *gobreaker.CircuitBreaker
	log  zerolog.Logger

	// labelMu guards labels and serializes label creation.
	labelMu sync.Mutex
	labels  map[string]cachedLabel // keyed by labelKey
}

var _ provider.MailProvider = (*Client)(nil)

// NewClient builds an authorized Gmail client. The OAuth token is read
// from creds under credential.GmailTokenKey, falling back to
// cfg.TokenFile. A missing or unreadable token is an AuthError.
func NewClient(ctx context.Context, cfg Config, creds credential.Store, log zerolog.Logger) (*Client, error) {
	secret, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, &provider.AuthError{
			Provider: providerName,
			Message:  fmt.Sprintf("reading client secret %s", cfg.CredentialsFile),
			Err:      err,
		}
	}
	oauthCfg, err := google.ConfigFromJSON(secret, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, &provider.AuthError{Provider: providerName, Message: "parsing client secret", Err: err}
	}

	tok, err := loadToken(creds, cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	httpClient := oauthCfg.Client(ctx, tok)
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return NewWithService(svc, cfg.User, log), nil
}

// NewWithService wraps an existing Gmail service.
func NewWithService(svc *gmailapi.Service, user string, log zerolog.Logger) *Client {
	if user == "" {
		user = "me"
	}
	log = log.With().Str("component", "gmail").Logger()

	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Client{
		svc:    svc,
		user:   user,
		cb:     gobreaker.NewCircuitBreaker(settings),
		log:    log,
		labels: make(map[string]cachedLabel),
	}
}

// loadToken reads the OAuth token from the credential store, then from
// path.
func loadToken(creds credential.Store, path string) (*oauth2.Token, error) {
	var data []byte
	if creds != nil {
		v, err := creds.Get(credential.GmailTokenKey)
		switch {
		case err == nil:
			data = []byte(v)
		case !errors.Is(err, credential.ErrNotFound):
			return nil, &provider.AuthError{Provider: providerName, Message: "reading token from keyring", Err: err}
		}
	}
	if data == nil && path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, &provider.AuthError{Provider: providerName, Message: "reading token file", Err: err}
		}
		data = b
	}
	if len(data) == 0 {
		return nil, &provider.AuthError{Provider: providerName, Message: "no OAuth token available"}
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, &provider.AuthError{Provider: providerName, Message: "decoding OAuth token", Err: err}
	}
	return tok, nil
}

// execute runs fn under the circuit breaker. Client errors do not count
// as breaker failures.
func (c *Client) execute(op string, fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		if tripsBreaker(err) {
			c.log.Debug().Err(err).Str("op", op).Str("state", c.cb.State().String()).Msg("gmail call failed")
		}
		return wrapError(op, err)
	}
	return nil
}

// tripsBreaker reports whether err indicates a server-side problem.
func tripsBreaker(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	var retrieveErr *oauth2.RetrieveError
	return !errors.As(err, &retrieveErr)
}

// wrapError turns credential failures into AuthError and annotates the
// rest with the operation name.
func wrapError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return &provider.AuthError{Provider: providerName, Message: "token rejected", Err: err}
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &provider.AuthError{Provider: providerName, Message: "token refresh failed", Err: err}
	}
	return fmt.Errorf("gmail %s: %w", op, err)
}

// labelKey normalizes a label name for cache lookups.
func labelKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
