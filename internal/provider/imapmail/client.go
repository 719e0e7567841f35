// Package imapmail implements provider.MailProvider over IMAP.
//
// IMAP has no labels, so the provider maps them onto IMAP concepts: the
// UNREAD label is the absence of the \Seen flag, and a message's location
// is the mailbox it lives in. Message ids have the form "<mailbox>:<uid>".
package imapmail

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/binaryash/gmail-rulemaster/internal/provider"
)

const providerName = "imap"

// Config holds the IMAP connection settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool

	// Mailbox is listed by ListMessageIDs. Defaults to INBOX.
	Mailbox string
}

// dialer opens an authenticated session. It is a field on Provider so
// tests can substitute it.
type dialer func(ctx context.Context) (*imapclient.Client, error)

// connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout/Close on the returned client.
func (c Config) connect(ctx context.Context) (*imapclient.Client, error) {
	addr := c.Host + ":" + c.Port

	var client *imapclient.Client
	var err error

	if c.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.Username, c.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &provider.AuthError{
			Provider: providerName,
			Message:  fmt.Sprintf("authentication failed for %s", c.Username),
			Err:      err,
		}
	}

	return client, nil
}

// session runs fn on a fresh authenticated connection and logs out
// afterwards.
func (p *Provider) session(ctx context.Context, fn func(*imapclient.Client) error) error {
	client, err := p.dial(ctx)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer func() {
		if stop() {
			_ = client.Logout().Wait()
		}
	}()

	if err := fn(client); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return nil
}
