// Package provider defines the mail provider contract used by the sync
// and processing pipelines, together with the conversion of provider
// messages into model.Email records.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Well-known label identifiers. Providers without native labels map these
// onto their own concepts (flags, mailboxes).
const (
	LabelUnread = "UNREAD"
	LabelInbox  = "INBOX"
	LabelTrash  = "TRASH"
	LabelSpam   = "SPAM"
)

// IsSystemLocation reports whether name is a built-in location that can be
// used as a label id directly, without resolution.
func IsSystemLocation(name string) bool {
	switch name {
	case LabelInbox, LabelTrash, LabelSpam:
		return true
	}
	return false
}

// AuthError indicates that authentication has failed or expired for a
// provider. It aborts the current run rather than a single item.
type AuthError struct {
	Provider string
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ListPage is one page of message identifiers.
type ListPage struct {
	IDs           []string
	NextPageToken string
}

// Header is a single message header. Names keep their original case.
type Header struct {
	Name  string
	Value string
}

// Part is a node in a message's MIME tree. Body holds the decoded bytes of
// leaf parts.
type Part struct {
	MimeType string
	Body     []byte
	Parts    []Part
}

// RawMessage is a message as returned by the provider before
// normalization.
type RawMessage struct {
	ID       string
	ThreadID string
	Snippet  string
	LabelIDs []string
	Headers  []Header
	Payload  *Part
}

// LabelModification lists label ids to add and remove in one call.
type LabelModification struct {
	Add    []string
	Remove []string
}

// MailProvider is the remote mailbox the engine reads from and mutates.
type MailProvider interface {
	// ListMessageIDs returns one page of message ids matching query.
	// An empty NextPageToken means there are no more pages.
	ListMessageIDs(ctx context.Context, maxResults int, query, pageToken string) (*ListPage, error)

	// GetMessageDetail fetches the full message with the given id.
	GetMessageDetail(ctx context.Context, id string) (*RawMessage, error)

	// ModifyLabels applies mod to the message in a single call.
	ModifyLabels(ctx context.Context, id string, mod LabelModification) error

	// ResolveOrCreateLabel returns the id of the label called name,
	// matching case-insensitively, creating it when none exists.
	ResolveOrCreateLabel(ctx context.Context, name string) (string, error)
}
