package model

import "time"

// Email is the normalized local copy of a message observed on the provider.
type Email struct {
	// ID is the provider-assigned message identifier. It is stable across
	// re-ingestion and is the primary key of the email store.
	ID string `json:"id"`

	// ThreadID groups messages belonging to the same conversation.
	ThreadID string `json:"thread_id"`

	// Subject is the raw Subject header.
	Subject string `json:"subject"`

	// Sender is the raw From header (e.g. "Jane <jane@example.com>").
	Sender string `json:"sender"`

	// Recipient is the raw To header.
	Recipient string `json:"recipient"`

	// ReceivedDateRaw is the provider's original Date header value.
	ReceivedDateRaw string `json:"received_date_raw"`

	// ParsedDate is the normalized timestamp, nil when the Date header
	// could not be parsed.
	ParsedDate *time.Time `json:"parsed_date,omitempty"`

	// Snippet is the provider's short preview of the body.
	Snippet string `json:"snippet"`

	// Body is the best-effort plain text body, or the raw HTML markup when
	// no plain text part exists.
	Body string `json:"body"`

	// IsRead is false while the message carries the unread marker.
	IsRead bool `json:"is_read"`

	// Labels holds the provider label identifiers applied to the message.
	Labels []string `json:"labels"`
}

// HasLabel reports whether the email carries the given label identifier.
func (e Email) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}
