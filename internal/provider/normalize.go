package provider

import (
	"net/mail"
	"strings"
	"time"

	"github.com/binaryash/gmail-rulemaster/internal/model"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// dateLayouts are tried in order when net/mail cannot parse a Date
// header. Real-world mailers emit plenty of near-RFC 5322 variants.
var dateLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// Normalize converts a provider message into an Email. Missing headers
// become empty strings, the body prefers text/plain over text/html, and
// an unparseable Date header leaves ParsedDate nil.
func Normalize(raw *RawMessage) model.Email {
	email := model.Email{
		ID:       raw.ID,
		ThreadID: raw.ThreadID,
		Snippet:  raw.Snippet,
		Labels:   append([]string(nil), raw.LabelIDs...),
	}

	for _, h := range raw.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			email.Subject = h.Value
		case "from":
			email.Sender = h.Value
		case "to":
			email.Recipient = h.Value
		case "date":
			email.ReceivedDateRaw = h.Value
		}
	}

	email.IsRead = !email.HasLabel(LabelUnread)

	if raw.Payload != nil {
		email.Body = ExtractBody(*raw.Payload)
	}

	if t, ok := ParseDate(email.ReceivedDateRaw); ok {
		email.ParsedDate = &t
	}

	return email
}

// ExtractBody returns the first text/plain leaf in depth-first order, or
// the first text/html leaf when no plain text exists. HTML is returned as
// raw markup. Invalid UTF-8 is replaced.
func ExtractBody(root Part) string {
	var plain, html []byte
	var walk func(p Part)
	walk = func(p Part) {
		if plain != nil {
			return
		}
		mt := strings.ToLower(strings.TrimSpace(p.MimeType))
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		switch {
		case mt == mimeTextPlain && len(p.Body) > 0:
			plain = p.Body
			return
		case mt == mimeTextHTML && len(p.Body) > 0 && html == nil:
			html = p.Body
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(root)

	switch {
	case plain != nil:
		return strings.ToValidUTF8(string(plain), "\uFFFD")
	case html != nil:
		return strings.ToValidUTF8(string(html), "\uFFFD")
	default:
		return ""
	}
}

// ParseDate parses a Date header value. The returned time keeps the
// header's own offset.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	if t, err := mail.ParseDate(value); err == nil {
		return t, true
	}

	candidates := []string{value}
	if i := strings.LastIndex(value, " ("); i > 0 && strings.HasSuffix(value, ")") {
		candidates = append(candidates, value[:i])
	}

	for _, v := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}

	return time.Time{}, false
}
