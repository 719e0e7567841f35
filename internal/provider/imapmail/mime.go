package imapmail

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"github.com/binaryash/gmail-rulemaster/internal/provider"
)

// snippetLen caps the generated snippet, in runes.
const snippetLen = 200

// ParseMessage parses a raw RFC 822 message into headers and a MIME part
// tree with decoded bodies. The snippet is taken from the extracted body.
func ParseMessage(raw []byte) (*provider.RawMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	rm := &provider.RawMessage{}

	fields := entity.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		rm.Headers = append(rm.Headers, provider.Header{Name: fields.Key(), Value: value})
	}

	root, err := buildPart(entity)
	if err != nil {
		return nil, err
	}
	rm.Payload = &root
	rm.Snippet = snippet(provider.ExtractBody(root))

	return rm, nil
}

func buildPart(e *message.Entity) (provider.Part, error) {
	mediaType, _, _ := e.Header.ContentType()
	if mediaType == "" {
		mediaType = "text/plain"
	}
	part := provider.Part{MimeType: mediaType}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return part, fmt.Errorf("reading %s part: %w", mediaType, err)
			}
			if child == nil {
				break
			}
			p, err := buildPart(child)
			if err != nil {
				return part, err
			}
			part.Parts = append(part.Parts, p)
		}
		return part, nil
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return part, fmt.Errorf("reading %s body: %w", mediaType, err)
	}
	part.Body = body
	return part, nil
}

// snippet collapses whitespace and truncates to snippetLen runes.
func snippet(body string) string {
	s := strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(s) <= snippetLen {
		return s
	}
	r := []rune(s)
	return string(r[:snippetLen])
}
