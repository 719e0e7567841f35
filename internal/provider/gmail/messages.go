package gmail

import (
	"context"
	"encoding/base64"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/binaryash/gmail-rulemaster/internal/provider"
)

// maxPageSize is the largest page the messages.list endpoint accepts.
const maxPageSize = 500

// ListMessageIDs returns one page of message ids matching query.
func (c *Client) ListMessageIDs(ctx context.Context, maxResults int, query, pageToken string) (*provider.ListPage, error) {
	if maxResults <= 0 || maxResults > maxPageSize {
		maxResults = maxPageSize
	}

	call := c.svc.Users.Messages.List(c.user).MaxResults(int64(maxResults)).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	var resp *gmailapi.ListMessagesResponse
	err := c.execute("list messages", func() error {
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &provider.ListPage{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// GetMessageDetail fetches the full message with decoded part bodies.
func (c *Client) GetMessageDetail(ctx context.Context, id string) (*provider.RawMessage, error) {
	var msg *gmailapi.Message
	err := c.execute("get message", func() error {
		var err error
		msg, err = c.svc.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return convertMessage(msg), nil
}

// ModifyLabels adds and removes label ids in a single request. When the
// request is rejected and some added ids came from the label cache, those
// entries are dropped, re-resolved by name and the request is retried once.
func (c *Client) ModifyLabels(ctx context.Context, id string, mod provider.LabelModification) error {
	err := c.modify(ctx, id, mod)
	if err == nil || !isStaleLabelError(err) {
		return err
	}

	names := c.forgetLabels(mod.Add)
	if len(names) == 0 {
		return err
	}

	add := make([]string, len(mod.Add))
	for i, labelID := range mod.Add {
		add[i] = labelID
		name, ok := names[labelID]
		if !ok {
			continue
		}
		fresh, rerr := c.ResolveOrCreateLabel(ctx, name)
		if rerr != nil {
			return rerr
		}
		add[i] = fresh
	}

	c.log.Warn().Err(err).Str("message_id", id).Strs("labels", add).Msg("label ids were stale, retrying modify")
	return c.modify(ctx, id, provider.LabelModification{Add: add, Remove: mod.Remove})
}

func (c *Client) modify(ctx context.Context, id string, mod provider.LabelModification) error {
	req := &gmailapi.ModifyMessageRequest{
		AddLabelIds:    mod.Add,
		RemoveLabelIds: mod.Remove,
	}
	return c.execute("modify labels", func() error {
		_, err := c.svc.Users.Messages.Modify(c.user, id, req).Context(ctx).Do()
		return err
	})
}

func convertMessage(msg *gmailapi.Message) *provider.RawMessage {
	rm := &provider.RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			rm.Headers = append(rm.Headers, provider.Header{Name: h.Name, Value: h.Value})
		}
		root := convertPart(msg.Payload)
		rm.Payload = &root
	}
	return rm
}

func convertPart(p *gmailapi.MessagePart) provider.Part {
	part := provider.Part{MimeType: p.MimeType}
	if p.Body != nil && p.Body.Data != "" {
		part.Body = decodeBody(p.Body.Data)
	}
	for _, child := range p.Parts {
		if child == nil {
			continue
		}
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}

// decodeBody decodes URL-safe base64 with or without padding. Undecodable
// data yields nil.
func decodeBody(data string) []byte {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return b
	}
	return nil
}
