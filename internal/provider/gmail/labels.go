package gmail

import (
	"context"
	"errors"
	"net/http"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/binaryash/gmail-rulemaster/internal/provider"
)

// cachedLabel remembers the name a label was resolved under so that a
// stale entry can be re-resolved with its original spelling.
type cachedLabel struct {
	id   string
	name string
}

// ResolveOrCreateLabel returns the id of the label whose name matches
// name case-insensitively, creating it when none exists. System locations
// are returned as-is. Resolved ids are cached until a modify rejects them.
func (c *Client) ResolveOrCreateLabel(ctx context.Context, name string) (string, error) {
	if provider.IsSystemLocation(name) {
		return name, nil
	}

	c.labelMu.Lock()
	defer c.labelMu.Unlock()

	key := labelKey(name)
	if l, ok := c.labels[key]; ok {
		return l.id, nil
	}

	var resp *gmailapi.ListLabelsResponse
	err := c.execute("list labels", func() error {
		var err error
		resp, err = c.svc.Users.Labels.List(c.user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	for _, l := range resp.Labels {
		c.labels[labelKey(l.Name)] = cachedLabel{id: l.Id, name: l.Name}
	}
	if l, ok := c.labels[key]; ok {
		return l.id, nil
	}

	label := &gmailapi.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}
	var created *gmailapi.Label
	err = c.execute("create label", func() error {
		var err error
		created, err = c.svc.Users.Labels.Create(c.user, label).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}

	c.labels[key] = cachedLabel{id: created.Id, name: name}
	c.log.Info().Str("label", name).Str("label_id", created.Id).Msg("created label")
	return created.Id, nil
}

// forgetLabels drops every cache entry whose id is in ids and returns the
// names they were resolved under, keyed by id.
func (c *Client) forgetLabels(ids []string) map[string]string {
	c.labelMu.Lock()
	defer c.labelMu.Unlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	names := make(map[string]string)
	for key, l := range c.labels {
		if want[l.id] {
			names[l.id] = l.name
			delete(c.labels, key)
		}
	}
	return names
}

// isStaleLabelError reports whether a modify failure may be caused by a
// label that was deleted or renamed on the server.
func isStaleLabelError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusNotFound
}
