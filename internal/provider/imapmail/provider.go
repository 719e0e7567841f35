package imapmail

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/binaryash/gmail-rulemaster/internal/provider"
)

// systemMailboxes maps the well-known location labels onto mailbox names.
var systemMailboxes = map[string]string{
	provider.LabelInbox: "INBOX",
	provider.LabelTrash: "Trash",
	provider.LabelSpam:  "Junk",
}

// Provider implements provider.MailProvider against an IMAP server. Each
// call opens its own session.
type Provider struct {
	mailbox string
	dial    dialer
	log     zerolog.Logger
}

var _ provider.MailProvider = (*Provider)(nil)

// New creates an IMAP provider.
func New(cfg Config, log zerolog.Logger) *Provider {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Provider{
		mailbox: cfg.Mailbox,
		dial:    cfg.connect,
		log:     log.With().Str("component", "imap").Logger(),
	}
}

// ListMessageIDs returns message ids from the configured mailbox, newest
// UID first. The Gmail-style query is not applied. The page token is the
// offset into the UID list.
func (p *Provider) ListMessageIDs(ctx context.Context, maxResults int, _ string, pageToken string) (*provider.ListPage, error) {
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}

	var uids []imap.UID
	err := p.session(ctx, func(c *imapclient.Client) error {
		if _, err := c.Select(p.mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", p.mailbox, err)
		}
		data, err := c.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		if err != nil {
			return fmt.Errorf("searching %s: %w", p.mailbox, err)
		}
		uids = data.AllUIDs()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return pageUIDs(p.mailbox, uids, offset, maxResults), nil
}

// GetMessageDetail fetches flags and the full RFC 822 message without
// marking it seen.
func (p *Provider) GetMessageDetail(ctx context.Context, id string) (*provider.RawMessage, error) {
	mailbox, uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var (
		flags []imap.Flag
		raw   []byte
	)
	err = p.session(ctx, func(c *imapclient.Client) error {
		if _, err := c.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", mailbox, err)
		}

		section := &imap.FetchItemBodySection{Peek: true}
		fetchCmd := c.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
			UID:         true,
			Flags:       true,
			BodySection: []*imap.FetchItemBodySection{section},
		})
		defer fetchCmd.Close()

		msg := fetchCmd.Next()
		if msg == nil {
			return fmt.Errorf("message UID %d not found in %s", uid, mailbox)
		}
		buf, err := msg.Collect()
		if err != nil {
			return fmt.Errorf("collecting message data: %w", err)
		}
		flags = buf.Flags
		raw = buf.FindBodySection(section)

		return fetchCmd.Close()
	})
	if err != nil {
		return nil, err
	}

	rm, err := ParseMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing message %s: %w", id, err)
	}
	rm.ID = id
	rm.LabelIDs = labelsFor(mailbox, flags)
	return rm, nil
}

// ModifyLabels translates a label change into flag updates and a move or
// copy, all in one session. Removing UNREAD sets \Seen; adding it clears
// \Seen. Adding a location while removing INBOX moves the message;
// adding one without removing INBOX copies it.
func (p *Provider) ModifyLabels(ctx context.Context, id string, mod provider.LabelModification) error {
	mailbox, uid, err := parseID(id)
	if err != nil {
		return err
	}
	plan := planModification(mod)
	if plan.empty() {
		return nil
	}

	return p.session(ctx, func(c *imapclient.Client) error {
		if _, err := c.Select(mailbox, nil).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", mailbox, err)
		}
		set := imap.UIDSetNum(uid)

		if plan.seen != nil {
			op := imap.StoreFlagsAdd
			if !*plan.seen {
				op = imap.StoreFlagsDel
			}
			storeCmd := c.Store(set, &imap.StoreFlags{
				Op:     op,
				Silent: true,
				Flags:  []imap.Flag{imap.FlagSeen},
			}, nil)
			if err := storeCmd.Close(); err != nil {
				return fmt.Errorf("storing flags on %s: %w", id, err)
			}
		}

		for _, target := range plan.copyTo {
			if _, err := c.Copy(set, target).Wait(); err != nil {
				return fmt.Errorf("copying %s to %s: %w", id, target, err)
			}
		}

		if plan.moveTo != "" && plan.moveTo != mailbox {
			if _, err := c.Move(set, plan.moveTo).Wait(); err != nil {
				return fmt.Errorf("moving %s to %s: %w", id, plan.moveTo, err)
			}
		}
		return nil
	})
}

// ResolveOrCreateLabel returns the name of an existing mailbox matching
// name case-insensitively, creating the mailbox when none matches.
func (p *Provider) ResolveOrCreateLabel(ctx context.Context, name string) (string, error) {
	if mbox, ok := systemMailboxes[name]; ok {
		return mbox, nil
	}

	var resolved string
	err := p.session(ctx, func(c *imapclient.Client) error {
		boxes, err := c.List("", "*", nil).Collect()
		if err != nil {
			return fmt.Errorf("listing mailboxes: %w", err)
		}
		for _, b := range boxes {
			if strings.EqualFold(b.Mailbox, name) {
				resolved = b.Mailbox
				return nil
			}
		}

		if err := c.Create(name, nil).Wait(); err != nil {
			return fmt.Errorf("creating mailbox %q: %w", name, err)
		}
		p.log.Info().Str("mailbox", name).Msg("created mailbox")
		resolved = name
		return nil
	})
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// modPlan is the IMAP form of a LabelModification.
type modPlan struct {
	seen   *bool
	moveTo string
	copyTo []string
}

func (m modPlan) empty() bool {
	return m.seen == nil && m.moveTo == "" && len(m.copyTo) == 0
}

func planModification(mod provider.LabelModification) modPlan {
	var plan modPlan

	if slices.Contains(mod.Remove, provider.LabelUnread) {
		seen := true
		plan.seen = &seen
	}
	if slices.Contains(mod.Add, provider.LabelUnread) {
		seen := false
		plan.seen = &seen
	}

	leavesInbox := slices.Contains(mod.Remove, provider.LabelInbox)
	for _, l := range mod.Add {
		if l == provider.LabelUnread {
			continue
		}
		target := mailboxFor(l)
		if leavesInbox && plan.moveTo == "" {
			plan.moveTo = target
			continue
		}
		plan.copyTo = append(plan.copyTo, target)
	}
	return plan
}

// mailboxFor maps a label id onto a mailbox name.
func mailboxFor(label string) string {
	if mbox, ok := systemMailboxes[label]; ok {
		return mbox
	}
	return label
}

// labelsFor derives provider labels from a message's mailbox and flags.
func labelsFor(mailbox string, flags []imap.Flag) []string {
	label := mailbox
	for l, mbox := range systemMailboxes {
		if strings.EqualFold(mbox, mailbox) {
			label = l
			break
		}
	}

	labels := []string{label}
	if !slices.Contains(flags, imap.FlagSeen) {
		labels = append(labels, provider.LabelUnread)
	}
	return labels
}

// pageUIDs returns one page of ids, newest UID first.
func pageUIDs(mailbox string, uids []imap.UID, offset, limit int) *provider.ListPage {
	sorted := slices.Clone(uids)
	slices.SortFunc(sorted, func(a, b imap.UID) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})

	page := &provider.ListPage{}
	if offset >= len(sorted) {
		return page
	}
	end := len(sorted)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	for _, uid := range sorted[offset:end] {
		page.IDs = append(page.IDs, formatID(mailbox, uid))
	}
	if end < len(sorted) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page
}

func formatID(mailbox string, uid imap.UID) string {
	return mailbox + ":" + strconv.FormatUint(uint64(uid), 10)
}

var errInvalidID = errors.New("invalid IMAP message id")

// parseID splits "<mailbox>:<uid>". The mailbox may itself contain colons.
func parseID(id string) (string, imap.UID, error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("%w %q", errInvalidID, id)
	}
	uid, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil || uid == 0 {
		return "", 0, fmt.Errorf("%w %q", errInvalidID, id)
	}
	return id[:i], imap.UID(uid), nil
}
