package testutil

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	gosync "sync"

	"github.com/binaryash/gmail-rulemaster/internal/provider"
)

// ModifyCall records one ModifyLabels invocation.
type ModifyCall struct {
	ID  string
	Mod provider.LabelModification
}

// FakeProvider is an in-memory provider.MailProvider. Messages are listed
// in insertion order; errors can be injected per call type or per id.
type FakeProvider struct {
	mu gosync.Mutex

	order    []string
	messages map[string]*provider.RawMessage
	labels   map[string]string // lower-cased name -> id
	nextID   int

	// PageSize caps the ids returned per ListMessageIDs call. Zero means
	// maxResults alone decides.
	PageSize int

	ListErr    error
	FetchErrs  map[string]error
	ModifyErrs map[string]error
	ResolveErr error

	ListCalls    int
	FetchCalls   []string
	ModifyCalls  []ModifyCall
	ResolveCalls []string
}

var _ provider.MailProvider = (*FakeProvider)(nil)

// NewFakeProvider creates an empty fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		messages:   make(map[string]*provider.RawMessage),
		labels:     make(map[string]string),
		FetchErrs:  make(map[string]error),
		ModifyErrs: make(map[string]error),
	}
}

// AddMessage appends msg to the mailbox.
func (f *FakeProvider) AddMessage(msg *provider.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[msg.ID]; !ok {
		f.order = append(f.order, msg.ID)
	}
	f.messages[msg.ID] = msg
}

// AddLabel registers an existing user label.
func (f *FakeProvider) AddLabel(name, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[strings.ToLower(name)] = id
}

// Message returns the current state of a message.
func (f *FakeProvider) Message(id string) *provider.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[id]
}

// Modifies returns a copy of the recorded ModifyLabels calls.
func (f *FakeProvider) Modifies() []ModifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ModifyCall(nil), f.ModifyCalls...)
}

// Resolves returns a copy of the recorded ResolveOrCreateLabel calls.
func (f *FakeProvider) Resolves() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ResolveCalls...)
}

// ListMessageIDs pages through messages in insertion order. The page
// token is the offset of the next id.
func (f *FakeProvider) ListMessageIDs(ctx context.Context, maxResults int, _ string, pageToken string) (*provider.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++

	if f.ListErr != nil {
		return nil, f.ListErr
	}

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		start = n
	}

	size := maxResults
	if f.PageSize > 0 && (size <= 0 || f.PageSize < size) {
		size = f.PageSize
	}

	end := len(f.order)
	if size > 0 && start+size < end {
		end = start + size
	}
	if start > end {
		start = end
	}

	page := &provider.ListPage{IDs: append([]string(nil), f.order[start:end]...)}
	if end < len(f.order) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetMessageDetail returns a copy of the stored message.
func (f *FakeProvider) GetMessageDetail(ctx context.Context, id string) (*provider.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls = append(f.FetchCalls, id)

	if err := f.FetchErrs[id]; err != nil {
		return nil, err
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}

	cp := *msg
	cp.LabelIDs = append([]string(nil), msg.LabelIDs...)
	return &cp, nil
}

// ModifyLabels records the call and applies it to the stored message.
func (f *FakeProvider) ModifyLabels(ctx context.Context, id string, mod provider.LabelModification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ModifyCalls = append(f.ModifyCalls, ModifyCall{ID: id, Mod: mod})

	if err := f.ModifyErrs[id]; err != nil {
		return err
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil
	}

	remove := make(map[string]bool, len(mod.Remove))
	for _, l := range mod.Remove {
		remove[l] = true
	}
	var labels []string
	for _, l := range msg.LabelIDs {
		if !remove[l] {
			labels = append(labels, l)
		}
	}
	for _, l := range mod.Add {
		if !contains(labels, l) {
			labels = append(labels, l)
		}
	}
	msg.LabelIDs = labels
	return nil
}

// ResolveOrCreateLabel matches names case-insensitively and creates
// "Label_<n>" ids for new names.
func (f *FakeProvider) ResolveOrCreateLabel(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResolveCalls = append(f.ResolveCalls, name)

	if f.ResolveErr != nil {
		return "", f.ResolveErr
	}

	key := strings.ToLower(name)
	if id, ok := f.labels[key]; ok {
		return id, nil
	}
	f.nextID++
	id := fmt.Sprintf("Label_%d", f.nextID)
	f.labels[key] = id
	return id, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
