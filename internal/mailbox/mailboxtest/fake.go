// Package mailboxtest provides an in-memory Mailbox for tests.
package mailboxtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"rulemate/internal/mailbox"
)

// Operation names used for call counting and failure injection.
const (
	OpListMessages = "list_messages"
	OpGetMetadata  = "get_metadata"
	OpSetUnread    = "set_unread"
	OpListLabels   = "list_labels"
	OpCreateLabel  = "create_label"
	OpAddLabel     = "add_label"
)

// Fake is a Mailbox held in memory. The zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	PageSize int

	messages      map[string]*mailbox.Message
	labels        []mailbox.Label
	messageLabels map[string][]string
	calls         map[string]int
	failures      map[string][]error
	sinces        []time.Time
	nextLabelID   int
}

var _ mailbox.Mailbox = (*Fake)(nil)

// New creates an empty fake with the given page size.
func New(pageSize int) *Fake {
	return &Fake{
		PageSize:      pageSize,
		messages:      make(map[string]*mailbox.Message),
		messageLabels: make(map[string][]string),
		calls:         make(map[string]int),
		failures:      make(map[string][]error),
	}
}

// AddMessage stores msg in the fake mailbox.
func (f *Fake) AddMessage(msg mailbox.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := msg
	f.messages[msg.ID] = &m
}

// RemoveMessage deletes a message.
func (f *Fake) RemoveMessage(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, id)
}

// Message returns a copy of the stored message.
func (f *Fake) Message(id string) (mailbox.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return mailbox.Message{}, false
	}
	return *m, true
}

// MessageLabels returns the label ids attached to a message.
func (f *Fake) MessageLabels(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messageLabels[id]...)
}

// Labels returns every label.
func (f *Fake) Labels() []mailbox.Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailbox.Label(nil), f.labels...)
}

// Fail makes the next len(errs) calls of op return errs in order.
func (f *Fake) Fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Sinces returns the lower bounds passed to ListMessagesSince.
func (f *Fake) Sinces() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.sinces...)
}

// call records an invocation and pops an injected failure. f.mu must be held.
func (f *Fake) call(op string) error {
	f.calls[op]++
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

// ListMessagesSince implements mailbox.Mailbox.
func (f *Fake) ListMessagesSince(ctx context.Context, since time.Time, pageToken string) (mailbox.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(OpListMessages); err != nil {
		return mailbox.Page{}, err
	}
	f.sinces = append(f.sinces, since)

	var ids []string
	for id, m := range f.messages {
		if m.Received.After(since) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return mailbox.Page{}, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}
	if offset > len(ids) {
		offset = len(ids)
	}
	end := len(ids)
	if f.PageSize > 0 && offset+f.PageSize < end {
		end = offset + f.PageSize
	}

	page := mailbox.Page{IDs: ids[offset:end]}
	if end < len(ids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetMessageMetadata implements mailbox.Mailbox.
func (f *Fake) GetMessageMetadata(ctx context.Context, id string) (*mailbox.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(OpGetMetadata); err != nil {
		return nil, err
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, mailbox.ErrMessageNotFound)
	}
	out := *m
	return &out, nil
}

// SetUnread implements mailbox.Mailbox.
func (f *Fake) SetUnread(ctx context.Context, id string, unread bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(OpSetUnread); err != nil {
		return err
	}
	m, ok := f.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, mailbox.ErrMessageNotFound)
	}
	m.IsRead = !unread
	return nil
}

// ListLabels implements mailbox.Mailbox.
func (f *Fake) ListLabels(ctx context.Context) ([]mailbox.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(OpListLabels); err != nil {
		return nil, err
	}
	return append([]mailbox.Label(nil), f.labels...), nil
}

// CreateLabel implements mailbox.Mailbox.
func (f *Fake) CreateLabel(ctx context.Context, name string) (*mailbox.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(OpCreateLabel); err != nil {
		return nil, err
	}
	f.nextLabelID++
	l := mailbox.Label{ID: fmt.Sprintf("Label_%d", f.nextLabelID), Name: name}
	f.labels = append(f.labels, l)
	return &l, nil
}

// AddLabel implements mailbox.Mailbox.
func (f *Fake) AddLabel(ctx context.Context, id, labelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.call(OpAddLabel); err != nil {
		return err
	}
	if _, ok := f.messages[id]; !ok {
		return fmt.Errorf("message %s: %w", id, mailbox.ErrMessageNotFound)
	}
	f.messageLabels[id] = append(f.messageLabels[id], labelID)
	return nil
}
