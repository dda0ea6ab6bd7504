// Package mailbox is the boundary to the remote mail account. The fetcher
// reads through it and the executor mutates through it.
package mailbox

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound is returned when the remote message no longer exists.
var ErrMessageNotFound = errors.New("message not found in mailbox")

// Message is the metadata the fetcher stores for one remote message.
type Message struct {
	ID       string
	Sender   string
	Subject  string
	Snippet  string
	Received time.Time
	IsRead   bool
}

// Label is a user-visible label (a folder on IMAP).
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Page is one page of message ids. NextPageToken is empty on the last page.
type Page struct {
	IDs           []string
	NextPageToken string
}

// Mailbox is implemented by every mail provider.
type Mailbox interface {
	// ListMessagesSince lists messages received after since. An empty
	// pageToken requests the first page.
	ListMessagesSince(ctx context.Context, since time.Time, pageToken string) (Page, error)
	GetMessageMetadata(ctx context.Context, id string) (*Message, error)
	SetUnread(ctx context.Context, id string, unread bool) error
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (*Label, error)
	AddLabel(ctx context.Context, id, labelID string) error
}
