package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const unreadLabel = "UNREAD"

// Gmail implements Mailbox on the Gmail REST API.
type Gmail struct {
	service   *gmail.Service
	userEmail string
	pageSize  int64
	log       logrus.FieldLogger
}

// NewGmail creates a Gmail mailbox authenticated by ts.
func NewGmail(ctx context.Context, ts oauth2.TokenSource, userEmail string, pageSize int64, log logrus.FieldLogger) (*Gmail, error) {
	return NewGmailWithOptions(ctx, userEmail, pageSize, log, option.WithTokenSource(ts))
}

// NewGmailWithOptions creates a Gmail mailbox with explicit client options.
func NewGmailWithOptions(ctx context.Context, userEmail string, pageSize int64, log logrus.FieldLogger, opts ...option.ClientOption) (*Gmail, error) {
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	if userEmail == "" {
		userEmail = "me"
	}
	return &Gmail{
		service:   service,
		userEmail: userEmail,
		pageSize:  pageSize,
		log:       log,
	}, nil
}

// ListMessagesSince implements Mailbox.
func (g *Gmail) ListMessagesSince(ctx context.Context, since time.Time, pageToken string) (Page, error) {
	call := g.service.Users.Messages.List(g.userEmail).
		Q(fmt.Sprintf("after:%d", since.Unix())).
		Context(ctx)
	if g.pageSize > 0 {
		call = call.MaxResults(g.pageSize)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return Page{}, fmt.Errorf("failed to list messages: %w", err)
	}

	page := Page{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// GetMessageMetadata implements Mailbox.
func (g *Gmail) GetMessageMetadata(ctx context.Context, id string) (*Message, error) {
	msg, err := g.service.Users.Messages.Get(g.userEmail, id).
		Format("metadata").
		MetadataHeaders("From", "Subject").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapGmailError(err, "failed to get message %s", id)
	}

	out := &Message{
		ID:       msg.Id,
		Snippet:  msg.Snippet,
		Received: time.UnixMilli(msg.InternalDate),
		IsRead:   true,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				out.Sender = h.Value
			case "Subject":
				out.Subject = h.Value
			}
		}
	}
	for _, l := range msg.LabelIds {
		if l == unreadLabel {
			out.IsRead = false
			break
		}
	}
	return out, nil
}

// SetUnread implements Mailbox.
func (g *Gmail) SetUnread(ctx context.Context, id string, unread bool) error {
	req := &gmail.ModifyMessageRequest{}
	if unread {
		req.AddLabelIds = []string{unreadLabel}
	} else {
		req.RemoveLabelIds = []string{unreadLabel}
	}
	if _, err := g.service.Users.Messages.Modify(g.userEmail, id, req).Context(ctx).Do(); err != nil {
		return wrapGmailError(err, "failed to modify message %s", id)
	}
	return nil
}

// ListLabels implements Mailbox.
func (g *Gmail) ListLabels(ctx context.Context) ([]Label, error) {
	resp, err := g.service.Users.Labels.List(g.userEmail).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	labels := make([]Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// CreateLabel implements Mailbox.
func (g *Gmail) CreateLabel(ctx context.Context, name string) (*Label, error) {
	created, err := g.service.Users.Labels.Create(g.userEmail, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create label %q: %w", name, err)
	}
	g.log.WithField("label", name).Info("Created label")
	return &Label{ID: created.Id, Name: created.Name}, nil
}

// AddLabel implements Mailbox.
func (g *Gmail) AddLabel(ctx context.Context, id, labelID string) error {
	req := &gmail.ModifyMessageRequest{AddLabelIds: []string{labelID}}
	if _, err := g.service.Users.Messages.Modify(g.userEmail, id, req).Context(ctx).Do(); err != nil {
		return wrapGmailError(err, "failed to label message %s", id)
	}
	return nil
}

func wrapGmailError(err error, format string, args ...interface{}) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		err = fmt.Errorf("%w: %v", ErrMessageNotFound, err)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
