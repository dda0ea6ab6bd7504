package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
)

const snippetLength = 200

// ErrIMAPClosed is returned after Close, or when a dropped session cannot be
// re-established because no dialer is configured.
var ErrIMAPClosed = errors.New("IMAP connection closed")

// IMAPConfig holds the connection settings of an IMAP account.
type IMAPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Mailbox  string
	PageSize int
}

// IMAP implements Mailbox over IMAP. Message ids are UIDs in the configured
// mailbox and labels are mailboxes. The underlying client is not safe for
// concurrent commands, so every call holds mu.
type IMAP struct {
	mu       sync.Mutex
	client   *client.Client
	dial     func() (*client.Client, error)
	closed   bool
	mailbox  string
	pageSize int
	log      logrus.FieldLogger
}

// NewIMAP dials the server over TLS and logs in.
func NewIMAP(cfg IMAPConfig, log logrus.FieldLogger) (*IMAP, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dial := func() (*client.Client, error) {
		c, err := client.DialTLS(addr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
		}
		if err := c.Login(cfg.User, cfg.Password); err != nil {
			c.Logout()
			return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
		}
		return c, nil
	}
	return NewIMAPWithDialer(dial, cfg.Mailbox, cfg.PageSize, log)
}

// NewIMAPWithDialer connects with dial, which must return a logged-in
// client. dial is called again whenever the session has been dropped.
func NewIMAPWithDialer(dial func() (*client.Client, error), mailboxName string, pageSize int, log logrus.FieldLogger) (*IMAP, error) {
	c, err := dial()
	if err != nil {
		return nil, err
	}
	m := NewIMAPWithClient(c, mailboxName, pageSize, log)
	m.dial = dial
	return m, nil
}

// NewIMAPWithClient wraps an authenticated client. The session is not
// re-established if it drops.
func NewIMAPWithClient(c *client.Client, mailboxName string, pageSize int, log logrus.FieldLogger) *IMAP {
	if mailboxName == "" {
		mailboxName = "INBOX"
	}
	return &IMAP{client: c, mailbox: mailboxName, pageSize: pageSize, log: log}
}

// Close logs out.
func (m *IMAP) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.client.Logout()
}

// connect re-dials when the server has closed the session. Callers hold mu.
func (m *IMAP) connect() error {
	if m.closed {
		return ErrIMAPClosed
	}
	select {
	case <-m.client.LoggedOut():
	default:
		return nil
	}
	if m.dial == nil {
		return fmt.Errorf("IMAP session lost: %w", ErrIMAPClosed)
	}

	m.log.Warn("IMAP session lost, reconnecting")
	c, err := m.dial()
	if err != nil {
		return fmt.Errorf("failed to reconnect to IMAP server: %w", err)
	}
	m.client = c
	m.log.Info("Reconnected to IMAP server")
	return nil
}

func (m *IMAP) selectMailbox() error {
	if err := m.connect(); err != nil {
		return err
	}
	if _, err := m.client.Select(m.mailbox, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", m.mailbox, err)
	}
	return nil
}

func parseUID(id string) (*imap.SeqSet, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	return seqset, nil
}

// ListMessagesSince implements Mailbox. SINCE has day granularity on IMAP, so
// results may include messages from earlier on the same day. The page token
// is an offset into the ascending UID list.
func (m *IMAP) ListMessagesSince(ctx context.Context, since time.Time, pageToken string) (Page, error) {
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectMailbox(); err != nil {
		return Page{}, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return Page{}, fmt.Errorf("failed to search messages: %w", err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	if offset > len(uids) {
		offset = len(uids)
	}
	end := len(uids)
	if m.pageSize > 0 && offset+m.pageSize < end {
		end = offset + m.pageSize
	}

	page := Page{IDs: make([]string, 0, end-offset)}
	for _, uid := range uids[offset:end] {
		page.IDs = append(page.IDs, strconv.FormatUint(uint64(uid), 10))
	}
	if end < len(uids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetMessageMetadata implements Mailbox. The body is fetched with PEEK so
// reading does not set \Seen.
func (m *IMAP) GetMessageMetadata(ctx context.Context, id string) (*Message, error) {
	seqset, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectMailbox(); err != nil {
		return nil, err
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqset, items, messages)
	}()

	var fetched *imap.Message
	for msg := range messages {
		if fetched == nil {
			fetched = msg
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	if fetched == nil {
		return nil, fmt.Errorf("message %s: %w", id, ErrMessageNotFound)
	}

	out := &Message{ID: id, Received: fetched.InternalDate}
	for _, flag := range fetched.Flags {
		if flag == imap.SeenFlag {
			out.IsRead = true
			break
		}
	}

	if r := fetched.GetBody(section); r != nil {
		if err := parseIMAPBody(r, out); err != nil {
			m.log.WithError(err).WithField("email_id", id).Warn("Failed to parse message body")
		}
	}
	return out, nil
}

func parseIMAPBody(r io.Reader, out *Message) error {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return fmt.Errorf("failed to read message: %w", err)
	}

	h := mail.Header{Header: entity.Header}
	out.Sender = h.Get("From")
	if subject, err := h.Subject(); err == nil {
		out.Subject = subject
	} else {
		out.Subject = h.Get("Subject")
	}
	if out.Received.IsZero() {
		if date, err := h.Date(); err == nil {
			out.Received = date
		}
	}

	text, err := firstTextPart(entity)
	if err != nil {
		return err
	}
	out.Snippet = snippet(text)
	return nil
}

func firstTextPart(entity *message.Entity) (string, error) {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return "", nil
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return "", fmt.Errorf("failed to read part: %w", err)
			}
			text, err := firstTextPart(p)
			if err != nil {
				return "", err
			}
			if text != "" {
				return text, nil
			}
		}
	}

	contentType, _, _ := entity.Header.ContentType()
	if contentType != "" && !strings.HasPrefix(contentType, "text/plain") {
		return "", nil
	}
	content, err := io.ReadAll(io.LimitReader(entity.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read message body: %w", err)
	}
	return string(content), nil
}

func snippet(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	runes := []rune(s)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength])
	}
	return s
}

// SetUnread implements Mailbox by toggling \Seen.
func (m *IMAP) SetUnread(ctx context.Context, id string, unread bool) error {
	seqset, err := parseUID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectMailbox(); err != nil {
		return err
	}

	var op imap.FlagsOp = imap.AddFlags
	if unread {
		op = imap.RemoveFlags
	}
	item := imap.FormatFlagsOp(op, true)
	if err := m.client.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to update flags of message %s: %w", id, err)
	}
	return nil
}

// ListLabels implements Mailbox. Every mailbox is a label whose id is its
// name.
func (m *IMAP) ListLabels(ctx context.Context) ([]Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connect(); err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- m.client.List("", "*", mailboxes)
	}()

	var labels []Label
	for mb := range mailboxes {
		labels = append(labels, Label{ID: mb.Name, Name: mb.Name})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	return labels, nil
}

// CreateLabel implements Mailbox.
func (m *IMAP) CreateLabel(ctx context.Context, name string) (*Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connect(); err != nil {
		return nil, err
	}

	if err := m.client.Create(name); err != nil {
		return nil, fmt.Errorf("failed to create mailbox %q: %w", name, err)
	}
	m.log.WithField("label", name).Info("Created mailbox")
	return &Label{ID: name, Name: name}, nil
}

// AddLabel implements Mailbox by copying the message into the mailbox.
func (m *IMAP) AddLabel(ctx context.Context, id, labelID string) error {
	seqset, err := parseUID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectMailbox(); err != nil {
		return err
	}
	if err := m.client.UidCopy(seqset, labelID); err != nil {
		return fmt.Errorf("failed to copy message %s to %s: %w", id, labelID, err)
	}
	return nil
}
