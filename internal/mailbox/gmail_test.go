package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

type gmailStub struct {
	mu       sync.Mutex
	queries  []string
	modifies []gmail.ModifyMessageRequest
	created  []string
}

func (s *gmailStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	const prefix = "/gmail/v1/users/me/"
	path := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case path == "messages" && r.Method == http.MethodGet:
		s.queries = append(s.queries, r.URL.RawQuery)
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]interface{}{
				"messages":      []map[string]string{{"id": "m1"}, {"id": "m2"}},
				"nextPageToken": "p2",
			})
			return
		}
		writeJSON(w, map[string]interface{}{"messages": []map[string]string{{"id": "m3"}}})

	case path == "messages/m1" && r.Method == http.MethodGet:
		writeJSON(w, map[string]interface{}{
			"id":           "m1",
			"snippet":      "Amount due",
			"internalDate": "1700000000000",
			"labelIds":     []string{"INBOX", "UNREAD"},
			"payload": map[string]interface{}{
				"headers": []map[string]string{
					{"name": "From", "value": "Billing <billing@acme.com>"},
					{"name": "Subject", "value": "Final Invoice"},
				},
			},
		})

	case path == "messages/m1/modify" && r.Method == http.MethodPost:
		var req gmail.ModifyMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.modifies = append(s.modifies, req)
		writeJSON(w, map[string]interface{}{"id": "m1"})

	case path == "labels" && r.Method == http.MethodGet:
		writeJSON(w, map[string]interface{}{
			"labels": []map[string]string{{"id": "INBOX", "name": "INBOX"}, {"id": "Label_1", "name": "Finance"}},
		})

	case path == "labels" && r.Method == http.MethodPost:
		var l gmail.Label
		_ = json.NewDecoder(r.Body).Decode(&l)
		s.created = append(s.created, l.Name)
		writeJSON(w, map[string]string{"id": "Label_2", "name": l.Name})

	default:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]interface{}{"error": map[string]interface{}{"code": 404, "message": "Requested entity was not found."}})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

func newTestGmail(t *testing.T) (*Gmail, *gmailStub) {
	t.Helper()
	stub := &gmailStub{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	log, _ := test.NewNullLogger()
	g, err := NewGmailWithOptions(context.Background(), "me", 2, log,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return g, stub
}

func TestGmailListMessagesSincePaginates(t *testing.T) {
	g, stub := newTestGmail(t)
	ctx := context.Background()
	since := time.Unix(1700000000, 0)

	page, err := g.ListMessagesSince(ctx, since, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, page.IDs)
	assert.Equal(t, "p2", page.NextPageToken)

	page, err = g.ListMessagesSince(ctx, since, page.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, page.IDs)
	assert.Empty(t, page.NextPageToken)

	require.Len(t, stub.queries, 2)
	assert.Contains(t, stub.queries[0], "q=after%3A1700000000")
	assert.Contains(t, stub.queries[0], "maxResults=2")
}

func TestGmailGetMessageMetadata(t *testing.T) {
	g, _ := newTestGmail(t)

	msg, err := g.GetMessageMetadata(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "Billing <billing@acme.com>", msg.Sender)
	assert.Equal(t, "Final Invoice", msg.Subject)
	assert.Equal(t, "Amount due", msg.Snippet)
	assert.False(t, msg.IsRead)
	assert.True(t, msg.Received.Equal(time.UnixMilli(1700000000000)))
}

func TestGmailGetMissingMessage(t *testing.T) {
	g, _ := newTestGmail(t)

	_, err := g.GetMessageMetadata(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMessageNotFound))
}

func TestGmailModifyCalls(t *testing.T) {
	g, stub := newTestGmail(t)
	ctx := context.Background()

	require.NoError(t, g.SetUnread(ctx, "m1", false))
	require.NoError(t, g.SetUnread(ctx, "m1", true))
	require.NoError(t, g.AddLabel(ctx, "m1", "Label_1"))

	require.Len(t, stub.modifies, 3)
	assert.Equal(t, []string{"UNREAD"}, stub.modifies[0].RemoveLabelIds)
	assert.Equal(t, []string{"UNREAD"}, stub.modifies[1].AddLabelIds)
	assert.Equal(t, []string{"Label_1"}, stub.modifies[2].AddLabelIds)
}

func TestGmailLabels(t *testing.T) {
	g, stub := newTestGmail(t)
	ctx := context.Background()

	labels, err := g.ListLabels(ctx)
	require.NoError(t, err)
	assert.Contains(t, labels, Label{ID: "Label_1", Name: "Finance"})

	created, err := g.CreateLabel(ctx, "Receipts")
	require.NoError(t, err)
	assert.Equal(t, &Label{ID: "Label_2", Name: "Receipts"}, created)
	assert.Equal(t, []string{"Receipts"}, stub.created)
}
