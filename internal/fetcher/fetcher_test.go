package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulemate/internal/mailbox"
	"rulemate/internal/mailbox/mailboxtest"
	"rulemate/internal/metrics"
	"rulemate/internal/repository"
	dbtest "rulemate/internal/testutil"
)

var checkpoint = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo    *repository.Repository
	mailbox *mailboxtest.Fake
	metrics *metrics.Metrics
	fetcher *Fetcher
	now     time.Time
}

func newFixture(t *testing.T, pageSize int) *fixture {
	t.Helper()
	f := &fixture{
		repo:    repository.New(dbtest.NewTestDB(t, checkpoint)),
		mailbox: mailboxtest.New(pageSize),
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
		now:     checkpoint.Add(time.Hour),
	}
	log, _ := test.NewNullLogger()
	f.fetcher = New(f.repo, f.mailbox, f.metrics, log, func() time.Time { return f.now })
	return f
}

func (f *fixture) addMessages(n int) {
	for i := 0; i < n; i++ {
		f.mailbox.AddMessage(mailbox.Message{
			ID:       fmt.Sprintf("m%02d", i),
			Sender:   "billing@acme.com",
			Subject:  fmt.Sprintf("Invoice %d", i),
			Snippet:  "Amount due",
			Received: checkpoint.Add(-time.Duration(i+1) * time.Minute),
			IsRead:   i%2 == 0,
		})
	}
}

func (f *fixture) checkpoint(t *testing.T) time.Time {
	t.Helper()
	ts, err := f.repo.GetLastFetchedTime(context.Background())
	require.NoError(t, err)
	return ts
}

func TestFetchNewUsesOneDayOverlap(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.fetcher.FetchNew(context.Background())
	require.NoError(t, err)

	sinces := f.mailbox.Sinces()
	require.Len(t, sinces, 1)
	assert.True(t, sinces[0].Equal(checkpoint.Add(-24*time.Hour)))
}

func TestFetchNewEmptyIsIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		n, err := f.fetcher.FetchNew(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.True(t, f.checkpoint(t).Equal(checkpoint))

		_, total, err := f.repo.ListEmails(ctx, 10, 0)
		require.NoError(t, err)
		assert.Zero(t, total)
	}

	sinces := f.mailbox.Sinces()
	require.Len(t, sinces, 2)
	assert.True(t, sinces[0].Equal(sinces[1]))
}

func TestFetchNewPaginatesAndAdvances(t *testing.T) {
	f := newFixture(t, 2)
	f.addMessages(5)
	ctx := context.Background()

	n, err := f.fetcher.FetchNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, f.mailbox.Calls(mailboxtest.OpListMessages))
	assert.Equal(t, 5, f.mailbox.Calls(mailboxtest.OpGetMetadata))
	assert.True(t, f.checkpoint(t).Equal(f.now))

	email, err := f.repo.GetEmail(ctx, "m00")
	require.NoError(t, err)
	assert.Equal(t, "Invoice 0", email.Subject)
	assert.Equal(t, "billing@acme.com", email.Sender)
	assert.True(t, email.IsRead)
	assert.False(t, email.IsProcessed)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.FetchCycles))
	assert.Equal(t, float64(5), testutil.ToFloat64(f.metrics.MessagesStored))
}

func TestFetchNewRefetchStoresNothingNew(t *testing.T) {
	f := newFixture(t, 10)
	f.addMessages(3)
	ctx := context.Background()

	n, err := f.fetcher.FetchNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f.now = f.now.Add(time.Minute)
	n, err = f.fetcher.FetchNew(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, f.checkpoint(t).Equal(f.now))

	_, total, err := f.repo.ListEmails(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestFetchNewErrorDoesNotAdvance(t *testing.T) {
	f := newFixture(t, 2)
	f.addMessages(4)
	f.mailbox.Fail(mailboxtest.OpGetMetadata, nil, nil, errors.New("backend unavailable"))
	ctx := context.Background()

	_, err := f.fetcher.FetchNew(ctx)
	require.Error(t, err)
	assert.True(t, f.checkpoint(t).Equal(checkpoint))

	_, total, err := f.repo.ListEmails(ctx, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	n, err := f.fetcher.FetchNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestFetchNewListErrorDoesNotAdvance(t *testing.T) {
	f := newFixture(t, 10)
	f.addMessages(1)
	f.mailbox.Fail(mailboxtest.OpListMessages, errors.New("quota exceeded"))

	_, err := f.fetcher.FetchNew(context.Background())
	require.Error(t, err)
	assert.True(t, f.checkpoint(t).Equal(checkpoint))
}

func TestFetchNewCancelled(t *testing.T) {
	f := newFixture(t, 10)
	f.addMessages(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.fetcher.FetchNew(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
