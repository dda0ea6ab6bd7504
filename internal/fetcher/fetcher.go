// Package fetcher copies new mailbox messages into the store and moves the
// fetch checkpoint.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"rulemate/internal/mailbox"
	"rulemate/internal/metrics"
	"rulemate/internal/model"
)

// Overlap is subtracted from the checkpoint to absorb delivery latency and
// clock skew. Duplicates are ignored by the store.
const Overlap = 24 * time.Hour

// Store is the part of the repository the fetcher needs.
type Store interface {
	GetLastFetchedTime(ctx context.Context) (time.Time, error)
	SaveFetched(ctx context.Context, emails []model.Email, fetchedAt time.Time) (int, error)
}

// Fetcher pulls messages received since the checkpoint.
type Fetcher struct {
	store   Store
	mailbox mailbox.Mailbox
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	now     func() time.Time
}

// New creates a fetcher. A nil now uses time.Now.
func New(store Store, mb mailbox.Mailbox, m *metrics.Metrics, log logrus.FieldLogger, now func() time.Time) *Fetcher {
	if now == nil {
		now = time.Now
	}
	return &Fetcher{store: store, mailbox: mb, metrics: m, log: log, now: now}
}

// FetchNew lists every message since checkpoint minus Overlap, stores them
// and, if any were listed, advances the checkpoint to now. Storing and
// advancing commit together. Any error aborts the cycle before anything is
// written. It returns the number of messages stored for the first time.
func (f *Fetcher) FetchNew(ctx context.Context) (int, error) {
	checkpoint, err := f.store.GetLastFetchedTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	since := checkpoint.Add(-Overlap)

	var emails []model.Email
	pageToken := ""
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		page, err := f.mailbox.ListMessagesSince(ctx, since, pageToken)
		if err != nil {
			return 0, err
		}
		pages++

		for _, id := range page.IDs {
			msg, err := f.mailbox.GetMessageMetadata(ctx, id)
			if err != nil {
				return 0, err
			}
			emails = append(emails, model.Email{
				ID:       msg.ID,
				Sender:   msg.Sender,
				Subject:  msg.Subject,
				Snippet:  msg.Snippet,
				Received: msg.Received,
				IsRead:   msg.IsRead,
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	stored, err := f.store.SaveFetched(ctx, emails, f.now())
	if err != nil {
		return 0, err
	}

	f.metrics.FetchCycles.Inc()
	f.metrics.MessagesFetched.Add(float64(len(emails)))
	f.metrics.MessagesStored.Add(float64(stored))

	f.log.WithFields(logrus.Fields{
		"since":   since,
		"pages":   pages,
		"fetched": len(emails),
		"stored":  stored,
	}).Info("Fetch cycle completed")
	return stored, nil
}
