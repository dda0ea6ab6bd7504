// Package executor runs queued actions against the mailbox with bounded
// retry.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"rulemate/internal/action"
	"rulemate/internal/mailbox"
	"rulemate/internal/metrics"
	"rulemate/internal/model"
	"rulemate/internal/repository"
)

// DefaultMaxAttempts is the number of attempts before an entry fails.
const DefaultMaxAttempts = 3

// ErrUnknownAction is recorded for entries whose kind cannot be executed.
var ErrUnknownAction = errors.New("unknown action")

// Store is the part of the repository the executor needs.
type Store interface {
	GetPendingActions(ctx context.Context) ([]model.ActionEntry, error)
	GetEmail(ctx context.Context, id string) (*model.Email, error)
	UpdateActionStatus(ctx context.Context, id uint, status model.ActionStatus, retryCount int, lastErr string) error
	CountActionsByStatus(ctx context.Context) (map[model.ActionStatus]int64, error)
}

// Result summarizes one executor cycle.
type Result struct {
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// Executor drains the pending queue in FIFO order.
type Executor struct {
	store       Store
	mailbox     mailbox.Mailbox
	maxAttempts int
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
}

// New creates an executor. maxAttempts below 1 uses DefaultMaxAttempts.
func New(store Store, mb mailbox.Mailbox, maxAttempts int, m *metrics.Metrics, log logrus.FieldLogger) *Executor {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Executor{store: store, mailbox: mb, maxAttempts: maxAttempts, metrics: m, log: log}
}

// RunPending attempts every pending entry once, oldest first and one at a
// time. A store error stops the cycle; entries already updated keep their
// new status.
func (e *Executor) RunPending(ctx context.Context) (Result, error) {
	var res Result

	entries, err := e.store.GetPendingActions(ctx)
	if err != nil {
		return res, err
	}

	labels := newLabelCache(e.mailbox)
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		status, _, err := e.execute(ctx, &entries[i], labels)
		if err != nil {
			return res, err
		}
		switch status {
		case model.ActionStatusSuccess:
			res.Succeeded++
		case model.ActionStatusPending:
			res.Retried++
		case model.ActionStatusFailed:
			res.Failed++
		}
	}

	e.refreshQueueGauge(ctx)

	if len(entries) > 0 {
		e.log.WithFields(logrus.Fields{
			"pending":   len(entries),
			"succeeded": res.Succeeded,
			"retried":   res.Retried,
			"failed":    res.Failed,
		}).Info("Action cycle completed")
	}
	return res, nil
}

// Execute attempts a single entry and records the outcome. It returns the
// attempt error, or nil when the action succeeded.
func (e *Executor) Execute(ctx context.Context, entry *model.ActionEntry) error {
	if entry.Status != model.ActionStatusPending {
		return fmt.Errorf("action %d: %w", entry.ID, repository.ErrNotPending)
	}
	_, attemptErr, err := e.execute(ctx, entry, newLabelCache(e.mailbox))
	if err != nil {
		return err
	}
	return attemptErr
}

// execute performs one attempt and persists the transition. attemptErr is
// the failure recorded on the entry; err is a store error.
func (e *Executor) execute(ctx context.Context, entry *model.ActionEntry, labels *labelCache) (status model.ActionStatus, attemptErr, err error) {
	intent := entry.Intent()
	log := e.log.WithFields(logrus.Fields{
		"action_id": entry.ID,
		"email_id":  entry.EmailID,
		"action":    intent.String(),
		"rule":      entry.FromRuleName,
	})

	attemptErr = e.attempt(ctx, entry, intent, labels)
	if attemptErr == nil {
		if err := e.store.UpdateActionStatus(ctx, entry.ID, model.ActionStatusSuccess, entry.RetryCount, ""); err != nil {
			return "", nil, err
		}
		entry.Status = model.ActionStatusSuccess
		entry.LastError = ""
		e.metrics.ActionsExecuted.WithLabelValues(string(intent.Kind), metrics.OutcomeSuccess).Inc()
		log.Info("Action executed")
		return entry.Status, nil, nil
	}

	retryCount := entry.RetryCount + 1
	status = model.ActionStatusPending
	outcome := metrics.OutcomeRetry
	if isPermanent(attemptErr) || retryCount >= e.maxAttempts {
		status = model.ActionStatusFailed
		outcome = metrics.OutcomeFailed
	}

	if err := e.store.UpdateActionStatus(ctx, entry.ID, status, retryCount, attemptErr.Error()); err != nil {
		return "", nil, err
	}
	entry.Status = status
	entry.RetryCount = retryCount
	entry.LastError = attemptErr.Error()
	e.metrics.ActionsExecuted.WithLabelValues(string(intent.Kind), outcome).Inc()

	log = log.WithError(attemptErr).WithField("retry_count", retryCount)
	switch {
	case errors.Is(attemptErr, ErrUnknownAction):
		log.Warn("Unknown action, marking failed")
	case status == model.ActionStatusFailed:
		log.Error("Action failed permanently")
	default:
		log.Warn("Action failed, will retry")
	}
	return status, attemptErr, nil
}

// attempt dispatches the action. Failures another attempt cannot fix are
// wrapped with permanent.
func (e *Executor) attempt(ctx context.Context, entry *model.ActionEntry, intent action.Action, labels *labelCache) error {
	if !intent.Known() {
		return permanent(fmt.Errorf("%w: %q", ErrUnknownAction, intent.String()))
	}

	if _, err := e.store.GetEmail(ctx, entry.EmailID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return permanent(fmt.Errorf("email %s no longer exists", entry.EmailID))
		}
		return err
	}

	var err error
	switch intent.Kind {
	case action.MarkAsRead:
		err = e.mailbox.SetUnread(ctx, entry.EmailID, false)
	case action.MarkAsUnread:
		err = e.mailbox.SetUnread(ctx, entry.EmailID, true)
	case action.MoveToLabel:
		var labelID string
		labelID, err = labels.ensure(ctx, intent.Label)
		if err == nil {
			err = e.mailbox.AddLabel(ctx, entry.EmailID, labelID)
		}
	}
	if errors.Is(err, mailbox.ErrMessageNotFound) {
		return permanent(err)
	}
	return err
}

type permanentError struct {
	err error
}

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

func (e *Executor) refreshQueueGauge(ctx context.Context) {
	counts, err := e.store.CountActionsByStatus(ctx)
	if err != nil {
		e.log.WithError(err).Warn("Failed to count action queue")
		return
	}
	for status, n := range counts {
		e.metrics.ActionQueue.WithLabelValues(string(status)).Set(float64(n))
	}
}
