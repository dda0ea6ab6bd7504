// Package engine evaluates unprocessed emails against the rulesets and
// enqueues the resulting actions.
package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"rulemate/internal/metrics"
	"rulemate/internal/model"
	"rulemate/internal/rules"
)

// Store is the part of the repository the engine needs.
type Store interface {
	GetNewEmails(ctx context.Context) ([]model.Email, error)
	EnqueueActions(ctx context.Context, emailID string, entries []model.ActionEntry) error
}

// RulesetSource supplies the rulesets in effect. It is consulted once per
// cycle so reloaded rules apply from the next cycle.
type RulesetSource interface {
	Rulesets() []rules.Ruleset
}

// Engine is the rule engine loop body.
type Engine struct {
	store     Store
	source    RulesetSource
	evaluator *rules.Evaluator
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
}

// New creates an engine.
func New(store Store, source RulesetSource, evaluator *rules.Evaluator, m *metrics.Metrics, log logrus.FieldLogger) *Engine {
	return &Engine{store: store, source: source, evaluator: evaluator, metrics: m, log: log}
}

// ProcessNew evaluates every unprocessed email. Each matching ruleset
// contributes one pending entry per action, duplicates included, and the
// email is marked processed in the same transaction. A store error stops the
// cycle; emails handled before it stay processed. It returns the number of
// emails processed.
func (e *Engine) ProcessNew(ctx context.Context) (int, error) {
	emails, err := e.store.GetNewEmails(ctx)
	if err != nil {
		return 0, err
	}
	rulesets := e.source.Rulesets()

	processed := 0
	enqueued := 0
	for i := range emails {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		email := &emails[i]

		var entries []model.ActionEntry
		for _, match := range e.evaluator.GetMatchingActions(rulesets, email) {
			e.metrics.RulesetMatches.WithLabelValues(match.RuleName).Inc()
			for _, a := range match.Actions {
				entries = append(entries, model.NewActionEntry(email.ID, a, match.RuleName))
			}
		}

		if err := e.store.EnqueueActions(ctx, email.ID, entries); err != nil {
			return processed, fmt.Errorf("failed to process email %s: %w", email.ID, err)
		}

		processed++
		enqueued += len(entries)
		e.metrics.MessagesEvaluated.Inc()
		e.metrics.ActionsEnqueued.Add(float64(len(entries)))

		if len(entries) > 0 {
			e.log.WithFields(logrus.Fields{
				"email_id": email.ID,
				"actions":  len(entries),
			}).Debug("Enqueued actions")
		}
	}

	e.log.WithFields(logrus.Fields{
		"processed": processed,
		"enqueued":  enqueued,
		"rulesets":  len(rulesets),
	}).Info("Rule cycle completed")
	return processed, nil
}
