package rules

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rulemate/internal/model"
)

const (
	day   = 24 * time.Hour
	month = 30 * day
)

// Evaluator matches emails against rulesets. It has no state besides its
// clock and logger and is safe for concurrent use.
type Evaluator struct {
	now func() time.Time
	log logrus.FieldLogger
}

// NewEvaluator creates an evaluator. A nil now uses time.Now.
func NewEvaluator(log logrus.FieldLogger, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{now: now, log: log}
}

// EvaluateRule applies one rule to an email. Unknown predicates and
// non-numeric date values evaluate to false.
func (e *Evaluator) EvaluateRule(rule Rule, email *model.Email) bool {
	if rule.Predicate.IsDate() {
		return e.evaluateDate(rule, email)
	}

	got := strings.ToLower(rule.Field.Value(email))
	want := strings.ToLower(rule.Value)

	var result bool
	switch rule.Predicate {
	case Contains:
		result = strings.Contains(got, want)
	case DoesNotContain:
		result = !strings.Contains(got, want)
	case Equals:
		result = got == want
	case DoesNotEqual:
		result = got != want
	default:
		e.log.WithField("predicate", rule.Predicate).Warn("Unknown predicate")
		return false
	}

	e.log.WithFields(logrus.Fields{
		"email_id":  email.ID,
		"field":     rule.Field,
		"predicate": rule.Predicate,
		"value":     rule.Value,
		"result":    result,
	}).Debug("Evaluated rule")
	return result
}

// evaluateDate compares the received timestamp with now minus N days or
// months. A message received exactly at the cutoff satisfies neither side.
func (e *Evaluator) evaluateDate(rule Rule, email *model.Email) bool {
	n, err := strconv.Atoi(strings.TrimSpace(rule.Value))
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"predicate": rule.Predicate,
			"value":     rule.Value,
		}).Error("Invalid date predicate value")
		return false
	}

	unit := day
	if rule.Predicate == GreaterThanMonths || rule.Predicate == LessThanMonths {
		unit = month
	}
	cutoff := e.now().Add(-time.Duration(n) * unit)

	var result bool
	switch rule.Predicate {
	case GreaterThanDays, GreaterThanMonths:
		result = email.Received.Before(cutoff)
	case LessThanDays, LessThanMonths:
		result = email.Received.After(cutoff)
	}

	e.log.WithFields(logrus.Fields{
		"email_id":  email.ID,
		"predicate": rule.Predicate,
		"value":     rule.Value,
		"received":  email.Received,
		"result":    result,
	}).Debug("Evaluated date rule")
	return result
}

// EvaluateRuleset combines the rules of rs with its global predicate. With
// no rules, all is true and any is false.
func (e *Evaluator) EvaluateRuleset(rs Ruleset, email *model.Email) bool {
	switch rs.GlobalPredicate {
	case Any:
		for _, r := range rs.Rules {
			if e.EvaluateRule(r, email) {
				return true
			}
		}
		return false
	case All:
		for _, r := range rs.Rules {
			if !e.EvaluateRule(r, email) {
				return false
			}
		}
		return true
	}

	e.log.WithFields(logrus.Fields{
		"ruleset":          rs.Name,
		"global_predicate": rs.GlobalPredicate,
	}).Warn("Unknown global predicate")
	return false
}

// GetMatchingActions returns every matching ruleset with its actions, in
// ruleset order.
func (e *Evaluator) GetMatchingActions(rulesets []Ruleset, email *model.Email) []Match {
	var matches []Match
	for _, rs := range rulesets {
		if e.EvaluateRuleset(rs, email) {
			matches = append(matches, Match{RuleName: rs.Name, Actions: rs.Actions})
		}
	}
	return matches
}
