package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values of ActionsExecuted.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	FetchCycles       prometheus.Counter
	MessagesFetched   prometheus.Counter
	MessagesStored    prometheus.Counter
	MessagesEvaluated prometheus.Counter
	RulesetMatches    *prometheus.CounterVec
	ActionsEnqueued   prometheus.Counter
	ActionsExecuted   *prometheus.CounterVec
	CycleErrors       *prometheus.CounterVec
	CycleDuration     *prometheus.HistogramVec
	ActionQueue       *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulemate_fetch_cycles_total",
			Help: "Total number of completed fetch cycles",
		}),
		MessagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulemate_messages_fetched_total",
			Help: "Total number of messages listed by the fetcher",
		}),
		MessagesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulemate_messages_stored_total",
			Help: "Total number of messages stored for the first time",
		}),
		MessagesEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulemate_messages_evaluated_total",
			Help: "Total number of messages evaluated against the rulesets",
		}),
		RulesetMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulemate_ruleset_matches_total",
			Help: "Total number of messages matched, by ruleset",
		}, []string{"ruleset"}),
		ActionsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulemate_actions_enqueued_total",
			Help: "Total number of action entries enqueued",
		}),
		ActionsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulemate_actions_executed_total",
			Help: "Total number of action attempts, by action and outcome",
		}, []string{"action", "outcome"}),
		CycleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulemate_cycle_errors_total",
			Help: "Total number of failed loop cycles",
		}, []string{"loop"}),
		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rulemate_cycle_duration_seconds",
			Help:    "Time spent in one loop cycle",
			Buckets: prometheus.DefBuckets,
		}, []string{"loop"}),
		ActionQueue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rulemate_action_queue",
			Help: "Number of action entries, by status",
		}, []string{"status"}),
	}
}
