package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.FetchCycles.Inc()
	m.ActionsExecuted.WithLabelValues("mark_as_read", OutcomeSuccess).Inc()
	m.ActionQueue.WithLabelValues("pending").Set(4)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchCycles))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActionsExecuted.WithLabelValues("mark_as_read", OutcomeSuccess)))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.ActionQueue.WithLabelValues("pending")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// A second set on a fresh registry must not collide.
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}
