package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Request("GET", 200)
	m.Request("GET", 200)
	m.Request("POST", 401)
	m.Refresh(true)
	m.Refresh(false)
	m.Refresh(false)
	m.Retry()
	m.BreakerState("api", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refresh.WithLabelValues(RefreshOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.refresh.WithLabelValues(RefreshFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breaker.WithLabelValues("api")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Request("GET", 200)
		m.Refresh(true)
		m.Retry()
		m.BreakerState("api", 0)
	})
}
