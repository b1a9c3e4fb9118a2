package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vehiclehub/errors"
)

func TestNewMetricsRegistryHasCoreMetrics(t *testing.T) {
	r := NewMetricsRegistry()

	require.NotNil(t, r.CoreMetrics())
	require.NotNil(t, r.PrometheusRegistry())

	// Core metrics should be usable immediately
	r.Metrics.MessagesReceived.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.MessagesReceived))
}

func TestRegisterCounter(t *testing.T) {
	r := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vehiclehub",
		Subsystem: "test",
		Name:      "things_total",
		Help:      "Things counted in tests",
	})

	require.NoError(t, r.RegisterCounter("trace-source", "things", counter))
	counter.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(counter))
}

func TestRegisterCounterDuplicateRejected(t *testing.T) {
	r := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_total",
		Help: "duplicate registration test",
	})

	require.NoError(t, r.RegisterCounter("comp", "dup", counter))

	err := r.RegisterCounter("comp", "dup", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "depth",
		Help: "unregister test",
	})

	require.NoError(t, r.RegisterGauge("comp", "depth", gauge))
	assert.True(t, r.Unregister("comp", "depth"))
	assert.False(t, r.Unregister("comp", "depth"), "second unregister is a no-op")

	// Freed name can be registered again
	require.NoError(t, r.RegisterGauge("comp", "depth", gauge))
}

func TestSourceSwitchesVec(t *testing.T) {
	r := NewMetricsRegistry()

	r.Metrics.SourceSwitches.WithLabelValues("trace").Inc()
	r.Metrics.SourceSwitches.WithLabelValues("trace").Inc()
	r.Metrics.SourceSwitches.WithLabelValues("websocket").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Metrics.SourceSwitches.WithLabelValues("trace")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.SourceSwitches.WithLabelValues("websocket")))
}
