package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-renderer", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = true
			break
		}
	}
	assert.True(t, found, "Counter should be registered in Prometheus registry")
}

func TestMetricsRegistry_RegisterGauge(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})

	err := registry.RegisterGauge("test-renderer", "test_gauge", gauge)
	require.NoError(t, err)

	gauge.Set(42.0)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_gauge" {
			found = true
			break
		}
	}
	assert.True(t, found, "Gauge should be registered in Prometheus registry")
}

func TestMetricsRegistry_RegisterCounterVec(t *testing.T) {
	registry := NewMetricsRegistry()

	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_counter_vec",
		Help: "A test counter vec",
	}, []string{"kind"})

	err := registry.RegisterCounterVec("test-transport", "test_counter_vec", counterVec)
	require.NoError(t, err)

	counterVec.WithLabelValues("status").Inc()
	counterVec.WithLabelValues("ui_delta").Add(2)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter_vec" {
			assert.Len(t, mf.GetMetric(), 2)
			return
		}
	}
	t.Fatal("CounterVec should be registered in Prometheus registry")
}

func TestMetricsRegistry_RegisterHistogram(t *testing.T) {
	registry := NewMetricsRegistry()

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_histogram",
		Help: "A test histogram",
	})

	err := registry.RegisterHistogram("test-renderer", "test_histogram", histogram)
	require.NoError(t, err)

	histogram.Observe(0.25)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	for _, mf := range metricFamilies {
		if mf.GetName() == "test_histogram" {
			assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
			return
		}
	}
	t.Fatal("Histogram should be registered in Prometheus registry")
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})

	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})

	err := registry.RegisterCounter("renderer1", "duplicate_counter", counter1)
	require.NoError(t, err)

	err = registry.RegisterCounter("renderer1", "duplicate_counter", counter2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "removable_counter",
		Help: "A counter we remove again",
	})

	require.NoError(t, registry.RegisterCounter("renderer", "removable_counter", counter))

	assert.True(t, registry.Unregister("renderer", "removable_counter"))
	assert.False(t, registry.Unregister("renderer", "removable_counter"),
		"second unregister should report missing metric")

	// Re-registration after unregister must succeed
	require.NoError(t, registry.RegisterCounter("renderer", "removable_counter", counter))
}

func TestMetricsRegistry_CoreMetricsExposed(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	core.RecordDispatcherState("sess-1", 2)
	core.RecordEventReceived("sess-1")
	core.RecordEventDispatched("sess-1", "ui_delta")
	core.RecordEventDropped("sess-1", "malformed")
	core.RecordDispatchDuration("sess-1", "ui_delta", 3*time.Millisecond)
	core.RecordReconnectAttempt()
	core.RecordConnection()
	core.RecordError("sess-1", "transport")
	core.RecordLayerOccupied("focus", true)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	foundMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundMetrics[mf.GetName()] = true
	}

	for _, name := range []string{
		"chameleon_dispatcher_state",
		"chameleon_events_received_total",
		"chameleon_events_dispatched_total",
		"chameleon_events_dropped_total",
		"chameleon_events_dispatch_duration_seconds",
		"chameleon_dispatcher_reconnect_attempts_total",
		"chameleon_dispatcher_connections_total",
		"chameleon_errors_total",
		"chameleon_display_layer_occupied",
	} {
		assert.True(t, foundMetrics[name], "core metric %s should be gatherable", name)
	}
}

func TestMetrics_LayerOccupiedValues(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	core.RecordLayerOccupied("interrupt", true)
	core.RecordLayerOccupied("interrupt", false)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	for _, mf := range metricFamilies {
		if mf.GetName() != "chameleon_display_layer_occupied" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, 0.0, mf.GetMetric()[0].GetGauge().GetValue())
		return
	}
	t.Fatal("layer occupancy gauge not found")
}

func TestServer_Address(t *testing.T) {
	registry := NewMetricsRegistry()

	server := NewServer(0, "", registry)
	assert.Equal(t, "http://localhost:9090/metrics", server.Address())

	server = NewServer(9191, "/stats", registry)
	assert.Equal(t, "http://localhost:9191/stats", server.Address())
}

func TestServer_StopWithoutStart(t *testing.T) {
	registry := NewMetricsRegistry()
	server := NewServer(9192, "/metrics", registry)

	assert.NoError(t, server.Stop())
}
