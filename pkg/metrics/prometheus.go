package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promLoader 是 Loader 的 Prometheus 实现
type promLoader struct {
	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	delivered       *prometheus.CounterVec
	fetchFailures   prometheus.Counter
	evictions       prometheus.Counter
	fetchBatches    *prometheus.CounterVec
	fetchBatchSize  prometheus.Histogram
	fetchDuration   prometheus.Histogram
	persistBatches  *prometheus.CounterVec
	persistItems    prometheus.Counter
	persistDuration prometheus.Histogram
}

// NewPrometheus 在 reg 上注册所有指标
func NewPrometheus(reg prometheus.Registerer) Loader {
	f := promauto.With(reg)

	return &promLoader{
		sessions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objloader_sessions_total",
				Help: "Total number of load sessions by outcome",
			},
			[]string{"outcome"}, // "completed", "canceled", "failed"
		),
		sessionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "objloader_session_duration_seconds",
				Help:    "Duration of load sessions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms .. ~160s
			},
			[]string{"outcome"},
		),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "objloader_active_sessions",
			Help: "Number of load sessions currently running",
		}),
		delivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objloader_nodes_delivered_total",
				Help: "Total number of nodes delivered to consumers by source",
			},
			[]string{"source"}, // "cache", "network"
		),
		fetchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "objloader_fetch_failures_total",
			Help: "Total number of ids skipped because they could not be fetched",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "objloader_deferment_evictions_total",
			Help: "Total number of resolved entries evicted from the deferment manager",
		}),
		fetchBatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objloader_fetch_batches_total",
				Help: "Total number of remote fetch batches by status",
			},
			[]string{"status"}, // "ok", "error"
		),
		fetchBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "objloader_fetch_batch_ids",
			Help:    "Distribution of ids per remote fetch batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name: "objloader_fetch_batch_duration_milliseconds",
			Help: "Duration of remote fetch batches in milliseconds",
			Buckets: []float64{
				1,    // 1ms - local server
				5,    // 5ms
				10,   // 10ms
				50,   // 50ms
				100,  // 100ms
				500,  // 500ms
				1000, // 1s
				5000, // 5s - slow link
			},
		}),
		persistBatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objloader_persist_batches_total",
				Help: "Total number of cache write batches by status",
			},
			[]string{"status"},
		),
		persistItems: f.NewCounter(prometheus.CounterOpts{
			Name: "objloader_persist_items_total",
			Help: "Total number of items submitted to the cache backend",
		}),
		persistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "objloader_persist_duration_milliseconds",
			Help:    "Duration of cache write batches in milliseconds",
			Buckets: []float64{0.5, 1, 5, 10, 50, 100, 500, 1000},
		}),
	}
}

func (m *promLoader) SessionStarted() {
	m.activeSessions.Inc()
}

func (m *promLoader) SessionFinished(outcome string, duration time.Duration) {
	m.activeSessions.Dec()
	m.sessions.WithLabelValues(outcome).Inc()
	m.sessionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *promLoader) NodeDelivered(source string) {
	m.delivered.WithLabelValues(source).Inc()
}

func (m *promLoader) FetchFailed() {
	m.fetchFailures.Inc()
}

func (m *promLoader) Evicted(count int) {
	m.evictions.Add(float64(count))
}

func (m *promLoader) ObserveFetchBatch(ids int, duration time.Duration, err error) {
	m.fetchBatches.WithLabelValues(statusLabel(err)).Inc()
	m.fetchBatchSize.Observe(float64(ids))
	m.fetchDuration.Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *promLoader) ObservePersist(items int, duration time.Duration, err error) {
	m.persistBatches.WithLabelValues(statusLabel(err)).Inc()
	m.persistItems.Add(float64(items))
	m.persistDuration.Observe(float64(duration.Microseconds()) / 1000.0)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler 暴露 /metrics
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
