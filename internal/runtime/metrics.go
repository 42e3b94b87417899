package runtime

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks invocation statistics for a function host.
type RequestMetrics struct {
	mu sync.RWMutex

	// Per-status-class counts
	statusCounts map[string]*RequestStatusMetrics

	// Prometheus collectors
	requestsTotal   *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	failuresTotal   *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// RequestStatusMetrics holds counts for one status code.
type RequestStatusMetrics struct {
	Requests      uint64        `json:"requests"`
	TotalDuration time.Duration `json:"total_duration"`
	LastUpdatedAt time.Time     `json:"last_updated_at"`
}

// RequestMetricsSnapshot provides a point-in-time view of request metrics.
type RequestMetricsSnapshot struct {
	TotalRequests uint64                           `json:"total_requests"`
	ByStatus      map[string]*RequestStatusMetrics `json:"by_status"`
	CollectedAt   time.Time                        `json:"collected_at"`
}

// newRequestCounterVec creates a new counter vec with standard funchost/requests namespace.
func newRequestCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "funchost",
			Subsystem: "requests",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewRequestMetrics creates a new request metrics collector.
func NewRequestMetrics(registerer prometheus.Registerer) *RequestMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &RequestMetrics{
		statusCounts:  make(map[string]*RequestStatusMetrics),
		registerer:    registerer,
		requestsTotal: newRequestCounterVec("handled_total", "Total number of requests handled, by status code and event mode", []string{"code", "mode"}),
		durationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "funchost",
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "Request handling duration from normalization to response write",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"mode"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "funchost",
			Subsystem: "requests",
			Name:      "in_flight",
			Help:      "Number of requests currently being handled",
		}),
		failuresTotal: newRequestCounterVec("handler_failures_total", "Total number of handler invocations that ended in an error or panic", []string{"reason"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *RequestMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.durationSeconds,
		m.inFlight,
		m.failuresTotal,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			// Already registered is not an error
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordRequest records one handled request.
func (m *RequestMetrics) RecordRequest(status int, mode string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code := strconv.Itoa(status)
	metrics := m.getOrCreateStatusMetrics(code)
	metrics.Requests++
	metrics.TotalDuration += duration
	metrics.LastUpdatedAt = time.Now()

	m.requestsTotal.WithLabelValues(code, mode).Inc()
	m.durationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordFailure records a handler invocation that ended in an error or panic.
func (m *RequestMetrics) RecordFailure(reason string) {
	m.failuresTotal.WithLabelValues(reason).Inc()
}

// IncInFlight marks one more request as being handled.
func (m *RequestMetrics) IncInFlight() {
	m.inFlight.Inc()
}

// DecInFlight marks one request as finished.
func (m *RequestMetrics) DecInFlight() {
	m.inFlight.Dec()
}

// GetSnapshot returns a point-in-time snapshot of all request metrics.
func (m *RequestMetrics) GetSnapshot() RequestMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := RequestMetricsSnapshot{
		ByStatus:    make(map[string]*RequestStatusMetrics),
		CollectedAt: time.Now(),
	}

	for code, metrics := range m.statusCounts {
		snapshot.ByStatus[code] = &RequestStatusMetrics{
			Requests:      metrics.Requests,
			TotalDuration: metrics.TotalDuration,
			LastUpdatedAt: metrics.LastUpdatedAt,
		}
		snapshot.TotalRequests += metrics.Requests
	}

	return snapshot
}

func (m *RequestMetrics) getOrCreateStatusMetrics(code string) *RequestStatusMetrics {
	if metrics, ok := m.statusCounts[code]; ok {
		return metrics
	}
	metrics := &RequestStatusMetrics{}
	m.statusCounts[code] = metrics
	return metrics
}

// Reset resets all metrics (useful for testing).
func (m *RequestMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statusCounts = make(map[string]*RequestStatusMetrics)
	m.requestsTotal.Reset()
	m.durationSeconds.Reset()
	m.inFlight.Set(0)
	m.failuresTotal.Reset()
}
