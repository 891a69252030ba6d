// Package metrics provides a fitview.PerformanceMonitor backed by Prometheus.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Monitor times operations by key and records their durations. Keys are
// expected to be unique per operation; the part before the first '-' names
// the operation ("decode-<uuid>" is recorded as operation "decode").
type Monitor struct {
	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time

	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	starts   *prometheus.CounterVec
	ends     *prometheus.CounterVec
}

// NewMonitor creates a Monitor and registers its collectors with reg. A nil
// reg registers with the default Prometheus registry.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Monitor{
		started: make(map[string]time.Time),
		now:     time.Now,

		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fitview_operation_duration_seconds",
				Help:    "Duration of timed fitview operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "fitview_operations_in_flight",
			Help: "Number of timers started and not yet stopped.",
		}),
		starts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitview_operations_started_total",
				Help: "Total number of timers started.",
			},
			[]string{"operation"},
		),
		ends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitview_operations_finished_total",
				Help: "Total number of timers stopped.",
			},
			[]string{"operation"},
		),
	}
}

// StartTimer starts the timer for key. Starting a running key is an error.
func (m *Monitor) StartTimer(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.started[key]; ok {
		return errors.Newf("timer %q already running", key)
	}
	m.started[key] = m.now()
	m.inFlight.Inc()
	m.starts.WithLabelValues(operation(key)).Inc()
	return nil
}

// EndTimer stops the timer for key and returns its elapsed time. Stopping a
// key that is not running is an error.
func (m *Monitor) EndTimer(key string) (time.Duration, error) {
	m.mu.Lock()
	start, ok := m.started[key]
	if ok {
		delete(m.started, key)
	}
	m.mu.Unlock()
	if !ok {
		return 0, errors.Newf("timer %q is not running", key)
	}

	elapsed := m.now().Sub(start)
	op := operation(key)
	m.inFlight.Dec()
	m.ends.WithLabelValues(op).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	return elapsed, nil
}

// Running returns the number of timers currently started.
func (m *Monitor) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

func operation(key string) string {
	op, _, _ := strings.Cut(key, "-")
	if op == "" {
		return "unknown"
	}
	return op
}
