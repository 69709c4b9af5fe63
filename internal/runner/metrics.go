package runner

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report assessment activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessions    *prometheus.CounterVec
	stopReasons *prometheus.CounterVec
	finalLevels *prometheus.CounterVec
	turns       prometheus.Histogram
	duration    prometheus.Histogram
	active      prometheus.Gauge
}

// NewMetrics constructs and registers the collectors with reg. Passing a
// fresh registry keeps tests independent.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tutorbench",
				Name:      "sessions_total",
				Help:      "Assessment sessions by outcome.",
			},
			[]string{"outcome"},
		),
		stopReasons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tutorbench",
				Name:      "stop_reasons_total",
				Help:      "Completed sessions by stop reason.",
			},
			[]string{"reason"},
		),
		finalLevels: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tutorbench",
				Name:      "final_levels_total",
				Help:      "Completed sessions by predicted level.",
			},
			[]string{"level"},
		),
		turns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tutorbench",
			Name:      "session_turns",
			Help:      "Turns taken by completed sessions.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tutorbench",
			Name:      "session_duration_seconds",
			Help:      "Wall time of assessment sessions.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tutorbench",
			Name:      "sessions_active",
			Help:      "Sessions currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{m.sessions, m.stopReasons, m.finalLevels, m.turns, m.duration, m.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) sessionCompleted(level, turns int, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.sessions.WithLabelValues("completed").Inc()
	m.stopReasons.WithLabelValues(reason).Inc()
	m.finalLevels.WithLabelValues(strconv.Itoa(level)).Inc()
	m.turns.Observe(float64(turns))
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) sessionFailed(d time.Duration) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.sessions.WithLabelValues("failed").Inc()
	m.duration.Observe(d.Seconds())
}
