package batch

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records batch outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	submissions *prometheus.CounterVec
	items       *prometheus.HistogramVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the batch collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_submissions_total",
			Help: "Batch submissions by kind and terminal outcome.",
		}, []string{"kind", "outcome"}),
		items: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_items",
			Help:    "Number of items per submitted batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_duration_seconds",
			Help:    "Time from validation to transaction resolution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	reg.MustRegister(m.submissions, m.items, m.duration)
	return m
}

func (m *Metrics) observe(kind string, n int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "committed"
	if err != nil {
		outcome = string(KindStorage)
		var be *Error
		if errors.As(err, &be) {
			outcome = string(be.Kind)
		}
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
	m.items.WithLabelValues(kind).Observe(float64(n))
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
