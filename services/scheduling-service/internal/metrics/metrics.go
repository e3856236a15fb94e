package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingMetrics exposes counters/histograms for the slot allocator.
type SchedulingMetrics struct {
	searches     *prometheus.CounterVec
	reservations *prometheus.CounterVec
	reserveTime  prometheus.Histogram
	fallbacks    prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "slots",
			Name:      "searches_total",
			Help:      "Slot searches by outcome (found, empty, invalid, error)",
		}, []string{"outcome"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "slots",
			Name:      "reservations_total",
			Help:      "Reservations by outcome (booked, conflict, invalid, error)",
		}, []string{"outcome"}),
		reserveTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicsched",
			Subsystem: "slots",
			Name:      "reserve_duration_seconds",
			Help:      "Lock, load, reserve and save latency",
			Buckets:   prometheus.DefBuckets,
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "slots",
			Name:      "duration_fallbacks_total",
			Help:      "Searches that fell back to a shorter duration",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.searches, m.reservations, m.reserveTime, m.fallbacks)
	return m
}

func (m *SchedulingMetrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveReservation(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
	m.reserveTime.Observe(elapsed.Seconds())
}

func (m *SchedulingMetrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
