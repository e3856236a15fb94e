package jobs

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	dispatched prometheus.Counter
	failed     prometheus.Counter
	deadLetter prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicsched", Subsystem: "scheduler", Name: "reminders_dispatched_total",
			Help: "Reminder jobs published as due",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicsched", Subsystem: "scheduler", Name: "reminder_failures_total",
			Help: "Reminder dispatch attempts that failed",
		}),
		deadLetter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicsched", Subsystem: "scheduler", Name: "reminders_dead_lettered_total",
			Help: "Reminder jobs given up after max attempts",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dispatched, m.failed, m.deadLetter)
	return m
}

func (m *Metrics) observe(dispatched, failed, dlq int) {
	if m == nil {
		return
	}
	m.dispatched.Add(float64(dispatched))
	m.failed.Add(float64(failed))
	m.deadLetter.Add(float64(dlq))
}
