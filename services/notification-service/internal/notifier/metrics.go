package notifier

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	total *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Notifications by kind, channel and outcome",
		}, []string{"kind", "channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.total)
	return m
}

func (m *Metrics) observe(kind, channel, status string) {
	if m == nil {
		return
	}
	m.total.WithLabelValues(kind, channel, status).Inc()
}
