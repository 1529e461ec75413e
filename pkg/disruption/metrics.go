package disruption

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	Applied    prometheus.Counter
	Deleted    prometheus.Counter
	Rejections *prometheus.CounterVec // kind label

	ActiveDisruptions prometheus.Gauge
	AdaptedTrips      prometheus.Gauge
	Patterns          prometheus.Gauge

	ApplyDuration  prometheus.Histogram
	DeleteDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		Applied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "disruptions_applied_total",
			Help: "Total disruptions applied to the schedule.",
		}),
		Deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "disruptions_deleted_total",
			Help: "Total disruptions removed from the schedule.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "disruptions_rejections_total",
			Help: "Rejected disruptions, impacts, targets and windows.",
		}, []string{"kind"}),
		ActiveDisruptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "disruptions_active",
			Help: "Number of disruptions currently applied.",
		}),
		AdaptedTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "disruptions_adapted_trips",
			Help: "Number of adapted trip variants in the schedule.",
		}),
		Patterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "disruptions_validity_patterns",
			Help: "Number of distinct validity patterns in the pool.",
		}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "disruptions_apply_duration_seconds",
			Help:    "Duration of a disruption apply.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		DeleteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "disruptions_delete_duration_seconds",
			Help:    "Duration of a disruption delete including replay.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		m.Applied, m.Deleted, m.Rejections,
		m.ActiveDisruptions, m.AdaptedTrips, m.Patterns,
		m.ApplyDuration, m.DeleteDuration,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
