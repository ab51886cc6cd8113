// Package metrics exposes Prometheus collectors for the fetch cycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	QueryInterval prometheus.Gauge
	Connected     prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		Cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "local_weather_cycles_total",
				Help: "The total number of fetch cycles by outcome",
			},
			[]string{"outcome"},
		),
		CycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "local_weather_cycle_duration_seconds",
				Help:    "Fetch cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		QueryInterval: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "local_weather_query_interval_seconds",
				Help: "Configured period between fetch cycles",
			},
		),
		Connected: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "local_weather_network_connected",
				Help: "1 when the last connectivity probe succeeded",
			},
		),
	}
}

// ObserveCycle implements weather.CycleObserver.
func (c *Collector) ObserveCycle(outcome string, elapsed time.Duration) {
	c.Cycles.WithLabelValues(outcome).Inc()
	c.CycleDuration.Observe(elapsed.Seconds())
}

func (c *Collector) SetQueryInterval(d time.Duration) {
	c.QueryInterval.Set(d.Seconds())
}

func (c *Collector) SetConnected(ok bool) {
	if ok {
		c.Connected.Set(1)
		return
	}
	c.Connected.Set(0)
}
