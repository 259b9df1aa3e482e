package vm

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

type metrics struct {
	invocations  *prometheus.CounterVec
	computeUnits prometheus.Histogram
	programs     prometheus.Gauge
}

func newMetrics() (*prometheus.Registry, *metrics, error) {
	r := prometheus.NewRegistry()
	m := &metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counter",
			Name:      "invocations_total",
			Help:      "number of executed transactions by outcome",
		}, []string{"status"}),
		computeUnits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "counter",
			Name:      "compute_units",
			Help:      "compute units consumed per transaction",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		}),
		programs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "counter",
			Name:      "programs",
			Help:      "number of programs the engine can invoke",
		}),
	}
	err := errors.Join(
		r.Register(m.invocations),
		r.Register(m.computeUnits),
		r.Register(m.programs),
	)
	return r, m, err
}
