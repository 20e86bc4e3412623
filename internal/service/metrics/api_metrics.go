package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "obscan",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of scanner API endpoints",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "obscan",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by scanner API endpoint",
		},
		[]string{"endpoint"},
	)

	APIRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "obscan",
			Subsystem: "api",
			Name:      "rejected_total",
			Help:      "Requests rejected by entitlement or rate limit",
		},
		[]string{"endpoint", "reason"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, APIRejected)
	})
}
