package metrics

import (
	"time"

	"OBScan/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scansTotal   *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	scanSize     *prometheus.GaugeVec
	detections   *prometheus.CounterVec
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New registers the collectors on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		scansTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obscan_scans_total",
				Help: "Completed scan runs",
			},
			[]string{"timeframe"},
		),
		scanDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "obscan_scan_duration_seconds",
				Help:    "Wall time of a full scan run",
				Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"timeframe"},
		),
		scanSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "obscan_scan_instruments",
				Help: "Instruments examined by the last scan",
			},
			[]string{"timeframe"},
		),
		detections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obscan_detections_total",
				Help: "Detector outcomes by zone type",
			},
			[]string{"timeframe", "zone"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obscan_messages_sent_total",
				Help: "Detections handed to a backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obscan_errors_total",
				Help: "Errors by kind",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "obscan_last_price",
				Help: "Last observed price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "obscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordScan(timeframe string, instruments int, d time.Duration) {
	r.scansTotal.WithLabelValues(timeframe).Inc()
	r.scanDuration.WithLabelValues(timeframe).Observe(d.Seconds())
	r.scanSize.WithLabelValues(timeframe).Set(float64(instruments))
}

func (r *Recorder) RecordDetection(timeframe string, zone models.ZoneType) {
	r.detections.WithLabelValues(timeframe, string(zone)).Inc()
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
