package metrics

import (
	"testing"
	"time"

	"OBScan/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordScan("4h", 100, 3*time.Second)
	r.RecordScan("4h", 100, 2*time.Second)
	r.RecordDetection("4h", models.ZoneBullish)
	r.RecordDetection("4h", models.ZoneNone)
	r.RecordDetection("4h", models.ZoneNone)
	r.RecordError("candles")
	r.RecordLastPrice("BTCUSDT", 64000)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.scansTotal.WithLabelValues("4h")))
	assert.Equal(t, 100.0, testutil.ToFloat64(r.scanSize.WithLabelValues("4h")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.detections.WithLabelValues("4h", "BullishOB")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.detections.WithLabelValues("4h", "None")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("candles")))
	assert.Equal(t, 64000.0, testutil.ToFloat64(r.lastPrice.WithLabelValues("BTCUSDT")))
}
