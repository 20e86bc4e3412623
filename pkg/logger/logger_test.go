package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) all() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestNewWriter_EmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").With(String("component", "scanner"))

	l.Debug("hidden")
	l.Info("scan finished",
		Int("scanned", 100),
		Float64("ratio", 0.5),
		Bool("scheduled", true),
		Duration("took", 1500*time.Millisecond),
		Strings("symbols", []string{"BTCUSDT", "ETHUSDT"}),
	)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &m))
	assert.Equal(t, "scan finished", m["message"])
	assert.Equal(t, "scanner", m["component"])
	assert.Equal(t, 100.0, m["scanned"])
	assert.Equal(t, 1500.0, m["took"])
	assert.Equal(t, "BTCUSDT, ETHUSDT", m["symbols"])
	assert.Equal(t, true, m["scheduled"])
}

func TestNew_RejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestCollector_AggregatesErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := NewWriter(&bytes.Buffer{}, "debug")
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "obscan.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("fetch candles failed", String("symbol", "BTCUSDT"), Error(errors.New("timeout")))
	}
	l.Error("fetch candles failed", String("symbol", "ETHUSDT"))
	l.Warn("not collected")

	assert.Equal(t, 2, l.collector.Pending())
	l.RemoveCollector()

	got := pub.all()
	require.Len(t, got, 2)
	assert.Equal(t, "obscan.logs", pub.topic)
	assert.Equal(t, 3, got[0].Count)
	assert.Equal(t, "BTCUSDT", got[0].Fields["symbol"])
	assert.Equal(t, "timeout", got[0].Fields["error"])
	assert.Equal(t, 1, got[1].Count)
	assert.Contains(t, got[0].Caller, "logger_test.go")
}

func TestCollector_ThresholdFlush(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	c.Close()

	assert.Len(t, pub.all(), 2)
	assert.Equal(t, 0, c.Pending())
}
