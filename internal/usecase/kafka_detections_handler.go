package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
	pkgkafka "OBScan/pkg/kafka"
)

// KafkaDetectionsHandler consumes published detections and writes them to
// history storage.
type KafkaDetectionsHandler struct {
	topic   string
	storage drepo.Storage
	metrics drepo.Metrics
}

func NewKafkaDetectionsHandler(topic string, storage drepo.Storage, metrics drepo.Metrics) *KafkaDetectionsHandler {
	return &KafkaDetectionsHandler{topic: topic, storage: storage, metrics: metrics}
}

var _ pkgkafka.MessageHandler = (*KafkaDetectionsHandler)(nil)

func (h *KafkaDetectionsHandler) Topic() string { return h.topic }

// Handle stores one JSON encoded DetectionResult. Undecodable payloads are
// returned as errors so the consumer dead-letters them.
func (h *KafkaDetectionsHandler) Handle(ctx context.Context, b []byte) error {
	var r models.DetectionResult
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode detection: %w", err)
	}
	if r.ID == "" || r.Timestamp.IsZero() {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("detection without symbol or timestamp")
	}

	// publish to store lag
	h.metrics.RecordLatency("ingest_lag", time.Since(r.Timestamp).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &r)
	h.metrics.RecordLatency("history_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent(BackendClickHouse, r.ID)
	return nil
}
