package usecase

import (
	"context"
	"fmt"
	"time"

	"OBScan/internal/domain/models"
	drepo "OBScan/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"
)

// DetectionProcessor routes detections with a zone to the configured
// backend: published to Kafka, written straight to ClickHouse, or dropped.
// ZoneNone results only live in the result cache.
type DetectionProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

func NewDetectionProcessor(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *DetectionProcessor {
	return &DetectionProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

func (p *DetectionProcessor) Backend() string { return p.backend }

// Process forwards one result.
func (p *DetectionProcessor) Process(ctx context.Context, r *models.DetectionResult) error {
	if r == nil {
		return fmt.Errorf("detection is nil")
	}
	if !r.Found() || p.backend == BackendNone {
		return nil
	}

	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, r)
	case BackendClickHouse:
		err = p.store.Store(ctx, r)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process detection %s: %w", r.ID, err)
	}

	p.metrics.RecordMessageSent(p.backend, r.ID)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch forwards every result with a zone in one backend call.
func (p *DetectionProcessor) ProcessBatch(ctx context.Context, rs []*models.DetectionResult) error {
	if p.backend == BackendNone {
		return nil
	}
	found := make([]*models.DetectionResult, 0, len(rs))
	for _, r := range rs {
		if r != nil && r.Found() {
			found = append(found, r)
		}
	}
	if len(found) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, found)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, found)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, r := range found {
		p.metrics.RecordMessageSent(p.backend, r.ID)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

// Close releases the publisher and storage when present.
func (p *DetectionProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
