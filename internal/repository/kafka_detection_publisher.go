package repository

import (
	"context"

	"OBScan/internal/domain/models"
	"OBScan/internal/domain/repository"
	pkgkafka "OBScan/pkg/kafka"
)

// producer is the subset of *pkgkafka.Producer the publisher needs.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaDetectionPublisher writes detections as JSON keyed by symbol, so
// every result for one instrument lands on the same partition.
type KafkaDetectionPublisher struct {
	producer producer
	topic    string
}

func NewKafkaDetectionPublisher(p producer, topic string) *KafkaDetectionPublisher {
	return &KafkaDetectionPublisher{producer: p, topic: topic}
}

var _ repository.Publisher = (*KafkaDetectionPublisher)(nil)

func (p *KafkaDetectionPublisher) Publish(ctx context.Context, r *models.DetectionResult) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.ID), r)
}

func (p *KafkaDetectionPublisher) PublishBatch(ctx context.Context, rs []*models.DetectionResult) error {
	if len(rs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(rs))
	for _, r := range rs {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(r.ID), Value: r})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaDetectionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
