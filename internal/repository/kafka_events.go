package repository

import (
	"context"
	"time"

	"CostPull/internal/domain/models"
	domrepo "CostPull/internal/domain/repository"
	pkgkafka "CostPull/pkg/kafka"
)

// KafkaEventPublisher emits pipeline events for downstream alerting
// consumers. Keys are provider names so per-provider ordering is preserved
// by partition hashing.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

type batchStoredEvent struct {
	Type     string    `json:"type"`
	Provider string    `json:"provider"`
	Window   string    `json:"window"`
	Count    int       `json:"count"`
	At       time.Time `json:"at"`
}

type anomalyEvent struct {
	Type    string         `json:"type"`
	Anomaly models.Anomaly `json:"anomaly"`
}

func (p *KafkaEventPublisher) PublishBatchStored(ctx context.Context, provider string, window models.Window, count int) error {
	return p.producer.Publish(ctx, p.topic, []byte(provider), batchStoredEvent{
		Type:     "batch_stored",
		Provider: provider,
		Window:   window.String(),
		Count:    count,
		At:       time.Now().UTC(),
	})
}

func (p *KafkaEventPublisher) PublishAnomaly(ctx context.Context, a models.Anomaly) error {
	return p.producer.Publish(ctx, p.topic, []byte(a.Provider), anomalyEvent{
		Type:    "anomaly_detected",
		Anomaly: a,
	})
}

func (p *KafkaEventPublisher) Close() error { return p.producer.Close() }

// NoopEventPublisher is used when Kafka is disabled in config.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishBatchStored(context.Context, string, models.Window, int) error {
	return nil
}
func (NoopEventPublisher) PublishAnomaly(context.Context, models.Anomaly) error { return nil }
func (NoopEventPublisher) Close() error                                         { return nil }

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher = NoopEventPublisher{}
)
