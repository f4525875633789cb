// Package events publishes accepted articles to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

// KafkaPublisher sends one message per article keyed by content hash.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

var _ ports.ArticlePublisher = (*KafkaPublisher)(nil)

// NewSaramaConfig returns the producer settings used in production.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// Dial connects a sync producer to the brokers.
func Dial(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisher(producer, topic, logger), nil
}

// NewKafkaPublisher wraps an existing producer.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger.With("component", "kafka")}
}

// PublishArticles sends the batch; per-message failures are joined into the returned error.
func (p *KafkaPublisher) PublishArticles(ctx context.Context, articles []domain.Article) error {
	if len(articles) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(articles))
	for _, a := range articles {
		value, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode article %s: %w", a.ContentHash, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(a.ContentHash),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("source"), Value: []byte(a.Source)},
			},
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		var perMessage sarama.ProducerErrors
		if errors.As(err, &perMessage) {
			failed := make([]error, 0, len(perMessage))
			for _, pe := range perMessage {
				failed = append(failed, pe)
			}
			p.logger.Warn("some articles were not published", "failed", len(perMessage), "total", len(msgs))
			return fmt.Errorf("publish articles: %w", errors.Join(failed...))
		}
		return fmt.Errorf("publish articles: %w", err)
	}
	p.logger.Debug("articles published", "count", len(msgs), "topic", p.topic)
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
