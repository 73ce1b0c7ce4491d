// Package events publishes write-once analytics records to Kafka so that
// downstream consumers (reporting, alerting) see optimizer actions, A/B
// results and ad errors as they happen. Records are already persisted in
// the document store before they are published; a failed publish is logged
// and counted, never surfaced to the caller.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/keyxmakerx/adpilot/internal/config"
	"github.com/keyxmakerx/adpilot/internal/metrics"
)

// Publisher sends one record. kind names the record type ("optimizer_actions",
// "ab_results", ...) and selects the topic; key partitions by automation.
type Publisher interface {
	Publish(ctx context.Context, kind, key string, payload any) error
	Close() error
}

// Noop discards every record. Used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error { return nil }
func (Noop) Close() error                                       { return nil }

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each record to "<prefix>.<kind>".
type KafkaPublisher struct {
	writer messageWriter
	prefix string
}

// New returns a KafkaPublisher for the configured brokers, or Noop when none
// are set.
func New(cfg config.KafkaConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		slog.Info("event publishing disabled, no kafka brokers configured")
		return Noop{}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		// Topics are created on first publish in development clusters.
		AllowAutoTopicCreation: true,
	}

	slog.Info("event publishing enabled",
		slog.Any("brokers", cfg.Brokers),
		slog.String("topic_prefix", cfg.TopicPrefix),
	)
	return newKafkaPublisher(w, cfg.TopicPrefix)
}

func newKafkaPublisher(w messageWriter, prefix string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, prefix: prefix}
}

// Topic returns the topic for a record kind.
func (p *KafkaPublisher) Topic(kind string) string {
	if p.prefix == "" {
		return kind
	}
	return p.prefix + "." + kind
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, kind, key string, payload any) error {
	topic := p.Topic(kind)

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("encoding %s event: %w", kind, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(kind)},
		},
		Time: time.Now().UTC(),
	})
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(topic, "error").Inc()
		slog.Warn("event publish failed",
			slog.String("topic", topic),
			slog.String("key", key),
			slog.Any("error", err),
		)
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(topic, "success").Inc()
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
