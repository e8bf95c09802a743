package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher ships events to a Kafka-compatible broker. Events are
// buffered on a channel and drained by a background worker so request
// handlers never block on broker round-trips; a full buffer drops the event
// with a warning rather than stalling the caller.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	inbox  chan Event
	done   chan struct{}
	logger *slog.Logger
}

// KafkaConfig configures the publisher.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	BufferSize int
}

// NewKafkaPublisher connects to the brokers and ensures the topic exists.
func NewKafkaPublisher(ctx context.Context, cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}

	return &KafkaPublisher{
		client: client,
		topic:  cfg.Topic,
		inbox:  make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, res := range resp {
		// An existing topic is fine, the bootstrap is idempotent.
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, res.Err)
		}
	}
	return nil
}

// Publish enqueues the event for the background worker. A full buffer drops
// the event; the response mutation it describes has already been committed.
func (p *KafkaPublisher) Publish(_ context.Context, event Event) error {
	select {
	case p.inbox <- event:
		return nil
	default:
		p.logger.Warn("event buffer full, dropping event",
			"type", event.Type,
			"survey_id", event.SurveyID,
		)
		return nil
	}
}

// Run drains the inbox until the context is cancelled, then flushes.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.client.Flush(flushCtx); err != nil {
				p.logger.Warn("event flush on shutdown failed", "error", err)
			}
			// Cancellation is the normal shutdown signal, not a failure.
			return nil
		case event := <-p.inbox:
			p.produce(ctx, event)
		}
	}
}

func (p *KafkaPublisher) produce(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal event", "type", event.Type, "error", err)
		return
	}
	record := &kgo.Record{
		Key:   []byte(event.SurveyID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("produce event",
				"type", event.Type,
				"survey_id", event.SurveyID,
				"error", err,
			)
		}
	})
}

// Close releases the broker connection. Call after Run has returned.
func (p *KafkaPublisher) Close() {
	<-p.done
	p.client.Close()
}
