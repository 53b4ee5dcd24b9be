// Package publisher delivers committed user lifecycle events to Kafka.
package publisher

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

	"github.com/changeuikim/vercel-kayce/internal/user/models"
)

const eventTypeHeader = "event-type"

// Kafka publishes one record per event, keyed by user id so every
// transition of a user lands on the same partition in commit order.
type Kafka struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(*Kafka)

func WithLogger(logger *slog.Logger) Option {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// WithTimeout bounds a single Publish call. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(k *Kafka) {
		if d > 0 {
			k.timeout = d
		}
	}
}

func NewKafka(brokers []string, topic string, opts ...Option) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher needs at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka publisher needs a topic")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	k := &Kafka{client: client, topic: topic, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// EnsureTopic creates the topic when it does not exist yet.
func (k *Kafka) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(k.client)
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", k.topic, resp.Err)
	}
	if k.logger != nil && resp.Err == nil {
		k.logger.InfoContext(ctx, "kafka topic created", "topic", k.topic, "partitions", partitions)
	}
	return nil
}

// Publish produces event synchronously.
func (k *Kafka) Publish(ctx context.Context, event models.Event) error {
	rec, err := Record(k.topic, event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s for user %s: %w", event.Type, event.UserID, err)
	}
	return nil
}

func (k *Kafka) Close() {
	k.client.Close()
}

// Record encodes event as a Kafka record for topic.
func Record(topic string, event models.Event) (*kgo.Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(event.UserID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: eventTypeHeader, Value: []byte(event.Type)},
		},
		Timestamp: event.OccurredAt,
	}, nil
}

// Decode reads an event back from a record value.
func Decode(rec *kgo.Record) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return models.Event{}, fmt.Errorf("decode lifecycle event: %w", err)
	}
	return event, nil
}
