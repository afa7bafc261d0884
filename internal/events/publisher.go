package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Publisher delivers events to an external sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, batch []Event) (int, error)
	Close() error
}

type RedisStreamPublisher struct {
	client *redis.Client
	stream string
}

func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream}
}

func (p *RedisStreamPublisher) Name() string { return "redis" }

// Publish appends the events to the stream one by one and stops at the first
// failure, returning how many were appended.
func (p *RedisStreamPublisher) Publish(ctx context.Context, batch []Event) (int, error) {
	for i, ev := range batch {
		err := p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]any{
				"event_id":     strconv.FormatInt(ev.ID, 10),
				"type":         string(ev.Type),
				"aggregate_id": ev.AggregateID.String(),
				"payload":      string(ev.Payload),
				"created_at":   ev.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
		}).Err()
		if err != nil {
			return i, fmt.Errorf("xadd %s event %d: %w", ev.Type, ev.ID, err)
		}
	}
	return len(batch), nil
}

// Close is a no-op; the redis client is owned by the caller.
func (p *RedisStreamPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: int(kafka.RequireOne),
	})
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish writes the batch as one request keyed by aggregate id, so every
// fact about an appointment lands on the same partition in order.
func (p *KafkaPublisher) Publish(ctx context.Context, batch []Event) (int, error) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, ev := range batch {
		value, err := json.Marshal(ev)
		if err != nil {
			return 0, fmt.Errorf("marshal event %d: %w", ev.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.AggregateID.String()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(ev.Type)},
			},
			Time: ev.CreatedAt,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("write kafka messages: %w", err)
	}
	return len(batch), nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
