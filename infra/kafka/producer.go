package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/kilianp07/kurir/core/events"
	"github.com/kilianp07/kurir/core/factory"
	"github.com/kilianp07/kurir/core/logger"
	infralog "github.com/kilianp07/kurir/infra/logger"
)

// EventSink publishes domain events as JSON records. Records are keyed by
// order or channel id and carry the event type in the "type" header.
type EventSink struct {
	producer sarama.SyncProducer
	topic    string
	log      logger.Logger
}

var _ events.Sink = (*EventSink)(nil)

// NewEventSink wraps an existing producer.
func NewEventSink(producer sarama.SyncProducer, topic string, log logger.Logger) *EventSink {
	return &EventSink{producer: producer, topic: topic, log: infralog.OrNop(log)}
}

// Dial connects a synchronous producer to the configured brokers.
func Dial(c Config) (*EventSink, error) {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfg, err := NewSaramaConfig(c)
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewSyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewEventSink(p, c.Topic, infralog.New("kafka")), nil
}

type record struct {
	ID   string       `json:"id"`
	Type string       `json:"type"`
	Data events.Event `json:"data"`
}

// Key returns the partition key of an event.
func Key(ev events.Event) string {
	switch e := ev.(type) {
	case events.OrderCreated:
		return e.Order.ID
	case events.OrderAssigned:
		return e.OrderID
	case events.OrderStatusChanged:
		return e.OrderID
	case events.ChannelStatusChanged:
		return e.ChannelID
	}
	return ev.EventType()
}

// Publish implements events.Sink.
func (s *EventSink) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := uuid.NewString()
	value, err := json.Marshal(record{ID: id, Type: ev.EventType(), Data: ev})
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Key:       sarama.StringEncoder(Key(ev)),
		Value:     sarama.ByteEncoder(value),
		Headers:   []sarama.RecordHeader{{Key: []byte("type"), Value: []byte(ev.EventType())}},
		Timestamp: time.Now(),
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s: %w", ev.EventType(), err)
	}
	s.log.Debugf("event %s (%s) sent to partition %d at offset %d", id, ev.EventType(), partition, offset)
	return nil
}

// Close closes the producer.
func (s *EventSink) Close() error {
	return s.producer.Close()
}

func init() {
	_ = events.RegisterSink("kafka", func(conf map[string]any) (events.Sink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		s, err := Dial(c)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
