package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/kurir/core/events"
	"github.com/kilianp07/kurir/core/factory"
	coremqtt "github.com/kilianp07/kurir/core/mqtt"
)

// Envelope is the JSON document published for every event.
type Envelope struct {
	ID   string       `json:"id"`
	Type string       `json:"type"`
	Time time.Time    `json:"time"`
	Data events.Event `json:"data"`
}

// EventSink publishes domain events to <prefix>/<event type>.
type EventSink struct {
	pub    coremqtt.Publisher
	prefix string
	now    func() time.Time
}

var _ events.Sink = (*EventSink)(nil)

// NewEventSink wraps a publisher.
func NewEventSink(pub coremqtt.Publisher, prefix string) *EventSink {
	return &EventSink{pub: pub, prefix: strings.TrimSuffix(prefix, "/"), now: time.Now}
}

// Topic returns the topic used for an event type.
func (s *EventSink) Topic(eventType string) string {
	if s.prefix == "" {
		return eventType
	}
	return s.prefix + "/" + eventType
}

// Publish implements events.Sink. The paho client blocks on its own token, so
// ctx is only checked before sending.
func (s *EventSink) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{
		ID:   uuid.NewString(),
		Type: ev.EventType(),
		Time: s.now().UTC(),
		Data: ev,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return s.pub.Publish(s.Topic(ev.EventType()), payload)
}

// Close disconnects the publisher.
func (s *EventSink) Close() error {
	s.pub.Disconnect()
	return nil
}

func init() {
	_ = events.RegisterSink("mqtt", func(conf map[string]any) (events.Sink, error) {
		var cfg Config
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		cli, err := NewPahoClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewEventSink(cli, cfg.TopicPrefix), nil
	})
}
