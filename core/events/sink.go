package events

import (
	"context"
	"time"

	"github.com/kilianp07/kurir/core/factory"
	"github.com/kilianp07/kurir/core/logger"
	"github.com/kilianp07/kurir/internal/eventbus"
)

// Sink forwards domain events outside the process.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

var sinkRegistry = factory.NewRegistry[Sink]()

// RegisterSink adds a sink factory identified by name.
func RegisterSink(name string, f factory.Factory[Sink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkNames lists the registered sink types.
func SinkNames() []string { return sinkRegistry.Names() }

// NewSinks creates one sink per module config. Sinks created before a
// failure are closed.
func NewSinks(cfgs []factory.ModuleConfig) ([]Sink, error) {
	out := make([]Sink, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			for _, prev := range out {
				_ = prev.Close()
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Bridge subscribes to bus and forwards every domain event to sink from its
// own goroutine, so a slow broker never blocks publishers. Events are dropped
// when the bridge falls behind the subscription buffer. The bridge ends when
// ctx is canceled or the bus is closed.
func Bridge(ctx context.Context, bus eventbus.EventBus, sink Sink, log logger.Logger) {
	if log == nil {
		log = logger.Nop{}
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				ev, isEvent := raw.(Event)
				if !isEvent {
					continue
				}
				pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := sink.Publish(pctx, ev); err != nil {
					log.Warnf("forward %s: %v", ev.EventType(), err)
				}
				cancel()
			}
		}
	}()
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
func (NopSink) Close() error                         { return nil }

func init() {
	_ = RegisterSink("nop", func(map[string]any) (Sink, error) { return NopSink{}, nil })
}
