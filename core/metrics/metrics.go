package metrics

import "time"

// DeliveryEvent describes one outbound send attempt.
type DeliveryEvent struct {
	ChannelID string
	Success   bool
	Error     string
	// Wait is the time the message spent in the queue.
	Wait time.Duration
	Time time.Time
}

// MetricsSink records delivery attempts. Other recorders are optional and
// discovered with type assertions.
type MetricsSink interface {
	RecordDelivery(ev DeliveryEvent) error
}

// AssignmentEvent describes an auto or manual driver assignment.
type AssignmentEvent struct {
	OrderNumber string
	DriverID    string
	Source      string
	Success     bool
	Time        time.Time
}

// AssignmentRecorder records driver assignments.
type AssignmentRecorder interface {
	RecordAssignment(ev AssignmentEvent) error
}

// Inbound outcomes.
const (
	OutcomeDuplicate = "duplicate"
	OutcomeBlocked   = "blocked"
	OutcomeCooldown  = "cooldown"
	OutcomeInvalid   = "invalid"
	OutcomeOrder     = "order"
	OutcomeMenu      = "menu"
	OutcomeFailed    = "failed"
)

// InboundEvent is the outcome of processing one inbound message.
type InboundEvent struct {
	ChannelID string
	Outcome   string
	Time      time.Time
}

// InboundRecorder records inbound message outcomes.
type InboundRecorder interface {
	RecordInbound(ev InboundEvent) error
}

// QueueDepthRecorder records the delivery queue length.
type QueueDepthRecorder interface {
	RecordQueueDepth(depth int) error
}

// OrderStatusEvent is an order entering a lifecycle status.
type OrderStatusEvent struct {
	OrderNumber string
	Status      string
	Time        time.Time
}

// OrderStatusRecorder records order lifecycle transitions.
type OrderStatusRecorder interface {
	RecordOrderStatus(ev OrderStatusEvent) error
}

// ChannelStateEvent is a channel lifecycle transition.
type ChannelStateEvent struct {
	ChannelID string
	State     string
	Primary   bool
	Time      time.Time
}

// ChannelStateRecorder records channel readiness.
type ChannelStateRecorder interface {
	RecordChannelState(ev ChannelStateEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDelivery(DeliveryEvent) error         { return nil }
func (NopSink) RecordAssignment(AssignmentEvent) error     { return nil }
func (NopSink) RecordInbound(InboundEvent) error           { return nil }
func (NopSink) RecordQueueDepth(int) error                 { return nil }
func (NopSink) RecordOrderStatus(OrderStatusEvent) error   { return nil }
func (NopSink) RecordChannelState(ChannelStateEvent) error { return nil }

// MultiSink fans out records to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDelivery forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDelivery(ev DeliveryEvent) error {
	var first error
	for _, s := range m.Sinks {
		if err := s.RecordDelivery(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RecordAssignment forwards assignment events.
func (m *MultiSink) RecordAssignment(ev AssignmentEvent) error {
	var first error
	for _, s := range m.Sinks {
		if rec, ok := s.(AssignmentRecorder); ok {
			if err := rec.RecordAssignment(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// RecordInbound forwards inbound outcomes.
func (m *MultiSink) RecordInbound(ev InboundEvent) error {
	var first error
	for _, s := range m.Sinks {
		if rec, ok := s.(InboundRecorder); ok {
			if err := rec.RecordInbound(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// RecordQueueDepth forwards queue depth when supported by the sink.
func (m *MultiSink) RecordQueueDepth(depth int) error {
	var first error
	for _, s := range m.Sinks {
		if rec, ok := s.(QueueDepthRecorder); ok {
			if err := rec.RecordQueueDepth(depth); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// RecordOrderStatus forwards order transitions.
func (m *MultiSink) RecordOrderStatus(ev OrderStatusEvent) error {
	var first error
	for _, s := range m.Sinks {
		if rec, ok := s.(OrderStatusRecorder); ok {
			if err := rec.RecordOrderStatus(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// RecordChannelState forwards channel transitions.
func (m *MultiSink) RecordChannelState(ev ChannelStateEvent) error {
	var first error
	for _, s := range m.Sinks {
		if rec, ok := s.(ChannelStateRecorder); ok {
			if err := rec.RecordChannelState(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
