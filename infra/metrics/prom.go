package metrics

import (
	"errors"
	"strconv"

	coremetrics "github.com/kilianp07/kurir/core/metrics"
	"github.com/kilianp07/kurir/core/model"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records engine activity in Prometheus metrics.
type PromSink struct {
	deliveries  *prometheus.CounterVec
	wait        *prometheus.HistogramVec
	assignments *prometheus.CounterVec
	inbound     *prometheus.CounterVec
	orders      *prometheus.CounterVec
	channels    *prometheus.GaugeVec
	queue       prometheus.Gauge
}

var (
	_ coremetrics.AssignmentRecorder   = (*PromSink)(nil)
	_ coremetrics.InboundRecorder      = (*PromSink)(nil)
	_ coremetrics.QueueDepthRecorder   = (*PromSink)(nil)
	_ coremetrics.OrderStatusRecorder  = (*PromSink)(nil)
	_ coremetrics.ChannelStateRecorder = (*PromSink)(nil)
)

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kurir_deliveries_total",
			Help: "Outbound send attempts by channel and result",
		}, []string{"channel_id", "success"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kurir_delivery_wait_seconds",
			Help:    "Time a message spent queued before a successful send",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 900},
		}, []string{"channel_id"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kurir_assignments_total",
			Help: "Driver assignments by source and result",
		}, []string{"source", "success"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kurir_inbound_messages_total",
			Help: "Inbound messages by channel and outcome",
		}, []string{"channel_id", "outcome"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kurir_order_transitions_total",
			Help: "Orders entering each lifecycle status",
		}, []string{"status"}),
		channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kurir_channel_ready",
			Help: "1 when the channel is ready to send",
		}, []string{"channel_id"}),
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kurir_delivery_queue_depth",
			Help: "Messages waiting in the delivery queue",
		}),
	}
	var err error
	if s.deliveries, err = register(reg, s.deliveries); err != nil {
		return nil, err
	}
	if s.wait, err = register(reg, s.wait); err != nil {
		return nil, err
	}
	if s.assignments, err = register(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.inbound, err = register(reg, s.inbound); err != nil {
		return nil, err
	}
	if s.orders, err = register(reg, s.orders); err != nil {
		return nil, err
	}
	if s.channels, err = register(reg, s.channels); err != nil {
		return nil, err
	}
	if s.queue, err = register(reg, s.queue); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDelivery counts the attempt and observes the queue wait of successful sends.
func (s *PromSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	s.deliveries.WithLabelValues(ev.ChannelID, strconv.FormatBool(ev.Success)).Inc()
	if ev.Success {
		s.wait.WithLabelValues(ev.ChannelID).Observe(ev.Wait.Seconds())
	}
	return nil
}

// RecordAssignment counts the assignment.
func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	s.assignments.WithLabelValues(ev.Source, strconv.FormatBool(ev.Success)).Inc()
	return nil
}

// RecordInbound counts the inbound outcome.
func (s *PromSink) RecordInbound(ev coremetrics.InboundEvent) error {
	s.inbound.WithLabelValues(ev.ChannelID, ev.Outcome).Inc()
	return nil
}

// RecordQueueDepth sets the queue gauge.
func (s *PromSink) RecordQueueDepth(depth int) error {
	s.queue.Set(float64(depth))
	return nil
}

// RecordOrderStatus counts the transition.
func (s *PromSink) RecordOrderStatus(ev coremetrics.OrderStatusEvent) error {
	s.orders.WithLabelValues(ev.Status).Inc()
	return nil
}

// RecordChannelState sets the readiness gauge of the channel.
func (s *PromSink) RecordChannelState(ev coremetrics.ChannelStateEvent) error {
	v := 0.0
	if ev.State == model.ChannelReady.String() {
		v = 1
	}
	s.channels.WithLabelValues(ev.ChannelID).Set(v)
	return nil
}
