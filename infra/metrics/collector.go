package metrics

import (
	"github.com/kilianp07/kurir/core/events"
	coremetrics "github.com/kilianp07/kurir/core/metrics"
	"github.com/kilianp07/kurir/core/model"
	"github.com/kilianp07/kurir/internal/eventbus"
)

// StartEventCollector records order and channel transitions published on the
// bus. Sinks that do not implement the matching recorder are skipped. The
// returned function detaches the collector.
func StartEventCollector(bus eventbus.EventBus, sink coremetrics.MetricsSink) (stop func()) {
	if bus == nil || sink == nil {
		return func() {}
	}
	orders, _ := sink.(coremetrics.OrderStatusRecorder)
	channels, _ := sink.(coremetrics.ChannelStateRecorder)
	if orders == nil && channels == nil {
		return func() {}
	}
	return bus.Handle(func(ev eventbus.Event) {
		switch e := ev.(type) {
		case events.OrderCreated:
			if orders != nil {
				_ = orders.RecordOrderStatus(coremetrics.OrderStatusEvent{
					OrderNumber: e.Order.OrderNumber,
					Status:      string(model.StatusPending),
					Time:        e.Time,
				})
			}
		case events.OrderAssigned:
			if orders != nil {
				_ = orders.RecordOrderStatus(coremetrics.OrderStatusEvent{
					OrderNumber: e.OrderNumber,
					Status:      string(model.StatusAssigned),
					Time:        e.Time,
				})
			}
		case events.OrderStatusChanged:
			if orders != nil {
				_ = orders.RecordOrderStatus(coremetrics.OrderStatusEvent{
					OrderNumber: e.OrderNumber,
					Status:      string(e.Status),
					Time:        e.Time,
				})
			}
		case events.ChannelStatusChanged:
			if channels != nil {
				_ = channels.RecordChannelState(coremetrics.ChannelStateEvent{
					ChannelID: e.ChannelID,
					State:     e.State.String(),
					Primary:   e.IsPrimary,
					Time:      e.Time,
				})
			}
		}
	})
}
