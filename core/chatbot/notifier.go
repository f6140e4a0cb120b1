package chatbot

import (
	"context"
	"time"

	"github.com/kilianp07/kurir/core/events"
	"github.com/kilianp07/kurir/core/logger"
	"github.com/kilianp07/kurir/core/model"
	"github.com/kilianp07/kurir/internal/eventbus"
)

// lookupTimeout bounds the order lookup done for each notice.
const lookupTimeout = 5 * time.Second

// Notifier queues customer notices for assignments and status changes.
// Assignments made while creating the order are skipped since the
// confirmation already names the driver.
type Notifier struct {
	orders Orders
	out    Outbox
	log    logger.Logger

	// announce lists the statuses that produce a notice.
	announce map[model.OrderStatus]bool
}

// NewNotifier creates a Notifier. With transit set, picked_up and
// on_delivery are announced as well.
func NewNotifier(orders Orders, out Outbox, log logger.Logger, transit bool) *Notifier {
	if log == nil {
		log = logger.Nop{}
	}
	announce := map[model.OrderStatus]bool{
		model.StatusAccepted:  true,
		model.StatusCompleted: true,
		model.StatusCancelled: true,
	}
	if transit {
		announce[model.StatusPickedUp] = true
		announce[model.StatusOnDelivery] = true
	}
	return &Notifier{orders: orders, out: out, log: log, announce: announce}
}

// Attach registers the notifier as a synchronous bus handler.
func (n *Notifier) Attach(bus eventbus.EventBus) (cancel func()) {
	return bus.Handle(n.Handle)
}

// Handle reacts to a single bus event.
func (n *Notifier) Handle(ev eventbus.Event) {
	switch e := ev.(type) {
	case events.OrderAssigned:
		if e.Source == events.SourceCreate {
			return
		}
		n.notify(e.OrderID, DriverAssignedText(e.Driver))
	case events.OrderStatusChanged:
		if !n.announce[e.Status] {
			return
		}
		n.notify(e.OrderID, StatusText(e.Status, e.CancelReason))
	}
}

func (n *Notifier) notify(orderID, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	o, err := n.orders.Order(ctx, orderID)
	if err != nil {
		n.log.Errorf("notify order %s: %v", orderID, err)
		return
	}
	if o.ChatID == "" {
		return
	}
	n.out.Enqueue(o.ChatID, body)
}
