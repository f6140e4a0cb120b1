package events

import (
	"time"

	"github.com/kilianp07/kurir/core/model"
)

// Type names used as routing keys by the event bridges.
const (
	TypeChannelStatus = "channel_status"
	TypeOrderCreated  = "order_created"
	TypeOrderAssigned = "order_assigned"
	TypeOrderStatus   = "order_status"
)

// Event is implemented by every domain event.
type Event interface {
	EventType() string
}

// ChannelStatusChanged is published on every channel lifecycle transition.
type ChannelStatusChanged struct {
	ChannelID   string             `json:"channel_id"`
	Name        string             `json:"name"`
	State       model.ChannelState `json:"state"`
	IsPrimary   bool               `json:"is_primary"`
	Phone       string             `json:"phone,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	PairingCode string             `json:"pairing_code,omitempty"`
	Time        time.Time          `json:"time"`
}

func (ChannelStatusChanged) EventType() string { return TypeChannelStatus }

// OrderCreated is published when an order is persisted.
type OrderCreated struct {
	Order model.Order `json:"order"`
	Time  time.Time   `json:"time"`
}

func (OrderCreated) EventType() string { return TypeOrderCreated }

// AssignSource tells why an assignment happened.
type AssignSource string

const (
	SourceCreate   AssignSource = "create"
	SourceBackfill AssignSource = "backfill"
	SourceManual   AssignSource = "manual"
	SourceRetry    AssignSource = "retry"
)

// OrderAssigned is published when a driver is attached to an order.
type OrderAssigned struct {
	OrderID     string       `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	Driver      model.Driver `json:"driver"`
	Source      AssignSource `json:"source"`
	Time        time.Time    `json:"time"`
}

func (OrderAssigned) EventType() string { return TypeOrderAssigned }

// OrderStatusChanged is published after a successful status transition.
type OrderStatusChanged struct {
	OrderID      string            `json:"order_id"`
	OrderNumber  string            `json:"order_number"`
	From         model.OrderStatus `json:"from"`
	Status       model.OrderStatus `json:"status"`
	CancelReason string            `json:"cancel_reason,omitempty"`
	Time         time.Time         `json:"time"`
}

func (OrderStatusChanged) EventType() string { return TypeOrderStatus }
