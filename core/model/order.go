package model

import (
	"fmt"
	"time"
)

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusAssigned   OrderStatus = "assigned"
	StatusAccepted   OrderStatus = "accepted"
	StatusPickedUp   OrderStatus = "picked_up"
	StatusOnDelivery OrderStatus = "on_delivery"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusPickedUp, StatusCancelled},
	StatusPickedUp:   {StatusOnDelivery, StatusCancelled},
	StatusOnDelivery: {StatusCompleted, StatusCancelled},
}

// ParseOrderStatus validates a status string.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	switch st {
	case StatusPending, StatusAssigned, StatusAccepted, StatusPickedUp,
		StatusOnDelivery, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// CanTransition reports whether moving from s to next is allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HoldsDriver reports whether an order in status s counts against its
// driver's capacity.
func (s OrderStatus) HoldsDriver() bool {
	switch s {
	case StatusAssigned, StatusAccepted, StatusPickedUp, StatusOnDelivery:
		return true
	}
	return false
}

// ServiceType identifies the kind of delivery requested.
type ServiceType string

const (
	ServiceFood ServiceType = "food"
	ServiceRide ServiceType = "ride"
)

// Order is a delivery request.
type Order struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"order_number"`
	CustomerID    string      `json:"customer_id"`
	CustomerPhone string      `json:"customer_phone"`
	CustomerName  string      `json:"customer_name,omitempty"`
	ChatID        string      `json:"chat_id"`
	ServiceType   ServiceType `json:"service_type"`

	// Free-form details filled by the API; the chat flow leaves them empty.
	PickupAddress   string      `json:"pickup_address,omitempty"`
	DeliveryAddress string      `json:"delivery_address,omitempty"`
	Details         string      `json:"details,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	DriverID        string      `json:"driver_id,omitempty"`
	Status          OrderStatus `json:"status"`
	CancelReason    string      `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	AssignedAt      *time.Time  `json:"assigned_at,omitempty"`
	AcceptedAt      *time.Time  `json:"accepted_at,omitempty"`
	PickedUpAt      *time.Time  `json:"picked_up_at,omitempty"`
	OnDeliveryAt    *time.Time  `json:"on_delivery_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
}

// HasDriver reports whether a driver is attached.
func (o Order) HasDriver() bool { return o.DriverID != "" }

// Stamp records the time the order entered status st.
func (o *Order) Stamp(st OrderStatus, at time.Time) {
	t := at
	switch st {
	case StatusAssigned:
		o.AssignedAt = &t
	case StatusAccepted:
		o.AcceptedAt = &t
	case StatusPickedUp:
		o.PickedUpAt = &t
	case StatusOnDelivery:
		o.OnDeliveryAt = &t
	case StatusCompleted:
		o.CompletedAt = &t
	case StatusCancelled:
		o.CancelledAt = &t
	}
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status   OrderStatus
	DriverID string
	Phone    string
	Limit    int
}

// Stats summarises order and driver activity.
type Stats struct {
	TotalOrders    int `json:"total_orders"`
	PendingOrders  int `json:"pending_orders"`
	CompletedToday int `json:"completed_today"`
	ActiveDrivers  int `json:"active_drivers"`
}
