package model

import "time"

// Customer is the sender of orders, keyed by normalized phone number.
type Customer struct {
	ID          string     `json:"id"`
	Phone       string     `json:"phone"`
	Name        string     `json:"name,omitempty"`
	TotalOrders int        `json:"total_orders"`
	LastOrderAt *time.Time `json:"last_order_at,omitempty"`
}
