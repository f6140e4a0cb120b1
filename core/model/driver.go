package model

import "time"

// DriverCapacity is the maximum number of active orders a driver may hold.
const DriverCapacity = 2

// Priority levels accepted for priority drivers.
const (
	MinPriorityLevel = 1
	MaxPriorityLevel = 10
)

// Driver is a courier that can be assigned orders.
type Driver struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Phone             string    `json:"phone"`
	OnDuty            bool      `json:"on_duty"`
	Active            bool      `json:"active"`
	IsPriority        bool      `json:"is_priority"`
	PriorityLevel     int       `json:"priority_level"`
	CurrentOrderCount int       `json:"current_order_count"`
	TotalCompleted    int       `json:"total_completed"`
	CreatedAt         time.Time `json:"created_at"`
}

// Eligible reports whether the driver can take another order under capacity.
func (d Driver) Eligible(capacity int) bool {
	return d.Active && d.OnDuty && d.CurrentOrderCount < capacity
}

// FreeCapacity returns how many more orders the driver can take.
func (d Driver) FreeCapacity(capacity int) int {
	if free := capacity - d.CurrentOrderCount; free > 0 {
		return free
	}
	return 0
}

// ClampPriority bounds a priority level to the accepted range.
func ClampPriority(level int) int {
	if level < MinPriorityLevel {
		return MinPriorityLevel
	}
	if level > MaxPriorityLevel {
		return MaxPriorityLevel
	}
	return level
}
