package dispatch

import (
	"context"
	"time"

	"github.com/kilianp07/kurir/core/model"
)

// OrderStore persists orders. Assignment and status changes are atomic with
// the matching driver counter update.
type OrderStore interface {
	// CreateOrder inserts o. It returns ErrDuplicate when the order number exists.
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
	// OldestPending returns pending orders without a driver, oldest first.
	OldestPending(ctx context.Context, limit int) ([]model.Order, error)
	// CountOrdersSince counts orders created at or after since.
	CountOrdersSince(ctx context.Context, since time.Time) (int, error)
	// AssignOrder attaches driverID to a pending order and increments the
	// driver's count in one transaction. It fails with ErrAssignmentConflict
	// when the driver is inactive, off duty or at capacity, and with
	// ErrInvalidTransition when the order is no longer pending.
	AssignOrder(ctx context.Context, orderID, driverID string, capacity int, at time.Time) error
	// ReassignOrder moves a non-terminal order to driverID, releasing the
	// previous driver. It returns the previous driver id, if any.
	ReassignOrder(ctx context.Context, orderID, driverID string, capacity int, at time.Time) (string, error)
	// TransitionOrder changes the status from -> to, conditional on the
	// current status being from. Entering a terminal status releases the
	// driver; completion also counts toward its total.
	TransitionOrder(ctx context.Context, orderID string, from, to model.OrderStatus, reason string, at time.Time) error
	Stats(ctx context.Context, dayStart time.Time) (model.Stats, error)
}

// DriverStore persists drivers. UpdateDriver never touches the counters.
type DriverStore interface {
	CreateDriver(ctx context.Context, d *model.Driver) error
	GetDriver(ctx context.Context, id string) (model.Driver, error)
	ListDrivers(ctx context.Context) ([]model.Driver, error)
	UpdateDriver(ctx context.Context, d model.Driver) error
}

// CustomerStore persists customers keyed by phone.
type CustomerStore interface {
	// UpsertCustomer creates the customer or bumps its order count.
	UpsertCustomer(ctx context.Context, phone, name string, at time.Time) (model.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (model.Customer, error)
}

// ShiftStore persists driver shifts.
type ShiftStore interface {
	// CreateShift returns ErrDuplicate when the driver already holds the
	// same type on the same date.
	CreateShift(ctx context.Context, s *model.Shift) error
	GetShift(ctx context.Context, id string) (model.Shift, error)
	// ListShifts returns the newest dates first, then slots by type.
	ListShifts(ctx context.Context, f model.ShiftFilter) ([]model.Shift, error)
	UpdateShift(ctx context.Context, s model.Shift) error
	DeleteShift(ctx context.Context, id string) error
}

// Store is the full persistence boundary of the dispatcher.
type Store interface {
	OrderStore
	DriverStore
	CustomerStore
	ShiftStore
	Close() error
}
