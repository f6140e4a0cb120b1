package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/model"
)

// MemoryStore keeps everything in process memory. A single mutex makes every
// operation atomic.
type MemoryStore struct {
	mu        sync.RWMutex
	orders    map[string]model.Order
	numbers   map[string]string
	drivers   map[string]model.Driver
	customers map[string]model.Customer
	shifts    map[string]model.Shift
}

var _ dispatch.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    map[string]model.Order{},
		numbers:   map[string]string{},
		drivers:   map[string]model.Driver{},
		customers: map[string]model.Customer{},
		shifts:    map[string]model.Shift{},
	}
}

func (s *MemoryStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.numbers[o.OrderNumber]; ok {
		return fmt.Errorf("order number %s: %w", o.OrderNumber, dispatch.ErrDuplicate)
	}
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, dispatch.ErrDuplicate)
	}
	s.orders[o.ID] = *o
	s.numbers[o.OrderNumber] = o.ID
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("order %s: %w", id, dispatch.ErrNotFound)
	}
	return o, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, f model.OrderFilter) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.DriverID != "" && o.DriverID != f.DriverID {
			continue
		}
		if f.Phone != "" && o.CustomerPhone != f.Phone {
			continue
		}
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].OrderNumber > res[j].OrderNumber
	})
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (s *MemoryStore) OldestPending(_ context.Context, limit int) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Order
	for _, o := range s.orders {
		if o.Status == model.StatusPending && !o.HasDriver() {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].OrderNumber < res[j].OrderNumber
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *MemoryStore) CountOrdersSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.orders {
		if !o.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AssignOrder(_ context.Context, orderID, driverID string, capacity int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, dispatch.ErrNotFound)
	}
	if o.Status != model.StatusPending || o.HasDriver() {
		return fmt.Errorf("order %s is %s: %w", o.OrderNumber, o.Status, dispatch.ErrInvalidTransition)
	}
	d, ok := s.drivers[driverID]
	if !ok {
		return fmt.Errorf("driver %s: %w", driverID, dispatch.ErrNotFound)
	}
	if !d.Eligible(capacity) {
		return fmt.Errorf("driver %s: %w", driverID, dispatch.ErrAssignmentConflict)
	}
	d.CurrentOrderCount++
	s.drivers[driverID] = d
	o.DriverID = driverID
	o.Status = model.StatusAssigned
	o.Stamp(model.StatusAssigned, at)
	s.orders[orderID] = o
	return nil
}

func (s *MemoryStore) ReassignOrder(_ context.Context, orderID, driverID string, capacity int, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return "", fmt.Errorf("order %s: %w", orderID, dispatch.ErrNotFound)
	}
	if o.Status.Terminal() {
		return "", fmt.Errorf("order %s is %s: %w", o.OrderNumber, o.Status, dispatch.ErrInvalidTransition)
	}
	d, ok := s.drivers[driverID]
	if !ok {
		return "", fmt.Errorf("driver %s: %w", driverID, dispatch.ErrNotFound)
	}
	if !d.Active || d.CurrentOrderCount >= capacity {
		return "", fmt.Errorf("driver %s: %w", driverID, dispatch.ErrAssignmentConflict)
	}
	prev := o.DriverID
	if prev != "" && o.Status.HoldsDriver() {
		s.release(prev, false)
	}
	d = s.drivers[driverID]
	d.CurrentOrderCount++
	s.drivers[driverID] = d
	o.DriverID = driverID
	o.Status = model.StatusAssigned
	o.Stamp(model.StatusAssigned, at)
	s.orders[orderID] = o
	return prev, nil
}

func (s *MemoryStore) TransitionOrder(_ context.Context, orderID string, from, to model.OrderStatus, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, dispatch.ErrNotFound)
	}
	if o.Status != from || !from.CanTransition(to) {
		return fmt.Errorf("order %s %s -> %s: %w", o.OrderNumber, o.Status, to, dispatch.ErrInvalidTransition)
	}
	if to.Terminal() && o.HasDriver() && from.HoldsDriver() {
		s.release(o.DriverID, to == model.StatusCompleted)
	}
	o.Status = to
	if to == model.StatusCancelled {
		o.CancelReason = reason
	}
	o.Stamp(to, at)
	s.orders[orderID] = o
	return nil
}

// release decrements the driver's load, never below zero.
func (s *MemoryStore) release(driverID string, completed bool) {
	d, ok := s.drivers[driverID]
	if !ok {
		return
	}
	if d.CurrentOrderCount > 0 {
		d.CurrentOrderCount--
	}
	if completed {
		d.TotalCompleted++
	}
	s.drivers[driverID] = d
}

func (s *MemoryStore) Stats(_ context.Context, dayStart time.Time) (model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st model.Stats
	st.TotalOrders = len(s.orders)
	for _, o := range s.orders {
		if o.Status == model.StatusPending {
			st.PendingOrders++
		}
		if o.Status == model.StatusCompleted && o.CompletedAt != nil && !o.CompletedAt.Before(dayStart) {
			st.CompletedToday++
		}
	}
	for _, d := range s.drivers {
		if d.Active && d.OnDuty {
			st.ActiveDrivers++
		}
	}
	return st, nil
}

func (s *MemoryStore) CreateDriver(_ context.Context, d *model.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drivers[d.ID]; ok {
		return fmt.Errorf("driver %s: %w", d.ID, dispatch.ErrDuplicate)
	}
	s.drivers[d.ID] = *d
	return nil
}

func (s *MemoryStore) GetDriver(_ context.Context, id string) (model.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[id]
	if !ok {
		return model.Driver{}, fmt.Errorf("driver %s: %w", id, dispatch.ErrNotFound)
	}
	return d, nil
}

func (s *MemoryStore) ListDrivers(_ context.Context) ([]model.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) UpdateDriver(_ context.Context, d model.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.drivers[d.ID]
	if !ok {
		return fmt.Errorf("driver %s: %w", d.ID, dispatch.ErrNotFound)
	}
	d.CurrentOrderCount = cur.CurrentOrderCount
	d.TotalCompleted = cur.TotalCompleted
	d.CreatedAt = cur.CreatedAt
	s.drivers[d.ID] = d
	return nil
}

func (s *MemoryStore) UpsertCustomer(_ context.Context, phone, name string, at time.Time) (model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		c = model.Customer{ID: uuid.NewString(), Phone: phone}
	}
	if name != "" {
		c.Name = name
	}
	c.TotalOrders++
	t := at
	c.LastOrderAt = &t
	s.customers[phone] = c
	return c, nil
}

func (s *MemoryStore) GetCustomerByPhone(_ context.Context, phone string) (model.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[phone]
	if !ok {
		return model.Customer{}, fmt.Errorf("customer %s: %w", phone, dispatch.ErrNotFound)
	}
	return c, nil
}

func (s *MemoryStore) CreateShift(_ context.Context, sh *model.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shifts[sh.ID]; ok {
		return fmt.Errorf("shift %s: %w", sh.ID, dispatch.ErrDuplicate)
	}
	if err := s.shiftTaken(*sh); err != nil {
		return err
	}
	s.shifts[sh.ID] = *sh
	return nil
}

// shiftTaken reports another shift of the same driver, date and type.
func (s *MemoryStore) shiftTaken(sh model.Shift) error {
	for _, o := range s.shifts {
		if o.ID != sh.ID && o.DriverID == sh.DriverID && o.Date == sh.Date && o.Type == sh.Type {
			return fmt.Errorf("shift %s %s for %s: %w", sh.Type, sh.Date, sh.DriverID, dispatch.ErrDuplicate)
		}
	}
	return nil
}

func (s *MemoryStore) GetShift(_ context.Context, id string) (model.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shifts[id]
	if !ok {
		return model.Shift{}, fmt.Errorf("shift %s: %w", id, dispatch.ErrNotFound)
	}
	return sh, nil
}

func (s *MemoryStore) ListShifts(_ context.Context, f model.ShiftFilter) ([]model.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := []model.Shift{}
	for _, sh := range s.shifts {
		if f.Date != "" && sh.Date != f.Date {
			continue
		}
		if f.DriverID != "" && sh.DriverID != f.DriverID {
			continue
		}
		if f.ActiveOnly && !sh.IsActive {
			continue
		}
		res = append(res, sh)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Date != res[j].Date {
			return res[i].Date > res[j].Date
		}
		if res[i].Type != res[j].Type {
			return res[i].Type < res[j].Type
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *MemoryStore) UpdateShift(_ context.Context, sh model.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.shifts[sh.ID]
	if !ok {
		return fmt.Errorf("shift %s: %w", sh.ID, dispatch.ErrNotFound)
	}
	sh.DriverID = cur.DriverID
	sh.Date = cur.Date
	sh.CreatedAt = cur.CreatedAt
	if err := s.shiftTaken(sh); err != nil {
		return err
	}
	s.shifts[sh.ID] = sh
	return nil
}

func (s *MemoryStore) DeleteShift(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shifts[id]; !ok {
		return fmt.Errorf("shift %s: %w", id, dispatch.ErrNotFound)
	}
	delete(s.shifts, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
