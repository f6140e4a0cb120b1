package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/kurir/core/events"
	"github.com/kilianp07/kurir/core/logger"
	coremetrics "github.com/kilianp07/kurir/core/metrics"
	"github.com/kilianp07/kurir/core/model"
	"github.com/kilianp07/kurir/internal/eventbus"
)

// maxOrderNumberAttempts bounds the retries on an order number collision.
const maxOrderNumberAttempts = 10

// OrderRequest carries the input of CreateOrder.
type OrderRequest struct {
	Phone           string            `json:"phone"`
	Name            string            `json:"name,omitempty"`
	ChatID          string            `json:"chat_id,omitempty"`
	ServiceType     model.ServiceType `json:"service_type"`
	PickupAddress   string            `json:"pickup_address,omitempty"`
	DeliveryAddress string            `json:"delivery_address,omitempty"`
	Details         string            `json:"details,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

// DriverPatch is a partial driver update. Nil fields are left unchanged.
type DriverPatch struct {
	Name          *string `json:"name,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Active        *bool   `json:"active,omitempty"`
	OnDuty        *bool   `json:"on_duty,omitempty"`
	IsPriority    *bool   `json:"is_priority,omitempty"`
	PriorityLevel *int    `json:"priority_level,omitempty"`
}

// Dispatcher owns the order lifecycle and driver assignment.
type Dispatcher struct {
	store   Store
	bus     eventbus.EventBus
	log     logger.Logger
	metrics coremetrics.MetricsSink
	cfg     Config
	loc     *time.Location
	now     func() time.Time
}

// New creates a Dispatcher. bus and sink may be nil.
func New(cfg Config, store Store, bus eventbus.EventBus, log logger.Logger, sink coremetrics.MetricsSink) (*Dispatcher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, _ := cfg.Location()
	if log == nil {
		log = logger.Nop{}
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Dispatcher{
		store:   store,
		bus:     bus,
		log:     log,
		metrics: sink,
		cfg:     cfg,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// SetClock overrides the time source.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config { return d.cfg }

// CreateOrder validates the request, persists a pending order and tries to
// auto-assign it. The returned order reflects the assignment, if any.
func (d *Dispatcher) CreateOrder(ctx context.Context, req OrderRequest) (model.Order, error) {
	phone, err := NormalizePhone(req.Phone, d.cfg.CountryCode)
	if err != nil {
		return model.Order{}, err
	}
	switch req.ServiceType {
	case model.ServiceFood, model.ServiceRide:
	default:
		return model.Order{}, fmt.Errorf("%w: unknown service type %q", ErrValidation, req.ServiceType)
	}
	now := d.now()
	cust, err := d.store.UpsertCustomer(ctx, phone, req.Name, now)
	if err != nil {
		return model.Order{}, fmt.Errorf("upsert customer: %w", err)
	}
	chatID := req.ChatID
	if chatID == "" {
		chatID = phone
	}
	o := model.Order{
		ID:              uuid.NewString(),
		CustomerID:      cust.ID,
		CustomerPhone:   phone,
		CustomerName:    req.Name,
		ChatID:          chatID,
		ServiceType:     req.ServiceType,
		PickupAddress:   req.PickupAddress,
		DeliveryAddress: req.DeliveryAddress,
		Details:         req.Details,
		Notes:           req.Notes,
		Status:          model.StatusPending,
		CreatedAt:       now,
	}
	if err := d.insertWithNumber(ctx, &o); err != nil {
		return model.Order{}, err
	}
	d.log.Infof("order %s created for %s (%s)", o.OrderNumber, phone, o.ServiceType)
	d.publish(events.OrderCreated{Order: o, Time: now})

	if _, ok, err := d.autoAssign(ctx, o, events.SourceCreate); err != nil {
		d.log.Errorf("auto-assign %s: %v", o.OrderNumber, err)
	} else if !ok {
		d.log.Infof("order %s waiting for a driver", o.OrderNumber)
	}
	return d.store.GetOrder(ctx, o.ID)
}

// insertWithNumber allocates the next daily order number and inserts o,
// retrying when a concurrent insert took the same number.
func (d *Dispatcher) insertWithNumber(ctx context.Context, o *model.Order) error {
	local := o.CreatedAt.In(d.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.loc)
	tried := 0
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		n, err := d.store.CountOrdersSince(ctx, dayStart)
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		seq := n + 1
		if seq <= tried {
			seq = tried + 1
		}
		tried = seq
		o.OrderNumber = fmt.Sprintf("%s%s%04d", d.cfg.OrderPrefix, local.Format("20060102"), seq)
		err = d.store.CreateOrder(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return fmt.Errorf("create order: %w", err)
		}
	}
	return fmt.Errorf("create order: %w: no free order number", ErrDuplicate)
}

// autoAssign attaches the best eligible driver to a pending order. It moves
// to the next candidate when one fills up concurrently.
func (d *Dispatcher) autoAssign(ctx context.Context, o model.Order, src events.AssignSource) (model.Driver, bool, error) {
	drivers, err := d.store.ListDrivers(ctx)
	if err != nil {
		return model.Driver{}, false, fmt.Errorf("list drivers: %w", err)
	}
	for _, cand := range SelectCandidates(drivers, d.cfg.Capacity) {
		at := d.now()
		err := d.store.AssignOrder(ctx, o.ID, cand.ID, d.cfg.Capacity, at)
		switch {
		case err == nil:
			cand.CurrentOrderCount++
			d.assigned(o, cand, src, at)
			return cand, true, nil
		case errors.Is(err, ErrAssignmentConflict):
			d.log.Debugf("driver %s unavailable for %s, trying next", cand.ID, o.OrderNumber)
			continue
		default:
			d.recordAssignment(o.OrderNumber, cand.ID, src, false, at)
			return model.Driver{}, false, err
		}
	}
	return model.Driver{}, false, nil
}

func (d *Dispatcher) assigned(o model.Order, drv model.Driver, src events.AssignSource, at time.Time) {
	d.log.Infof("order %s assigned to %s (%s)", o.OrderNumber, drv.Name, src)
	d.recordAssignment(o.OrderNumber, drv.ID, src, true, at)
	d.publish(events.OrderAssigned{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Driver:      drv,
		Source:      src,
		Time:        at,
	})
}

// Backfill assigns the oldest pending orders to driverID while it has free
// capacity. It returns the number of orders assigned.
func (d *Dispatcher) Backfill(ctx context.Context, driverID string) (int, error) {
	drv, err := d.store.GetDriver(ctx, driverID)
	if err != nil {
		return 0, err
	}
	assigned := 0
	for drv.Eligible(d.cfg.Capacity) {
		pending, err := d.store.OldestPending(ctx, 1)
		if err != nil {
			return assigned, fmt.Errorf("pending orders: %w", err)
		}
		if len(pending) == 0 {
			break
		}
		o := pending[0]
		at := d.now()
		err = d.store.AssignOrder(ctx, o.ID, drv.ID, d.cfg.Capacity, at)
		switch {
		case err == nil:
			drv.CurrentOrderCount++
			assigned++
			d.assigned(o, drv, events.SourceBackfill, at)
		case errors.Is(err, ErrInvalidTransition):
			// Taken by someone else; the next query skips it.
			continue
		case errors.Is(err, ErrAssignmentConflict):
			return assigned, nil
		default:
			return assigned, err
		}
	}
	if assigned > 0 {
		d.log.Infof("driver %s picked up %d pending order(s)", drv.Name, assigned)
	}
	return assigned, nil
}

// RetryPending offers every pending order to the current driver pool. It
// stops at the first order nobody can take.
func (d *Dispatcher) RetryPending(ctx context.Context) (int, error) {
	pending, err := d.store.OldestPending(ctx, 50)
	if err != nil {
		return 0, fmt.Errorf("pending orders: %w", err)
	}
	n := 0
	for _, o := range pending {
		_, ok, err := d.autoAssign(ctx, o, events.SourceRetry)
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return n, err
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}

// Run retries pending orders periodically until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.cfg.RetryPendingSeconds <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(time.Duration(d.cfg.RetryPendingSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := d.RetryPending(ctx); err != nil {
				d.log.Errorf("retry pending: %v", err)
			} else if n > 0 {
				d.log.Infof("retry assigned %d pending order(s)", n)
			}
		}
	}
}

// UpdateStatus moves an order along its lifecycle.
func (d *Dispatcher) UpdateStatus(ctx context.Context, orderID string, to model.OrderStatus, reason string) (model.Order, error) {
	o, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if to == model.StatusAssigned {
		return model.Order{}, fmt.Errorf("%w: assign a driver instead of setting %q", ErrValidation, to)
	}
	if !o.Status.CanTransition(to) {
		return model.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	if to != model.StatusCancelled {
		reason = ""
	}
	at := d.now()
	if err := d.store.TransitionOrder(ctx, o.ID, o.Status, to, reason, at); err != nil {
		return model.Order{}, err
	}
	d.log.Infof("order %s: %s -> %s", o.OrderNumber, o.Status, to)
	d.publish(events.OrderStatusChanged{
		OrderID:      o.ID,
		OrderNumber:  o.OrderNumber,
		From:         o.Status,
		Status:       to,
		CancelReason: reason,
		Time:         at,
	})
	return d.store.GetOrder(ctx, o.ID)
}

// Reassign attaches driverID to a non-terminal order, releasing the previous
// driver. The order goes back to assigned.
func (d *Dispatcher) Reassign(ctx context.Context, orderID, driverID string) (model.Order, error) {
	o, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if o.Status.Terminal() {
		return model.Order{}, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, o.OrderNumber, o.Status)
	}
	if o.DriverID == driverID {
		return o, nil
	}
	drv, err := d.store.GetDriver(ctx, driverID)
	if err != nil {
		return model.Order{}, err
	}
	at := d.now()
	prev, err := d.store.ReassignOrder(ctx, o.ID, drv.ID, d.cfg.Capacity, at)
	if err != nil {
		d.recordAssignment(o.OrderNumber, drv.ID, events.SourceManual, false, at)
		return model.Order{}, err
	}
	drv.CurrentOrderCount++
	if prev != "" {
		d.log.Infof("order %s moved from driver %s", o.OrderNumber, prev)
	}
	d.assigned(o, drv, events.SourceManual, at)
	return d.store.GetOrder(ctx, o.ID)
}

// CreateDriver registers a new driver. An on-duty driver immediately picks
// up pending orders.
func (d *Dispatcher) CreateDriver(ctx context.Context, drv model.Driver) (model.Driver, error) {
	drv.Name = strings.TrimSpace(drv.Name)
	if drv.Name == "" {
		return model.Driver{}, fmt.Errorf("%w: driver name is required", ErrValidation)
	}
	if drv.ID == "" {
		drv.ID = uuid.NewString()
	}
	drv.PriorityLevel = model.ClampPriority(drv.PriorityLevel)
	drv.CurrentOrderCount = 0
	drv.TotalCompleted = 0
	drv.CreatedAt = d.now()
	if err := d.store.CreateDriver(ctx, &drv); err != nil {
		return model.Driver{}, err
	}
	d.log.Infof("driver %s registered", drv.Name)
	if drv.Eligible(d.cfg.Capacity) {
		if _, err := d.Backfill(ctx, drv.ID); err != nil {
			d.log.Errorf("backfill %s: %v", drv.ID, err)
		}
	}
	return d.store.GetDriver(ctx, drv.ID)
}

// UpdateDriver applies a partial update. A driver going on duty, or back to
// active while on duty, picks up pending orders.
func (d *Dispatcher) UpdateDriver(ctx context.Context, driverID string, p DriverPatch) (model.Driver, error) {
	drv, err := d.store.GetDriver(ctx, driverID)
	if err != nil {
		return model.Driver{}, err
	}
	wasEligible := drv.Active && drv.OnDuty
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return model.Driver{}, fmt.Errorf("%w: driver name is required", ErrValidation)
		}
		drv.Name = name
	}
	if p.Phone != nil {
		drv.Phone = *p.Phone
	}
	if p.Active != nil {
		drv.Active = *p.Active
	}
	if p.OnDuty != nil {
		drv.OnDuty = *p.OnDuty
	}
	if p.IsPriority != nil {
		drv.IsPriority = *p.IsPriority
	}
	if p.PriorityLevel != nil {
		drv.PriorityLevel = model.ClampPriority(*p.PriorityLevel)
	}
	if err := d.store.UpdateDriver(ctx, drv); err != nil {
		return model.Driver{}, err
	}
	if !wasEligible && drv.Active && drv.OnDuty {
		d.log.Infof("driver %s is on duty", drv.Name)
		if _, err := d.Backfill(ctx, drv.ID); err != nil {
			d.log.Errorf("backfill %s: %v", drv.ID, err)
		}
	}
	return d.store.GetDriver(ctx, drv.ID)
}

// SetDuty sets the on-duty flag of a driver.
func (d *Dispatcher) SetDuty(ctx context.Context, driverID string, onDuty bool) (model.Driver, error) {
	return d.UpdateDriver(ctx, driverID, DriverPatch{OnDuty: &onDuty})
}

// ToggleDuty flips the on-duty flag of a driver.
func (d *Dispatcher) ToggleDuty(ctx context.Context, driverID string) (model.Driver, error) {
	drv, err := d.store.GetDriver(ctx, driverID)
	if err != nil {
		return model.Driver{}, err
	}
	return d.SetDuty(ctx, driverID, !drv.OnDuty)
}

// Order returns a single order.
func (d *Dispatcher) Order(ctx context.Context, id string) (model.Order, error) {
	return d.store.GetOrder(ctx, id)
}

// Orders lists orders, newest first.
func (d *Dispatcher) Orders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	return d.store.ListOrders(ctx, f)
}

// OrdersByPhone lists the orders of a customer. The phone is normalized.
func (d *Dispatcher) OrdersByPhone(ctx context.Context, phone string) ([]model.Order, error) {
	p, err := NormalizePhone(phone, d.cfg.CountryCode)
	if err != nil {
		return nil, err
	}
	return d.store.ListOrders(ctx, model.OrderFilter{Phone: p})
}

// Driver returns a single driver.
func (d *Dispatcher) Driver(ctx context.Context, id string) (model.Driver, error) {
	return d.store.GetDriver(ctx, id)
}

// Drivers lists every driver.
func (d *Dispatcher) Drivers(ctx context.Context) ([]model.Driver, error) {
	return d.store.ListDrivers(ctx)
}

// AvailableDrivers lists the drivers that could take an order now, in
// selection order.
func (d *Dispatcher) AvailableDrivers(ctx context.Context) ([]model.Driver, error) {
	drivers, err := d.store.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Driver
	for _, drv := range drivers {
		if drv.Eligible(d.cfg.Capacity) {
			out = append(out, drv)
		}
	}
	if out == nil {
		return []model.Driver{}, nil
	}
	return RankDrivers(out), nil
}

// Stats summarises today's activity.
func (d *Dispatcher) Stats(ctx context.Context) (model.Stats, error) {
	local := d.now().In(d.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.loc)
	return d.store.Stats(ctx, dayStart)
}

func (d *Dispatcher) recordAssignment(number, driverID string, src events.AssignSource, ok bool, at time.Time) {
	rec, isRec := d.metrics.(coremetrics.AssignmentRecorder)
	if !isRec {
		return
	}
	if err := rec.RecordAssignment(coremetrics.AssignmentEvent{
		OrderNumber: number,
		DriverID:    driverID,
		Source:      string(src),
		Success:     ok,
		Time:        at,
	}); err != nil {
		d.log.Warnf("record assignment: %v", err)
	}
}

func (d *Dispatcher) publish(ev events.Event) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}
