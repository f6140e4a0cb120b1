package dispatch_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/events"
	"github.com/kilianp07/kurir/core/model"
	"github.com/kilianp07/kurir/infra/store"
	"github.com/kilianp07/kurir/internal/eventbus"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) handle(ev eventbus.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) assigned() []events.OrderAssigned {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.OrderAssigned
	for _, ev := range r.events {
		if a, ok := ev.(events.OrderAssigned); ok {
			out = append(out, a)
		}
	}
	return out
}

func newDispatcher(t *testing.T, s dispatch.Store) (*dispatch.Dispatcher, *recorder) {
	t.Helper()
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	rec := &recorder{}
	bus.Handle(rec.handle)
	d, err := dispatch.New(dispatch.Config{Timezone: "UTC"}, s, bus, nil, nil)
	require.NoError(t, err)
	c := &clock{t: time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)}
	d.SetClock(c.Now)
	return d, rec
}

func addDriver(t *testing.T, d *dispatch.Dispatcher, id string, onDuty, priority bool, level int) {
	t.Helper()
	_, err := d.CreateDriver(context.Background(), model.Driver{
		ID: id, Name: "Driver " + id, Active: true, OnDuty: onDuty, IsPriority: priority, PriorityLevel: level,
	})
	require.NoError(t, err)
}

func order(t *testing.T, d *dispatch.Dispatcher) model.Order {
	t.Helper()
	o, err := d.CreateOrder(context.Background(), dispatch.OrderRequest{
		Phone: "0812 3456 7890", ServiceType: model.ServiceFood,
	})
	require.NoError(t, err)
	return o
}

func TestCreateOrderNumbersAndNormalizes(t *testing.T) {
	d, _ := newDispatcher(t, store.NewMemoryStore())
	o1 := order(t, d)
	o2 := order(t, d)
	assert.Equal(t, "ORD202503140001", o1.OrderNumber)
	assert.Equal(t, "ORD202503140002", o2.OrderNumber)
	assert.Equal(t, "6281234567890", o1.CustomerPhone)
	assert.Equal(t, "6281234567890", o1.ChatID)
	assert.Equal(t, model.StatusPending, o1.Status)

	_, err := d.CreateOrder(context.Background(), dispatch.OrderRequest{Phone: "123", ServiceType: model.ServiceFood})
	assert.ErrorIs(t, err, dispatch.ErrValidation)
	_, err = d.CreateOrder(context.Background(), dispatch.OrderRequest{Phone: "081234567890", ServiceType: "boat"})
	assert.ErrorIs(t, err, dispatch.ErrValidation)

	byPhone, err := d.OrdersByPhone(context.Background(), "081234567890")
	require.NoError(t, err)
	assert.Len(t, byPhone, 2)
}

func TestPriorityPreferredOverIdleDriver(t *testing.T) {
	d, rec := newDispatcher(t, store.NewMemoryStore())
	addDriver(t, d, "idle", true, false, 1)
	addDriver(t, d, "prio", true, true, 5)

	o1 := order(t, d)
	assert.Equal(t, "prio", o1.DriverID)
	assert.Equal(t, model.StatusAssigned, o1.Status)
	o2 := order(t, d)
	assert.Equal(t, "prio", o2.DriverID, "priority driver keeps taking orders while under capacity")
	o3 := order(t, d)
	assert.Equal(t, "idle", o3.DriverID, "fallback once priority tier is full")

	as := rec.assigned()
	require.Len(t, as, 3)
	for _, a := range as {
		assert.Equal(t, events.SourceCreate, a.Source)
	}
}

func TestSelectCandidatesOrdering(t *testing.T) {
	drivers := []model.Driver{
		{ID: "c", Active: true, OnDuty: true, PriorityLevel: 1, CurrentOrderCount: 0, TotalCompleted: 9},
		{ID: "b", Active: true, OnDuty: true, PriorityLevel: 1, CurrentOrderCount: 0, TotalCompleted: 1},
		{ID: "a", Active: true, OnDuty: true, PriorityLevel: 1, CurrentOrderCount: 1},
		{ID: "z", Active: true, OnDuty: true, PriorityLevel: 3, CurrentOrderCount: 1},
		{ID: "full", Active: true, OnDuty: true, PriorityLevel: 9, CurrentOrderCount: 2},
		{ID: "off", Active: true, OnDuty: false, PriorityLevel: 9},
		{ID: "gone", Active: false, OnDuty: true, PriorityLevel: 9},
	}
	var ids []string
	for _, c := range dispatch.SelectCandidates(drivers, 2) {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"z", "b", "c", "a"}, ids)

	drivers = append(drivers, model.Driver{ID: "p", Active: true, OnDuty: true, IsPriority: true, PriorityLevel: 1})
	got := dispatch.SelectCandidates(drivers, 2)
	require.Len(t, got, 1)
	assert.Equal(t, "p", got[0].ID)
}

func TestBackfillOnDuty(t *testing.T) {
	d, rec := newDispatcher(t, store.NewMemoryStore())
	ctx := context.Background()
	addDriver(t, d, "d1", false, false, 1)
	o1 := order(t, d)
	o2 := order(t, d)
	o3 := order(t, d)
	assert.Empty(t, o1.DriverID)

	drv, err := d.SetDuty(ctx, "d1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, drv.CurrentOrderCount)

	for _, id := range []string{o1.ID, o2.ID} {
		o, err := d.Order(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "d1", o.DriverID)
		assert.Equal(t, model.StatusAssigned, o.Status)
	}
	o, err := d.Order(ctx, o3.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, o.Status)

	as := rec.assigned()
	require.Len(t, as, 2)
	assert.Equal(t, events.SourceBackfill, as[0].Source)
	assert.Equal(t, o1.OrderNumber, as[0].OrderNumber, "oldest first")

	// Turning on duty again while already on duty does not reassign.
	_, err = d.SetDuty(ctx, "d1", true)
	require.NoError(t, err)
	assert.Len(t, rec.assigned(), 2)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	d, _ := newDispatcher(t, store.NewMemoryStore())
	ctx := context.Background()
	addDriver(t, d, "d1", true, false, 1)
	o := order(t, d)
	require.Equal(t, "d1", o.DriverID)

	_, err := d.UpdateStatus(ctx, o.ID, model.StatusCompleted, "")
	assert.ErrorIs(t, err, dispatch.ErrInvalidTransition)
	_, err = d.UpdateStatus(ctx, o.ID, model.StatusAssigned, "")
	assert.ErrorIs(t, err, dispatch.ErrValidation)

	for _, st := range []model.OrderStatus{model.StatusAccepted, model.StatusPickedUp, model.StatusOnDelivery, model.StatusCompleted} {
		o, err = d.UpdateStatus(ctx, o.ID, st, "ignored")
		require.NoError(t, err)
		assert.Equal(t, st, o.Status)
	}
	assert.Empty(t, o.CancelReason)
	assert.NotNil(t, o.CompletedAt)

	drv, err := d.Driver(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 0, drv.CurrentOrderCount)
	assert.Equal(t, 1, drv.TotalCompleted)

	_, err = d.UpdateStatus(ctx, o.ID, model.StatusCancelled, "")
	assert.ErrorIs(t, err, dispatch.ErrInvalidTransition)

	st, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CompletedToday)
	assert.Equal(t, 1, st.ActiveDrivers)
}

func TestCancelPendingAndReassign(t *testing.T) {
	d, rec := newDispatcher(t, store.NewMemoryStore())
	ctx := context.Background()
	p := order(t, d)
	p, err := d.UpdateStatus(ctx, p.ID, model.StatusCancelled, "customer left")
	require.NoError(t, err)
	assert.Equal(t, "customer left", p.CancelReason)

	addDriver(t, d, "d1", true, false, 1)
	addDriver(t, d, "d2", false, false, 1)
	o := order(t, d)
	require.Equal(t, "d1", o.DriverID)

	o, err = d.Reassign(ctx, o.ID, "d2")
	require.NoError(t, err)
	assert.Equal(t, "d2", o.DriverID)
	d1, _ := d.Driver(ctx, "d1")
	d2, _ := d.Driver(ctx, "d2")
	assert.Equal(t, 0, d1.CurrentOrderCount)
	assert.Equal(t, 1, d2.CurrentOrderCount)

	as := rec.assigned()
	assert.Equal(t, events.SourceManual, as[len(as)-1].Source)

	_, err = d.Reassign(ctx, p.ID, "d1")
	assert.ErrorIs(t, err, dispatch.ErrInvalidTransition)
	_, err = d.Reassign(ctx, o.ID, "ghost")
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestRetryPending(t *testing.T) {
	d, rec := newDispatcher(t, store.NewMemoryStore())
	ctx := context.Background()
	addDriver(t, d, "d1", true, false, 1)
	addDriver(t, d, "d2", false, false, 1)
	for i := 0; i < 4; i++ {
		order(t, d)
	}
	// d2 is deactivated, so nobody has room left.
	active := false
	_, err := d.UpdateDriver(ctx, "d2", dispatch.DriverPatch{Active: &active})
	require.NoError(t, err)

	n, err := d.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nobody has room")

	onDuty := true
	active = true
	_, err = d.UpdateDriver(ctx, "d2", dispatch.DriverPatch{OnDuty: &onDuty, Active: &active})
	require.NoError(t, err)
	pending, err := d.Orders(ctx, model.OrderFilter{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, rec.assigned(), 4)
}

func TestAvailableDrivers(t *testing.T) {
	d, _ := newDispatcher(t, store.NewMemoryStore())
	ctx := context.Background()
	none, err := d.AvailableDrivers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	addDriver(t, d, "a", true, false, 1)
	addDriver(t, d, "b", true, true, 4)
	addDriver(t, d, "c", false, false, 9)
	got, err := d.AvailableDrivers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)

	_, err = d.CreateDriver(ctx, model.Driver{Name: "  "})
	assert.ErrorIs(t, err, dispatch.ErrValidation)
	drv, err := d.CreateDriver(ctx, model.Driver{Name: "Ani", PriorityLevel: 99})
	require.NoError(t, err)
	assert.NotEmpty(t, drv.ID)
	assert.Equal(t, model.MaxPriorityLevel, drv.PriorityLevel)
}

func TestConcurrentDispatchRespectsCapacity(t *testing.T) {
	s, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	d, _ := newDispatcher(t, s)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		addDriver(t, d, fmt.Sprintf("d%d", i), true, i == 0, 1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.CreateOrder(ctx, dispatch.OrderRequest{Phone: "081234567890", ServiceType: model.ServiceRide})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	drivers, err := d.Drivers(ctx)
	require.NoError(t, err)
	total := 0
	for _, drv := range drivers {
		assert.LessOrEqual(t, drv.CurrentOrderCount, model.DriverCapacity)
		assigned, err := d.Orders(ctx, model.OrderFilter{DriverID: drv.ID})
		require.NoError(t, err)
		assert.Len(t, assigned, drv.CurrentOrderCount)
		total += drv.CurrentOrderCount
	}
	assert.Equal(t, 6, total)

	pending, err := d.Orders(ctx, model.OrderFilter{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 4)
	all, err := d.Orders(ctx, model.OrderFilter{})
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, o := range all {
		assert.False(t, seen[o.OrderNumber], "order numbers are unique")
		seen[o.OrderNumber] = true
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0812 3456 7890":  "6281234567890",
		"+62-812-3456789": "628123456789",
		"6285150524668":   "6285150524668",
	}
	for in, want := range cases {
		got, err := dispatch.NormalizePhone(in, "62")
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "0812", "1234567890123456"} {
		_, err := dispatch.NormalizePhone(bad, "62")
		assert.ErrorIs(t, err, dispatch.ErrValidation, bad)
	}
}
