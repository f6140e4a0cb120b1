package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/model"
)

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedDriver(t *testing.T, s dispatch.Store, id string, onDuty bool) {
	t.Helper()
	require.NoError(t, s.CreateDriver(context.Background(), &model.Driver{
		ID: id, Name: "driver " + id, OnDuty: onDuty, Active: true, PriorityLevel: 1, CreatedAt: base,
	}))
}

func seedOrder(t *testing.T, s dispatch.Store, n int) model.Order {
	t.Helper()
	o := model.Order{
		ID:            fmt.Sprintf("o%d", n),
		OrderNumber:   fmt.Sprintf("ORD20250314%04d", n),
		CustomerID:    "c1",
		CustomerPhone: "6281234567890",
		ChatID:        "6281234567890",
		ServiceType:   model.ServiceFood,
		Status:        model.StatusPending,
		CreatedAt:     base.Add(time.Duration(n) * time.Minute),
	}
	require.NoError(t, s.CreateOrder(context.Background(), &o))
	return o
}

func stores(t *testing.T) map[string]dispatch.Store {
	return map[string]dispatch.Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLite(t),
	}
}

func TestStoreOrders(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			o := seedOrder(t, s, 1)
			seedOrder(t, s, 2)

			dup := o
			dup.ID = "other"
			assert.ErrorIs(t, s.CreateOrder(ctx, &dup), dispatch.ErrDuplicate)

			got, err := s.GetOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, o.OrderNumber, got.OrderNumber)
			assert.Equal(t, model.StatusPending, got.Status)
			assert.True(t, got.CreatedAt.Equal(o.CreatedAt))
			assert.Nil(t, got.AssignedAt)

			_, err = s.GetOrder(ctx, "missing")
			assert.ErrorIs(t, err, dispatch.ErrNotFound)

			list, err := s.ListOrders(ctx, model.OrderFilter{})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "o2", list[0].ID, "newest first")

			pending, err := s.OldestPending(ctx, 10)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, "o1", pending[0].ID, "oldest first")

			n, err := s.CountOrdersSince(ctx, base.Add(90*time.Second))
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestStoreAssignAndRelease(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedDriver(t, s, "d1", true)
			seedDriver(t, s, "off", false)
			o1 := seedOrder(t, s, 1)
			o2 := seedOrder(t, s, 2)
			o3 := seedOrder(t, s, 3)

			assert.ErrorIs(t, s.AssignOrder(ctx, o1.ID, "off", 2, base), dispatch.ErrAssignmentConflict)
			assert.ErrorIs(t, s.AssignOrder(ctx, o1.ID, "ghost", 2, base), dispatch.ErrNotFound)

			require.NoError(t, s.AssignOrder(ctx, o1.ID, "d1", 2, base))
			assert.ErrorIs(t, s.AssignOrder(ctx, o1.ID, "d1", 2, base), dispatch.ErrInvalidTransition)
			require.NoError(t, s.AssignOrder(ctx, o2.ID, "d1", 2, base))
			assert.ErrorIs(t, s.AssignOrder(ctx, o3.ID, "d1", 2, base), dispatch.ErrAssignmentConflict)

			got, err := s.GetOrder(ctx, o3.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusPending, got.Status, "failed assignment rolls back")
			assert.Empty(t, got.DriverID)

			d, err := s.GetDriver(ctx, "d1")
			require.NoError(t, err)
			assert.Equal(t, 2, d.CurrentOrderCount)

			for _, st := range []model.OrderStatus{model.StatusAccepted, model.StatusPickedUp, model.StatusOnDelivery} {
				cur, err := s.GetOrder(ctx, o1.ID)
				require.NoError(t, err)
				require.NoError(t, s.TransitionOrder(ctx, o1.ID, cur.Status, st, "", base))
			}
			require.NoError(t, s.TransitionOrder(ctx, o1.ID, model.StatusOnDelivery, model.StatusCompleted, "", base.Add(time.Hour)))
			require.NoError(t, s.TransitionOrder(ctx, o2.ID, model.StatusAssigned, model.StatusCancelled, "no show", base))
			assert.ErrorIs(t, s.TransitionOrder(ctx, o2.ID, model.StatusAssigned, model.StatusAccepted, "", base),
				dispatch.ErrInvalidTransition)

			d, err = s.GetDriver(ctx, "d1")
			require.NoError(t, err)
			assert.Equal(t, 0, d.CurrentOrderCount)
			assert.Equal(t, 1, d.TotalCompleted)

			got, err = s.GetOrder(ctx, o2.ID)
			require.NoError(t, err)
			assert.Equal(t, "no show", got.CancelReason)
			assert.NotNil(t, got.CancelledAt)

			st, err := s.Stats(ctx, base)
			require.NoError(t, err)
			assert.Equal(t, model.Stats{TotalOrders: 3, PendingOrders: 1, CompletedToday: 1, ActiveDrivers: 1}, st)
		})
	}
}

func TestStoreReassign(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedDriver(t, s, "d1", true)
			seedDriver(t, s, "d2", false)
			o := seedOrder(t, s, 1)
			require.NoError(t, s.AssignOrder(ctx, o.ID, "d1", 2, base))

			prev, err := s.ReassignOrder(ctx, o.ID, "d2", 2, base)
			require.NoError(t, err)
			assert.Equal(t, "d1", prev)

			d1, _ := s.GetDriver(ctx, "d1")
			d2, _ := s.GetDriver(ctx, "d2")
			assert.Equal(t, 0, d1.CurrentOrderCount)
			assert.Equal(t, 1, d2.CurrentOrderCount)

			require.NoError(t, s.TransitionOrder(ctx, o.ID, model.StatusAssigned, model.StatusCancelled, "", base))
			_, err = s.ReassignOrder(ctx, o.ID, "d1", 2, base)
			assert.ErrorIs(t, err, dispatch.ErrInvalidTransition)
		})
	}
}

func TestStoreDriversAndCustomers(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedDriver(t, s, "d1", false)
			d, err := s.GetDriver(ctx, "d1")
			require.NoError(t, err)
			d.OnDuty = true
			d.IsPriority = true
			d.PriorityLevel = 5
			d.CurrentOrderCount = 9
			require.NoError(t, s.UpdateDriver(ctx, d))

			got, err := s.GetDriver(ctx, "d1")
			require.NoError(t, err)
			assert.True(t, got.OnDuty)
			assert.True(t, got.IsPriority)
			assert.Equal(t, 5, got.PriorityLevel)
			assert.Equal(t, 0, got.CurrentOrderCount, "counters are not writable through UpdateDriver")
			assert.ErrorIs(t, s.UpdateDriver(ctx, model.Driver{ID: "ghost"}), dispatch.ErrNotFound)

			c, err := s.UpsertCustomer(ctx, "6281234567890", "Budi", base)
			require.NoError(t, err)
			assert.Equal(t, 1, c.TotalOrders)
			c2, err := s.UpsertCustomer(ctx, "6281234567890", "", base.Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, c.ID, c2.ID)
			assert.Equal(t, 2, c2.TotalOrders)
			assert.Equal(t, "Budi", c2.Name)
			require.NotNil(t, c2.LastOrderAt)
			assert.True(t, c2.LastOrderAt.Equal(base.Add(time.Hour)))

			_, err = s.GetCustomerByPhone(ctx, "000")
			assert.ErrorIs(t, err, dispatch.ErrNotFound)
		})
	}
}

func TestStoreShifts(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			shift := func(id, driver, date string, kind model.ShiftType) model.Shift {
				start, end := kind.Hours()
				return model.Shift{ID: id, DriverID: driver, Date: date, Type: kind,
					StartTime: start, EndTime: end, IsActive: true, CreatedAt: base}
			}
			for _, sh := range []model.Shift{
				shift("s1", "d1", "2025-03-14", model.ShiftNight),
				shift("s2", "d1", "2025-03-14", model.ShiftMorning),
				shift("s3", "d2", "2025-03-15", model.ShiftFullDay),
			} {
				require.NoError(t, s.CreateShift(ctx, &sh))
			}
			dup := shift("s4", "d1", "2025-03-14", model.ShiftNight)
			assert.ErrorIs(t, s.CreateShift(ctx, &dup), dispatch.ErrDuplicate)

			all, err := s.ListShifts(ctx, model.ShiftFilter{})
			require.NoError(t, err)
			var ids []string
			for _, sh := range all {
				ids = append(ids, sh.ID)
			}
			assert.Equal(t, []string{"s3", "s2", "s1"}, ids, "newest date first, then type")

			day, err := s.ListShifts(ctx, model.ShiftFilter{Date: "2025-03-14", DriverID: "d1"})
			require.NoError(t, err)
			assert.Len(t, day, 2)

			sh, err := s.GetShift(ctx, "s2")
			require.NoError(t, err)
			assert.Equal(t, "06:00", sh.StartTime)
			assert.True(t, sh.CreatedAt.Equal(base))

			sh.IsActive = false
			sh.EndTime = "12:00"
			require.NoError(t, s.UpdateShift(ctx, sh))
			active, err := s.ListShifts(ctx, model.ShiftFilter{Date: "2025-03-14", ActiveOnly: true})
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, "s1", active[0].ID)

			sh.Type = model.ShiftNight
			assert.ErrorIs(t, s.UpdateShift(ctx, sh), dispatch.ErrDuplicate)
			assert.ErrorIs(t, s.UpdateShift(ctx, model.Shift{ID: "ghost", Type: model.ShiftMorning}), dispatch.ErrNotFound)

			require.NoError(t, s.DeleteShift(ctx, "s1"))
			assert.ErrorIs(t, s.DeleteShift(ctx, "s1"), dispatch.ErrNotFound)
			_, err = s.GetShift(ctx, "s1")
			assert.ErrorIs(t, err, dispatch.ErrNotFound)
		})
	}
}

func TestStoreConcurrentAssignRespectsCapacity(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seedDriver(t, s, "d1", true)
			const orders = 12
			for i := 1; i <= orders; i++ {
				seedOrder(t, s, i)
			}
			var wg sync.WaitGroup
			var mu sync.Mutex
			ok := 0
			for i := 1; i <= orders; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if err := s.AssignOrder(ctx, fmt.Sprintf("o%d", i), "d1", 2, base); err == nil {
						mu.Lock()
						ok++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, 2, ok)
			d, err := s.GetDriver(ctx, "d1")
			require.NoError(t, err)
			assert.Equal(t, 2, d.CurrentOrderCount)
		})
	}
}

func TestRebindPostgres(t *testing.T) {
	s := &SQLStore{postgres: true}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", s.q("SELECT * FROM t WHERE a = ? AND b = ?"))
	s.postgres = false
	assert.Equal(t, "a = ?", s.q("a = ?"))
}

func TestConfigValidate(t *testing.T) {
	c := Config{}
	c.SetDefaults()
	assert.Equal(t, DriverSQLite, c.Driver)
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{Driver: DriverPostgres}.Validate())
	assert.Error(t, Config{Driver: "mongo"}.Validate())

	s, err := New(Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}

// TestPostgres runs the assignment scenario against a real PostgreSQL.
func TestPostgres(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "kurir",
			"POSTGRES_PASSWORD": "kurir",
			"POSTGRES_DB":       "kurir",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://kurir:kurir@%s:%s/kurir?sslmode=disable", host, port.Port())
	s, err := Open(Config{Driver: DriverPostgres, DSN: dsn, MaxOpenConns: 8})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	seedDriver(t, s, "d1", true)
	o1 := seedOrder(t, s, 1)
	o2 := seedOrder(t, s, 2)
	o3 := seedOrder(t, s, 3)
	require.NoError(t, s.AssignOrder(ctx, o1.ID, "d1", 2, base))
	require.NoError(t, s.AssignOrder(ctx, o2.ID, "d1", 2, base))
	assert.ErrorIs(t, s.AssignOrder(ctx, o3.ID, "d1", 2, base), dispatch.ErrAssignmentConflict)
	require.NoError(t, s.TransitionOrder(ctx, o1.ID, model.StatusAssigned, model.StatusCancelled, "x", base))
	d, err := s.GetDriver(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.CurrentOrderCount)
}
