package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/model"
)

// SQLStore persists dispatch data in SQLite or PostgreSQL.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

var _ dispatch.Store = (*SQLStore)(nil)

// Open connects to the database and ensures the schema.
func Open(cfg Config) (*SQLStore, error) {
	driverName := "sqlite"
	if cfg.Driver == DriverPostgres {
		driverName = "pgx"
	}
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db, postgres: cfg.Driver == DriverPostgres}
	if s.postgres {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		// SQLite allows a single writer; one connection serializes transactions.
		db.SetMaxOpenConns(1)
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if !s.postgres {
		if _, err := s.db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
			return fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// q rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) q(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO orders (`+orderColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		o.ID, o.OrderNumber, o.CustomerID, o.CustomerPhone, o.CustomerName, o.ChatID,
		string(o.ServiceType), o.PickupAddress, o.DeliveryAddress, o.Details, o.Notes,
		nullString(o.DriverID), string(o.Status), o.CancelReason, millis(o.CreatedAt),
		nullMillis(o.AssignedAt), nullMillis(o.AcceptedAt), nullMillis(o.PickedUpAt),
		nullMillis(o.OnDeliveryAt), nullMillis(o.CompletedAt), nullMillis(o.CancelledAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("order %s: %w", o.OrderNumber, dispatch.ErrDuplicate)
	}
	return err
}

func (s *SQLStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, fmt.Errorf("order %s: %w", id, dispatch.ErrNotFound)
	}
	return o, err
}

func (s *SQLStore) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.DriverID != "" {
		query += ` AND driver_id = ?`
		args = append(args, f.DriverID)
	}
	if f.Phone != "" {
		query += ` AND customer_phone = ?`
		args = append(args, f.Phone)
	}
	query += ` ORDER BY created_at DESC, order_number DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.queryOrders(ctx, s.q(query), args...)
}

func (s *SQLStore) OldestPending(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryOrders(ctx, s.q(`SELECT `+orderColumns+` FROM orders
        WHERE status = ? AND driver_id IS NULL
        ORDER BY created_at ASC, order_number ASC LIMIT ?`),
		string(model.StatusPending), limit)
}

func (s *SQLStore) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLStore) CountOrdersSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM orders WHERE created_at >= ?`),
		millis(since)).Scan(&n)
	return n, err
}

func (s *SQLStore) AssignOrder(ctx context.Context, orderID, driverID string, capacity int, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE orders SET driver_id = ?, status = ?, assigned_at = ?
            WHERE id = ? AND status = ? AND driver_id IS NULL`),
			driverID, string(model.StatusAssigned), millis(at), orderID, string(model.StatusPending))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if err := s.orderExists(ctx, tx, orderID); err != nil {
				return err
			}
			return fmt.Errorf("order %s not pending: %w", orderID, dispatch.ErrInvalidTransition)
		}
		res, err = tx.ExecContext(ctx, s.q(`UPDATE drivers SET current_order_count = current_order_count + 1
            WHERE id = ? AND active = 1 AND on_duty = 1 AND current_order_count < ?`),
			driverID, capacity)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if err := s.driverExists(ctx, tx, driverID); err != nil {
				return err
			}
			return fmt.Errorf("driver %s: %w", driverID, dispatch.ErrAssignmentConflict)
		}
		return nil
	})
}

func (s *SQLStore) ReassignOrder(ctx context.Context, orderID, driverID string, capacity int, at time.Time) (string, error) {
	var prev string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var cur sql.NullString
		var status string
		err := tx.QueryRowContext(ctx, s.q(`SELECT driver_id, status FROM orders WHERE id = ?`), orderID).
			Scan(&cur, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s: %w", orderID, dispatch.ErrNotFound)
		}
		if err != nil {
			return err
		}
		st := model.OrderStatus(status)
		if st.Terminal() {
			return fmt.Errorf("order %s is %s: %w", orderID, st, dispatch.ErrInvalidTransition)
		}
		res, err := tx.ExecContext(ctx, s.q(`UPDATE drivers SET current_order_count = current_order_count + 1
            WHERE id = ? AND active = 1 AND current_order_count < ?`), driverID, capacity)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if err := s.driverExists(ctx, tx, driverID); err != nil {
				return err
			}
			return fmt.Errorf("driver %s: %w", driverID, dispatch.ErrAssignmentConflict)
		}
		if cur.Valid && st.HoldsDriver() {
			if err := s.release(ctx, tx, cur.String, false); err != nil {
				return err
			}
		}
		res, err = tx.ExecContext(ctx, s.q(`UPDATE orders SET driver_id = ?, status = ?, assigned_at = ?
            WHERE id = ? AND status = ?`),
			driverID, string(model.StatusAssigned), millis(at), orderID, status)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("order %s changed concurrently: %w", orderID, dispatch.ErrInvalidTransition)
		}
		prev = cur.String
		return nil
	})
	return prev, err
}

var stampColumn = map[model.OrderStatus]string{
	model.StatusAccepted:   "accepted_at",
	model.StatusPickedUp:   "picked_up_at",
	model.StatusOnDelivery: "on_delivery_at",
	model.StatusCompleted:  "completed_at",
	model.StatusCancelled:  "cancelled_at",
}

func (s *SQLStore) TransitionOrder(ctx context.Context, orderID string, from, to model.OrderStatus, reason string, at time.Time) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, dispatch.ErrInvalidTransition)
	}
	col, ok := stampColumn[to]
	if !ok {
		return fmt.Errorf("%s -> %s: %w", from, to, dispatch.ErrInvalidTransition)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var driverID sql.NullString
		err := tx.QueryRowContext(ctx, s.q(`SELECT driver_id FROM orders WHERE id = ?`), orderID).Scan(&driverID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s: %w", orderID, dispatch.ErrNotFound)
		}
		if err != nil {
			return err
		}
		query := `UPDATE orders SET status = ?, ` + col + ` = ?`
		args := []any{string(to), millis(at)}
		if to == model.StatusCancelled {
			query += `, cancel_reason = ?`
			args = append(args, reason)
		}
		query += ` WHERE id = ? AND status = ?`
		args = append(args, orderID, string(from))
		res, err := tx.ExecContext(ctx, s.q(query), args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("order %s is no longer %s: %w", orderID, from, dispatch.ErrInvalidTransition)
		}
		if to.Terminal() && driverID.Valid && from.HoldsDriver() {
			return s.release(ctx, tx, driverID.String, to == model.StatusCompleted)
		}
		return nil
	})
}

// release decrements the driver's load, never below zero.
func (s *SQLStore) release(ctx context.Context, tx *sql.Tx, driverID string, completed bool) error {
	query := `UPDATE drivers SET current_order_count =
            CASE WHEN current_order_count > 0 THEN current_order_count - 1 ELSE 0 END`
	if completed {
		query += `, total_completed = total_completed + 1`
	}
	_, err := tx.ExecContext(ctx, s.q(query+` WHERE id = ?`), driverID)
	return err
}

func (s *SQLStore) orderExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM orders WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %s: %w", id, dispatch.ErrNotFound)
	}
	return err
}

func (s *SQLStore) driverExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM drivers WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("driver %s: %w", id, dispatch.ErrNotFound)
	}
	return err
}

func (s *SQLStore) Stats(ctx context.Context, dayStart time.Time) (model.Stats, error) {
	var st model.Stats
	queries := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&st.TotalOrders, `SELECT COUNT(*) FROM orders`, nil},
		{&st.PendingOrders, `SELECT COUNT(*) FROM orders WHERE status = ?`, []any{string(model.StatusPending)}},
		{&st.CompletedToday, `SELECT COUNT(*) FROM orders WHERE status = ? AND completed_at >= ?`,
			[]any{string(model.StatusCompleted), millis(dayStart)}},
		{&st.ActiveDrivers, `SELECT COUNT(*) FROM drivers WHERE active = 1 AND on_duty = 1`, nil},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, s.q(q.query), q.args...).Scan(q.dst); err != nil {
			return model.Stats{}, err
		}
	}
	return st, nil
}

func (s *SQLStore) CreateDriver(ctx context.Context, d *model.Driver) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO drivers (`+driverColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		d.ID, d.Name, d.Phone, flag(d.OnDuty), flag(d.Active), flag(d.IsPriority),
		d.PriorityLevel, d.CurrentOrderCount, d.TotalCompleted, millis(d.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("driver %s: %w", d.ID, dispatch.ErrDuplicate)
	}
	return err
}

func (s *SQLStore) GetDriver(ctx context.Context, id string) (model.Driver, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+driverColumns+` FROM drivers WHERE id = ?`), id)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Driver{}, fmt.Errorf("driver %s: %w", id, dispatch.ErrNotFound)
	}
	return d, err
}

func (s *SQLStore) ListDrivers(ctx context.Context) ([]model.Driver, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []model.Driver{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLStore) UpdateDriver(ctx context.Context, d model.Driver) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE drivers SET name = ?, phone = ?, on_duty = ?,
        active = ?, is_priority = ?, priority_level = ? WHERE id = ?`),
		d.Name, d.Phone, flag(d.OnDuty), flag(d.Active), flag(d.IsPriority), d.PriorityLevel, d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("driver %s: %w", d.ID, dispatch.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) UpsertCustomer(ctx context.Context, phone, name string, at time.Time) (model.Customer, error) {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO customers (id, phone, name, total_orders, last_order_at)
        VALUES (?, ?, ?, 1, ?)
        ON CONFLICT (phone) DO UPDATE SET
            total_orders = customers.total_orders + 1,
            last_order_at = excluded.last_order_at,
            name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE customers.name END`),
		uuid.NewString(), phone, name, millis(at))
	if err != nil {
		return model.Customer{}, err
	}
	return s.GetCustomerByPhone(ctx, phone)
}

func (s *SQLStore) GetCustomerByPhone(ctx context.Context, phone string) (model.Customer, error) {
	var c model.Customer
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, phone, name, total_orders, last_order_at
        FROM customers WHERE phone = ?`), phone).Scan(&c.ID, &c.Phone, &c.Name, &c.TotalOrders, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Customer{}, fmt.Errorf("customer %s: %w", phone, dispatch.ErrNotFound)
	}
	if err != nil {
		return model.Customer{}, err
	}
	c.LastOrderAt = fromNullMillis(last)
	return c, nil
}

func (s *SQLStore) CreateShift(ctx context.Context, sh *model.Shift) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO shifts (`+shiftColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		sh.ID, sh.DriverID, sh.Date, string(sh.Type), sh.StartTime, sh.EndTime,
		flag(sh.IsActive), millis(sh.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("shift %s %s for %s: %w", sh.Type, sh.Date, sh.DriverID, dispatch.ErrDuplicate)
	}
	return err
}

func (s *SQLStore) GetShift(ctx context.Context, id string) (model.Shift, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+shiftColumns+` FROM shifts WHERE id = ?`), id)
	sh, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Shift{}, fmt.Errorf("shift %s: %w", id, dispatch.ErrNotFound)
	}
	return sh, err
}

func (s *SQLStore) ListShifts(ctx context.Context, f model.ShiftFilter) ([]model.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE 1 = 1`
	var args []any
	if f.Date != "" {
		query += ` AND shift_date = ?`
		args = append(args, f.Date)
	}
	if f.DriverID != "" {
		query += ` AND driver_id = ?`
		args = append(args, f.DriverID)
	}
	if f.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY shift_date DESC, shift_type ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []model.Shift{}
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLStore) UpdateShift(ctx context.Context, sh model.Shift) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE shifts SET shift_type = ?, start_time = ?,
        end_time = ?, active = ? WHERE id = ?`),
		string(sh.Type), sh.StartTime, sh.EndTime, flag(sh.IsActive), sh.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("shift %s: %w", sh.ID, dispatch.ErrDuplicate)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shift %s: %w", sh.ID, dispatch.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) DeleteShift(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM shifts WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shift %s: %w", id, dispatch.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(r scanner) (model.Order, error) {
	var (
		o               model.Order
		service, status string
		driverID        sql.NullString
		created         int64
		stamps          [6]sql.NullInt64
	)
	err := r.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerPhone, &o.CustomerName, &o.ChatID,
		&service, &o.PickupAddress, &o.DeliveryAddress, &o.Details, &o.Notes, &driverID, &status,
		&o.CancelReason, &created, &stamps[0], &stamps[1], &stamps[2], &stamps[3], &stamps[4], &stamps[5])
	if err != nil {
		return model.Order{}, err
	}
	o.ServiceType = model.ServiceType(service)
	o.Status = model.OrderStatus(status)
	o.DriverID = driverID.String
	o.CreatedAt = time.UnixMilli(created).UTC()
	o.AssignedAt = fromNullMillis(stamps[0])
	o.AcceptedAt = fromNullMillis(stamps[1])
	o.PickedUpAt = fromNullMillis(stamps[2])
	o.OnDeliveryAt = fromNullMillis(stamps[3])
	o.CompletedAt = fromNullMillis(stamps[4])
	o.CancelledAt = fromNullMillis(stamps[5])
	return o, nil
}

func scanDriver(r scanner) (model.Driver, error) {
	var (
		d                        model.Driver
		onDuty, active, priority int
		created                  int64
	)
	err := r.Scan(&d.ID, &d.Name, &d.Phone, &onDuty, &active, &priority, &d.PriorityLevel,
		&d.CurrentOrderCount, &d.TotalCompleted, &created)
	if err != nil {
		return model.Driver{}, err
	}
	d.OnDuty = onDuty != 0
	d.Active = active != 0
	d.IsPriority = priority != 0
	d.CreatedAt = time.UnixMilli(created).UTC()
	return d, nil
}

func scanShift(r scanner) (model.Shift, error) {
	var (
		sh      model.Shift
		kind    string
		active  int
		created int64
	)
	err := r.Scan(&sh.ID, &sh.DriverID, &sh.Date, &kind, &sh.StartTime, &sh.EndTime, &active, &created)
	if err != nil {
		return model.Shift{}, err
	}
	sh.Type = model.ShiftType(kind)
	sh.IsActive = active != 0
	sh.CreatedAt = time.UnixMilli(created).UTC()
	return sh, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
