package store

// Timestamps are stored as unix milliseconds and flags as 0/1 integers so the
// same schema runs on SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS drivers (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        phone TEXT NOT NULL DEFAULT '',
        on_duty INTEGER NOT NULL DEFAULT 0,
        active INTEGER NOT NULL DEFAULT 1,
        is_priority INTEGER NOT NULL DEFAULT 0,
        priority_level INTEGER NOT NULL DEFAULT 1,
        current_order_count INTEGER NOT NULL DEFAULT 0,
        total_completed INTEGER NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS customers (
        id TEXT PRIMARY KEY,
        phone TEXT NOT NULL UNIQUE,
        name TEXT NOT NULL DEFAULT '',
        total_orders INTEGER NOT NULL DEFAULT 0,
        last_order_at BIGINT
    )`,
	`CREATE TABLE IF NOT EXISTS orders (
        id TEXT PRIMARY KEY,
        order_number TEXT NOT NULL UNIQUE,
        customer_id TEXT NOT NULL,
        customer_phone TEXT NOT NULL,
        customer_name TEXT NOT NULL DEFAULT '',
        chat_id TEXT NOT NULL,
        service_type TEXT NOT NULL,
        pickup_address TEXT NOT NULL DEFAULT '',
        delivery_address TEXT NOT NULL DEFAULT '',
        details TEXT NOT NULL DEFAULT '',
        notes TEXT NOT NULL DEFAULT '',
        driver_id TEXT,
        status TEXT NOT NULL,
        cancel_reason TEXT NOT NULL DEFAULT '',
        created_at BIGINT NOT NULL,
        assigned_at BIGINT,
        accepted_at BIGINT,
        picked_up_at BIGINT,
        on_delivery_at BIGINT,
        completed_at BIGINT,
        cancelled_at BIGINT
    )`,
	`CREATE TABLE IF NOT EXISTS shifts (
        id TEXT PRIMARY KEY,
        driver_id TEXT NOT NULL,
        shift_date TEXT NOT NULL,
        shift_type TEXT NOT NULL,
        start_time TEXT NOT NULL,
        end_time TEXT NOT NULL,
        active INTEGER NOT NULL DEFAULT 1,
        created_at BIGINT NOT NULL,
        UNIQUE (driver_id, shift_date, shift_type)
    )`,
	`CREATE INDEX IF NOT EXISTS orders_status_created ON orders (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS orders_customer_phone ON orders (customer_phone)`,
	`CREATE INDEX IF NOT EXISTS orders_driver ON orders (driver_id)`,
}

const orderColumns = `id, order_number, customer_id, customer_phone, customer_name, chat_id,
        service_type, pickup_address, delivery_address, details, notes, driver_id, status,
        cancel_reason, created_at, assigned_at, accepted_at, picked_up_at, on_delivery_at,
        completed_at, cancelled_at`

const driverColumns = `id, name, phone, on_duty, active, is_priority, priority_level,
        current_order_count, total_completed, created_at`

const shiftColumns = `id, driver_id, shift_date, shift_type, start_time, end_time, active, created_at`
