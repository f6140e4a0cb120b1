package store

import (
	"fmt"

	"github.com/kilianp07/kurir/core/dispatch"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures the persistence backend.
type Config struct {
	Driver       string `json:"driver"`
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
}

// SetDefaults applies the defaults: a local SQLite file.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.Driver == DriverSQLite && c.DSN == "" {
		c.DSN = "kurir.db"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Driver)
	}
	return nil
}

// New opens the configured store.
func New(cfg Config) (dispatch.Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverMemory {
		return NewMemoryStore(), nil
	}
	return Open(cfg)
}
