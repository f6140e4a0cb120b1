package dispatch

import (
	"fmt"
	"time"

	"github.com/kilianp07/kurir/core/model"
)

// Config holds dispatch parameters.
type Config struct {
	Capacity            int    `json:"capacity"`
	OrderPrefix         string `json:"order_prefix"`
	CountryCode         string `json:"country_code"`
	RetryPendingSeconds int    `json:"retry_pending_seconds"`
	// Timezone names the location used for order number dates.
	Timezone string `json:"timezone"`
}

// SetDefaults applies the production defaults.
func (c *Config) SetDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = model.DriverCapacity
	}
	if c.OrderPrefix == "" {
		c.OrderPrefix = "ORD"
	}
	if c.CountryCode == "" {
		c.CountryCode = "62"
	}
	if c.RetryPendingSeconds == 0 {
		c.RetryPendingSeconds = 30
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("dispatch.capacity must be >= 1")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("dispatch.timezone: %w", err)
	}
	return nil
}

// Location resolves the configured timezone, defaulting to local time.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
