// Package abuse detects message bursts and silently blocks repeat offenders.
package abuse

import (
	"time"

	"github.com/kilianp07/kurir/core/conversation"
)

// Config tunes the detector.
type Config struct {
	// Window is the span in which messages count toward a burst.
	Window time.Duration
	// BurstThreshold is the number of messages within Window that earns a strike.
	BurstThreshold int
	// MaxStrikes triggers a block when reached.
	MaxStrikes int
	// BlockFor is the duration of a block.
	BlockFor time.Duration
	// RingSize bounds the remembered timestamps per sender.
	RingSize int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Window:         5 * time.Second,
		BurstThreshold: 3,
		MaxStrikes:     2,
		BlockFor:       180 * time.Second,
		RingSize:       10,
	}
}

// Verdict is the outcome of Check.
type Verdict int

const (
	// Allowed lets the message continue through the pipeline.
	Allowed Verdict = iota
	// Blocked means the sender is in an active block, drop silently.
	Blocked
	// NewlyBlocked means this message triggered the block.
	NewlyBlocked
)

// Detector evaluates each inbound message against the sender's history.
type Detector struct {
	cfg Config
	reg *conversation.Registry
}

// New creates a Detector on top of the shared conversation registry.
func New(cfg Config, reg *conversation.Registry) *Detector {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.BurstThreshold <= 0 {
		cfg.BurstThreshold = def.BurstThreshold
	}
	if cfg.MaxStrikes <= 0 {
		cfg.MaxStrikes = def.MaxStrikes
	}
	if cfg.BlockFor <= 0 {
		cfg.BlockFor = def.BlockFor
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = def.RingSize
	}
	return &Detector{cfg: cfg, reg: reg}
}

// Check records the message and returns the verdict for it.
func (d *Detector) Check(sender string) Verdict {
	v := Allowed
	d.reg.With(sender, func(s *conversation.State, now time.Time) {
		if now.Before(s.BlockedUntil) {
			v = Blocked
			return
		}
		if !s.BlockedUntil.IsZero() {
			s.BlockedUntil = time.Time{}
		}
		s.Burst = append(s.Burst, now)
		if len(s.Burst) > d.cfg.RingSize {
			s.Burst = s.Burst[len(s.Burst)-d.cfg.RingSize:]
		}
		recent := 0
		for _, ts := range s.Burst {
			if now.Sub(ts) < d.cfg.Window {
				recent++
			}
		}
		if recent < d.cfg.BurstThreshold {
			return
		}
		s.Strikes++
		if s.Strikes >= d.cfg.MaxStrikes {
			s.BlockedUntil = now.Add(d.cfg.BlockFor)
			s.Strikes = 0
			s.Burst = s.Burst[:0]
			v = NewlyBlocked
		}
	})
	return v
}

// BlockedUntil returns the end of the sender's block, or the zero time.
func (d *Detector) BlockedUntil(sender string) time.Time {
	st, ok := d.reg.Snapshot(sender)
	if !ok || !d.reg.Now().Before(st.BlockedUntil) {
		return time.Time{}
	}
	return st.BlockedUntil
}
