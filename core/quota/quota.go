// Package quota tracks per-channel send counts over minute, hour and day
// windows. Windows reset lazily when they are next consulted.
package quota

import (
	"sync"
	"time"
)

// Limits caps the number of sends per window. A zero cap disables the window.
type Limits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
	PerDay    int `json:"per_day"`
}

// DefaultLimits matches the conservative pacing used for personal accounts.
var DefaultLimits = Limits{PerMinute: 8, PerHour: 100, PerDay: 1000}

type window struct {
	span  time.Duration
	max   int
	count int
	reset time.Time
}

func (w *window) roll(now time.Time) {
	if now.Sub(w.reset) >= w.span {
		w.count = 0
		w.reset = now
	}
}

func (w *window) full() bool { return w.max > 0 && w.count >= w.max }

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	now    func() time.Time
	minute window
	hour   window
	day    window
}

// New creates a Tracker. A nil clock uses time.Now.
func New(l Limits, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Tracker{
		now:    now,
		minute: window{span: time.Minute, max: l.PerMinute, reset: start},
		hour:   window{span: time.Hour, max: l.PerHour, reset: start},
		day:    window{span: 24 * time.Hour, max: l.PerDay, reset: start},
	}
}

func (t *Tracker) rollLocked() time.Time {
	now := t.now()
	t.minute.roll(now)
	t.hour.roll(now)
	t.day.roll(now)
	return now
}

// CanSend reports whether every window is below its cap.
func (t *Tracker) CanSend() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	return !t.minute.full() && !t.hour.full() && !t.day.full()
}

// RecordSend counts one send in every window.
func (t *Tracker) RecordSend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	t.minute.count++
	t.hour.count++
	t.day.count++
}

// MinuteCount returns the sends in the current minute window.
func (t *Tracker) MinuteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	return t.minute.count
}

// Counts returns the current minute, hour and day counts.
func (t *Tracker) Counts() (minute, hour, day int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	return t.minute.count, t.hour.count, t.day.count
}
