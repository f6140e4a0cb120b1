// Package conversation keeps per-sender throttling state shared by the
// abuse detector and the cooldown tracker.
package conversation

import (
	"sync"
	"time"
)

// DefaultIdleTTL is how long an untouched conversation is kept.
const DefaultIdleTTL = 24 * time.Hour

// State is the throttling state of one sender. It must only be accessed
// inside Registry.With.
type State struct {
	SenderID     string
	LastReply    time.Time
	LastOrder    time.Time
	Burst        []time.Time
	Strikes      int
	BlockedUntil time.Time

	// NotifiedAt is when the last reply-cooldown notice went out. The flag
	// counts as set for one cooldown period after that.
	NotifiedAt time.Time
	LastSeen   time.Time
}

// Registry owns every conversation. Entries are created lazily.
type Registry struct {
	mu    sync.Mutex
	convs map[string]*State
	now   func() time.Time
}

// NewRegistry creates an empty registry. A nil clock uses time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{convs: map[string]*State{}, now: now}
}

// Now returns the registry clock.
func (r *Registry) Now() time.Time { return r.now() }

// With runs fn on the sender's state under the registry lock and refreshes
// its last-seen time.
func (r *Registry) With(sender string, fn func(s *State, now time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	st, ok := r.convs[sender]
	if !ok {
		st = &State{SenderID: sender}
		r.convs[sender] = st
	}
	st.LastSeen = now
	fn(st, now)
}

// Snapshot returns a copy of the sender's state and whether it exists.
func (r *Registry) Snapshot(sender string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.convs[sender]
	if !ok {
		return State{}, false
	}
	cp := *st
	cp.Burst = append([]time.Time(nil), st.Burst...)
	return cp, true
}

// Len returns the number of tracked conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

// Sweep removes conversations idle for at least maxIdle and returns how many
// were removed. Active blocks are kept until they expire.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for id, st := range r.convs {
		if now.Sub(st.LastSeen) < maxIdle || now.Before(st.BlockedUntil) {
			continue
		}
		delete(r.convs, id)
		removed++
	}
	return removed
}
