// Package cooldown paces replies and order creation per sender.
package cooldown

import (
	"time"

	"github.com/kilianp07/kurir/core/conversation"
)

// Defaults for the two cooldowns.
const (
	DefaultReply = 60 * time.Second
	DefaultOrder = 30 * time.Second
)

// Decision tells the caller what to do with a message.
type Decision struct {
	// Allowed means the cooldown has elapsed.
	Allowed bool
	// Notify asks the caller to send a "please wait" notice.
	Notify bool
	// Remaining is the wait left, in whole seconds rounded up.
	Remaining int
}

// Tracker applies the reply and order cooldowns on the conversation registry.
type Tracker struct {
	reg   *conversation.Registry
	reply time.Duration
	order time.Duration
}

// New creates a Tracker. Non-positive durations select the defaults.
func New(reg *conversation.Registry, reply, order time.Duration) *Tracker {
	if reply <= 0 {
		reply = DefaultReply
	}
	if order <= 0 {
		order = DefaultOrder
	}
	return &Tracker{reg: reg, reply: reply, order: order}
}

// CheckReply evaluates the reply cooldown. While it runs at most one notice
// is requested per period.
func (t *Tracker) CheckReply(sender string) Decision {
	var d Decision
	t.reg.With(sender, func(s *conversation.State, now time.Time) {
		if s.LastReply.IsZero() || now.Sub(s.LastReply) >= t.reply {
			d.Allowed = true
			return
		}
		d.Remaining = remainingSeconds(t.reply - now.Sub(s.LastReply))
		if s.NotifiedAt.IsZero() || now.Sub(s.NotifiedAt) >= t.reply {
			s.NotifiedAt = now
			d.Notify = true
		}
	})
	return d
}

// CheckOrder evaluates the order cooldown. Every refused attempt asks for a
// notice.
func (t *Tracker) CheckOrder(sender string) Decision {
	var d Decision
	t.reg.With(sender, func(s *conversation.State, now time.Time) {
		if s.LastOrder.IsZero() || now.Sub(s.LastOrder) >= t.order {
			d.Allowed = true
			return
		}
		d.Remaining = remainingSeconds(t.order - now.Sub(s.LastOrder))
		d.Notify = true
	})
	return d
}

// MarkReplied starts the reply cooldown.
func (t *Tracker) MarkReplied(sender string) {
	t.reg.With(sender, func(s *conversation.State, now time.Time) { s.LastReply = now })
}

// MarkOrdered starts the order cooldown.
func (t *Tracker) MarkOrdered(sender string) {
	t.reg.With(sender, func(s *conversation.State, now time.Time) { s.LastOrder = now })
}

func remainingSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
