// Package channel manages the pool of chat accounts: their lifecycle, the
// election of a primary for inbound traffic, failover and reconnection.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/kurir/core/events"
	"github.com/kilianp07/kurir/core/logger"
	"github.com/kilianp07/kurir/core/model"
	"github.com/kilianp07/kurir/core/monitoring"
	"github.com/kilianp07/kurir/core/quota"
	"github.com/kilianp07/kurir/internal/eventbus"
)

// Config tunes the pool.
type Config struct {
	Quota quota.Limits
	// ReconnectDelay is the fixed backoff before reconnecting a channel.
	ReconnectDelay time.Duration
	// InitDelay staggers the initial connection of each channel.
	InitDelay time.Duration
}

// Scheduler runs f after d and returns a function cancelling it.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func timerScheduler(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Nudger is notified when a channel becomes ready.
type Nudger interface {
	Nudge()
}

type entry struct {
	id        string
	name      string
	transport Transport
	quota     *quota.Tracker
	state     model.ChannelState
	phone     string
	code      string
	stopRetry func() bool
}

// Pool owns every registered channel. It is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	cfg      Config
	entries  []*entry
	byID     map[string]*entry
	primary  string
	bus      eventbus.EventBus
	log      logger.Logger
	now      func() time.Time
	schedule Scheduler
	handler  MessageHandler
	nudgers  []Nudger
	ctx      context.Context
	closed   bool
}

// NewPool creates an empty pool. bus may be nil.
func NewPool(cfg Config, bus eventbus.EventBus, log logger.Logger) *Pool {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 10 * time.Second
	}
	if cfg.Quota == (quota.Limits{}) {
		cfg.Quota = quota.DefaultLimits
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Pool{
		cfg:      cfg,
		byID:     map[string]*entry{},
		bus:      bus,
		log:      log,
		now:      time.Now,
		schedule: timerScheduler,
		ctx:      context.Background(),
	}
}

// SetClock overrides the clock used by the quota trackers. Call before Register.
func (p *Pool) SetClock(now func() time.Time) { p.now = now }

// SetScheduler overrides the reconnect scheduler.
func (p *Pool) SetScheduler(s Scheduler) { p.schedule = s }

// SetMessageHandler sets the receiver for inbound messages.
func (p *Pool) SetMessageHandler(h MessageHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// AddNudger registers a component to wake when a channel becomes ready.
func (p *Pool) AddNudger(n Nudger) {
	p.mu.Lock()
	p.nudgers = append(p.nudgers, n)
	p.mu.Unlock()
}

// Register adds a channel in the Disconnected state. Registration order is
// the failover order.
func (p *Pool) Register(id, name string, t Transport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byID[id]; ok {
		return fmt.Errorf("channel %s already registered", id)
	}
	e := &entry{id: id, name: name, transport: t, quota: quota.New(p.cfg.Quota, p.now)}
	p.entries = append(p.entries, e)
	p.byID[id] = e
	return nil
}

// Run connects every channel, staggered by InitDelay, then blocks until ctx
// is done and closes the transports.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	p.ctx = ctx
	list := append([]*entry(nil), p.entries...)
	p.mu.Unlock()

	for i, e := range list {
		if i > 0 && p.cfg.InitDelay > 0 {
			select {
			case <-ctx.Done():
				return p.Close()
			case <-time.After(p.cfg.InitDelay):
			}
		}
		p.log.Infof("starting channel %s (%s)", e.id, e.name)
		if err := e.transport.Connect(ctx); err != nil {
			p.OnDisconnected(e.id, err.Error())
		}
	}
	<-ctx.Done()
	return p.Close()
}

// Close cancels pending reconnects and closes every transport.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	list := append([]*entry(nil), p.entries...)
	for _, e := range list {
		if e.stopRetry != nil {
			e.stopRetry()
			e.stopRetry = nil
		}
	}
	p.mu.Unlock()

	var firstErr error
	for _, e := range list {
		if err := e.transport.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", e.id, err)
		}
	}
	return firstErr
}

// OnPairingCode moves the channel to AwaitingScan.
func (p *Pool) OnPairingCode(id, code string) {
	p.transition(id, func(e *entry) []events.ChannelStatusChanged {
		promoted := p.leaveReadyLocked(e, model.ChannelAwaitingScan)
		e.code = code
		return append([]events.ChannelStatusChanged{p.statusLocked(e, "")}, promoted...)
	})
}

// OnAuthenticated moves the channel to Authenticated.
func (p *Pool) OnAuthenticated(id string) {
	p.transition(id, func(e *entry) []events.ChannelStatusChanged {
		promoted := p.leaveReadyLocked(e, model.ChannelAuthenticated)
		e.code = ""
		return append([]events.ChannelStatusChanged{p.statusLocked(e, "")}, promoted...)
	})
}

// OnReady marks the channel usable. It becomes primary when none is set.
func (p *Pool) OnReady(id, identity string) {
	ok := p.transition(id, func(e *entry) []events.ChannelStatusChanged {
		e.state = model.ChannelReady
		e.phone = identity
		e.code = ""
		if e.stopRetry != nil {
			e.stopRetry()
			e.stopRetry = nil
		}
		if p.primary == "" {
			p.primary = id
		}
		return []events.ChannelStatusChanged{p.statusLocked(e, "")}
	})
	if !ok {
		return
	}
	p.log.Infof("channel %s ready as %s", id, identity)
	p.mu.Lock()
	ns := append([]Nudger(nil), p.nudgers...)
	p.mu.Unlock()
	for _, n := range ns {
		n.Nudge()
	}
}

// OnDisconnected marks the channel down, fails over the primary role and
// schedules a reconnect.
func (p *Pool) OnDisconnected(id, reason string) {
	p.transition(id, func(e *entry) []events.ChannelStatusChanged {
		promoted := p.leaveReadyLocked(e, model.ChannelDisconnected)
		p.scheduleReconnectLocked(e)
		return append([]events.ChannelStatusChanged{p.statusLocked(e, reason)}, promoted...)
	})
	p.log.Warnf("channel %s disconnected: %s", id, reason)
}

// leaveReadyLocked sets a non-ready state. When e held the primary role it
// passes to the first ready channel in registration order, if any.
func (p *Pool) leaveReadyLocked(e *entry, st model.ChannelState) []events.ChannelStatusChanged {
	e.state = st
	if p.primary != e.id {
		return nil
	}
	p.primary = ""
	for _, c := range p.entries {
		if c.state == model.ChannelReady {
			p.primary = c.id
			return []events.ChannelStatusChanged{p.statusLocked(c, "promoted")}
		}
	}
	return nil
}

// OnMessage forwards inbound traffic from the primary, or from any channel
// while no primary is ready.
func (p *Pool) OnMessage(ctx context.Context, id string, msg model.InboundMessage) {
	if !p.ShouldHandle(id) {
		return
	}
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h.HandleMessage(ctx, id, msg)
	}
}

// MarkNotReady is called by senders when a transport call failed.
func (p *Pool) MarkNotReady(id string, err error) {
	monitoring.CaptureException(err, map[string]string{"channel": id})
	reason := "send failed"
	if err != nil {
		reason = err.Error()
	}
	p.OnDisconnected(id, reason)
}

// ShouldHandle reports whether inbound messages on id must be processed.
func (p *Pool) ShouldHandle(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.primary == "" || p.primary == id
}

// Primary returns the primary channel id, or "" when none is ready.
func (p *Pool) Primary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.primary
}

// SelectSendingChannel returns the ready channel under quota with the fewest
// sends in its current minute window. Ties keep registration order.
func (p *Pool) SelectSendingChannel() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	best := ""
	bestCount := 0
	for _, e := range p.entries {
		if e.state != model.ChannelReady || !e.quota.CanSend() {
			continue
		}
		if c := e.quota.MinuteCount(); best == "" || c < bestCount {
			best, bestCount = e.id, c
		}
	}
	return best, best != ""
}

// Usable reports whether id is ready and under quota.
func (p *Pool) Usable(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byID[id]
	return ok && e.state == model.ChannelReady && e.quota.CanSend()
}

// RecordSend counts a successful send on id.
func (p *Pool) RecordSend(id string) {
	p.mu.Lock()
	e, ok := p.byID[id]
	p.mu.Unlock()
	if ok {
		e.quota.RecordSend()
	}
}

// SendText sends body through the channel id.
func (p *Pool) SendText(ctx context.Context, id, recipient, body string) error {
	t, err := p.transportOf(id)
	if err != nil {
		return err
	}
	return t.SendText(ctx, recipient, body)
}

// SendTyping shows a typing indicator through the channel id.
func (p *Pool) SendTyping(ctx context.Context, id, recipient string) error {
	t, err := p.transportOf(id)
	if err != nil {
		return err
	}
	return t.SendTyping(ctx, recipient)
}

// Snapshot returns the status of every channel in registration order.
func (p *Pool) Snapshot() []model.ChannelInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ChannelInfo, 0, len(p.entries))
	for _, e := range p.entries {
		m, h, d := e.quota.Counts()
		out = append(out, model.ChannelInfo{
			ID:          e.id,
			Name:        e.name,
			State:       e.state,
			Phone:       e.phone,
			IsPrimary:   e.id == p.primary,
			MinuteCount: m,
			HourCount:   h,
			DayCount:    d,
		})
	}
	return out
}

// PairingCode returns the last pairing code issued for a channel awaiting a
// scan, or "" when none is pending.
func (p *Pool) PairingCode(id string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownChannel, id)
	}
	return e.code, nil
}

func (p *Pool) transportOf(id string) (Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, id)
	}
	return e.transport, nil
}

// transition applies fn under the lock and publishes the resulting events
// after releasing it.
func (p *Pool) transition(id string, fn func(*entry) []events.ChannelStatusChanged) bool {
	p.mu.Lock()
	e, ok := p.byID[id]
	if !ok {
		p.mu.Unlock()
		p.log.Warnf("event for unknown channel %s", id)
		return false
	}
	evs := fn(e)
	p.mu.Unlock()
	if p.bus != nil {
		for _, ev := range evs {
			p.bus.Publish(ev)
		}
	}
	return true
}

func (p *Pool) statusLocked(e *entry, reason string) events.ChannelStatusChanged {
	return events.ChannelStatusChanged{
		ChannelID:   e.id,
		Name:        e.name,
		State:       e.state,
		IsPrimary:   e.id == p.primary,
		Phone:       e.phone,
		Reason:      reason,
		PairingCode: e.code,
		Time:        p.now(),
	}
}

func (p *Pool) scheduleReconnectLocked(e *entry) {
	if p.closed || e.stopRetry != nil {
		return
	}
	id := e.id
	e.stopRetry = p.schedule(p.cfg.ReconnectDelay, func() { p.reconnect(id) })
}

func (p *Pool) reconnect(id string) {
	p.mu.Lock()
	e, ok := p.byID[id]
	if !ok || p.closed {
		p.mu.Unlock()
		return
	}
	e.stopRetry = nil
	ctx := p.ctx
	t := e.transport
	p.mu.Unlock()

	p.log.Infof("reconnecting channel %s", id)
	if err := t.Connect(ctx); err != nil {
		p.OnDisconnected(id, err.Error())
		return
	}
	// Keep retrying until the transport reports a state change.
	p.mu.Lock()
	if e.state == model.ChannelDisconnected {
		p.scheduleReconnectLocked(e)
	}
	p.mu.Unlock()
}
