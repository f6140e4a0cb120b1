package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kilianp07/kurir/core/events"
	"github.com/kilianp07/kurir/core/logger"
	"github.com/kilianp07/kurir/core/model"
	"github.com/kilianp07/kurir/core/quota"
	"github.com/kilianp07/kurir/internal/eventbus"
)

type fakeTransport struct {
	mu         sync.Mutex
	connects   int
	connectErr error
	sent       []string
	closed     bool
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeTransport) SendText(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to+":"+body)
	return nil
}

func (f *fakeTransport) SendTyping(context.Context, string) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type manualScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	queued []func()
}

func (s *manualScheduler) schedule(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.queued = append(s.queued, f)
	return func() bool { return true }
}

func (s *manualScheduler) fire() {
	s.mu.Lock()
	q := s.queued
	s.queued = nil
	s.mu.Unlock()
	for _, f := range q {
		f()
	}
}

func newPool(t *testing.T, ids ...string) (*Pool, map[string]*fakeTransport, *manualScheduler, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	p := NewPool(Config{}, bus, logger.Nop{})
	sched := &manualScheduler{}
	p.SetScheduler(sched.schedule)
	ts := map[string]*fakeTransport{}
	for _, id := range ids {
		ts[id] = &fakeTransport{}
		require.NoError(t, p.Register(id, "bot "+id, ts[id]))
	}
	return p, ts, sched, bus
}

func primaries(p *Pool) int {
	n := 0
	for _, c := range p.Snapshot() {
		if c.IsPrimary {
			n++
			if c.State != model.ChannelReady {
				return -1
			}
		}
	}
	return n
}

func TestPrimaryElectionAndFailover(t *testing.T) {
	p, _, _, _ := newPool(t, "a", "b", "c")
	assert.Equal(t, "", p.Primary())

	p.OnReady("b", "6281")
	p.OnReady("a", "6280")
	assert.Equal(t, "b", p.Primary(), "first ready channel keeps primary")
	assert.Equal(t, 1, primaries(p))

	p.OnDisconnected("b", "stream error")
	assert.Equal(t, "a", p.Primary(), "first ready channel in registration order takes over")
	assert.Equal(t, 1, primaries(p))

	p.OnDisconnected("a", "logged out")
	assert.Equal(t, "", p.Primary())
	assert.Equal(t, 0, primaries(p))

	p.OnReady("c", "6282")
	assert.Equal(t, "c", p.Primary())
}

func TestSinglePrimaryUnderRandomEvents(t *testing.T) {
	p, _, _, _ := newPool(t, "a", "b", "c", "d")
	ids := []string{"a", "b", "c", "d"}
	for i := 0; i < 200; i++ {
		id := ids[(i*7+i/3)%len(ids)]
		switch i % 5 {
		case 0, 3:
			p.OnReady(id, "62")
		case 1:
			p.OnDisconnected(id, "x")
		case 2:
			p.OnPairingCode(id, "code")
		case 4:
			p.MarkNotReady(id, errors.New("send"))
		}
		n := primaries(p)
		require.NotEqual(t, -1, n, "primary must be ready")
		require.LessOrEqual(t, n, 1)
		ready := false
		for _, c := range p.Snapshot() {
			ready = ready || c.State == model.ChannelReady
		}
		if ready {
			require.Equal(t, 1, n, "a ready channel exists so a primary must be set")
		}
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	p, _, _, bus := newPool(t, "a", "b")
	var got []events.ChannelStatusChanged
	bus.Handle(func(e eventbus.Event) {
		if ev, ok := e.(events.ChannelStatusChanged); ok {
			got = append(got, ev)
		}
	})
	p.OnPairingCode("a", "2@abc")
	p.OnAuthenticated("a")
	p.OnReady("a", "628111")
	p.OnReady("b", "628222")
	p.OnDisconnected("a", "boom")

	require.Len(t, got, 6)
	assert.Equal(t, model.ChannelAwaitingScan, got[0].State)
	assert.Equal(t, "2@abc", got[0].PairingCode)
	assert.Equal(t, model.ChannelAuthenticated, got[1].State)
	assert.True(t, got[2].IsPrimary)
	assert.False(t, got[3].IsPrimary)
	assert.Equal(t, "a", got[4].ChannelID)
	assert.Equal(t, model.ChannelDisconnected, got[4].State)
	assert.Equal(t, "boom", got[4].Reason)
	assert.Equal(t, "b", got[5].ChannelID)
	assert.True(t, got[5].IsPrimary)
}

func TestReconnectRetriesForever(t *testing.T) {
	p, ts, sched, _ := newPool(t, "a")
	ts["a"].connectErr = errors.New("dial")

	p.OnDisconnected("a", "lost")
	// a pending reconnect is not scheduled twice
	p.OnDisconnected("a", "lost again")
	require.Len(t, sched.delays, 1)
	assert.Equal(t, 10*time.Second, sched.delays[0])

	for i := 0; i < 3; i++ {
		sched.fire()
	}
	assert.Equal(t, 3, ts["a"].connects)
	assert.Len(t, sched.delays, 4)

	ts["a"].connectErr = nil
	sched.fire()
	p.OnReady("a", "62")
	assert.Equal(t, "a", p.Primary())
}

func TestSilentConnectKeepsRetrying(t *testing.T) {
	p, ts, sched, _ := newPool(t, "a")
	p.OnReady("a", "62")
	p.MarkNotReady("a", errors.New("send failed"))
	require.Equal(t, "", p.Primary())

	// Connect succeeds but the transport reports nothing.
	for i := 0; i < 3; i++ {
		sched.fire()
	}
	assert.Equal(t, 3, ts["a"].connects)
	assert.Len(t, sched.delays, 4, "a silent connect schedules the next attempt")
	assert.False(t, p.Usable("a"))

	sched.fire()
	p.OnReady("a", "62")
	assert.Equal(t, "a", p.Primary())
	assert.True(t, p.Usable("a"))
}

func TestSelectSendingChannelBalancesMinuteLoad(t *testing.T) {
	now := time.Unix(0, 0)
	bus := eventbus.New()
	p := NewPool(Config{Quota: quota.Limits{PerMinute: 2, PerHour: 10, PerDay: 10}}, bus, nil)
	p.SetClock(func() time.Time { return now })
	p.SetScheduler((&manualScheduler{}).schedule)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.Register(id, id, &fakeTransport{}))
	}
	_, ok := p.SelectSendingChannel()
	assert.False(t, ok, "nothing is ready yet")

	p.OnReady("a", "1")
	p.OnReady("b", "2")
	id, ok := p.SelectSendingChannel()
	require.True(t, ok)
	assert.Equal(t, "a", id)

	p.RecordSend("a")
	id, _ = p.SelectSendingChannel()
	assert.Equal(t, "b", id)

	p.RecordSend("b")
	p.RecordSend("b")
	id, _ = p.SelectSendingChannel()
	assert.Equal(t, "a", id, "b is at its minute cap")

	p.RecordSend("a")
	_, ok = p.SelectSendingChannel()
	assert.False(t, ok, "every ready channel is at its cap")
	assert.False(t, p.Usable("a"))

	now = now.Add(time.Minute)
	assert.True(t, p.Usable("a"))
	assert.False(t, p.Usable("c"), "c never became ready")
}

func TestInboundOnlyFromPrimary(t *testing.T) {
	p, _, _, _ := newPool(t, "a", "b")
	var handled []string
	p.SetMessageHandler(MessageHandlerFunc(func(_ context.Context, id string, msg model.InboundMessage) {
		handled = append(handled, id+":"+msg.Body)
	}))

	ctx := context.Background()
	p.OnMessage(ctx, "b", model.InboundMessage{Body: "no primary yet"})
	p.OnReady("a", "1")
	p.OnReady("b", "2")
	p.OnMessage(ctx, "a", model.InboundMessage{Body: "hi"})
	p.OnMessage(ctx, "b", model.InboundMessage{Body: "duplicate"})
	p.OnDisconnected("a", "x")
	p.OnMessage(ctx, "b", model.InboundMessage{Body: "after failover"})

	assert.Equal(t, []string{"b:no primary yet", "a:hi", "b:after failover"}, handled)
}

type countingNudger struct{ n int }

func (c *countingNudger) Nudge() { c.n++ }

func TestReadyNudgesQueue(t *testing.T) {
	p, _, _, _ := newPool(t, "a")
	n := &countingNudger{}
	p.AddNudger(n)
	p.OnReady("a", "1")
	assert.Equal(t, 1, n.n)
	p.OnReady("zzz", "1")
	assert.Equal(t, 1, n.n, "unknown channel is ignored")
}

func TestSendThroughChannel(t *testing.T) {
	p, ts, _, _ := newPool(t, "a")
	require.NoError(t, p.SendText(context.Background(), "a", "628", "hello"))
	assert.Equal(t, []string{"628:hello"}, ts["a"].sent)
	err := p.SendText(context.Background(), "nope", "628", "hello")
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.Error(t, p.Register("a", "dup", &fakeTransport{}))
}

func TestRunConnectsAndCloses(t *testing.T) {
	defer goleak.VerifyNone(t)
	p, ts, sched, _ := newPool(t, "a", "b")
	ts["b"].connectErr = errors.New("no session")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		ts["b"].mu.Lock()
		defer ts["b"].mu.Unlock()
		return ts["b"].connects == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.True(t, ts["a"].closed)
	assert.True(t, ts["b"].closed)
	sched.mu.Lock()
	assert.Len(t, sched.delays, 1, "failed initial connect schedules a retry")
	sched.mu.Unlock()

	// reconnect after close is a no-op
	sched.fire()
	assert.Equal(t, 1, ts["b"].connects)
}

func TestPairingCodeClearedOnAuth(t *testing.T) {
	p, _, _, _ := newPool(t, "a")
	p.OnPairingCode("a", "2@qr")
	code, err := p.PairingCode("a")
	require.NoError(t, err)
	assert.Equal(t, "2@qr", code)

	p.OnAuthenticated("a")
	code, err = p.PairingCode("a")
	require.NoError(t, err)
	assert.Empty(t, code)

	_, err = p.PairingCode("zz")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}
