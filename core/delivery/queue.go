// Package delivery implements the global outbound message queue. A single
// drain pass runs at a time; each message goes out with a human-like delay
// and typing indicator through a channel chosen when the pass starts.
package delivery

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kilianp07/kurir/core/channel"
	"github.com/kilianp07/kurir/core/logger"
	"github.com/kilianp07/kurir/core/metrics"
	"github.com/kilianp07/kurir/core/model"
)

// Channels is the part of the channel pool the queue depends on.
type Channels interface {
	SelectSendingChannel() (string, bool)
	Usable(id string) bool
	SendTyping(ctx context.Context, id, recipient string) error
	SendText(ctx context.Context, id, recipient, body string) error
	RecordSend(id string)
	MarkNotReady(id string, err error)
}

// Config tunes pacing.
type Config struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	TypingTime time.Duration
	RetryDelay time.Duration
}

// DefaultConfig returns the production pacing.
func DefaultConfig() Config {
	return Config{
		MinDelay:   3 * time.Second,
		MaxDelay:   6 * time.Second,
		TypingTime: 2 * time.Second,
		RetryDelay: time.Second,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Queue is a FIFO of outbound messages shared by every channel.
type Queue struct {
	mu       sync.Mutex
	items    []model.OutboundMessage
	draining bool
	closed   bool
	retry    *time.Timer

	cfg     Config
	ch      Channels
	log     logger.Logger
	metrics metrics.MetricsSink
	sleep   Sleeper
	jitter  func(min, max time.Duration) time.Duration
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue draining through ch.
func NewQueue(cfg Config, ch Channels, log logger.Logger, sink metrics.MetricsSink) *Queue {
	def := DefaultConfig()
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if log == nil {
		log = logger.Nop{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:     cfg,
		ch:      ch,
		log:     log,
		metrics: sink,
		sleep:   sleepCtx,
		jitter:  randomDelay,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

// SetSleeper overrides how the queue waits. Used by tests.
func (q *Queue) SetSleeper(s Sleeper) { q.sleep = s }

// SetClock overrides the time source.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }

// Enqueue appends a message and starts a drain pass if none is running.
func (q *Queue) Enqueue(recipient, body string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Warnf("queue closed, dropping message to %s", recipient)
		return
	}
	q.items = append(q.items, model.OutboundMessage{Recipient: recipient, Body: body, EnqueuedAt: q.now()})
	depth := len(q.items)
	q.startLocked()
	q.mu.Unlock()
	q.recordDepth(depth)
}

// Nudge starts a drain pass if messages are waiting and none is running.
func (q *Queue) Nudge() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		q.startLocked()
	}
}

// Len returns the number of waiting messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the waiting messages in order.
func (q *Queue) Pending() []model.OutboundMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.OutboundMessage(nil), q.items...)
}

// Close stops retries, interrupts the running pass and waits for it.
// Waiting messages are dropped.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	if q.retry != nil {
		q.retry.Stop()
		q.retry = nil
	}
	left := len(q.items)
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
	if left > 0 {
		q.log.Warnf("delivery queue closed with %d messages waiting", left)
	}
	return nil
}

func (q *Queue) startLocked() {
	if q.draining || q.closed {
		return
	}
	q.draining = true
	q.wg.Add(1)
	go q.drain()
}

func (q *Queue) drain() {
	defer q.wg.Done()
	id, ok := q.ch.SelectSendingChannel()
	if !ok {
		q.log.Debugf("no channel available, %d messages waiting", q.Len())
	} else {
		q.pass(id)
	}
	q.finish()
}

// pass sends head messages through id while the channel stays usable.
func (q *Queue) pass(id string) {
	for {
		q.mu.Lock()
		if q.closed || len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		msg := q.items[0]
		q.mu.Unlock()

		if !q.ch.Usable(id) {
			return
		}
		if err := q.sleep(q.ctx, q.jitter(q.cfg.MinDelay, q.cfg.MaxDelay)); err != nil {
			return
		}
		if err := q.send(id, msg); err != nil {
			if q.ctx.Err() != nil {
				return
			}
			_ = q.metrics.RecordDelivery(metrics.DeliveryEvent{ChannelID: id, Error: err.Error(), Time: q.now()})
			if errors.Is(err, channel.ErrInvalidRecipient) {
				q.log.Errorf("dropping message to %q: %v", msg.Recipient, err)
				q.recordDepth(q.popHead())
				continue
			}
			q.log.Errorf("send via %s failed: %v", id, err)
			q.ch.MarkNotReady(id, err)
			return
		}
		q.ch.RecordSend(id)

		depth := q.popHead()

		_ = q.metrics.RecordDelivery(metrics.DeliveryEvent{
			ChannelID: id,
			Success:   true,
			Wait:      q.now().Sub(msg.EnqueuedAt),
			Time:      q.now(),
		})
		q.recordDepth(depth)
		q.log.Debugf("sent to %s via %s, %d waiting", msg.Recipient, id, depth)
	}
}

// popHead removes the head message and returns the remaining depth.
func (q *Queue) popHead() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		q.items = q.items[1:]
	}
	return len(q.items)
}

func (q *Queue) send(id string, msg model.OutboundMessage) error {
	if err := q.ch.SendTyping(q.ctx, id, msg.Recipient); err != nil {
		return err
	}
	if err := q.sleep(q.ctx, q.cfg.TypingTime); err != nil {
		return err
	}
	return q.ch.SendText(q.ctx, id, msg.Recipient, msg.Body)
}

// finish ends the pass and schedules another one while messages remain.
func (q *Queue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.draining = false
	if q.closed || len(q.items) == 0 {
		return
	}
	if q.retry != nil {
		q.retry.Stop()
	}
	q.retry = time.AfterFunc(q.cfg.RetryDelay, q.Nudge)
}

func (q *Queue) recordDepth(depth int) {
	if r, ok := q.metrics.(metrics.QueueDepthRecorder); ok {
		_ = r.RecordQueueDepth(depth)
	}
}
