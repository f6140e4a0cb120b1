// Package chatbot turns inbound chat messages into orders and order events
// into customer notices.
package chatbot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kilianp07/kurir/core/abuse"
	"github.com/kilianp07/kurir/core/channel"
	"github.com/kilianp07/kurir/core/cooldown"
	"github.com/kilianp07/kurir/core/dedup"
	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/logger"
	coremetrics "github.com/kilianp07/kurir/core/metrics"
	"github.com/kilianp07/kurir/core/model"
)

// Orders is the part of the dispatcher used by the chat flow.
type Orders interface {
	CreateOrder(ctx context.Context, req dispatch.OrderRequest) (model.Order, error)
	Order(ctx context.Context, id string) (model.Order, error)
	Driver(ctx context.Context, id string) (model.Driver, error)
}

// Outbox accepts outbound messages. delivery.Queue implements it.
type Outbox interface {
	Enqueue(recipient, body string)
}

// Deps groups the collaborators of a Handler.
type Deps struct {
	Parser   *Parser
	Dedup    dedup.Cache
	Abuse    *abuse.Detector
	Cooldown *cooldown.Tracker
	Orders   Orders
	Outbox   Outbox
	Log      logger.Logger
	Metrics  coremetrics.MetricsSink
}

// Handler processes inbound messages from the primary channel.
type Handler struct {
	Deps
	now func() time.Time
}

var _ channel.MessageHandler = (*Handler)(nil)

// NewHandler creates a Handler. Parser, Log and Metrics may be left nil.
func NewHandler(d Deps) *Handler {
	if d.Parser == nil {
		d.Parser = NewParser(nil, "")
	}
	if d.Log == nil {
		d.Log = logger.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = coremetrics.NopSink{}
	}
	return &Handler{Deps: d, now: time.Now}
}

// HandleMessage implements channel.MessageHandler.
func (h *Handler) HandleMessage(ctx context.Context, channelID string, msg model.InboundMessage) {
	if msg.FromMe || msg.IsStatus {
		return
	}
	text := strings.TrimSpace(msg.Body)
	if text == "" {
		return
	}
	if msg.ID != "" {
		seen, err := h.Dedup.Seen(ctx, msg.ID)
		if err != nil {
			h.Log.Warnf("dedup %s: %v", msg.ID, err)
		} else if seen {
			h.record(channelID, coremetrics.OutcomeDuplicate)
			return
		}
	}
	sender := msg.SenderID
	h.Log.Debugw("inbound message", map[string]any{"channel": channelID, "sender": sender, "text": preview(text)})

	switch h.Abuse.Check(sender) {
	case abuse.NewlyBlocked:
		h.Log.Warnf("sender %s blocked until %s", sender, h.Abuse.BlockedUntil(sender).Format(time.TimeOnly))
		h.record(channelID, coremetrics.OutcomeBlocked)
		return
	case abuse.Blocked:
		h.record(channelID, coremetrics.OutcomeBlocked)
		return
	}

	cmd, err := h.Parser.Parse(text)
	if err == nil {
		h.record(channelID, h.order(ctx, sender, msg.PushName, cmd))
		return
	}

	// Only non-order text is held back by the reply cooldown.
	if d := h.Cooldown.CheckReply(sender); !d.Allowed {
		if d.Notify {
			h.Outbox.Enqueue(sender, ReplyCooldownText(d.Remaining))
		}
		h.record(channelID, coremetrics.OutcomeCooldown)
		return
	}
	h.record(channelID, h.correct(sender, err))
	h.Cooldown.MarkReplied(sender)
}

// correct queues the menu or a corrective reply for text that is not a valid
// order command.
func (h *Handler) correct(sender string, err error) string {
	services := h.Parser.Services()
	switch {
	case errors.Is(err, ErrNotCommand):
		h.Outbox.Enqueue(sender, MenuText(services))
		return coremetrics.OutcomeMenu
	case errors.Is(err, ErrInvalidService):
		h.Outbox.Enqueue(sender, InvalidServiceText(services))
	default:
		h.Outbox.Enqueue(sender, BadFormatText(services))
	}
	return coremetrics.OutcomeInvalid
}

// order applies the order cooldown, creates the order and queues exactly one
// reply.
func (h *Handler) order(ctx context.Context, sender, name string, cmd Command) string {
	if d := h.Cooldown.CheckOrder(sender); !d.Allowed {
		h.Outbox.Enqueue(sender, OrderCooldownText(d.Remaining))
		return coremetrics.OutcomeCooldown
	}

	o, err := h.Orders.CreateOrder(ctx, dispatch.OrderRequest{
		Phone:       cmd.Phone,
		Name:        name,
		ChatID:      sender,
		ServiceType: cmd.Service.Type,
	})
	if err != nil {
		h.Log.Errorf("create order for %s: %v", sender, err)
		h.Outbox.Enqueue(sender, OrderFailedText)
		return coremetrics.OutcomeFailed
	}
	h.Cooldown.MarkOrdered(sender)
	h.Cooldown.MarkReplied(sender)

	var drv *model.Driver
	if o.HasDriver() {
		if d, err := h.Orders.Driver(ctx, o.DriverID); err == nil {
			drv = &d
		} else {
			h.Log.Warnf("driver %s for %s: %v", o.DriverID, o.OrderNumber, err)
		}
	}
	h.Outbox.Enqueue(sender, ConfirmationText(o, cmd.Service.Label, drv))
	return coremetrics.OutcomeOrder
}

func (h *Handler) record(channelID, outcome string) {
	rec, ok := h.Metrics.(coremetrics.InboundRecorder)
	if !ok {
		return
	}
	if err := rec.RecordInbound(coremetrics.InboundEvent{ChannelID: channelID, Outcome: outcome, Time: h.now()}); err != nil {
		h.Log.Warnf("record inbound: %v", err)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 50 {
		return string(r[:50])
	}
	return s
}
