package model

import "time"

// OutboundMessage is a text waiting in the delivery queue.
type OutboundMessage struct {
	Recipient  string
	Body       string
	EnqueuedAt time.Time
}

// InboundMessage is a text received on a channel.
type InboundMessage struct {
	ID       string
	SenderID string
	PushName string
	Body     string
	FromMe   bool
	IsStatus bool
	Time     time.Time
}
