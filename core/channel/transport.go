package channel

import (
	"context"
	"errors"

	"github.com/kilianp07/kurir/core/model"
)

// ErrInvalidRecipient is returned by transports for an address they cannot
// send to. It says nothing about the health of the channel.
var ErrInvalidRecipient = errors.New("invalid recipient")

// ErrUnknownChannel is returned for an id that was never registered.
var ErrUnknownChannel = errors.New("unknown channel")

// Transport is the command surface of a chat account.
type Transport interface {
	// Connect starts or resumes the session. Progress is reported through
	// the Observer the transport was built with.
	Connect(ctx context.Context) error
	SendText(ctx context.Context, recipient, body string) error
	SendTyping(ctx context.Context, recipient string) error
	Close() error
}

// Observer receives the lifecycle events of a transport. The set is closed:
// a transport reports nothing else.
type Observer interface {
	OnPairingCode(channelID, code string)
	OnAuthenticated(channelID string)
	OnReady(channelID, identity string)
	OnDisconnected(channelID, reason string)
	OnMessage(ctx context.Context, channelID string, msg model.InboundMessage)
}

// MessageHandler processes inbound messages accepted by the pool.
type MessageHandler interface {
	HandleMessage(ctx context.Context, channelID string, msg model.InboundMessage)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, channelID string, msg model.InboundMessage)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, channelID string, msg model.InboundMessage) {
	f(ctx, channelID, msg)
}
