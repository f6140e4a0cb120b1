package whatsapp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/kilianp07/kurir/core/channel"
	"github.com/kilianp07/kurir/core/model"
)

func TestParseRecipient(t *testing.T) {
	jid, err := parseRecipient("6281234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "6281234567890", jid.User)
	assert.Equal(t, types.DefaultUserServer, jid.Server)

	jid, err = parseRecipient("+6281234567890")
	require.NoError(t, err)
	assert.Equal(t, "6281234567890@s.whatsapp.net", jid.String())

	_, err = parseRecipient("")
	assert.ErrorIs(t, err, channel.ErrInvalidRecipient)
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "", messageText(nil))
	assert.Equal(t, "1 0812", messageText(&waE2E.Message{Conversation: proto.String("1 0812")}))
	ext := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("halo")}}
	assert.Equal(t, "halo", messageText(ext))
	assert.Equal(t, "hi", textMessage("hi").GetConversation())
}

func TestInboundFromEvent(t *testing.T) {
	now := time.Now()
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("6285000000001", types.DefaultUserServer),
				Sender: types.NewJID("6285000000001", types.DefaultUserServer),
			},
			ID:        "ABC",
			PushName:  "Sari",
			Timestamp: now,
		},
		Message: &waE2E.Message{Conversation: proto.String("1 081234567890")},
	}
	msg := inboundFromEvent(evt)
	assert.Equal(t, model.InboundMessage{
		ID:       "ABC",
		SenderID: "6285000000001@s.whatsapp.net",
		PushName: "Sari",
		Body:     "1 081234567890",
		Time:     now,
	}, msg)

	evt.Info.Chat = types.StatusBroadcastJID
	assert.True(t, inboundFromEvent(evt).IsStatus)
}

type observer struct {
	mu    sync.Mutex
	calls []string
	inbox []model.InboundMessage
}

func (o *observer) add(s string) {
	o.mu.Lock()
	o.calls = append(o.calls, s)
	o.mu.Unlock()
}

func (o *observer) OnPairingCode(_, code string) { o.add("code:" + code) }

func (o *observer) OnAuthenticated(string) { o.add("auth") }

func (o *observer) OnReady(_, identity string) { o.add("ready:" + identity) }

func (o *observer) OnDisconnected(_, reason string) { o.add("down:" + reason) }

func (o *observer) OnMessage(_ context.Context, _ string, m model.InboundMessage) {
	o.mu.Lock()
	o.inbox = append(o.inbox, m)
	o.mu.Unlock()
}

func TestHandleRoutesEvents(t *testing.T) {
	obs := &observer{}
	tr := New("bot1", t.TempDir()+"/s.db", obs, nil)

	tr.handle(&events.Connected{})
	tr.handle(&events.Disconnected{})
	tr.handle(&events.StreamReplaced{})
	tr.handle(&events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{IsGroup: true}, ID: "g"},
		Message: &waE2E.Message{Conversation: proto.String("group chatter")},
	})
	tr.handle(&events.Message{
		Info:    types.MessageInfo{ID: "d"},
		Message: &waE2E.Message{Conversation: proto.String("direct")},
	})

	assert.Equal(t, []string{"ready:", "down:disconnected", "down:stream replaced"}, obs.calls)
	require.Len(t, obs.inbox, 1)
	assert.Equal(t, "direct", obs.inbox[0].Body)
}

func TestWALoggerSub(t *testing.T) {
	l := newWALogger(nil, "wa:bot1")
	sub := l.Sub("client").(waLogger)
	assert.Equal(t, "wa:bot1/client", sub.module)
	assert.Equal(t, "[wa:bot1/client] hello", sub.prefix("hello"))
}
