package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/kilianp07/kurir/core/channel"
	"github.com/kilianp07/kurir/core/model"
)

// parseRecipient accepts a full JID or a bare phone number.
func parseRecipient(recipient string) (types.JID, error) {
	if strings.Contains(recipient, "@") {
		jid, err := types.ParseJID(recipient)
		if err != nil {
			return types.JID{}, fmt.Errorf("%w %q: %v", channel.ErrInvalidRecipient, recipient, err)
		}
		return jid, nil
	}
	user := strings.TrimPrefix(recipient, "+")
	if user == "" {
		return types.JID{}, fmt.Errorf("%w: empty", channel.ErrInvalidRecipient)
	}
	return types.NewJID(user, types.DefaultUserServer), nil
}

// textMessage builds a plain text message.
func textMessage(body string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(body)}
}

// messageText extracts the text of a plain or extended text message.
func messageText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if txt := m.GetConversation(); txt != "" {
		return txt
	}
	if ext := m.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// inboundFromEvent converts a whatsmeow message event.
func inboundFromEvent(evt *events.Message) model.InboundMessage {
	chat := evt.Info.Chat
	return model.InboundMessage{
		ID:       string(evt.Info.ID),
		SenderID: chat.String(),
		PushName: evt.Info.PushName,
		Body:     messageText(evt.Message),
		FromMe:   evt.Info.IsFromMe,
		IsStatus: chat == types.StatusBroadcastJID || chat.Server == types.BroadcastServer,
		Time:     evt.Info.Timestamp,
	}
}
