// Package events streams domain events to dashboards over a websocket at
// GET /api/events.
package events

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	coreevents "github.com/kilianp07/kurir/core/events"
	"github.com/kilianp07/kurir/core/logger"
	"github.com/kilianp07/kurir/internal/eventbus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Frame is one message sent to a client.
type Frame struct {
	Type string           `json:"type"`
	Data coreevents.Event `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboards are served from other origins; the token guards access.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHandler upgrades the request and forwards bus events until the client
// goes away. Browsers cannot set headers on websocket requests, so the token
// is also accepted as the "token" query parameter.
func NewHandler(bus eventbus.EventBus, token string, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token && r.URL.Query().Get("token") != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("websocket upgrade: %v", err)
			return
		}
		sub := bus.Subscribe()
		done := make(chan struct{})
		go readPump(conn, done)
		writePump(conn, sub, done)
		bus.Unsubscribe(sub)
		_ = conn.Close()
	})
}

// readPump discards client frames and closes done when the connection ends.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub <-chan eventbus.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case raw, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			ev, isEvent := raw.(coreevents.Event)
			if !isEvent {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Frame{Type: ev.EventType(), Data: ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
