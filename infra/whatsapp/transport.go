// Package whatsapp implements channel.Transport on top of whatsmeow. Each
// transport keeps its device session in its own SQLite file.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/kilianp07/kurir/core/channel"
	"github.com/kilianp07/kurir/core/logger"
)

// Transport is a single WhatsApp account.
type Transport struct {
	id          string
	sessionPath string
	obs         channel.Observer
	log         logger.Logger
	wa          waLogger

	mu        sync.Mutex
	db        *sql.DB
	container *sqlstore.Container
	client    *whatsmeow.Client
}

var _ channel.Transport = (*Transport)(nil)

// New creates a transport reporting to obs. The session database lives at
// sessionPath and is created on first Connect.
func New(id, sessionPath string, obs channel.Observer, log logger.Logger) *Transport {
	if log == nil {
		log = logger.Nop{}
	}
	return &Transport{
		id:          id,
		sessionPath: sessionPath,
		obs:         obs,
		log:         log,
		wa:          newWALogger(log, "wa:"+id),
	}
}

// Connect opens the session store and connects. Without a stored device the
// transport starts QR pairing and reports codes via OnPairingCode.
func (t *Transport) Connect(ctx context.Context) error {
	c, err := t.prepare(ctx)
	if err != nil {
		return err
	}
	if c.IsConnected() {
		// No Connected event follows when the socket is still up, as after
		// a failed send.
		if c.IsLoggedIn() {
			t.obs.OnReady(t.id, t.identity())
		}
		return nil
	}
	if c.Store.ID == nil {
		qrChan, err := c.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		if err := c.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		go t.watchQR(qrChan)
		return nil
	}
	if err := c.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// prepare opens the store and builds the client on first use.
func (t *Transport) prepare(ctx context.Context) (*whatsmeow.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.openLocked(ctx); err != nil {
		return nil, err
	}
	if t.client == nil {
		device, err := t.deviceLocked(ctx)
		if err != nil {
			return nil, err
		}
		t.client = whatsmeow.NewClient(device, t.wa.Sub("client"))
		// The pool owns reconnection.
		t.client.EnableAutoReconnect = false
		t.client.AddEventHandler(t.handle)
	}
	return t.client, nil
}

func (t *Transport) openLocked(ctx context.Context) error {
	if t.container != nil {
		return nil
	}
	if dir := filepath.Dir(t.sessionPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+t.sessionPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	container := sqlstore.NewWithDB(db, "sqlite3", t.wa.Sub("store"))
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("upgrade session store: %w", err)
	}
	t.db = db
	t.container = container
	return nil
}

func (t *Transport) deviceLocked(ctx context.Context) (*store.Device, error) {
	devices, err := t.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return t.container.NewDevice(), nil
}

func (t *Transport) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			t.logQR(item.Code)
			t.obs.OnPairingCode(t.id, item.Code)
		case "timeout":
			t.obs.OnDisconnected(t.id, "pairing timed out")
			return
		case "success":
			return
		default:
			if item.Error != nil {
				t.obs.OnDisconnected(t.id, "pairing failed: "+item.Error.Error())
				return
			}
		}
	}
}

func (t *Transport) logQR(code string) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		t.log.Errorf("render pairing code for %s: %v", t.id, err)
		return
	}
	t.log.Infof("scan with WhatsApp (Linked Devices) to pair %s:\n%s", t.id, qr.ToSmallString(false))
}

func (t *Transport) handle(evt interface{}) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		t.log.Infof("%s paired as %s", t.id, e.ID.User)
		t.obs.OnAuthenticated(t.id)
	case *events.Connected:
		t.obs.OnReady(t.id, t.identity())
	case *events.Disconnected:
		t.obs.OnDisconnected(t.id, "disconnected")
	case *events.StreamReplaced:
		t.obs.OnDisconnected(t.id, "stream replaced")
	case *events.LoggedOut:
		t.dropClient()
		t.obs.OnDisconnected(t.id, fmt.Sprintf("logged out: %v", e.Reason))
	case *events.Message:
		if e.Info.IsGroup {
			return
		}
		t.obs.OnMessage(context.Background(), t.id, inboundFromEvent(e))
	}
}

// dropClient forgets a logged-out device so the next Connect pairs again.
func (t *Transport) dropClient() {
	t.mu.Lock()
	c := t.client
	t.client = nil
	t.mu.Unlock()
	if c != nil {
		go c.Disconnect()
	}
}

func (t *Transport) identity() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil || t.client.Store.ID == nil {
		return ""
	}
	return t.client.Store.ID.User
}

func (t *Transport) connected() (*whatsmeow.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil || !t.client.IsConnected() {
		return nil, fmt.Errorf("%s: not connected", t.id)
	}
	return t.client, nil
}

// SendText implements channel.Transport.
func (t *Transport) SendText(ctx context.Context, recipient, body string) error {
	c, err := t.connected()
	if err != nil {
		return err
	}
	jid, err := parseRecipient(recipient)
	if err != nil {
		return err
	}
	if _, err := c.SendMessage(ctx, jid, textMessage(body)); err != nil {
		return fmt.Errorf("send to %s: %w", jid, err)
	}
	return nil
}

// SendTyping implements channel.Transport.
func (t *Transport) SendTyping(ctx context.Context, recipient string) error {
	c, err := t.connected()
	if err != nil {
		return err
	}
	jid, err := parseRecipient(recipient)
	if err != nil {
		return err
	}
	return c.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// Close disconnects and closes the session database.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		t.client.Disconnect()
		t.client = nil
	}
	t.container = nil
	if t.db == nil {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	return err
}
