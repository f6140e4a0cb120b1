// Package channels exposes the channel status endpoints under /api/channels.
package channels

import (
	"errors"
	"net/http"

	"github.com/skip2/go-qrcode"

	"github.com/kilianp07/kurir/api/internal/respond"
	"github.com/kilianp07/kurir/core/channel"
	"github.com/kilianp07/kurir/core/model"
)

// Pool is the part of the channel pool used by the handler.
type Pool interface {
	Snapshot() []model.ChannelInfo
	PairingCode(id string) (string, error)
}

// NewHandler returns the channel API:
//
//	GET /api/channels          status of every channel
//	GET /api/channels/{id}/qr  pending pairing code as a PNG
func NewHandler(pool Pool, token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/channels", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, pool.Snapshot())
	})
	mux.HandleFunc("GET /api/channels/{id}/qr", func(w http.ResponseWriter, r *http.Request) {
		code, err := pool.PairingCode(r.PathValue("id"))
		if errors.Is(err, channel.ErrUnknownChannel) {
			respond.JSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		if err != nil {
			respond.Error(w, err)
			return
		}
		if code == "" {
			respond.JSON(w, http.StatusNotFound, map[string]string{"error": "no pairing code pending"})
			return
		}
		png, err := qrcode.Encode(code, qrcode.Medium, 256)
		if err != nil {
			respond.Error(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	})
	return respond.RequireToken(token, mux)
}
