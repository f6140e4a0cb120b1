// Package health serves GET /api/health.
package health

import (
	"net/http"
	"time"

	"github.com/kilianp07/kurir/api/internal/respond"
	"github.com/kilianp07/kurir/core/model"
)

// Status is the health document.
type Status struct {
	Status        string    `json:"status"`
	Primary       string    `json:"primary,omitempty"`
	ReadyChannels int       `json:"ready_channels"`
	TotalChannels int       `json:"total_channels"`
	QueueDepth    int       `json:"queue_depth"`
	Uptime        string    `json:"uptime"`
	Time          time.Time `json:"time"`
}

// Source reports the live state of the engine.
type Source interface {
	Snapshot() []model.ChannelInfo
	Primary() string
}

// Queue reports the delivery backlog.
type Queue interface {
	Len() int
}

// NewHandler reports "ok" while a primary channel is ready and "degraded"
// otherwise. The endpoint is never behind the token so load balancers can reach it.
func NewHandler(src Source, queue Queue, started time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		now := time.Now()
		st := Status{Status: "ok", Primary: src.Primary(), Uptime: now.Sub(started).Round(time.Second).String(), Time: now.UTC()}
		for _, c := range src.Snapshot() {
			st.TotalChannels++
			if c.State == model.ChannelReady {
				st.ReadyChannels++
			}
		}
		if queue != nil {
			st.QueueDepth = queue.Len()
		}
		if st.Primary == "" {
			st.Status = "degraded"
		}
		respond.JSON(w, http.StatusOK, st)
	})
}
