// Package api assembles the HTTP surface: orders, drivers, shifts,
// channels, the event stream, health and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/kurir/api/channels"
	"github.com/kilianp07/kurir/api/drivers"
	apievents "github.com/kilianp07/kurir/api/events"
	"github.com/kilianp07/kurir/api/health"
	"github.com/kilianp07/kurir/api/orders"
	"github.com/kilianp07/kurir/api/shifts"
	"github.com/kilianp07/kurir/core/logger"
	"github.com/kilianp07/kurir/internal/eventbus"
)

// Dispatcher is the order and driver service behind the API.
type Dispatcher interface {
	orders.Service
	drivers.Service
	shifts.Service
}

// Pool is the channel pool behind the API.
type Pool interface {
	channels.Pool
	health.Source
}

// Deps holds the services exposed over HTTP.
type Deps struct {
	Dispatcher Dispatcher
	Pool       Pool
	Queue      health.Queue
	Bus        eventbus.EventBus
	Token      string
	// Metrics mounts /metrics on the API listener.
	Metrics bool
	Started time.Time
	Log     logger.Logger
}

// NewRouter returns the API handler.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.Nop{}
	}
	if d.Started.IsZero() {
		d.Started = time.Now()
	}
	mux := http.NewServeMux()
	o := orders.NewHandler(d.Dispatcher, d.Token)
	mux.Handle("/api/orders", o)
	mux.Handle("/api/orders/", o)
	dr := drivers.NewHandler(d.Dispatcher, d.Token)
	mux.Handle("/api/drivers", dr)
	mux.Handle("/api/drivers/", dr)
	sh := shifts.NewHandler(d.Dispatcher, d.Token)
	mux.Handle("/api/shifts", sh)
	mux.Handle("/api/shifts/", sh)
	ch := channels.NewHandler(d.Pool, d.Token)
	mux.Handle("/api/channels", ch)
	mux.Handle("/api/channels/", ch)
	if d.Bus != nil {
		mux.Handle("/api/events", apievents.NewHandler(d.Bus, d.Token, d.Log))
	}
	mux.Handle("/api/health", health.NewHandler(d.Pool, d.Queue, d.Started))
	if d.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

// Serve runs the HTTP server on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, h http.Handler, log logger.Logger) error {
	if log == nil {
		log = logger.Nop{}
	}
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("http api listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("http shutdown: %v", err)
		}
		return nil
	}
}
