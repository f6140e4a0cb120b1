package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/kurir/api"
	"github.com/kilianp07/kurir/config"
	"github.com/kilianp07/kurir/core/abuse"
	"github.com/kilianp07/kurir/core/channel"
	"github.com/kilianp07/kurir/core/chatbot"
	"github.com/kilianp07/kurir/core/conversation"
	"github.com/kilianp07/kurir/core/cooldown"
	"github.com/kilianp07/kurir/core/dedup"
	"github.com/kilianp07/kurir/core/delivery"
	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/events"
	coremetrics "github.com/kilianp07/kurir/core/metrics"
	coremon "github.com/kilianp07/kurir/core/monitoring"
	"github.com/kilianp07/kurir/infra/cache"
	_ "github.com/kilianp07/kurir/infra/kafka"
	"github.com/kilianp07/kurir/infra/logger"
	"github.com/kilianp07/kurir/infra/metrics"
	"github.com/kilianp07/kurir/infra/monitoring"
	_ "github.com/kilianp07/kurir/infra/mqtt"
	"github.com/kilianp07/kurir/infra/store"
	"github.com/kilianp07/kurir/infra/whatsapp"
	"github.com/kilianp07/kurir/internal/eventbus"
)

// SweepInterval is how often idle conversations are dropped.
const SweepInterval = 10 * time.Minute

// Service wires the channel pool, the chatbot, dispatch and the admin API.
type Service struct {
	cfg        *config.Config
	log        logger.Logger
	bus        *eventbus.Bus
	sink       coremetrics.MetricsSink
	store      dispatch.Store
	Dispatcher *dispatch.Dispatcher
	Pool       *channel.Pool
	Queue      *delivery.Queue
	convs      *conversation.Registry
	sinks      []events.Sink
	dedup      io.Closer
	cancels    []func()
	handler    http.Handler
	promAddr   string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logger.SetLevel(cfg.LogLevel)
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := metrics.FromConfig(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	svc := &Service{cfg: cfg, log: logg, bus: eventbus.New(), sink: sink, store: st}
	if err := svc.build(); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) build() error {
	cfg := s.cfg
	s.cancels = append(s.cancels, metrics.StartEventCollector(s.bus, s.sink))

	d, err := dispatch.New(cfg.Dispatch, s.store, s.bus, logger.New("dispatch"), s.sink)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	s.Dispatcher = d

	s.Pool = channel.NewPool(cfg.Channel.Channel(cfg.Quota), s.bus, logger.New("channels"))
	for _, ch := range cfg.EnabledChannels() {
		t := whatsapp.New(ch.ID, ch.SessionPath, s.Pool, logger.New("wa:"+ch.ID))
		if err := s.Pool.Register(ch.ID, ch.Name, t); err != nil {
			return err
		}
	}
	s.Queue = delivery.NewQueue(cfg.Delivery.Queue(), s.Pool, logger.New("delivery"), s.sink)
	s.Pool.AddNudger(s.Queue)

	seen, err := s.dedupCache()
	if err != nil {
		return err
	}
	s.convs = conversation.NewRegistry(nil)
	s.Pool.SetMessageHandler(chatbot.NewHandler(chatbot.Deps{
		Parser:   chatbot.NewParser(cfg.Chatbot.Services, cfg.Dispatch.CountryCode),
		Dedup:    seen,
		Abuse:    abuse.New(cfg.Abuse.Detector(), s.convs),
		Cooldown: cooldown.New(s.convs, cfg.Cooldown.Reply(), cfg.Cooldown.Order()),
		Orders:   d,
		Outbox:   s.Queue,
		Log:      logger.New("chatbot"),
		Metrics:  s.sink,
	}))
	notifier := chatbot.NewNotifier(d, s.Queue, logger.New("notifier"), cfg.Chatbot.NotifyTransit)
	s.cancels = append(s.cancels, notifier.Attach(s.bus))

	s.sinks, err = events.NewSinks(cfg.Events.Sinks)
	if err != nil {
		return fmt.Errorf("event sinks: %w", err)
	}

	mountMetrics := false
	if cfg.Metrics.PrometheusEnabled {
		if cfg.Metrics.PrometheusPort == "" || cfg.Metrics.PrometheusPort == cfg.HTTP.Address {
			mountMetrics = true
		} else {
			s.promAddr = cfg.Metrics.PrometheusPort
		}
	}
	s.handler = api.NewRouter(api.Deps{
		Dispatcher: d,
		Pool:       s.Pool,
		Queue:      s.Queue,
		Bus:        s.bus,
		Token:      cfg.HTTP.Token,
		Metrics:    mountMetrics,
		Started:    time.Now(),
		Log:        logger.New("api"),
	})
	return nil
}

func (s *Service) dedupCache() (dedup.Cache, error) {
	if s.cfg.Dedup.Backend != config.DedupRedis {
		return dedup.NewMemory(s.cfg.Dedup.TTL(), nil), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := cache.DialRedisDedup(ctx, s.cfg.Redis, s.cfg.Dedup.TTL())
	if err != nil {
		return nil, fmt.Errorf("redis dedup: %w", err)
	}
	s.dedup = c
	return c, nil
}

// Handler returns the admin API.
func (s *Service) Handler() http.Handler { return s.handler }

// Run starts the service and blocks until the context is cancelled or a
// component fails.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sink := range s.sinks {
		events.Bridge(ctx, s.bus, sink, logger.New("events"))
	}
	g.Go(func() error { return s.Pool.Run(ctx) })
	g.Go(func() error { return s.Dispatcher.Run(ctx) })
	g.Go(func() error {
		s.sweep(ctx)
		return nil
	})
	g.Go(func() error { return api.Serve(ctx, s.cfg.HTTP.Address, s.handler, s.log) })
	if s.promAddr != "" {
		g.Go(func() error { return metrics.StartPromServer(ctx, s.promAddr) })
	}
	s.log.Infof("kurir running with %d channel(s), api on %s", len(s.cfg.EnabledChannels()), s.cfg.HTTP.Address)
	return g.Wait()
}

func (s *Service) sweep(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.convs.Sweep(s.cfg.Chatbot.IdleTTL()); n > 0 {
				s.log.Debugf("dropped %d idle conversation(s)", n)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	for _, cancel := range s.cancels {
		cancel()
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.Queue != nil {
		keep(s.Queue.Close())
	}
	if s.Pool != nil {
		keep(s.Pool.Close())
	}
	s.bus.Close()
	for _, sink := range s.sinks {
		keep(sink.Close())
	}
	if s.dedup != nil {
		keep(s.dedup.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	keep(s.store.Close())
	coremon.Flush(2 * time.Second)
	return firstErr
}
