package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/kurir/app"
	"github.com/kilianp07/kurir/config"
	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/infra/logger"
	"github.com/kilianp07/kurir/infra/store"
	"github.com/kilianp07/kurir/internal/eventbus"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "kurir",
	Short:        "WhatsApp order intake and courier dispatch service",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

// openDispatcher loads the configuration and opens a dispatcher on the
// configured store for one-shot commands. No events leave the process.
func openDispatcher() (*dispatch.Dispatcher, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	bus := eventbus.New()
	d, err := dispatch.New(cfg.Dispatch, st, bus, logger.NopLogger{}, nil)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	closeFn := func() {
		bus.Close()
		_ = st.Close()
	}
	return d, closeFn, nil
}
