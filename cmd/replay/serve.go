package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/replay/internal/errors"
	"github.com/vango-dev/replay/pkg/server"
	"github.com/vango-dev/replay/pkg/telemetry"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo shop",
		Long: `Serve the demo shop over HTTP.

GET / renders a page with its early event contract installed, the client
streams clicks over /ws/{pageID}, /metrics exposes Prometheus metrics and
/pages/{pageID}/journal returns a page's replay journal as NDJSON.

Examples:
  replay serve
  replay serve --address :9000
  replay serve --config deploy/replay.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags, address)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Address to listen on (default from config)")
	return cmd
}

func runServe(flags *globalFlags, address string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Server.Address = address
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger := newLogger(cfg.Log)

	store, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	metrics := telemetry.NewMetrics(telemetry.WithNamespace(cfg.Telemetry.Namespace))
	srv := server.New(shopFactory, serverConfig(cfg, logger, store, metrics))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	success("Serving on %s", cfg.Server.Address)
	info("journal sink: %s", cfg.Journal.Sink)
	info("resolution:   %s", cfg.Replay.Resolution)
	if err := srv.ListenAndServe(ctx); err != nil {
		if ctx.Err() != nil {
			return errors.New("E221").Wrap(err)
		}
		return errors.New("E220").Wrap(err)
	}
	return nil
}
