package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/price-getter/internal/app"
	"github.com/Sternrassler/price-getter/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP price gateway",
		RunE:  runServe,
	}
	cmd.Flags().String("port", "", "Listen port (overrides PORT)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	go a.RunSweeper(ctx, app.DefaultSweepInterval)

	backend := "memory"
	if cfg.RedisURL != "" {
		backend = "redis"
	}
	log.Info().
		Str("addr", cfg.Addr()).
		Str("retailer", cfg.RetailerName).
		Str("user_agent", cfg.UserAgent).
		Str("cache_backend", backend).
		Str("search_filter", string(cfg.SearchFilter)).
		Msg("Price gateway configured")

	srv := server.New(server.Config{
		Addr:            cfg.Addr(),
		RetailerName:    cfg.RetailerName,
		UpstreamTimeout: cfg.UpstreamTimeout,
	}, a.Prices, a.Batch, a.Ready)

	return srv.Run(ctx)
}

// contextOrBackground guards commands executed without a context.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
