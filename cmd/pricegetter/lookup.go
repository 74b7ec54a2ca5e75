package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Sternrassler/price-getter/internal/app"
	"github.com/Sternrassler/price-getter/internal/server"
	"github.com/spf13/cobra"
)

func lookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup --zip <zip> <upc>...",
		Short: "Look up prices once and print the JSON answer",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLookup,
	}
	cmd.Flags().String("zip", "", "ZIP code used to pick the store")
	return cmd
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	zip, _ := cmd.Flags().GetString("zip")

	ctx := contextOrBackground(cmd)

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		RetailerName:    cfg.RetailerName,
		UpstreamTimeout: cfg.UpstreamTimeout,
	}, a.Prices, a.Batch, a.Ready)

	status, body, err := srv.LookupBatch(ctx, zip, args)
	if err != nil {
		status, body = srv.ErrorBody(err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	if status != http.StatusOK {
		return fmt.Errorf("lookup failed with status %d", status)
	}
	return nil
}
