package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ksj/cloud-doctor/internal/api"
	"github.com/ksj/cloud-doctor/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports, diffs and scans over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The server logs JSON unless the config or a flag says otherwise.
			a.v.SetDefault("log.format", "json")
			if err := a.setup(); err != nil {
				return err
			}
			ctx := cmd.Context()

			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			pub, err := a.publisher()
			if err != nil {
				return err
			}
			defer pub.Close()

			m := metrics.New()
			eng, err := a.newEngine(st, pub, m)
			if err != nil {
				return err
			}
			defer eng.Close()

			var ready func(context.Context) error
			if p, ok := st.(pinger); ok {
				ready = p.Ping
			}
			srv := api.NewServer(api.Options{
				Store:          st,
				Scanner:        eng,
				Metrics:        m,
				Logger:         a.logger,
				Ready:          ready,
				DefaultRegions: a.cfg.AWS.Regions,
			})

			hs := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("listening", "addr", hs.Addr, "sources", eng.Sources())
				errCh <- hs.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := hs.Shutdown(sctx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
