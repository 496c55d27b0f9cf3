package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bike-storefront/internal/database"
	"bike-storefront/internal/logkey"
	"bike-storefront/internal/server"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var migrate, reconcile bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				if err := database.Migrate(ctx, a.db.DB()); err != nil {
					return err
				}
			}
			if reconcile {
				go a.worker().Run(ctx)
			}

			srv := server.New(a.cfg, a.db, a.orders, a.catalog, a.metrics).HTTPServer()
			errCh := make(chan error, 1)
			go func() {
				slog.Info("http server listening", slog.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			stop()

			slog.Info("shutting down gracefully, press Ctrl+C again to force")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("server forced to shutdown", slog.String(logkey.ERROR, err.Error()))
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	cmd.Flags().BoolVar(&reconcile, "reconcile", true, "run the reconciliation worker in-process")
	return cmd
}
