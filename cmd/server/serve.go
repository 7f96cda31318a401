package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/retail-ledger/api"
	"github.com/warp/retail-ledger/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, log, appOptions{withMetrics: true, withCache: true})
		if err != nil {
			return err
		}
		defer a.close()

		handler := api.NewHandler(a.service, logger.WithComponent(log, "api"))
		handler.Reconciler.CheckInterval = cfg.Ledger.ReconcileInterval
		handler.Reconciler.Start()
		defer handler.Reconciler.Stop()

		router := api.NewRouter(handler, api.RouterOptions{
			AllowedOrigins: cfg.Server.CorsAllowedOrigins,
			Metrics:        a.metrics,
			Health:         a.ping,
			Logger:         logger.WithComponent(log, "http"),
		})

		server := &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", server.Addr).Msg("server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		// Wait for interrupt signal
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("shutting down server")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}

		log.Info().Msg("server stopped")
		return nil
	},
}
