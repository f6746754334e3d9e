package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/leadgen/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		// Setup router
		router := api.SetupRouter(a.analysis, a.history, a.client, api.RouterConfig{
			APIKey:        a.cfg.Dashboard.APIKey,
			AllowOrigins:  a.cfg.Dashboard.AllowOrigins,
			MaxUploadSize: a.cfg.Server.MaxUploadSize,
		})

		// Create HTTP server. Analyses can outlast any write timeout, and
		// the event stream is long-lived, so only reads are bounded.
		baseCtx, cancelStreams := context.WithCancel(context.Background())
		defer cancelStreams()
		srv := &http.Server{
			Addr:              a.cfg.Address(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       2 * time.Minute,
			IdleTimeout:       120 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		}
		// event streams never finish on their own
		srv.RegisterOnShutdown(cancelStreams)

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("Starting leadgen dashboard",
				zap.String("address", a.cfg.Address()),
				zap.String("backend", a.client.BaseURL()),
				zap.String("session_id", a.analysis.SessionID(cmd.Context())),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		// Wait for interrupt signal
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err, ok := <-errCh:
			if ok {
				a.logger.Error("Failed to start server", zap.Error(err))
				return err
			}
			return nil
		case <-quit:
		}

		a.logger.Info("Shutting down server...")

		// Graceful shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("Server forced to shutdown", zap.Error(err))
			return err
		}

		a.logger.Info("Server exited")
		return nil
	},
}
