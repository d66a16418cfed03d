package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finance-push-go/internal/handlers"
	"finance-push-go/internal/push"
	"finance-push-go/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the push API and run the notification scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Require("AUTH_JWT_SECRET"); err != nil {
		return err
	}
	log := logger.WithModule("api")
	warnUnsigned(cfg, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		var cfgErr *push.ConfigError
		if errors.As(err, &cfgErr) {
			log.Fatal("invalid VAPID configuration", zap.String("field", cfgErr.Field), zap.Error(err))
		}
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.Close()

	if cfg.Scheduler.Enabled {
		r := a.runner()
		if err := r.Start(ctx); err != nil {
			return err
		}
		defer r.Stop()
	}

	h := handlers.NewHandler(a.pg, a.dispatcher, a.keys, handlers.Options{
		JWTSecret:     cfg.AuthJWTSecret,
		WebhookSecret: cfg.WebhookSecret,
		Ping:          a.ping,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
