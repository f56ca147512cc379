package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/api"
	"github.com/lalithlochan/pushwatch/internal/checks"
	"github.com/lalithlochan/pushwatch/internal/redis"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting pushwatch",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.Bool("vapid_configured", cfg.VAPIDConfigured()),
	)

	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	var limiter api.Limiter
	if a.redis != nil {
		limiter = redis.NewRateLimiter(a.redis, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimit,
			Window: cfg.RateLimitWindow,
		})
	} else {
		limiter = api.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	if cfg.CheckInterval > 0 {
		go checks.NewScheduler(a.runner, cfg.CheckInterval, logger).Start(schedCtx)
	}

	handler := api.NewHandler(logger, a.repo, a.dispatcher, a.runner, a.thresholds, a.sender)
	if a.mirror != nil {
		handler.WithBreakers(a.mirror)
	}
	router := api.NewRouter(handler, api.RouterConfig{
		CronSecret:     cfg.CronSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Limiter:        limiter,
		RateLimit:      cfg.RateLimit,
		RequestTimeout: cfg.TriggerTimeout + 30*time.Second,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TriggerTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		schedCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
