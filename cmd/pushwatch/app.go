package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/pushwatch/internal/checks"
	"github.com/lalithlochan/pushwatch/internal/config"
	"github.com/lalithlochan/pushwatch/internal/db"
	"github.com/lalithlochan/pushwatch/internal/dedup"
	"github.com/lalithlochan/pushwatch/internal/dispatch"
	"github.com/lalithlochan/pushwatch/internal/mirror"
	"github.com/lalithlochan/pushwatch/internal/observ"
	"github.com/lalithlochan/pushwatch/internal/push"
	"github.com/lalithlochan/pushwatch/internal/redis"
)

// app holds the wired service components shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	database   *db.DB
	redis      *redis.Client // nil if Redis not configured
	repo       *db.Repository
	sender     *push.WebPushSender
	dispatcher *dispatch.Dispatcher
	mirror     *mirror.Mirror // nil if no sinks configured
	thresholds *checks.ThresholdLoader
	runner     *checks.Runner
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.database = database

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	a.repo = db.NewRepository(database, logger)

	if cfg.RedisHost != "" {
		client, err := redis.New(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory dedup and rate limiting",
				zap.Error(err),
				zap.String("host", cfg.RedisHost),
			)
		} else {
			a.redis = client
		}
	}

	a.sender = push.NewWebPushSender(push.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
		TTL:        cfg.PushTTL,
		Timeout:    cfg.PushTimeout,
	}, logger)

	opts := []dispatch.Option{}
	if m := a.buildMirror(ctx); m.Len() > 0 {
		a.mirror = m
		opts = append(opts, dispatch.WithMirror(m))
	}

	a.dispatcher = dispatch.New(a.repo, a.sender, a.buildGate(), dispatch.Config{
		Concurrency: cfg.DispatchConcurrency,
	}, logger, opts...)

	checkCfg := checks.Config{
		DeliveryExamples:  cfg.DeliveryExamples,
		InventoryExamples: cfg.InventoryExamples,
		Location:          cfg.Location(),
	}
	delivery := checks.NewDeliveryEvaluator(a.repo, a.repo, a.dispatcher, checkCfg, logger.Named("delivery"))
	inventory := checks.NewInventoryEvaluator(a.repo, a.repo, a.dispatcher, checkCfg, logger.Named("inventory"))

	a.thresholds = checks.NewThresholdLoader(a.repo, cfg.DefaultThreshold, logger)
	a.runner = checks.NewRunner(delivery, inventory, a.thresholds, cfg.TriggerTimeout, logger)

	return a, nil
}

func (a *app) buildGate() dedup.Gate {
	if a.cfg.DedupBackend == "redis" {
		if a.redis != nil {
			a.logger.Info("using redis dedup gate", zap.Duration("window", a.cfg.DedupWindow))
			return redis.NewDedupGate(a.redis, a.cfg.DedupWindow, a.logger)
		}
		a.logger.Warn("redis dedup requested but redis unavailable, falling back to memory")
	}

	a.logger.Info("using in-memory dedup gate", zap.Duration("window", a.cfg.DedupWindow))
	return dedup.NewMemoryGate(a.cfg.DedupWindow)
}

func (a *app) buildMirror(ctx context.Context) *mirror.Mirror {
	var sinks []mirror.Sink

	if a.cfg.MirrorTopicARN != "" {
		sink, err := mirror.NewSNSSink(ctx, a.cfg.AWSRegion, a.cfg.MirrorTopicARN, a.logger)
		if err != nil {
			a.logger.Warn("SNS mirror unavailable", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if a.cfg.MirrorEmailTo != "" {
		sink, err := mirror.NewSESSink(ctx, mirror.SESConfig{
			Region: a.cfg.AWSRegion,
			From:   a.cfg.MirrorEmailFrom,
			To:     a.cfg.MirrorEmailTo,
		}, a.logger)
		if err != nil {
			a.logger.Warn("SES mirror unavailable", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if a.cfg.MirrorWebhookURL != "" {
		sinks = append(sinks, mirror.NewWebhookSink(a.cfg.MirrorWebhookURL, a.cfg.PushTimeout, a.logger))
	}

	a.logger.Info("mirror sinks configured",
		zap.Bool("sns_enabled", a.cfg.MirrorTopicARN != ""),
		zap.Bool("ses_enabled", a.cfg.MirrorEmailTo != ""),
		zap.Bool("webhook_enabled", a.cfg.MirrorWebhookURL != ""),
		zap.Int("sinks", len(sinks)),
	)

	return mirror.New(a.logger, sinks...)
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}
