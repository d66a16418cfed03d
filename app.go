package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"finance-push-go/internal/config"
	"finance-push-go/internal/push"
	"finance-push-go/internal/scheduler"
	"finance-push-go/internal/store"
	"finance-push-go/pkg/logger"
)

// app is the wired service graph shared by serve and tick.
type app struct {
	cfg        *config.Config
	keys       *push.VAPIDKeys
	pg         *store.PostgresStore
	redis      *store.RedisStore
	dispatcher *push.Dispatcher
	scheduler  *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Require("DATABASE_URL"); err != nil {
		return nil, err
	}

	keys, err := push.LoadVAPIDKeys(cfg.VAPID.PublicKey, cfg.VAPID.PrivateKey, cfg.VAPID.Subject, logger.WithModule("push"))
	if err != nil {
		return nil, err
	}

	pg, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pg.RunMigrations(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.WithModule("store").Info("database migrations completed")

	a := &app{cfg: cfg, keys: keys, pg: pg}

	if cfg.Redis.Enabled() {
		a.redis = store.NewRedisStore(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	a.dispatcher = push.NewDispatcher(pg, pg, push.NewEncoder(keys), &http.Client{}, push.DispatcherConfig{
		TTL:         cfg.Push.TTL,
		Urgency:     cfg.Push.Urgency,
		Timeout:     cfg.Push.Timeout,
		Concurrency: cfg.Push.Concurrency,
		Icon:        cfg.Push.Icon,
		Badge:       cfg.Push.Badge,
		DefaultURL:  cfg.Push.AppURL,
	}, logger.WithModule("push"))

	a.scheduler = scheduler.New(pg, pg, pg, a.dispatcher,
		scheduler.WithConcurrency(cfg.Scheduler.Concurrency),
		scheduler.WithLogger(logger.WithModule("scheduler")),
	)
	return a, nil
}

func (a *app) runner() *scheduler.Runner {
	opts := []scheduler.RunnerOption{
		scheduler.WithSpec(a.cfg.Scheduler.Spec),
		scheduler.WithRunnerLogger(logger.WithModule("scheduler")),
	}
	if a.redis != nil {
		opts = append(opts, scheduler.WithLeaser(a.redis, a.cfg.Scheduler.LeaseTTL))
	} else {
		logger.WithModule("scheduler").Warn("REDIS_ADDR not set; assuming a single scheduler instance")
	}
	return scheduler.NewRunner(a.scheduler, opts...)
}

// warnUnsigned flags the internal endpoints that accept unsigned requests
// when no webhook secret is configured.
func warnUnsigned(cfg *config.Config, log *zap.Logger) {
	if cfg.WebhookSecret != "" {
		return
	}
	log.Warn("WEBHOOK_SECRET not set; POST /api/push/send accepts unsigned requests and will notify any user")
}

// ping checks every backing service.
func (a *app) ping(ctx context.Context) error {
	err := a.pg.Ping(ctx)
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Ping(ctx))
	}
	return err
}

func (a *app) Close() error {
	err := a.pg.Close()
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	if err != nil {
		logger.Logger().Warn("error closing stores", zap.Error(err))
	}
	return err
}
