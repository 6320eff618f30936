package main

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/critichord/internal/cache"
	"github.com/d60-Lab/critichord/internal/monitoring"
	"github.com/d60-Lab/critichord/internal/notify"
	"github.com/d60-Lab/critichord/internal/push"
	"github.com/d60-Lab/critichord/internal/repository"
	"github.com/d60-Lab/critichord/internal/service"
	"github.com/d60-Lab/critichord/pkg/database"
	"github.com/d60-Lab/critichord/pkg/logger"
)

// app 持有进程级依赖
type app struct {
	db    *gorm.DB
	redis *redis.Client

	users   repository.UserRepository
	follows repository.FollowRepository
	fans    repository.FanRepository
	reviews repository.ReviewRepository
	outbox  repository.OutboxRepository

	notifier notify.Notifier
	lookup   cache.UserLookup

	relations service.RelationshipService
	feed      service.FeedService
	reviewSvc service.ReviewService
	userSvc   service.UserService
}

func newApp(ctx context.Context) (*app, error) {
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
	}
	monitoring.Register(prometheus.DefaultRegisterer)

	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	a := &app{
		db:      db,
		users:   repository.NewUserRepository(db),
		follows: repository.NewFollowRepository(db),
		fans:    repository.NewFanRepository(db),
		reviews: repository.NewReviewRepository(db),
		outbox:  repository.NewOutboxRepository(db),
	}

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.notifier = notify.NewRedisNotifier(a.redis)
		a.lookup = cache.NewUserCache(a.users, a.redis, cfg.Redis.UserTTL)
	} else {
		logger.Info("redis disabled, using in-process notifier")
		a.notifier = notify.NewLocalNotifier()
		a.lookup = cache.DirectLookup{Repo: a.users}
	}

	a.relations = service.NewRelationshipService(a.follows, a.fans, a.notifier, a.lookup)
	a.feed = service.NewFeedService(a.users, a.reviews, a.follows, a.lookup, a.relations, service.FeedOptions{
		MaxConcurrency: cfg.Feed.MaxConcurrency,
		FetchTimeout:   cfg.Feed.FetchTimeout,
	})
	a.reviewSvc = service.NewReviewService(a.reviews, a.users)
	a.userSvc = service.NewUserService(a.users, a.lookup)
	return a, nil
}

// newRelay 根据配置选择 kafka 或日志投递
func (a *app) newRelay() (*service.OutboxRelay, func() error, error) {
	var (
		dispatcher push.Dispatcher = push.LogDispatcher{}
		closeFn                    = func() error { return nil }
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kd, err := push.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, err
		}
		dispatcher, closeFn = kd, kd.Close
	}
	relay := service.NewOutboxRelay(a.outbox, a.users, a.reviews, dispatcher, service.RelayOptions{
		Workers:      cfg.Relay.Workers,
		ClaimLimit:   cfg.Relay.ClaimLimit,
		PollInterval: cfg.Relay.PollInterval,
		MaxRetry:     cfg.Relay.MaxRetry,
	})
	return relay, closeFn, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	sentry.Flush(2 * time.Second)
}
