package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/judgeboard/platform/internal/auth"
	"github.com/judgeboard/platform/internal/config"
	"github.com/judgeboard/platform/internal/judge"
	"github.com/judgeboard/platform/internal/leaderboard"
	"github.com/judgeboard/platform/internal/lifecycle"
	"github.com/judgeboard/platform/internal/metrics"
	"github.com/judgeboard/platform/internal/queue"
	"github.com/judgeboard/platform/internal/sandbox"
	"github.com/judgeboard/platform/internal/scoring"
	"github.com/judgeboard/platform/internal/scoring/hackathon"
	"github.com/judgeboard/platform/internal/scoring/icpc"
	"github.com/judgeboard/platform/internal/store"
	"github.com/judgeboard/platform/pkg/messaging"
)

// recomputeTick is how often the leaderboard controller folds in dirty
// contests; the spec's default is two seconds.
const recomputeTick = 2 * time.Second

// lifecycleTick is how often the scheduler polls for due phase
// transitions.
const lifecycleTick = time.Minute

// deps bundles every long-lived component both subcommands share, so
// serve and worker each build only the slice of it they actually drive.
type deps struct {
	store       *store.Store
	redis       *redis.Client
	msg         *messaging.Client
	authSvc     *auth.Service
	executor    *sandbox.Executor
	engine      *judge.Engine
	rq          *queue.RedisQueue
	leaderboard *leaderboard.Controller
	metrics     *metrics.Reporter
	logger      *zap.Logger
}

// buildDeps connects to every backing service. It returns a non-nil error
// for anything that should abort startup with exitStartupErr, distinct
// from exitConfigError which is reserved for malformed configuration.
func buildDeps(cfg config.Config, processName string, logger *zap.Logger) (*deps, error) {
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		st.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	msgClient, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSURL,
		Name:           processName,
		ReconnectWait:  time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 10 * time.Second,
		Logger:         logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	executor, err := sandbox.NewExecutor(cfg.SandboxRoot, logger)
	if err != nil {
		st.Close()
		msgClient.Close()
		return nil, fmt.Errorf("create sandbox: %w", err)
	}

	authSvc := auth.NewService(st.DB(), cfg.JWTSecret)
	engine := judge.NewEngine(executor)
	rq := queue.NewRedisQueue(redisClient, "judgeboard:queue")

	lb := leaderboard.NewController(st, icpc.New(), msgClient, logger, recomputeTick)

	var metricsReporter *metrics.Reporter
	if cfg.InfluxToken != "" {
		metricsReporter = metrics.NewReporter(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, logger)
	}

	return &deps{
		store:       st,
		redis:       redisClient,
		msg:         msgClient,
		authSvc:     authSvc,
		executor:    executor,
		engine:      engine,
		rq:          rq,
		leaderboard: lb,
		metrics:     metricsReporter,
		logger:      logger,
	}, nil
}

func (d *deps) Close() {
	if d.metrics != nil {
		d.metrics.Close()
	}
	d.msg.Close()
	d.redis.Close()
	d.store.Close()
}

// strategyForContest maps the persisted contest row's scoring_type column
// onto one of the two built-in strategies. The worker registers the result
// against the leaderboard controller for each job it judges; every
// registration for a contest installs the same strategy, since a
// contest's scoring strategy is fixed at creation.
func strategyForContest(scoringType string) scoring.Strategy {
	if scoringType == "hackathon" {
		return hackathon.New()
	}
	return icpc.New()
}

func newElector(ctx context.Context, cfg config.Config, logger *zap.Logger) (lifecycle.Elector, error) {
	if len(cfg.EtcdEndpoints) == 0 {
		return lifecycle.SingleProcessElector{}, nil
	}
	return lifecycle.NewEtcdElector(ctx, cfg.EtcdEndpoints, "judgeboard/contest-scheduler", logger)
}
