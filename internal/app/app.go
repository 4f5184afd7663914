// Package app 负责装配各服务的依赖
package app

import (
	"context"
	"fmt"

	"github.com/TravelTable/nexusairbx-sub000/internal/application/auth"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/generation"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/jobs"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/quota"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/script"
	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/llm"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/messaging"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/memory"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/redis"
	"github.com/TravelTable/nexusairbx-sub000/internal/interfaces/http/handler"
	"github.com/TravelTable/nexusairbx-sub000/internal/interfaces/http/router"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"
	"github.com/TravelTable/nexusairbx-sub000/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Base 各服务共享的基础设施与领域服务
type Base struct {
	Cfg   *config.Config
	PG    *postgres.Client
	Redis *redisinfra.Client

	UserRepo   repository.UserRepository
	QuotaRepo  repository.QuotaRepository
	LedgerRepo repository.LedgerRepository
	UsageRepo  repository.UsageEventRepository
	JobRepo    repository.JobRepository
	ScriptRepo repository.ScriptRepository
	Tx         repository.Transactor

	TokenConsumer *quota.TokenConsumer
	JobManager    *jobs.Manager
	Scripts       *script.Service
	Producer      *messaging.Producer
}

// NewBase 装配基础依赖
func NewBase(ctx context.Context, cfg *config.Config) (*Base, func(), error) {
	pg, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(&cfg.Cache.Redis)
	if err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("failed to init redis: %w", err)
	}

	cleanup := func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn(ctx, "failed to close redis", "error", err.Error())
		}
		if err := pg.Close(); err != nil {
			logger.Warn(ctx, "failed to close postgres", "error", err.Error())
		}
	}

	tx := postgres.NewTxManager(pg)
	quotaRepo := postgres.NewQuotaRepository(pg)
	ledgerRepo := postgres.NewLedgerRepository(pg)
	usageRepo := postgres.NewUsageEventRepository(pg)
	scriptRepo := postgres.NewScriptRepository(pg)
	userRepo := postgres.NewUserRepository(pg)

	var jobRepo repository.JobRepository
	if cfg.Jobs.Store == "memory" {
		// 进程内任务存储只在单进程部署下可用，
		// 网关和 worker 分开部署时任务互不可见
		logger.Warn(ctx, "jobs.store=memory is single-process only; gateway and worker must run in the same process")
		jobRepo = memory.NewJobStore()
	} else {
		jobRepo = postgres.NewJobRepository(pg)
	}

	base := &Base{
		Cfg:        cfg,
		PG:         pg,
		Redis:      redisClient,
		UserRepo:   userRepo,
		QuotaRepo:  quotaRepo,
		LedgerRepo: ledgerRepo,
		UsageRepo:  usageRepo,
		JobRepo:    jobRepo,
		ScriptRepo: scriptRepo,
		Tx:         tx,

		TokenConsumer: quota.NewTokenConsumer(quotaRepo, ledgerRepo, tx, cfg.Quota),
		JobManager:    jobs.NewManager(jobRepo, cfg.Jobs.Deadline),
		Scripts:       script.NewService(scriptRepo, tx),
		Producer:      messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen)),
	}
	return base, cleanup, nil
}

// newIdempotencyIndex 按配置选择幂等索引实现
func newIdempotencyIndex(ctx context.Context, cfg *config.Config, redisClient *redisinfra.Client) jobs.IdempotencyIndex {
	if cfg.Idempotency.Store == "redis" {
		return redisinfra.NewIdempotencyStore(redisClient, cfg.Idempotency.Retention)
	}
	return jobs.NewMemoryIndex(ctx, cfg.Idempotency.Retention, cfg.Idempotency.SweepInterval)
}

// Gateway API 网关应用
type Gateway struct {
	*Base
	router *router.Router
}

// NewGateway 装配 API 网关
func NewGateway(ctx context.Context, cfg *config.Config) (*Gateway, func(), error) {
	base, cleanup, err := NewBase(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
	authSvc := auth.NewService(base.UserRepo, jwtManager, cfg.Security.JWT)

	cache := redisinfra.NewCache(base.Redis)
	limiter := redisinfra.NewRateLimiter(base.Redis)
	idem := newIdempotencyIndex(ctx, cfg, base.Redis)

	handlers := router.Handlers{
		Health: handler.NewHealthHandler(base.PG, base.Redis),
		Auth:   handler.NewAuthHandler(authSvc, base.UserRepo, cfg.Security.JWT),
		Script: handler.NewScriptHandler(base.Scripts, cache),
		Job:    handler.NewJobHandler(base.JobManager, idem, base.Scripts, base.Producer),
		Quota:  handler.NewQuotaHandler(base.TokenConsumer),
	}

	return &Gateway{
		Base:   base,
		router: router.New(cfg, handlers, limiter, base.Producer),
	}, cleanup, nil
}

// Engine 返回 HTTP 引擎
func (g *Gateway) Engine() *gin.Engine {
	return g.router.Engine()
}

// Worker 生成任务执行器应用
type Worker struct {
	*Base
	Runner   *generation.Runner
	Consumer *messaging.Consumer
}

// NewWorker 装配任务执行器
func NewWorker(ctx context.Context, cfg *config.Config, consumerName string) (*Worker, func(), error) {
	base, cleanup, err := NewBase(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	factory := llm.NewEinoFactory(cfg)
	generator := llm.NewScriptGenerator(factory, cfg)
	runner := generation.NewRunner(base.JobManager, base.TokenConsumer, base.Scripts, generator, base.UsageRepo)

	streamCfg := cfg.Messaging.RedisStream
	group := messaging.ConsumerGroupScriptWorker
	if streamCfg.ConsumerGroupPrefix != "" {
		// 多环境共用 Redis 时用前缀隔离消费者组
		group = messaging.ConsumerGroup(streamCfg.ConsumerGroupPrefix + ":" + string(group))
	}
	consumer := messaging.NewConsumer(base.Redis.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamScriptGen,
		Group:         group,
		ConsumerName:  consumerName,
		BlockTimeout:  streamCfg.BlockTimeout,
		ClaimInterval: streamCfg.ClaimInterval,
		RetryLimit:    streamCfg.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    streamCfg.RetryBackoff.Initial,
			Max:        streamCfg.RetryBackoff.Max,
			Multiplier: streamCfg.RetryBackoff.Multiplier,
		},
	})

	return &Worker{
		Base:     base,
		Runner:   runner,
		Consumer: consumer,
	}, cleanup, nil
}
