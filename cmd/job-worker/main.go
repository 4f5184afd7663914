// Package main 生成任务执行器入口
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/TravelTable/nexusairbx-sub000/internal/app"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/generation"
	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/messaging"
	einoobs "github.com/TravelTable/nexusairbx-sub000/internal/observability/eino"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"
	"github.com/TravelTable/nexusairbx-sub000/pkg/tracer"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerName := os.Getenv("WORKER_NAME")
	if consumerName == "" {
		hostname, _ := os.Hostname()
		consumerName = fmt.Sprintf("worker-%s-%s", hostname, uuid.NewString()[:8])
	}

	log := logger.FromContext(ctx)
	log.Info("starting job-worker",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
		"consumer", consumerName,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name + "-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// LLM 调用的全局追踪回调
	einoobs.Init()

	worker, cleanup, err := app.NewWorker(ctx, cfg, consumerName)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	worker.Consumer.RegisterHandler(messaging.MsgTypeScriptGen, func(ctx context.Context, msg *messaging.Message) error {
		var job messaging.ScriptJobMessage
		if err := msg.UnmarshalPayload(&job); err != nil {
			// 无法解析的消息重试没有意义
			logger.Error(ctx, "failed to unmarshal job message", err, "message_id", msg.ID)
			return nil
		}

		history := make([]generation.Message, 0, len(job.History))
		for _, h := range job.History {
			history = append(history, generation.Message{Role: h.Role, Content: h.Content})
		}

		return worker.Runner.Run(ctx, generation.Task{
			JobID:      job.JobID,
			UserID:     job.UserID,
			ScriptID:   job.ScriptID,
			Prompt:     job.Prompt,
			History:    history,
			ScriptType: job.ScriptType,
			Title:      job.Title,
		})
	})

	if err := worker.Consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	// 超时看门狗，接管定时器丢失的任务
	go worker.JobManager.StartWatchdog(ctx, cfg.Jobs.WatchdogInterval)

	// 死信队列堆积告警
	go worker.Consumer.MonitorDLQ(ctx, 100)

	log.Info("job-worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	worker.Consumer.Stop()
	log.Info("worker exited")
}
