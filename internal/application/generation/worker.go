// Package generation 提供脚本生成任务的执行流程
package generation

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/TravelTable/nexusairbx-sub000/internal/application/jobs"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/quota"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/script"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"
	"github.com/TravelTable/nexusairbx-sub000/pkg/metrics"
)

// Task 一次待执行的生成任务
type Task struct {
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id"`
	ScriptID   string    `json:"script_id"`
	Prompt     string    `json:"prompt"`
	History    []Message `json:"history,omitempty"`
	ScriptType string    `json:"script_type"`
	Title      string    `json:"title,omitempty"`
}

// JobResult 任务成功后的结果载荷
type JobResult struct {
	ScriptID      string `json:"script_id"`
	VersionNo     int    `json:"version_no"`
	Title         string `json:"title,omitempty"`
	TokensUsed    int64  `json:"tokens_used"`
	TokensCharged int64  `json:"tokens_charged"`
}

// chargeReason 生成任务扣费的流水原因
const chargeReason = "script_generation"

// Runner 执行生成任务
// 顺序：生成 -> 扣费 -> 存版本；生成失败不扣费，
// 扣费以 jobID 为 ChargeID，消息重投不会重复计费
type Runner struct {
	manager   *jobs.Manager
	consumer  *quota.TokenConsumer
	scripts   *script.Service
	generator Generator
	usageRepo repository.UsageEventRepository
}

// NewRunner 创建任务执行器
func NewRunner(manager *jobs.Manager, consumer *quota.TokenConsumer, scripts *script.Service, generator Generator, usageRepo repository.UsageEventRepository) *Runner {
	return &Runner{
		manager:   manager,
		consumer:  consumer,
		scripts:   scripts,
		generator: generator,
		usageRepo: usageRepo,
	}
}

// Run 执行一次生成任务，返回 error 表示可重试的基础设施故障
// 业务性失败（生成失败、额度不足、版本冲突）就地终结任务，不再重投
func (r *Runner) Run(ctx context.Context, task Task) error {
	ctx = logger.WithContext(ctx, logger.JobIDKey, task.JobID)
	ctx = logger.WithContext(ctx, logger.UserIDKey, task.UserID)

	job, err := r.manager.Get(ctx, task.JobID, task.UserID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		// 消息重投，任务已结束
		logger.Debug(ctx, "skipping terminal job", "status", job.Status)
		return nil
	}

	// 生成
	if err := r.manager.Advance(ctx, task.JobID, entity.JobStageGenerating); err != nil {
		return err
	}
	res, err := r.generator.Generate(ctx, GenerateRequest{
		Prompt:     task.Prompt,
		History:    task.History,
		ScriptType: task.ScriptType,
	})
	if err != nil {
		logger.Error(ctx, "generation failed", err)
		return r.manager.MarkFailed(ctx, task.JobID, entity.JobStageFailed, err.Error())
	}

	if err := r.manager.SetLLMMetrics(ctx, task.JobID, res.Provider, res.Model, res.TokensUsed); err != nil {
		return err
	}
	r.recordUsage(ctx, task, res)

	// 扣费，ChargeID 固定为任务 ID
	if err := r.manager.Advance(ctx, task.JobID, entity.JobStageBilling); err != nil {
		return err
	}
	charge, err := r.consumer.Consume(ctx, task.UserID, res.TokensUsed, task.JobID, chargeReason)
	if err != nil {
		var insufficient quota.InsufficientTokensError
		if stderrors.As(err, &insufficient) {
			logger.Warn(ctx, "charge rejected, insufficient tokens",
				"requested", insufficient.Requested,
				"available", insufficient.Available,
			)
			return r.manager.MarkFailed(ctx, task.JobID, entity.JobStageFailed, insufficient.Error())
		}
		return err
	}

	// 存版本
	if err := r.manager.Advance(ctx, task.JobID, entity.JobStageSaving); err != nil {
		return err
	}
	title := task.Title
	if title == "" {
		title = res.Title
	}
	version, err := r.scripts.CommitVersion(ctx, script.CommitInput{
		ScriptID:    task.ScriptID,
		UserID:      task.UserID,
		Title:       title,
		Source:      res.Source,
		SourceJobID: task.JobID,
	})
	if err != nil {
		logger.Error(ctx, "version commit failed", err, "script_id", task.ScriptID)
		return r.manager.MarkFailed(ctx, task.JobID, entity.JobStageFailed, err.Error())
	}

	payload, err := json.Marshal(JobResult{
		ScriptID:      task.ScriptID,
		VersionNo:     version.VersionNo,
		Title:         version.Title,
		TokensUsed:    res.TokensUsed,
		TokensCharged: charge.TokensCharged,
	})
	if err != nil {
		return err
	}
	return r.manager.MarkSucceeded(ctx, task.JobID, payload)
}

// recordUsage 写调用审计记录，失败不阻断任务
func (r *Runner) recordUsage(ctx context.Context, task Task, res *GenerateResult) {
	metrics.LLMTokensUsed.WithLabelValues(res.Provider, res.Model).Add(float64(res.TokensUsed))
	if r.usageRepo == nil {
		return
	}
	event := &entity.LLMUsageEvent{
		ID:         uuid.NewString(),
		UserID:     task.UserID,
		JobID:      task.JobID,
		Provider:   res.Provider,
		Model:      res.Model,
		TokensUsed: res.TokensUsed,
		DurationMs: res.DurationMs,
	}
	if err := r.usageRepo.Create(ctx, event); err != nil {
		logger.Warn(ctx, "failed to record usage event", "error", err.Error())
	}
}
