// Package jobs 提供生成任务生命周期管理
package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"
	"github.com/TravelTable/nexusairbx-sub000/pkg/metrics"
)

// watchdogBatchSize 看门狗单次巡检处理的任务上限
const watchdogBatchSize = 100

// Manager 生成任务管理器
// 每个 running 任务挂一个到期定时器，终态后定时器被取消；
// 看门狗兜底清理定时器丢失的过期任务（例如进程重启后）
type Manager struct {
	jobRepo  repository.JobRepository
	deadline time.Duration
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewManager 创建任务管理器
func NewManager(jobRepo repository.JobRepository, deadline time.Duration) *Manager {
	return &Manager{
		jobRepo:  jobRepo,
		deadline: deadline,
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
}

// Create 创建任务并进入 running/preparing
// jobID 为空时自动生成，幂等重建场景允许调用方指定已绑定的 ID
func (m *Manager) Create(ctx context.Context, jobID, userID, scriptID string, jobType entity.JobType, inputParams json.RawMessage, idempotencyKey string) (*entity.GenerationJob, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	job := entity.NewGenerationJob(
		jobID,
		userID,
		scriptID,
		jobType,
		inputParams,
		m.now().Add(m.deadline),
	)
	job.IdempotencyKey = idempotencyKey

	if err := m.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	m.armTimer(job.ID, m.deadline)
	metrics.JobsStarted.WithLabelValues(string(jobType)).Inc()
	logger.Info(ctx, "job created", "job_id", job.ID, "user_id", userID, "job_type", jobType)
	return job, nil
}

// Get 获取任务，非本人任务拒绝访问
func (m *Manager) Get(ctx context.Context, jobID, userID string) (*entity.GenerationJob, error) {
	job, err := m.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, errors.ErrForbidden
	}
	return job, nil
}

// List 获取用户任务列表
func (m *Manager) List(ctx context.Context, userID string, filter *repository.JobFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationJob], error) {
	return m.jobRepo.ListByUser(ctx, userID, filter, pagination)
}

// Advance 推进任务阶段，终态任务忽略
func (m *Manager) Advance(ctx context.Context, jobID string, stage entity.JobStage) error {
	job, err := m.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	job.Advance(stage)
	// 写入落空说明任务已被并发终结，推进作废
	_, err = m.jobRepo.UpdateIfRunning(ctx, job)
	return err
}

// MarkSucceeded 任务成功结束
func (m *Manager) MarkSucceeded(ctx context.Context, jobID string, result json.RawMessage) error {
	return m.finish(ctx, jobID, func(job *entity.GenerationJob) {
		job.Succeed(result)
	})
}

// MarkFailed 任务失败结束
func (m *Manager) MarkFailed(ctx context.Context, jobID string, stage entity.JobStage, errMsg string) error {
	return m.finish(ctx, jobID, func(job *entity.GenerationJob) {
		job.Fail(stage, errMsg)
	})
}

// SetLLMMetrics 记录任务的 LLM 调用信息
func (m *Manager) SetLLMMetrics(ctx context.Context, jobID, provider, model string, tokensUsed int64) error {
	job, err := m.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	job.SetLLMMetrics(provider, model, tokensUsed)
	_, err = m.jobRepo.UpdateIfRunning(ctx, job)
	return err
}

// finish 终态迁移，幂等：已终态的任务不再变更
// 终态写入以存储中的 status 为准，读到 running 之后被并发终结的写入会落空
func (m *Manager) finish(ctx context.Context, jobID string, transition func(*entity.GenerationJob)) error {
	job, err := m.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}

	transition(job)
	updated, err := m.jobRepo.UpdateIfRunning(ctx, job)
	if err != nil {
		return err
	}
	if !updated {
		// 另一侧已先落终态，本次迁移作废，不重复上报指标
		m.cancelTimer(jobID)
		return nil
	}

	m.cancelTimer(jobID)
	metrics.JobsFinished.WithLabelValues(string(job.JobType), string(job.Status)).Inc()
	metrics.JobDuration.WithLabelValues(string(job.JobType)).Observe(m.now().Sub(job.CreatedAt).Seconds())
	logger.Info(ctx, "job finished",
		"job_id", job.ID,
		"status", job.Status,
		"stage", job.Stage,
	)
	return nil
}

// armTimer 为任务挂到期定时器
func (m *Manager) armTimer(jobID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[jobID]; ok {
		t.Stop()
	}
	m.timers[jobID] = time.AfterFunc(d, func() {
		m.expire(jobID)
	})
}

// cancelTimer 取消任务的到期定时器
func (m *Manager) cancelTimer(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[jobID]; ok {
		t.Stop()
		delete(m.timers, jobID)
	}
}

// expire 定时器到期，把仍在 running 的任务强制置为超时失败
func (m *Manager) expire(jobID string) {
	ctx := context.Background()
	job, err := m.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		m.cancelTimer(jobID)
		return
	}
	if job.IsTerminal() {
		m.cancelTimer(jobID)
		return
	}

	metrics.JobTimeouts.Inc()
	logger.Warn(ctx, "job deadline exceeded", "job_id", jobID, "deadline", job.Deadline)
	if err := m.MarkFailed(ctx, jobID, entity.JobStageTimeout, "job deadline exceeded"); err != nil {
		logger.Error(ctx, "failed to expire job", err, "job_id", jobID)
	}
}

// StartWatchdog 启动看门狗巡检，ctx 取消后退出
func (m *Manager) StartWatchdog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info(ctx, "job watchdog started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "job watchdog stopped")
			return
		case <-ticker.C:
			m.sweepOverdue(ctx)
		}
	}
}

// sweepOverdue 清理超过截止时间仍未结束的任务
func (m *Manager) sweepOverdue(ctx context.Context) {
	overdue, err := m.jobRepo.GetOverdueRunning(ctx, m.now(), watchdogBatchSize)
	if err != nil {
		logger.Error(ctx, "watchdog scan failed", err)
		return
	}
	for _, job := range overdue {
		metrics.JobTimeouts.Inc()
		logger.Warn(ctx, "watchdog expiring overdue job", "job_id", job.ID, "deadline", job.Deadline)
		if err := m.MarkFailed(ctx, job.ID, entity.JobStageTimeout, "job deadline exceeded"); err != nil {
			logger.Error(ctx, "watchdog failed to expire job", err, "job_id", job.ID)
		}
	}
}
