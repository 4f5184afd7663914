// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
)

// JobFilter 任务过滤条件
type JobFilter struct {
	JobType entity.JobType
	Status  entity.JobStatus
}

// JobRepository 生成任务仓储接口
type JobRepository interface {
	// Create 创建任务
	Create(ctx context.Context, job *entity.GenerationJob) error

	// GetByID 根据 ID 获取任务
	GetByID(ctx context.Context, id string) (*entity.GenerationJob, error)

	// UpdateIfRunning 仅当存储中任务仍为 running 时写入
	// 返回 false 表示任务已先一步进入终态，本次写入被放弃
	UpdateIfRunning(ctx context.Context, job *entity.GenerationJob) (bool, error)

	// ListByUser 获取用户任务列表
	ListByUser(ctx context.Context, userID string, filter *JobFilter, pagination Pagination) (*PagedResult[*entity.GenerationJob], error)

	// GetByIdempotencyKey 根据幂等键获取任务
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.GenerationJob, error)

	// GetOverdueRunning 获取超过截止时间仍在 running 的任务
	GetOverdueRunning(ctx context.Context, now time.Time, limit int) ([]*entity.GenerationJob, error)
}
