// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

// JobRepository 任务仓储实现
type JobRepository struct {
	client *Client
}

// NewJobRepository 创建任务仓储
func NewJobRepository(client *Client) *JobRepository {
	return &JobRepository{client: client}
}

// Create 创建任务
func (r *JobRepository) Create(ctx context.Context, job *entity.GenerationJob) error {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *JobRepository) GetByID(ctx context.Context, id string) (*entity.GenerationJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var job entity.GenerationJob
	if err := db.First(&job, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrJobNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// UpdateIfRunning 仅当存储中任务仍为 running 时写入
// 工作进程与超时清理可能同时终结同一任务，status 条件保证先落终态者胜出
func (r *JobRepository) UpdateIfRunning(ctx context.Context, job *entity.GenerationJob) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.UpdateIfRunning")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.GenerationJob{}).
		Where("id = ? AND status = ?", job.ID, entity.JobStatusRunning).
		Select("*").
		Omit("id", "created_at").
		Updates(job)
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to update job: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListByUser 获取用户任务列表
func (r *JobRepository) ListByUser(ctx context.Context, userID string, filter *repository.JobFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationJob], error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.ListByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.GenerationJob{}).Where("user_id = ?", userID)

	if filter != nil {
		if filter.JobType != "" {
			query = query.Where("job_type = ?", filter.JobType)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	var jobs []*entity.GenerationJob
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return repository.NewPagedResult(jobs, total, pagination), nil
}

// GetByIdempotencyKey 根据幂等键获取任务
func (r *JobRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entity.GenerationJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetByIdempotencyKey")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var job entity.GenerationJob
	if err := db.Where("idempotency_key = ?", key).
		Order("created_at DESC").
		First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrJobNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get job by idempotency key: %w", err)
	}
	return &job, nil
}

// GetOverdueRunning 获取超过截止时间仍在 running 的任务
func (r *JobRepository) GetOverdueRunning(ctx context.Context, now time.Time, limit int) ([]*entity.GenerationJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.JobRepository.GetOverdueRunning")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var jobs []*entity.GenerationJob
	if err := db.Where("status = ? AND deadline < ?", entity.JobStatusRunning, now).
		Order("deadline ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get overdue jobs: %w", err)
	}
	return jobs, nil
}
