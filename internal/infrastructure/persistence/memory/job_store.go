// Package memory 提供进程内存储实现，用于开发环境和测试
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

// JobStore 进程内任务仓储
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*entity.GenerationJob
}

// NewJobStore 创建进程内任务仓储
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*entity.GenerationJob),
	}
}

// Create 创建任务
func (s *JobStore) Create(_ context.Context, job *entity.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return errors.ErrConflict.WithDetail("job already exists")
	}
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

// GetByID 根据 ID 获取任务
func (s *JobStore) GetByID(_ context.Context, id string) (*entity.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

// UpdateIfRunning 仅当存储中任务仍为 running 时写入
// 基于陈旧读的终态覆盖在此被拒绝，先落终态者胜出
func (s *JobStore) UpdateIfRunning(_ context.Context, job *entity.GenerationJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.ID]
	if !ok {
		return false, errors.ErrJobNotFound
	}
	if stored.Status != entity.JobStatusRunning {
		return false, nil
	}
	clone := *job
	s.jobs[job.ID] = &clone
	return true, nil
}

// ListByUser 获取用户任务列表
func (s *JobStore) ListByUser(_ context.Context, userID string, filter *repository.JobFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationJob], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*entity.GenerationJob
	for _, job := range s.jobs {
		if job.UserID != userID {
			continue
		}
		if filter != nil {
			if filter.JobType != "" && job.JobType != filter.JobType {
				continue
			}
			if filter.Status != "" && job.Status != filter.Status {
				continue
			}
		}
		clone := *job
		matched = append(matched, &clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := pagination.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pagination.Limit()
	if end > len(matched) {
		end = len(matched)
	}

	return repository.NewPagedResult(matched[start:end], total, pagination), nil
}

// GetByIdempotencyKey 根据幂等键获取任务
func (s *JobStore) GetByIdempotencyKey(_ context.Context, key string) (*entity.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *entity.GenerationJob
	for _, job := range s.jobs {
		if job.IdempotencyKey != key {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, errors.ErrJobNotFound
	}
	clone := *latest
	return &clone, nil
}

// GetOverdueRunning 获取超过截止时间仍在 running 的任务
func (s *JobStore) GetOverdueRunning(_ context.Context, now time.Time, limit int) ([]*entity.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var overdue []*entity.GenerationJob
	for _, job := range s.jobs {
		if job.Status == entity.JobStatusRunning && now.After(job.Deadline) {
			clone := *job
			overdue = append(overdue, &clone)
		}
	}

	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].Deadline.Before(overdue[j].Deadline)
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}
