// Package script 提供脚本产物与版本管理能力
package script

import (
	"context"

	"github.com/google/uuid"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"
)

// CommitInput 版本提交参数
type CommitInput struct {
	ScriptID string
	UserID   string
	// VersionNo 为 0 时自动分配 latest+1
	VersionNo   int
	Title       string
	Source      string
	SourceJobID string
}

// Service 脚本产物服务
type Service struct {
	scriptRepo repository.ScriptRepository
	tx         repository.Transactor
}

// NewService 创建脚本产物服务
func NewService(scriptRepo repository.ScriptRepository, tx repository.Transactor) *Service {
	return &Service{
		scriptRepo: scriptRepo,
		tx:         tx,
	}
}

// CreateScript 创建脚本占位，版本号从 0 开始
func (s *Service) CreateScript(ctx context.Context, userID, title, scriptType string) (*entity.Script, error) {
	if title == "" {
		title = "Untitled Script"
	}
	if scriptType == "" {
		scriptType = "script"
	}
	script := &entity.Script{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		ScriptType: scriptType,
	}
	if err := s.scriptRepo.Create(ctx, script); err != nil {
		return nil, err
	}
	return script, nil
}

// Get 获取脚本，非本人脚本拒绝访问
func (s *Service) Get(ctx context.Context, scriptID, userID string) (*entity.Script, error) {
	script, err := s.scriptRepo.GetByID(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	if script.UserID != userID {
		return nil, errors.ErrForbidden
	}
	return script, nil
}

// List 获取用户脚本列表
func (s *Service) List(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Script], error) {
	return s.scriptRepo.ListByUser(ctx, userID, pagination)
}

// GetVersion 获取脚本指定版本
func (s *Service) GetVersion(ctx context.Context, scriptID, userID string, versionNo int) (*entity.ScriptVersion, error) {
	if _, err := s.Get(ctx, scriptID, userID); err != nil {
		return nil, err
	}
	return s.scriptRepo.GetVersion(ctx, scriptID, versionNo)
}

// ListVersions 获取脚本版本列表
func (s *Service) ListVersions(ctx context.Context, scriptID, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ScriptVersion], error) {
	if _, err := s.Get(ctx, scriptID, userID); err != nil {
		return nil, err
	}
	return s.scriptRepo.ListVersions(ctx, scriptID, pagination)
}

// Rename 重命名脚本
func (s *Service) Rename(ctx context.Context, scriptID, userID, title string) (*entity.Script, error) {
	if title == "" {
		return nil, errors.ErrInvalidParam.WithDetail("title is required")
	}
	script, err := s.Get(ctx, scriptID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.scriptRepo.Rename(ctx, scriptID, title); err != nil {
		return nil, err
	}
	script.Title = title
	return script, nil
}

// Delete 删除脚本及其全部版本
func (s *Service) Delete(ctx context.Context, scriptID, userID string) error {
	if _, err := s.Get(ctx, scriptID, userID); err != nil {
		return err
	}
	return s.scriptRepo.Delete(ctx, scriptID)
}

// CommitVersion 提交脚本新版本
// 版本号显式指定时已占用即拒绝，自动分配时取 latest+1；
// 提交成功后 LatestVersionNo 推进到已提交的最大版本号
func (s *Service) CommitVersion(ctx context.Context, in CommitInput) (*entity.ScriptVersion, error) {
	if in.Source == "" {
		return nil, errors.ErrInvalidParam.WithDetail("source is required")
	}
	if in.VersionNo < 0 {
		return nil, errors.ErrInvalidParam.WithDetail("version_no must be positive")
	}

	var version *entity.ScriptVersion
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		script, err := s.scriptRepo.GetByID(txCtx, in.ScriptID)
		if err != nil {
			return err
		}
		if in.UserID != "" && script.UserID != in.UserID {
			return errors.ErrForbidden
		}

		candidate := in.VersionNo
		if candidate == 0 {
			candidate = script.LatestVersionNo + 1
		}

		taken, err := s.scriptRepo.VersionExists(txCtx, script.ID, candidate)
		if err != nil {
			return err
		}
		if taken {
			return errors.ErrVersionConflict
		}

		version = &entity.ScriptVersion{
			ID:        uuid.NewString(),
			ScriptID:  script.ID,
			VersionNo: candidate,
			Title:     in.Title,
			Source:    in.Source,
		}
		if in.SourceJobID != "" {
			jobID := in.SourceJobID
			version.SourceJobID = &jobID
		}
		if err := s.scriptRepo.CreateVersion(txCtx, version); err != nil {
			return err
		}

		if candidate > script.LatestVersionNo {
			if err := s.scriptRepo.UpdateLatestVersionNo(txCtx, script.ID, candidate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "script version committed",
		"script_id", in.ScriptID,
		"version_no", version.VersionNo,
		"source_job_id", in.SourceJobID,
	)
	return version, nil
}
