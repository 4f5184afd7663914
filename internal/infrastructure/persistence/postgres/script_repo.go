// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

// ScriptRepository 脚本产物仓储实现
type ScriptRepository struct {
	client *Client
}

// NewScriptRepository 创建脚本产物仓储
func NewScriptRepository(client *Client) *ScriptRepository {
	return &ScriptRepository{client: client}
}

// Create 创建脚本
func (r *ScriptRepository) Create(ctx context.Context, script *entity.Script) error {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(script).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create script: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取脚本
func (r *ScriptRepository) GetByID(ctx context.Context, id string) (*entity.Script, error) {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var script entity.Script
	if err := db.First(&script, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrScriptNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	return &script, nil
}

// ListByUser 获取用户脚本列表
func (r *ScriptRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Script], error) {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.ListByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Script{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count scripts: %w", err)
	}

	var scripts []*entity.Script
	if err := query.Order("updated_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&scripts).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}

	return repository.NewPagedResult(scripts, total, pagination), nil
}

// Rename 更新脚本标题
func (r *ScriptRepository) Rename(ctx context.Context, scriptID, title string) error {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.Rename")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Script{}).
		Where("id = ?", scriptID).
		Update("title", title).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to rename script: %w", err)
	}
	return nil
}

// UpdateLatestVersionNo 推进脚本最新版本号，只增不减
func (r *ScriptRepository) UpdateLatestVersionNo(ctx context.Context, scriptID string, versionNo int) error {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.UpdateLatestVersionNo")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.Script{}).
		Where("id = ? AND latest_version_no < ?", scriptID, versionNo).
		Update("latest_version_no", versionNo)
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to update latest version no: %w", result.Error)
	}
	return nil
}

// Delete 删除脚本及其版本
func (r *ScriptRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.ScriptVersion{}, "script_id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete script versions: %w", err)
	}
	if err := db.Delete(&entity.Script{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete script: %w", err)
	}
	return nil
}

// CreateVersion 写入脚本版本
// 并发提交同一版本号时，落败方的唯一索引冲突按版本冲突返回
func (r *ScriptRepository) CreateVersion(ctx context.Context, version *entity.ScriptVersion) error {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.CreateVersion")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(version).Error; err != nil {
		if isDuplicateKeyError(err) {
			return errors.ErrVersionConflict
		}
		span.RecordError(err)
		return fmt.Errorf("failed to create script version: %w", err)
	}
	return nil
}

// GetVersion 获取脚本指定版本
func (r *ScriptRepository) GetVersion(ctx context.Context, scriptID string, versionNo int) (*entity.ScriptVersion, error) {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.GetVersion")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var version entity.ScriptVersion
	if err := db.Where("script_id = ? AND version_no = ?", scriptID, versionNo).
		First(&version).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrVersionNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get script version: %w", err)
	}
	return &version, nil
}

// VersionExists 判断 (script_id, version_no) 是否已占用
func (r *ScriptRepository) VersionExists(ctx context.Context, scriptID string, versionNo int) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.VersionExists")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.ScriptVersion{}).
		Where("script_id = ? AND version_no = ?", scriptID, versionNo).
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check version existence: %w", err)
	}
	return count > 0, nil
}

// ListVersions 获取脚本版本列表
func (r *ScriptRepository) ListVersions(ctx context.Context, scriptID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ScriptVersion], error) {
	ctx, span := tracer.Start(ctx, "postgres.ScriptRepository.ListVersions")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.ScriptVersion{}).Where("script_id = ?", scriptID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count script versions: %w", err)
	}

	var versions []*entity.ScriptVersion
	if err := query.Order("version_no DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&versions).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list script versions: %w", err)
	}

	return repository.NewPagedResult(versions, total, pagination), nil
}
