// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
)

// ScriptRepository 脚本产物仓储接口
type ScriptRepository interface {
	// Create 创建脚本
	Create(ctx context.Context, script *entity.Script) error

	// GetByID 根据 ID 获取脚本
	GetByID(ctx context.Context, id string) (*entity.Script, error)

	// ListByUser 获取用户脚本列表
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.Script], error)

	// Rename 更新脚本标题
	Rename(ctx context.Context, scriptID, title string) error

	// UpdateLatestVersionNo 推进脚本最新版本号，只增不减
	UpdateLatestVersionNo(ctx context.Context, scriptID string, versionNo int) error

	// Delete 删除脚本及其版本
	Delete(ctx context.Context, id string) error

	// CreateVersion 写入脚本版本
	CreateVersion(ctx context.Context, version *entity.ScriptVersion) error

	// GetVersion 获取脚本指定版本
	GetVersion(ctx context.Context, scriptID string, versionNo int) (*entity.ScriptVersion, error)

	// VersionExists 判断 (script_id, version_no) 是否已占用
	VersionExists(ctx context.Context, scriptID string, versionNo int) (bool, error)

	// ListVersions 获取脚本版本列表
	ListVersions(ctx context.Context, scriptID string, pagination Pagination) (*PagedResult[*entity.ScriptVersion], error)
}
