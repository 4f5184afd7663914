// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
)

// QuotaRepository 配额账户仓储接口
type QuotaRepository interface {
	// Get 获取用户配额账户
	Get(ctx context.Context, userID string) (*entity.UserQuota, error)

	// Create 创建配额账户
	Create(ctx context.Context, quota *entity.UserQuota) error

	// CompareAndUpdate 基于读取快照的条件更新
	// 只有当数据库中的 SubscriptionUsed/CycleEnd/PaygBalance 仍等于 expected
	// 时才写入 updated，返回是否命中
	CompareAndUpdate(ctx context.Context, expected, updated *entity.UserQuota) (bool, error)

	// AddPaygBalance 原子增加 PAYG 余额
	AddPaygBalance(ctx context.Context, userID string, tokens int64) error

	// SetPlan 切换订阅档位并重置周期用量
	SetPlan(ctx context.Context, userID string, plan entity.SubscriptionPlan, limit int64) error
}

// LedgerRepository 用量流水仓储接口
type LedgerRepository interface {
	// Get 按 ChargeID 获取流水
	Get(ctx context.Context, chargeID string) (*entity.TokenLedgerEntry, error)

	// Create 写入流水
	Create(ctx context.Context, entry *entity.TokenLedgerEntry) error

	// ListByUser 获取用户流水列表
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.TokenLedgerEntry], error)
}

// UsageEventRepository LLM 调用记录仓储接口
type UsageEventRepository interface {
	// Create 写入调用记录
	Create(ctx context.Context, event *entity.LLMUsageEvent) error

	// ListByUser 获取用户调用记录
	ListByUser(ctx context.Context, userID string, pagination Pagination) (*PagedResult[*entity.LLMUsageEvent], error)
}
