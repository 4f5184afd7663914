// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

// QuotaRepository 配额账户仓储实现
type QuotaRepository struct {
	client *Client
}

// NewQuotaRepository 创建配额账户仓储
func NewQuotaRepository(client *Client) *QuotaRepository {
	return &QuotaRepository{client: client}
}

// Get 获取用户配额账户
func (r *QuotaRepository) Get(ctx context.Context, userID string) (*entity.UserQuota, error) {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var quota entity.UserQuota
	if err := db.First(&quota, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound.WithDetail("quota account not found")
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return &quota, nil
}

// Create 创建配额账户
func (r *QuotaRepository) Create(ctx context.Context, quota *entity.UserQuota) error {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(quota).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create quota: %w", err)
	}
	return nil
}

// CompareAndUpdate 条件更新配额账户
// 以读取快照的用量字段为守卫，快照失效时不写入并返回 false
func (r *QuotaRepository) CompareAndUpdate(ctx context.Context, expected, updated *entity.UserQuota) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.CompareAndUpdate")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.UserQuota{}).
		Where("user_id = ? AND subscription_used = ? AND payg_balance = ?",
			expected.UserID, expected.SubscriptionUsed, expected.PaygBalance).
		Updates(map[string]interface{}{
			"subscription_used": updated.SubscriptionUsed,
			"cycle_end":         updated.CycleEnd,
			"payg_balance":      updated.PaygBalance,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to update quota: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// AddPaygBalance 原子增加 PAYG 余额
func (r *QuotaRepository) AddPaygBalance(ctx context.Context, userID string, tokens int64) error {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.AddPaygBalance")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.UserQuota{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"payg_balance": gorm.Expr("payg_balance + ?", tokens),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to add payg balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound.WithDetail("quota account not found")
	}
	return nil
}

// SetPlan 切换订阅档位并开启新周期
func (r *QuotaRepository) SetPlan(ctx context.Context, userID string, plan entity.SubscriptionPlan, limit int64) error {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.SetPlan")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.UserQuota{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"plan":               plan,
			"subscription_limit": limit,
			"subscription_used":  0,
			"cycle_end":          entity.NextCycleEnd(time.Now()),
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to set plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound.WithDetail("quota account not found")
	}
	return nil
}
