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

// LedgerRepository 用量流水仓储实现
type LedgerRepository struct {
	client *Client
}

// NewLedgerRepository 创建用量流水仓储
func NewLedgerRepository(client *Client) *LedgerRepository {
	return &LedgerRepository{client: client}
}

// Get 按 ChargeID 获取流水
func (r *LedgerRepository) Get(ctx context.Context, chargeID string) (*entity.TokenLedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.LedgerRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var entry entity.TokenLedgerEntry
	if err := db.First(&entry, "charge_id = ?", chargeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound.WithDetail("ledger entry not found")
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return &entry, nil
}

// Create 写入流水
func (r *LedgerRepository) Create(ctx context.Context, entry *entity.TokenLedgerEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.LedgerRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(entry).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

// ListByUser 获取用户流水列表
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.TokenLedgerEntry], error) {
	ctx, span := tracer.Start(ctx, "postgres.LedgerRepository.ListByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.TokenLedgerEntry{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	var entries []*entity.TokenLedgerEntry
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&entries).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	return repository.NewPagedResult(entries, total, pagination), nil
}

// UsageEventRepository LLM 调用记录仓储实现
type UsageEventRepository struct {
	client *Client
}

// NewUsageEventRepository 创建调用记录仓储
func NewUsageEventRepository(client *Client) *UsageEventRepository {
	return &UsageEventRepository{client: client}
}

// Create 写入调用记录
func (r *UsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageEventRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create usage event: %w", err)
	}
	return nil
}

// ListByUser 获取用户调用记录
func (r *UsageEventRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.LLMUsageEvent], error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageEventRepository.ListByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.LLMUsageEvent{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count usage events: %w", err)
	}

	var events []*entity.LLMUsageEvent
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&events).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}

	return repository.NewPagedResult(events, total, pagination), nil
}
