// Package quota 提供用户配额计量能力
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"
	"github.com/TravelTable/nexusairbx-sub000/pkg/metrics"
)

// casMaxRetries 并发扣费时条件更新的最大重试次数
const casMaxRetries = 5

// InsufficientTokensError 表示用户额度不足以覆盖本次扣费
type InsufficientTokensError struct {
	UserID    string
	Requested int64
	Available int64
}

func (e InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens: user=%s requested=%d available=%d", e.UserID, e.Requested, e.Available)
}

// ConsumeResult 单次扣费结果，剩余额度为本次扣费落账后的视图
type ConsumeResult struct {
	ChargeID         string `json:"charge_id"`
	TokensCharged    int64  `json:"tokens_charged"`
	FromSubscription int64  `json:"from_subscription"`
	FromPayg         int64  `json:"from_payg"`
	SubRemaining     int64  `json:"sub_remaining"`
	PaygRemaining    int64  `json:"payg_remaining"`
	AlreadyCharged   bool   `json:"already_charged"`
}

// BalanceView 用户当前额度视图
type BalanceView struct {
	Plan                  entity.SubscriptionPlan `json:"plan"`
	SubscriptionLimit     int64                   `json:"subscription_limit"`
	SubscriptionUsed      int64                   `json:"subscription_used"`
	SubscriptionRemaining int64                   `json:"subscription_remaining"`
	PaygBalance           int64                   `json:"payg_balance"`
	TotalAvailable        int64                   `json:"total_available"`
	CycleEnd              time.Time               `json:"cycle_end"`
}

// TokenConsumer 用户 Token 扣费服务
type TokenConsumer struct {
	quotaRepo  repository.QuotaRepository
	ledgerRepo repository.LedgerRepository
	tx         repository.Transactor
	cfg        config.QuotaConfig
	now        func() time.Time
}

// NewTokenConsumer 创建扣费服务
func NewTokenConsumer(quotaRepo repository.QuotaRepository, ledgerRepo repository.LedgerRepository, tx repository.Transactor, cfg config.QuotaConfig) *TokenConsumer {
	return &TokenConsumer{
		quotaRepo:  quotaRepo,
		ledgerRepo: ledgerRepo,
		tx:         tx,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Consume 按 ChargeID 幂等地扣减用户额度
// 扣费金额不低于最小计费单位；订阅额度优先，不足部分落 PAYG 余额；
// 额度不足时整笔拒绝，不做部分扣费
func (c *TokenConsumer) Consume(ctx context.Context, userID string, tokens int64, chargeID, reason string) (*ConsumeResult, error) {
	if userID == "" || chargeID == "" {
		return nil, errors.ErrInvalidParam.WithDetail("user_id and charge_id are required")
	}
	if tokens < 0 {
		return nil, errors.ErrInvalidParam.WithDetail("tokens must be non-negative")
	}
	if min := c.cfg.MinChargeTokens; tokens < min {
		tokens = min
	}

	var result *ConsumeResult
	var insufficient *InsufficientTokensError

	for attempt := 0; attempt < casMaxRetries; attempt++ {
		result = nil
		insufficient = nil

		err := c.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			// 同一 ChargeID 重复提交直接返回首次结果，附带当前剩余额度
			if prior, err := c.ledgerRepo.Get(txCtx, chargeID); err == nil && prior != nil {
				quota, err := c.ensureQuota(txCtx, userID)
				if err != nil {
					return err
				}
				quota.ApplyCycleReset(c.now())
				result = &ConsumeResult{
					ChargeID:         prior.ChargeID,
					TokensCharged:    prior.TokensCharged,
					FromSubscription: prior.FromSubscription,
					FromPayg:         prior.FromPayg,
					SubRemaining:     quota.SubscriptionRemaining(),
					PaygRemaining:    quota.PaygBalance,
					AlreadyCharged:   true,
				}
				return nil
			} else if err != nil && !errors.IsCode(err, errors.CodeNotFound) {
				return err
			}

			quota, err := c.ensureQuota(txCtx, userID)
			if err != nil {
				return err
			}

			snapshot := *quota
			quota.ApplyCycleReset(c.now())

			if quota.TotalAvailable() < tokens {
				insufficient = &InsufficientTokensError{
					UserID:    userID,
					Requested: tokens,
					Available: quota.TotalAvailable(),
				}
				return nil
			}

			fromSub, fromPayg := quota.SplitCharge(tokens)
			quota.SubscriptionUsed += fromSub
			quota.PaygBalance -= fromPayg

			ok, err := c.quotaRepo.CompareAndUpdate(txCtx, &snapshot, quota)
			if err != nil {
				return err
			}
			if !ok {
				// 并发修改，整个事务重试
				return errConcurrentUpdate
			}

			entry := &entity.TokenLedgerEntry{
				ChargeID:         chargeID,
				UserID:           userID,
				TokensCharged:    tokens,
				FromSubscription: fromSub,
				FromPayg:         fromPayg,
				Reason:           reason,
				CreatedAt:        c.now(),
			}
			if err := c.ledgerRepo.Create(txCtx, entry); err != nil {
				return err
			}

			result = &ConsumeResult{
				ChargeID:         chargeID,
				TokensCharged:    tokens,
				FromSubscription: fromSub,
				FromPayg:         fromPayg,
				SubRemaining:     quota.SubscriptionRemaining(),
				PaygRemaining:    quota.PaygBalance,
			}
			return nil
		})

		if err == errConcurrentUpdate {
			continue
		}
		if err != nil {
			return nil, err
		}
		if insufficient != nil {
			metrics.QuotaRejections.Inc()
			return nil, *insufficient
		}
		if result != nil {
			if !result.AlreadyCharged {
				if result.FromSubscription > 0 {
					metrics.TokensCharged.WithLabelValues("subscription").Add(float64(result.FromSubscription))
				}
				if result.FromPayg > 0 {
					metrics.TokensCharged.WithLabelValues("payg").Add(float64(result.FromPayg))
				}
				logger.Info(ctx, "tokens charged",
					"user_id", userID,
					"charge_id", chargeID,
					"tokens", result.TokensCharged,
					"from_subscription", result.FromSubscription,
					"from_payg", result.FromPayg,
				)
			}
			return result, nil
		}
	}

	return nil, errors.ErrDatabaseError.WithDetail("quota update contention, retries exhausted")
}

// errConcurrentUpdate 内部哨兵，触发 CAS 重试
var errConcurrentUpdate = fmt.Errorf("quota concurrently updated")

// Balance 查询用户当前额度，过期周期按已重置呈现
func (c *TokenConsumer) Balance(ctx context.Context, userID string) (*BalanceView, error) {
	quota, err := c.ensureQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	quota.ApplyCycleReset(c.now())
	return &BalanceView{
		Plan:                  quota.Plan,
		SubscriptionLimit:     quota.SubscriptionLimit,
		SubscriptionUsed:      quota.SubscriptionUsed,
		SubscriptionRemaining: quota.SubscriptionRemaining(),
		PaygBalance:           quota.PaygBalance,
		TotalAvailable:        quota.TotalAvailable(),
		CycleEnd:              quota.CycleEnd,
	}, nil
}

// TopUp 充值 PAYG 余额
func (c *TokenConsumer) TopUp(ctx context.Context, userID string, tokens int64) error {
	if tokens <= 0 {
		return errors.ErrInvalidParam.WithDetail("top-up amount must be positive")
	}
	if _, err := c.ensureQuota(ctx, userID); err != nil {
		return err
	}
	return c.quotaRepo.AddPaygBalance(ctx, userID, tokens)
}

// SetPlan 切换订阅档位，立即生效并开启新周期
func (c *TokenConsumer) SetPlan(ctx context.Context, userID string, plan entity.SubscriptionPlan) error {
	limit := c.cfg.PlanLimit(string(plan))
	if _, err := c.ensureQuota(ctx, userID); err != nil {
		return err
	}
	return c.quotaRepo.SetPlan(ctx, userID, plan, limit)
}

// ListLedger 查询用户用量流水
func (c *TokenConsumer) ListLedger(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.TokenLedgerEntry], error) {
	return c.ledgerRepo.ListByUser(ctx, userID, pagination)
}

// ensureQuota 获取配额账户，首次访问时按 FREE 档初始化
func (c *TokenConsumer) ensureQuota(ctx context.Context, userID string) (*entity.UserQuota, error) {
	quota, err := c.quotaRepo.Get(ctx, userID)
	if err == nil {
		return quota, nil
	}
	if !errors.IsCode(err, errors.CodeNotFound) {
		return nil, err
	}

	quota = entity.NewUserQuota(userID, entity.PlanFree, c.cfg.FreeMonthlyTokens, c.now())
	if err := c.quotaRepo.Create(ctx, quota); err != nil {
		// 并发初始化时读取已有账户
		if existing, getErr := c.quotaRepo.Get(ctx, userID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return quota, nil
}
