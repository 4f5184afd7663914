// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"github.com/TravelTable/nexusairbx-sub000/internal/application/quota"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
)

// TopUpRequest 按量余额充值请求
// UserID 为空时入账到操作者自己的账户
type TopUpRequest struct {
	UserID string `json:"user_id,omitempty"`
	Tokens int64  `json:"tokens" binding:"required,min=1"`
}

// SetPlanRequest 变更订阅档位请求
type SetPlanRequest struct {
	Plan string `json:"plan" binding:"required,oneof=free pro max"`
}

// BalanceResponse 额度查询响应
type BalanceResponse struct {
	Plan                  string    `json:"plan"`
	SubscriptionLimit     int64     `json:"subscription_limit"`
	SubscriptionUsed      int64     `json:"subscription_used"`
	SubscriptionRemaining int64     `json:"subscription_remaining"`
	PaygBalance           int64     `json:"payg_balance"`
	TotalAvailable        int64     `json:"total_available"`
	CycleEnd              time.Time `json:"cycle_end"`
}

// LedgerEntryResponse 用量流水响应
type LedgerEntryResponse struct {
	ChargeID         string    `json:"charge_id"`
	TokensCharged    int64     `json:"tokens_charged"`
	FromSubscription int64     `json:"from_subscription"`
	FromPayg         int64     `json:"from_payg"`
	Reason           string    `json:"reason"`
	CreatedAt        time.Time `json:"created_at"`
}

// ToBalanceResponse 转换额度视图
func ToBalanceResponse(b *quota.BalanceView) *BalanceResponse {
	if b == nil {
		return nil
	}
	return &BalanceResponse{
		Plan:                  string(b.Plan),
		SubscriptionLimit:     b.SubscriptionLimit,
		SubscriptionUsed:      b.SubscriptionUsed,
		SubscriptionRemaining: b.SubscriptionRemaining,
		PaygBalance:           b.PaygBalance,
		TotalAvailable:        b.TotalAvailable,
		CycleEnd:              b.CycleEnd,
	}
}

// ToLedgerListResponse 转换流水列表
func ToLedgerListResponse(entries []*entity.TokenLedgerEntry) []*LedgerEntryResponse {
	resp := make([]*LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, &LedgerEntryResponse{
			ChargeID:         e.ChargeID,
			TokensCharged:    e.TokensCharged,
			FromSubscription: e.FromSubscription,
			FromPayg:         e.FromPayg,
			Reason:           e.Reason,
			CreatedAt:        e.CreatedAt,
		})
	}
	return resp
}
