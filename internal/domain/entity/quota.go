// Package entity 定义领域实体
package entity

import "time"

// SubscriptionPlan 订阅档位
type SubscriptionPlan string

const (
	PlanFree SubscriptionPlan = "free"
	PlanPro  SubscriptionPlan = "pro"
	PlanMax  SubscriptionPlan = "max"
)

// UserQuota 用户配额账户
// 订阅额度按月周期重置，PAYG 余额跨周期累积
type UserQuota struct {
	UserID            string           `json:"user_id" gorm:"type:uuid;primaryKey"`
	Plan              SubscriptionPlan `json:"plan" gorm:"type:varchar(16);not null;default:free"`
	SubscriptionLimit int64            `json:"subscription_limit" gorm:"not null;default:0"`
	SubscriptionUsed  int64            `json:"subscription_used" gorm:"not null;default:0"`
	CycleEnd          time.Time        `json:"cycle_end" gorm:"not null"`
	PaygBalance       int64            `json:"payg_balance" gorm:"not null;default:0"`
	CreatedAt         time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

func (UserQuota) TableName() string {
	return "user_quotas"
}

// NewUserQuota 创建初始配额账户
func NewUserQuota(userID string, plan SubscriptionPlan, limit int64, now time.Time) *UserQuota {
	return &UserQuota{
		UserID:            userID,
		Plan:              plan,
		SubscriptionLimit: limit,
		SubscriptionUsed:  0,
		CycleEnd:          NextCycleEnd(now),
		PaygBalance:       0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NextCycleEnd 计算下一个订阅周期的结束时间 (自然月)
func NextCycleEnd(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
}

// CycleExpired 判断订阅周期是否已过期
func (q *UserQuota) CycleExpired(now time.Time) bool {
	return !now.Before(q.CycleEnd)
}

// ApplyCycleReset 重置已过期的订阅周期
// 只清零订阅用量并推进周期，PAYG 余额不受影响
func (q *UserQuota) ApplyCycleReset(now time.Time) {
	if !q.CycleExpired(now) {
		return
	}
	q.SubscriptionUsed = 0
	q.CycleEnd = NextCycleEnd(now)
}

// SubscriptionRemaining 当前周期剩余订阅额度
func (q *UserQuota) SubscriptionRemaining() int64 {
	remaining := q.SubscriptionLimit - q.SubscriptionUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TotalAvailable 当前可用总额度 (订阅剩余 + PAYG 余额)
func (q *UserQuota) TotalAvailable() int64 {
	return q.SubscriptionRemaining() + q.PaygBalance
}

// SplitCharge 计算一次扣费在订阅额度和 PAYG 余额之间的拆分
// 订阅额度优先，不足部分落到 PAYG
func (q *UserQuota) SplitCharge(amount int64) (fromSubscription, fromPayg int64) {
	fromSubscription = amount
	if remaining := q.SubscriptionRemaining(); fromSubscription > remaining {
		fromSubscription = remaining
	}
	fromPayg = amount - fromSubscription
	return fromSubscription, fromPayg
}
