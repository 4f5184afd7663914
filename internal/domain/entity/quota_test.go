package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextCycleEnd(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), NextCycleEnd(now))

	// 12 月翻到次年 1 月
	dec := time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), NextCycleEnd(dec))
}

func TestApplyCycleReset(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	q := NewUserQuota("user-1", PlanFree, 50000, now)
	q.SubscriptionUsed = 42000
	q.PaygBalance = 700

	// 周期未到，不重置
	q.ApplyCycleReset(now.AddDate(0, 0, 10))
	assert.Equal(t, int64(42000), q.SubscriptionUsed)

	// 周期已过，清零订阅用量，PAYG 不动
	later := now.AddDate(0, 1, 0)
	q.ApplyCycleReset(later)
	assert.Equal(t, int64(0), q.SubscriptionUsed)
	assert.Equal(t, int64(700), q.PaygBalance)
	assert.True(t, q.CycleEnd.After(later))
}

func TestSplitCharge(t *testing.T) {
	q := &UserQuota{SubscriptionLimit: 1000, SubscriptionUsed: 800, PaygBalance: 500}

	fromSub, fromPayg := q.SplitCharge(150)
	assert.Equal(t, int64(150), fromSub)
	assert.Equal(t, int64(0), fromPayg)

	fromSub, fromPayg = q.SplitCharge(300)
	assert.Equal(t, int64(200), fromSub)
	assert.Equal(t, int64(100), fromPayg)

	q.SubscriptionUsed = 1000
	fromSub, fromPayg = q.SplitCharge(400)
	assert.Equal(t, int64(0), fromSub)
	assert.Equal(t, int64(400), fromPayg)
}

func TestTotalAvailableClampsOveruse(t *testing.T) {
	q := &UserQuota{SubscriptionLimit: 1000, SubscriptionUsed: 1200, PaygBalance: 300}
	assert.Equal(t, int64(0), q.SubscriptionRemaining())
	assert.Equal(t, int64(300), q.TotalAvailable())
}
