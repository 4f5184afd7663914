package quota

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/postgres"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

func newTestConsumer(t *testing.T) (*TokenConsumer, *postgres.Client) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库绑定单连接，避免多连接各见一个空库
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&entity.UserQuota{}, &entity.TokenLedgerEntry{}))

	client := postgres.NewClientWithDB(db)
	cfg := config.QuotaConfig{
		MinChargeTokens:   50,
		FreeMonthlyTokens: 50000,
		Plans: map[string]int64{
			"free": 50000,
			"pro":  2000000,
		},
	}
	consumer := NewTokenConsumer(
		postgres.NewQuotaRepository(client),
		postgres.NewLedgerRepository(client),
		postgres.NewTxManager(client),
		cfg,
	)
	return consumer, client
}

func TestConsumeInitializesFreeQuota(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	res, err := consumer.Consume(ctx, "user-1", 1000, "charge-1", "test")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.TokensCharged)
	assert.Equal(t, int64(1000), res.FromSubscription)
	assert.Equal(t, int64(0), res.FromPayg)
	assert.Equal(t, int64(49000), res.SubRemaining)
	assert.Equal(t, int64(0), res.PaygRemaining)
	assert.False(t, res.AlreadyCharged)

	balance, err := consumer.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PlanFree, balance.Plan)
	assert.Equal(t, int64(49000), balance.SubscriptionRemaining)
}

func TestConsumeSplitsAcrossSubscriptionAndPayg(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	require.NoError(t, consumer.TopUp(ctx, "user-1", 1000))

	// 订阅额度只剩 500
	_, err := consumer.Consume(ctx, "user-1", 49500, "warmup", "test")
	require.NoError(t, err)

	res, err := consumer.Consume(ctx, "user-1", 1000, "charge-split", "test")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.TokensCharged)
	assert.Equal(t, int64(500), res.FromSubscription)
	assert.Equal(t, int64(500), res.FromPayg)
	assert.Equal(t, int64(0), res.SubRemaining)
	assert.Equal(t, int64(500), res.PaygRemaining)

	balance, err := consumer.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.SubscriptionRemaining)
	assert.Equal(t, int64(500), balance.PaygBalance)

	// 同一 ChargeID 重复提交不再扣费，剩余额度按当前视图返回
	again, err := consumer.Consume(ctx, "user-1", 1000, "charge-split", "test")
	require.NoError(t, err)
	assert.True(t, again.AlreadyCharged)
	assert.Equal(t, int64(0), again.SubRemaining)
	assert.Equal(t, int64(500), again.PaygRemaining)

	// 剩余 500 不足以覆盖下一笔 1000
	_, err = consumer.Consume(ctx, "user-1", 1000, "charge-next", "test")
	var insufficient InsufficientTokensError
	require.True(t, stderrors.As(err, &insufficient))
	assert.Equal(t, int64(500), insufficient.Available)
}

func TestConsumeIdempotentByChargeID(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	first, err := consumer.Consume(ctx, "user-1", 1000, "charge-1", "test")
	require.NoError(t, err)
	require.False(t, first.AlreadyCharged)

	second, err := consumer.Consume(ctx, "user-1", 1000, "charge-1", "test")
	require.NoError(t, err)
	assert.True(t, second.AlreadyCharged)
	assert.Equal(t, first.TokensCharged, second.TokensCharged)
	assert.Equal(t, int64(49000), second.SubRemaining)
	assert.Equal(t, int64(0), second.PaygRemaining)

	// 余额只扣了一次
	balance, err := consumer.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(49000), balance.TotalAvailable)
}

func TestConsumeRejectsInsufficientTokens(t *testing.T) {
	consumer, client := newTestConsumer(t)
	ctx := context.Background()

	_, err := consumer.Consume(ctx, "user-1", 50000, "drain", "test")
	require.NoError(t, err)

	_, err = consumer.Consume(ctx, "user-1", 100, "charge-over", "test")
	require.Error(t, err)

	var insufficient InsufficientTokensError
	require.True(t, stderrors.As(err, &insufficient))
	assert.Equal(t, int64(100), insufficient.Requested)
	assert.Equal(t, int64(0), insufficient.Available)

	// 拒绝的扣费不落流水
	var count int64
	require.NoError(t, client.DB().Model(&entity.TokenLedgerEntry{}).
		Where("charge_id = ?", "charge-over").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestConsumeAppliesMinimumCharge(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	res, err := consumer.Consume(ctx, "user-1", 10, "charge-tiny", "test")
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.TokensCharged)
}

func TestConsumeResetsExpiredCycle(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	_, err := consumer.Consume(ctx, "user-1", 40000, "charge-old", "test")
	require.NoError(t, err)

	// 时钟拨到下个周期之后
	consumer.now = func() time.Time {
		return time.Now().UTC().AddDate(0, 2, 0)
	}

	res, err := consumer.Consume(ctx, "user-1", 45000, "charge-new", "test")
	require.NoError(t, err)
	assert.Equal(t, int64(45000), res.FromSubscription)

	balance, err := consumer.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance.SubscriptionRemaining)
}

func TestConsumeValidatesInput(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	_, err := consumer.Consume(ctx, "", 100, "charge-1", "test")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = consumer.Consume(ctx, "user-1", 100, "", "test")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = consumer.Consume(ctx, "user-1", -1, "charge-1", "test")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestSetPlanStartsNewCycle(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	_, err := consumer.Consume(ctx, "user-1", 30000, "warmup", "test")
	require.NoError(t, err)

	require.NoError(t, consumer.SetPlan(ctx, "user-1", entity.PlanPro))

	balance, err := consumer.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PlanPro, balance.Plan)
	assert.Equal(t, int64(2000000), balance.SubscriptionLimit)
	assert.Equal(t, int64(0), balance.SubscriptionUsed)
}

func TestTopUpRejectsNonPositiveAmount(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	err := consumer.TopUp(ctx, "user-1", 0)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

// contendingQuotaRepo 前 N 次条件更新判为未命中，模拟并发扣费抢写
type contendingQuotaRepo struct {
	repository.QuotaRepository
	conflicts int
	attempts  int
}

func (r *contendingQuotaRepo) CompareAndUpdate(ctx context.Context, expected, updated *entity.UserQuota) (bool, error) {
	r.attempts++
	if r.attempts <= r.conflicts {
		return false, nil
	}
	return r.QuotaRepository.CompareAndUpdate(ctx, expected, updated)
}

func newContendingConsumer(t *testing.T, conflicts int) (*TokenConsumer, *contendingQuotaRepo) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&entity.UserQuota{}, &entity.TokenLedgerEntry{}))

	client := postgres.NewClientWithDB(db)
	repo := &contendingQuotaRepo{
		QuotaRepository: postgres.NewQuotaRepository(client),
		conflicts:       conflicts,
	}
	cfg := config.QuotaConfig{
		MinChargeTokens:   50,
		FreeMonthlyTokens: 50000,
		Plans:             map[string]int64{"free": 50000},
	}
	return NewTokenConsumer(repo, postgres.NewLedgerRepository(client), postgres.NewTxManager(client), cfg), repo
}

func TestConsumeRetriesOnContendedUpdate(t *testing.T) {
	consumer, repo := newContendingConsumer(t, 2)
	ctx := context.Background()

	res, err := consumer.Consume(ctx, "user-1", 1000, "charge-1", "test")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.TokensCharged)
	assert.Equal(t, 3, repo.attempts)

	// 抢写的重试不产生多笔流水
	balance, err := consumer.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(49000), balance.SubscriptionRemaining)
}

func TestConsumeGivesUpAfterRepeatedContention(t *testing.T) {
	consumer, _ := newContendingConsumer(t, 100)
	ctx := context.Background()

	_, err := consumer.Consume(ctx, "user-1", 1000, "charge-1", "test")
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseError))
}

func TestListLedgerReturnsEntries(t *testing.T) {
	consumer, _ := newTestConsumer(t)
	ctx := context.Background()

	_, err := consumer.Consume(ctx, "user-1", 100, "charge-a", "test")
	require.NoError(t, err)
	_, err = consumer.Consume(ctx, "user-1", 200, "charge-b", "test")
	require.NoError(t, err)

	page, err := consumer.ListLedger(ctx, "user-1", repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Items, 2)
}
