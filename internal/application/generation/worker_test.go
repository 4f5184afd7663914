package generation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/TravelTable/nexusairbx-sub000/internal/application/jobs"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/quota"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/script"
	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/memory"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/postgres"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

// fakeGenerator 可编程的上游生成器
type fakeGenerator struct {
	result *GenerateResult
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(_ context.Context, _ GenerateRequest) (*GenerateResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type runnerFixture struct {
	runner  *Runner
	manager *jobs.Manager
	client  *postgres.Client
	scripts *script.Service
	gen     *fakeGenerator
}

func newRunnerFixture(t *testing.T, gen *fakeGenerator) *runnerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&entity.UserQuota{},
		&entity.TokenLedgerEntry{},
		&entity.LLMUsageEvent{},
		&entity.Script{},
		&entity.ScriptVersion{},
	))

	client := postgres.NewClientWithDB(db)
	tx := postgres.NewTxManager(client)

	consumer := quota.NewTokenConsumer(
		postgres.NewQuotaRepository(client),
		postgres.NewLedgerRepository(client),
		tx,
		config.QuotaConfig{MinChargeTokens: 50, FreeMonthlyTokens: 50000},
	)
	scripts := script.NewService(postgres.NewScriptRepository(client), tx)
	manager := jobs.NewManager(memory.NewJobStore(), time.Minute)

	return &runnerFixture{
		runner:  NewRunner(manager, consumer, scripts, gen, postgres.NewUsageEventRepository(client)),
		manager: manager,
		client:  client,
		scripts: scripts,
		gen:     gen,
	}
}

func (f *runnerFixture) newTask(t *testing.T) Task {
	t.Helper()
	ctx := context.Background()

	s, err := f.scripts.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)

	job, err := f.manager.Create(ctx, "", "user-1", s.ID, entity.JobTypeScriptGen, json.RawMessage(`{}`), "")
	require.NoError(t, err)

	return Task{
		JobID:      job.ID,
		UserID:     "user-1",
		ScriptID:   s.ID,
		Prompt:     "make a part spinner",
		ScriptType: "script",
	}
}

func TestRunHappyPath(t *testing.T) {
	gen := &fakeGenerator{result: &GenerateResult{
		Source:     "print('hello')",
		TokensUsed: 1200,
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		DurationMs: 420,
	}}
	f := newRunnerFixture(t, gen)
	ctx := context.Background()
	task := f.newTask(t)

	require.NoError(t, f.runner.Run(ctx, task))

	job, err := f.manager.Get(ctx, task.JobID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusSucceeded, job.Status)
	assert.Equal(t, entity.JobStageDone, job.Stage)
	assert.Equal(t, int64(1200), job.TokensUsed)
	assert.Equal(t, "openai", job.LLMProvider)

	var result JobResult
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, 1, result.VersionNo)
	assert.Equal(t, int64(1200), result.TokensCharged)

	// 版本落库
	v, err := f.scripts.GetVersion(ctx, task.ScriptID, "user-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "print('hello')", v.Source)
	require.NotNil(t, v.SourceJobID)
	assert.Equal(t, task.JobID, *v.SourceJobID)

	// ChargeID 固定为任务 ID
	var entry entity.TokenLedgerEntry
	require.NoError(t, f.client.DB().First(&entry, "charge_id = ?", task.JobID).Error)
	assert.Equal(t, int64(1200), entry.TokensCharged)
}

func TestRunGenerationFailureDoesNotCharge(t *testing.T) {
	gen := &fakeGenerator{err: errors.ErrLLMCallFailed.WithDetail("upstream 500")}
	f := newRunnerFixture(t, gen)
	ctx := context.Background()
	task := f.newTask(t)

	require.NoError(t, f.runner.Run(ctx, task))

	job, err := f.manager.Get(ctx, task.JobID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "LLM call failed")

	var count int64
	require.NoError(t, f.client.DB().Model(&entity.TokenLedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRunInsufficientTokensFailsJob(t *testing.T) {
	gen := &fakeGenerator{result: &GenerateResult{
		Source:     "print('expensive')",
		TokensUsed: 90000,
		Provider:   "openai",
		Model:      "gpt-4o-mini",
	}}
	f := newRunnerFixture(t, gen)
	ctx := context.Background()
	task := f.newTask(t)

	require.NoError(t, f.runner.Run(ctx, task))

	job, err := f.manager.Get(ctx, task.JobID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "insufficient tokens")

	// 额度不足的任务不产生版本
	_, err = f.scripts.GetVersion(ctx, task.ScriptID, "user-1", 1)
	require.Error(t, err)
}

func TestRunSkipsTerminalJob(t *testing.T) {
	gen := &fakeGenerator{result: &GenerateResult{Source: "print('x')", TokensUsed: 100}}
	f := newRunnerFixture(t, gen)
	ctx := context.Background()
	task := f.newTask(t)

	require.NoError(t, f.manager.MarkFailed(ctx, task.JobID, entity.JobStageFailed, "cancelled"))

	// 消息重投不再触发生成
	require.NoError(t, f.runner.Run(ctx, task))
	assert.Equal(t, 0, gen.calls)
}

func TestRunRedeliveryDoesNotDoubleCharge(t *testing.T) {
	gen := &fakeGenerator{result: &GenerateResult{
		Source:     "print('hello')",
		TokensUsed: 1000,
		Provider:   "openai",
		Model:      "gpt-4o-mini",
	}}
	f := newRunnerFixture(t, gen)
	ctx := context.Background()
	task := f.newTask(t)

	require.NoError(t, f.runner.Run(ctx, task))
	require.NoError(t, f.runner.Run(ctx, task))

	var count int64
	require.NoError(t, f.client.DB().Model(&entity.TokenLedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
