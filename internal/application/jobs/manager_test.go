package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/memory"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

func TestCreateAssignsIDWhenEmpty(t *testing.T) {
	m := NewManager(memory.NewJobStore(), time.Minute)
	ctx := context.Background()

	job, err := m.Create(ctx, "", "user-1", "script-1", entity.JobTypeScriptGen, json.RawMessage(`{}`), "")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, entity.JobStatusRunning, job.Status)
	assert.Equal(t, entity.JobStagePreparing, job.Stage)
}

func TestCreateKeepsCallerSuppliedID(t *testing.T) {
	m := NewManager(memory.NewJobStore(), time.Minute)
	ctx := context.Background()

	job, err := m.Create(ctx, "job-bound", "user-1", "script-1", entity.JobTypeScriptGen, nil, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "job-bound", job.ID)
	assert.Equal(t, "key-1", job.IdempotencyKey)
}

func TestGetRejectsForeignJob(t *testing.T) {
	m := NewManager(memory.NewJobStore(), time.Minute)
	ctx := context.Background()

	job, err := m.Create(ctx, "", "user-1", "script-1", entity.JobTypeScriptGen, nil, "")
	require.NoError(t, err)

	_, err = m.Get(ctx, job.ID, "user-2")
	assert.True(t, errors.IsCode(err, errors.CodeForbidden))
}

func TestFinishIsIdempotent(t *testing.T) {
	m := NewManager(memory.NewJobStore(), time.Minute)
	ctx := context.Background()

	job, err := m.Create(ctx, "", "user-1", "script-1", entity.JobTypeScriptGen, nil, "")
	require.NoError(t, err)

	require.NoError(t, m.MarkSucceeded(ctx, job.ID, json.RawMessage(`{"ok":true}`)))

	// 终态后的失败标记不改变状态
	require.NoError(t, m.MarkFailed(ctx, job.ID, entity.JobStageFailed, "late failure"))

	got, err := m.Get(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusSucceeded, got.Status)
	assert.Equal(t, entity.JobStageDone, got.Stage)
	assert.Empty(t, got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)
}

func TestTimerExpiresRunningJob(t *testing.T) {
	m := NewManager(memory.NewJobStore(), 30*time.Millisecond)
	ctx := context.Background()

	job, err := m.Create(ctx, "", "user-1", "script-1", entity.JobTypeScriptGen, nil, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := m.Get(ctx, job.ID, "user-1")
		if err != nil {
			return false
		}
		return got.Status == entity.JobStatusFailed && got.Stage == entity.JobStageTimeout
	}, time.Second, 10*time.Millisecond)
}

func TestAdvanceSkipsTerminalJob(t *testing.T) {
	m := NewManager(memory.NewJobStore(), time.Minute)
	ctx := context.Background()

	job, err := m.Create(ctx, "", "user-1", "script-1", entity.JobTypeScriptGen, nil, "")
	require.NoError(t, err)
	require.NoError(t, m.MarkFailed(ctx, job.ID, entity.JobStageFailed, "boom"))

	require.NoError(t, m.Advance(ctx, job.ID, entity.JobStageSaving))

	got, err := m.Get(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStageFailed, got.Stage)
}

func TestWatchdogSweepsOverdueJobs(t *testing.T) {
	store := memory.NewJobStore()
	m := NewManager(store, time.Minute)
	ctx := context.Background()

	job, err := m.Create(ctx, "", "user-1", "script-1", entity.JobTypeScriptGen, nil, "")
	require.NoError(t, err)

	// 定时器还没到，但模拟时钟越过截止时间
	m.cancelTimer(job.ID)
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	m.sweepOverdue(ctx)

	got, err := m.Get(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, entity.JobStageTimeout, got.Stage)
}

func TestListFiltersByStatus(t *testing.T) {
	m := NewManager(memory.NewJobStore(), time.Minute)
	ctx := context.Background()

	running, err := m.Create(ctx, "", "user-1", "script-1", entity.JobTypeScriptGen, nil, "")
	require.NoError(t, err)
	done, err := m.Create(ctx, "", "user-1", "script-1", entity.JobTypeScriptGen, nil, "")
	require.NoError(t, err)
	require.NoError(t, m.MarkSucceeded(ctx, done.ID, nil))

	page, err := m.List(ctx, "user-1", &repository.JobFilter{Status: entity.JobStatusRunning}, repository.NewPagination(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, running.ID, page.Items[0].ID)
}
