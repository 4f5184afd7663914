package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
)

func TestUpdateIfRunningGuardsTerminalState(t *testing.T) {
	repo := NewJobRepository(newTestClient(t, &entity.GenerationJob{}))
	ctx := context.Background()

	job := entity.NewGenerationJob("job-1", "user-1", "script-1", entity.JobTypeScriptGen, nil, time.Now().Add(time.Minute))
	require.NoError(t, repo.Create(ctx, job))

	// 两个写入方各自读到 running 快照
	workerView, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	watchdogView, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)

	workerView.Succeed(nil)
	updated, err := repo.UpdateIfRunning(ctx, workerView)
	require.NoError(t, err)
	require.True(t, updated)

	// 迟到的超时写入不得覆盖已落的成功终态
	watchdogView.Fail(entity.JobStageTimeout, "job deadline exceeded")
	updated, err = repo.UpdateIfRunning(ctx, watchdogView)
	require.NoError(t, err)
	assert.False(t, updated)

	got, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusSucceeded, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestUpdateIfRunningWritesStageProgress(t *testing.T) {
	repo := NewJobRepository(newTestClient(t, &entity.GenerationJob{}))
	ctx := context.Background()

	job := entity.NewGenerationJob("job-1", "user-1", "script-1", entity.JobTypeScriptGen, nil, time.Now().Add(time.Minute))
	require.NoError(t, repo.Create(ctx, job))

	job.Advance(entity.JobStageGenerating)
	updated, err := repo.UpdateIfRunning(ctx, job)
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStageGenerating, got.Stage)
	assert.Equal(t, entity.JobStatusRunning, got.Status)
}
