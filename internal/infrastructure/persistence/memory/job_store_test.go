package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

func newRunningJob(id string) *entity.GenerationJob {
	return entity.NewGenerationJob(id, "user-1", "script-1", entity.JobTypeScriptGen, nil, time.Now().Add(time.Minute))
}

func TestUpdateIfRunningWritesRunningJob(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	job := newRunningJob("job-1")
	require.NoError(t, store.Create(ctx, job))

	job.Advance(entity.JobStageGenerating)
	updated, err := store.UpdateIfRunning(ctx, job)
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStageGenerating, got.Stage)
}

func TestUpdateIfRunningRejectsStaleTerminalOverwrite(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newRunningJob("job-1")))

	// 两个写入方各自读到 running 快照
	workerView, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	watchdogView, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)

	workerView.Succeed(nil)
	updated, err := store.UpdateIfRunning(ctx, workerView)
	require.NoError(t, err)
	require.True(t, updated)

	// 迟到的超时写入拿的是旧快照，不得覆盖已落的成功终态
	watchdogView.Fail(entity.JobStageTimeout, "job deadline exceeded")
	updated, err = store.UpdateIfRunning(ctx, watchdogView)
	require.NoError(t, err)
	assert.False(t, updated)

	got, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusSucceeded, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestUpdateIfRunningMissingJob(t *testing.T) {
	store := NewJobStore()

	_, err := store.UpdateIfRunning(context.Background(), newRunningJob("ghost"))
	assert.True(t, errors.IsCode(err, errors.CodeJobNotFound))
}
