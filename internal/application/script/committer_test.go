package script

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/postgres"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&entity.Script{}, &entity.ScriptVersion{}))

	client := postgres.NewClientWithDB(db)
	return NewService(postgres.NewScriptRepository(client), postgres.NewTxManager(client))
}

func TestCreateScriptDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Untitled Script", script.Title)
	assert.Equal(t, "script", script.ScriptType)
	assert.Equal(t, 0, script.LatestVersionNo)
}

func TestCommitVersionAutoIncrements(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)

	v1, err := svc.CommitVersion(ctx, CommitInput{
		ScriptID: script.ID,
		UserID:   "user-1",
		Source:   "print('v1')",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNo)

	v2, err := svc.CommitVersion(ctx, CommitInput{
		ScriptID: script.ID,
		UserID:   "user-1",
		Source:   "print('v2')",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNo)

	got, err := svc.Get(ctx, script.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.LatestVersionNo)
}

func TestCommitVersionRejectsTakenNumber(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)

	_, err = svc.CommitVersion(ctx, CommitInput{
		ScriptID:  script.ID,
		UserID:    "user-1",
		VersionNo: 3,
		Source:    "print('v3')",
	})
	require.NoError(t, err)

	_, err = svc.CommitVersion(ctx, CommitInput{
		ScriptID:  script.ID,
		UserID:    "user-1",
		VersionNo: 3,
		Source:    "print('other v3')",
	})
	assert.True(t, errors.IsCode(err, errors.CodeVersionConflict))
}

func TestCommitVersionKeepsLatestMonotone(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)

	_, err = svc.CommitVersion(ctx, CommitInput{
		ScriptID:  script.ID,
		UserID:    "user-1",
		VersionNo: 5,
		Source:    "print('v5')",
	})
	require.NoError(t, err)

	// 回填低版本号不回退 latest
	_, err = svc.CommitVersion(ctx, CommitInput{
		ScriptID:  script.ID,
		UserID:    "user-1",
		VersionNo: 2,
		Source:    "print('v2')",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, script.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.LatestVersionNo)
}

func TestCommitVersionRecordsSourceJob(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)

	v, err := svc.CommitVersion(ctx, CommitInput{
		ScriptID:    script.ID,
		UserID:      "user-1",
		Source:      "print('v1')",
		SourceJobID: "job-1",
	})
	require.NoError(t, err)
	require.NotNil(t, v.SourceJobID)
	assert.Equal(t, "job-1", *v.SourceJobID)
}

func TestCommitVersionRejectsForeignScript(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)

	_, err = svc.CommitVersion(ctx, CommitInput{
		ScriptID: script.ID,
		UserID:   "user-2",
		Source:   "print('stolen')",
	})
	assert.True(t, errors.IsCode(err, errors.CodeForbidden))
}

func TestGetVersionChecksOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)
	_, err = svc.CommitVersion(ctx, CommitInput{
		ScriptID: script.ID,
		UserID:   "user-1",
		Source:   "print('v1')",
	})
	require.NoError(t, err)

	_, err = svc.GetVersion(ctx, script.ID, "user-2", 1)
	assert.True(t, errors.IsCode(err, errors.CodeForbidden))

	v, err := svc.GetVersion(ctx, script.ID, "user-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNo)
}

func TestRenameUpdatesTitle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)

	renamed, err := svc.Rename(ctx, script.ID, "user-1", "Better Name")
	require.NoError(t, err)
	assert.Equal(t, "Better Name", renamed.Title)

	got, err := svc.Get(ctx, script.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Better Name", got.Title)
}

func TestRenameRejectsForeignScript(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)

	_, err = svc.Rename(ctx, script.ID, "user-2", "Hijacked")
	assert.True(t, errors.IsCode(err, errors.CodeForbidden))

	got, err := svc.Get(ctx, script.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "My Script", got.Title)
}

func TestRenameRequiresTitle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)

	_, err = svc.Rename(ctx, script.ID, "user-1", "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestDeleteRemovesScriptAndVersions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	script, err := svc.CreateScript(ctx, "user-1", "My Script", "script")
	require.NoError(t, err)
	_, err = svc.CommitVersion(ctx, CommitInput{
		ScriptID: script.ID,
		UserID:   "user-1",
		Source:   "print('v1')",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, script.ID, "user-1"))

	_, err = svc.Get(ctx, script.ID, "user-1")
	assert.True(t, errors.IsCode(err, errors.CodeScriptNotFound))

	page, err := svc.ListVersions(ctx, script.ID, "user-1", repository.NewPagination(1, 10))
	require.Error(t, err)
	assert.Nil(t, page)
}
