package postgres

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
)

func newTestClient(t *testing.T, models ...interface{}) *Client {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models...))
	return NewClientWithDB(db)
}

func TestCreateVersionMapsDuplicateToConflict(t *testing.T) {
	repo := NewScriptRepository(newTestClient(t, &entity.Script{}, &entity.ScriptVersion{}))
	ctx := context.Background()

	scriptID := uuid.NewString()
	require.NoError(t, repo.CreateVersion(ctx, &entity.ScriptVersion{
		ID:        uuid.NewString(),
		ScriptID:  scriptID,
		VersionNo: 1,
		Source:    "print('first')",
	}))

	// 并发提交双方都通过了存在性预检，落败方靠唯一索引挡下
	err := repo.CreateVersion(ctx, &entity.ScriptVersion{
		ID:        uuid.NewString(),
		ScriptID:  scriptID,
		VersionNo: 1,
		Source:    "print('second')",
	})
	assert.True(t, errors.IsCode(err, errors.CodeVersionConflict))
}

func TestCreateVersionAllowsSameNumberAcrossScripts(t *testing.T) {
	repo := NewScriptRepository(newTestClient(t, &entity.Script{}, &entity.ScriptVersion{}))
	ctx := context.Background()

	require.NoError(t, repo.CreateVersion(ctx, &entity.ScriptVersion{
		ID:        uuid.NewString(),
		ScriptID:  uuid.NewString(),
		VersionNo: 1,
		Source:    "print('a')",
	}))
	require.NoError(t, repo.CreateVersion(ctx, &entity.ScriptVersion{
		ID:        uuid.NewString(),
		ScriptID:  uuid.NewString(),
		VersionNo: 1,
		Source:    "print('b')",
	}))
}
