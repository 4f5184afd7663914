package auth

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/postgres"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
	"github.com/TravelTable/nexusairbx-sub000/pkg/utils"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&entity.User{}))

	cfg := config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "nexusairbx-test",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
	}
	return NewService(
		postgres.NewUserRepository(postgres.NewClientWithDB(db)),
		utils.NewJWTManager(cfg.Secret, cfg.Issuer),
		cfg,
	)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "supersecret", "Alice")
	require.NoError(t, err)
	assert.Equal(t, entity.UserRoleMember, user.Role)
	assert.NotEqual(t, "supersecret", user.PasswordHash)

	got, pair, err := svc.Login(ctx, "alice@example.com", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "supersecret", "Alice")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice@example.com", "othersecret", "Alice Again")
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.Register(context.Background(), "bob@example.com", "short", "Bob")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "supersecret", "Alice")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrongpassword")
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))

	// 未注册邮箱与密码错误同样呈现，不泄露账户存在性
	_, _, err = svc.Login(ctx, "ghost@example.com", "whatever")
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))
}

func TestRefreshIssuesNewPair(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "supersecret", "Alice")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice@example.com", "supersecret")
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.NotEmpty(t, fresh.RefreshToken)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "supersecret", "Alice")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice@example.com", "supersecret")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.True(t, errors.IsCode(err, errors.CodeTokenInvalid))

	_, err = svc.Refresh(ctx, "garbage-token")
	assert.True(t, errors.IsCode(err, errors.CodeTokenInvalid))
}
