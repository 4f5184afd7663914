package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/TravelTable/nexusairbx-sub000/internal/application/quota"
	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/postgres"
)

func newQuotaTestRouter(t *testing.T, userID, role string) (*gin.Engine, *quota.TokenConsumer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&entity.UserQuota{}, &entity.TokenLedgerEntry{}))

	client := postgres.NewClientWithDB(db)
	consumer := quota.NewTokenConsumer(
		postgres.NewQuotaRepository(client),
		postgres.NewLedgerRepository(client),
		postgres.NewTxManager(client),
		config.QuotaConfig{
			MinChargeTokens:   50,
			FreeMonthlyTokens: 50000,
			Plans:             map[string]int64{"free": 50000},
		},
	)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("role", role)
	})
	h := NewQuotaHandler(consumer)
	r.POST("/topup", h.TopUp)
	return r, consumer
}

func TestTopUpRejectsNonAdmin(t *testing.T) {
	r, consumer := newQuotaTestRouter(t, "user-1", string(entity.UserRoleMember))

	req := httptest.NewRequest(http.MethodPost, "/topup", strings.NewReader(`{"tokens":500}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	// 被拒的充值不入账
	balance, err := consumer.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.PaygBalance)
}

func TestTopUpAdminCreditsTargetUser(t *testing.T) {
	r, consumer := newQuotaTestRouter(t, "admin-1", string(entity.UserRoleAdmin))

	req := httptest.NewRequest(http.MethodPost, "/topup", strings.NewReader(`{"user_id":"user-2","tokens":500}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	balance, err := consumer.Balance(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.PaygBalance)
}

func TestTopUpAdminDefaultsToSelf(t *testing.T) {
	r, consumer := newQuotaTestRouter(t, "admin-1", string(entity.UserRoleAdmin))

	req := httptest.NewRequest(http.MethodPost, "/topup", strings.NewReader(`{"tokens":800}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	balance, err := consumer.Balance(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(800), balance.PaygBalance)
}
