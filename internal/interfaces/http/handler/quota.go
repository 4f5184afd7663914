// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/TravelTable/nexusairbx-sub000/internal/application/quota"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/internal/interfaces/http/dto"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"

	"github.com/gin-gonic/gin"
)

// QuotaHandler 配额处理器
type QuotaHandler struct {
	consumer *quota.TokenConsumer
}

// NewQuotaHandler 创建配额处理器
func NewQuotaHandler(consumer *quota.TokenConsumer) *QuotaHandler {
	return &QuotaHandler{consumer: consumer}
}

// GetBalance 查询当前用户额度
func (h *QuotaHandler) GetBalance(c *gin.Context) {
	balance, err := h.consumer.Balance(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err, "failed to get balance")
		return
	}

	dto.Success(c, dto.ToBalanceResponse(balance))
}

// TopUp 充值按量余额，仅限管理员操作
func (h *QuotaHandler) TopUp(c *gin.Context) {
	if currentUserRole(c) != string(entity.UserRoleAdmin) {
		respondError(c, errors.ErrForbidden.WithDetail("top-up requires admin role"), "failed to top up")
		return
	}

	var req dto.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	userID := req.UserID
	if userID == "" {
		userID = currentUserID(c)
	}

	if err := h.consumer.TopUp(ctx, userID, req.Tokens); err != nil {
		respondError(c, err, "failed to top up")
		return
	}

	balance, err := h.consumer.Balance(ctx, userID)
	if err != nil {
		respondError(c, err, "failed to get balance")
		return
	}
	dto.Success(c, dto.ToBalanceResponse(balance))
}

// SetPlan 变更订阅档位
func (h *QuotaHandler) SetPlan(c *gin.Context) {
	var req dto.SetPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)

	if err := h.consumer.SetPlan(ctx, userID, entity.SubscriptionPlan(req.Plan)); err != nil {
		respondError(c, err, "failed to set plan")
		return
	}

	balance, err := h.consumer.Balance(ctx, userID)
	if err != nil {
		respondError(c, err, "failed to get balance")
		return
	}
	dto.Success(c, dto.ToBalanceResponse(balance))
}

// ListLedger 查询用量流水
func (h *QuotaHandler) ListLedger(c *gin.Context) {
	pageReq := dto.BindPage(c)

	result, err := h.consumer.ListLedger(c.Request.Context(), currentUserID(c), repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		respondError(c, err, "failed to list ledger")
		return
	}

	resp := dto.ToLedgerListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}
