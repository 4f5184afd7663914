// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/TravelTable/nexusairbx-sub000/internal/application/auth"
	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	svc      *auth.Service
	userRepo repository.UserRepository
	cfg      config.JWTConfig
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(svc *auth.Service, userRepo repository.UserRepository, cfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{
		svc:      svc,
		userRepo: userRepo,
		cfg:      cfg,
	}
}

// Register 用户注册
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	user, err := h.svc.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respondError(c, err, "failed to register user")
		return
	}

	dto.Created(c, dto.ToUserResponse(user))
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	user, pair, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err, "failed to login")
		return
	}

	dto.Success(c, &dto.LoginResponse{
		User: dto.ToUserResponse(user),
		Token: &dto.TokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresIn:    int64(h.cfg.Expiration.Seconds()),
		},
	})
}

// Refresh 刷新令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err, "failed to refresh token")
		return
	}

	dto.Success(c, &dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(h.cfg.Expiration.Seconds()),
	})
}

// GetMe 获取当前登录用户信息
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, err := h.userRepo.GetByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err, "failed to get user")
		return
	}

	dto.Success(c, dto.ToUserResponse(user))
}
