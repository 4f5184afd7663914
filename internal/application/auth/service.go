// Package auth 提供用户注册登录能力
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"
	"github.com/TravelTable/nexusairbx-sub000/pkg/utils"
)

// Service 认证服务
type Service struct {
	userRepo repository.UserRepository
	jwt      *utils.JWTManager
	cfg      config.JWTConfig
}

// NewService 创建认证服务
func NewService(userRepo repository.UserRepository, jwt *utils.JWTManager, cfg config.JWTConfig) *Service {
	return &Service{
		userRepo: userRepo,
		jwt:      jwt,
		cfg:      cfg,
	}
}

// Register 注册新用户
func (s *Service) Register(ctx context.Context, email, password, name string) (*entity.User, error) {
	if email == "" || password == "" {
		return nil, errors.ErrInvalidParam.WithDetail("email and password are required")
	}
	if len(password) < 8 {
		return nil, errors.ErrInvalidParam.WithDetail("password must be at least 8 characters")
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.ErrConflict.WithDetail("email already registered")
	}

	user := entity.NewUser(uuid.NewString(), email, name)
	if err := user.SetPassword(password); err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login 校验密码并签发双 Token
func (s *Service) Login(ctx context.Context, email, password string) (*entity.User, *utils.TokenPair, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.IsCode(err, errors.CodeUserNotFound) {
			return nil, nil, errors.ErrUnauthorized.WithDetail("invalid credentials")
		}
		return nil, nil, err
	}
	if !user.CheckPassword(password) {
		return nil, nil, errors.ErrUnauthorized.WithDetail("invalid credentials")
	}

	pair, err := s.jwt.GenerateTokenPair(user.ID, string(user.Role), s.cfg.Expiration, s.cfg.RefreshExpiration)
	if err != nil {
		return nil, nil, errors.ErrInternalError.WithError(err)
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.userRepo.Update(ctx, user); err != nil {
		logger.Warn(ctx, "failed to record last login", "user_id", user.ID, "error", err.Error())
	}

	return user, pair, nil
}

// Refresh 用 RefreshToken 换发新的双 Token
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*utils.TokenPair, error) {
	claims, err := s.jwt.ParseToken(refreshToken)
	if err != nil {
		if err == utils.ErrExpiredToken {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrTokenInvalid
	}
	if claims.Type != "refresh" {
		return nil, errors.ErrTokenInvalid.WithDetail("not a refresh token")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, errors.ErrTokenInvalid
	}

	pair, err := s.jwt.GenerateTokenPair(user.ID, string(user.Role), s.cfg.Expiration, s.cfg.RefreshExpiration)
	if err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}
	return pair, nil
}
