// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/TravelTable/nexusairbx-sub000/internal/interfaces/http/dto"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
)

// currentUserID 从 Gin Context 获取已认证用户 ID
func currentUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// currentUserRole 从 Gin Context 获取已认证用户角色
func currentUserRole(c *gin.Context) string {
	return c.GetString("role")
}

// respondError 将业务错误映射为 HTTP 响应
// AppError 按其 HTTPStatus 返回，其余错误统一按 500 处理并记录日志
func respondError(c *gin.Context, err error, fallbackMsg string) {
	if errors.IsAppError(err) {
		appErr := errors.AsAppError(err)
		var detail *dto.ErrorDetail
		if appErr.Detail != "" {
			detail = &dto.ErrorDetail{
				ErrorCode: string(appErr.Code),
				Details:   appErr.Detail,
			}
		}
		dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, detail)
		return
	}

	logger.Error(c.Request.Context(), fallbackMsg, err,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	dto.InternalError(c, fallbackMsg)
}
