// Package handler 提供 HTTP 请求处理器
package handler

import (
	"encoding/json"
	"time"

	"github.com/TravelTable/nexusairbx-sub000/internal/application/script"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/redis"
	"github.com/TravelTable/nexusairbx-sub000/internal/interfaces/http/dto"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
)

// versionCacheTTL 版本内容不可变，可长期缓存
const versionCacheTTL = 24 * time.Hour

// ScriptHandler 脚本与版本处理器
type ScriptHandler struct {
	scripts *script.Service
	cache   *redis.Cache
}

// NewScriptHandler 创建脚本处理器
func NewScriptHandler(scripts *script.Service, cache *redis.Cache) *ScriptHandler {
	return &ScriptHandler{
		scripts: scripts,
		cache:   cache,
	}
}

// CreateScript 创建脚本
func (h *ScriptHandler) CreateScript(c *gin.Context) {
	var req dto.CreateScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	s, err := h.scripts.CreateScript(c.Request.Context(), currentUserID(c), req.Title, req.ScriptType)
	if err != nil {
		respondError(c, err, "failed to create script")
		return
	}

	dto.Created(c, dto.ToScriptResponse(s))
}

// GetScript 获取脚本详情
func (h *ScriptHandler) GetScript(c *gin.Context) {
	s, err := h.scripts.Get(c.Request.Context(), dto.BindScriptID(c), currentUserID(c))
	if err != nil {
		respondError(c, err, "failed to get script")
		return
	}

	dto.Success(c, dto.ToScriptResponse(s))
}

// ListScripts 获取当前用户的脚本列表
func (h *ScriptHandler) ListScripts(c *gin.Context) {
	pageReq := dto.BindPage(c)

	result, err := h.scripts.List(c.Request.Context(), currentUserID(c), repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		respondError(c, err, "failed to list scripts")
		return
	}

	resp := dto.ToScriptListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}

// RenameScript 重命名脚本
func (h *ScriptHandler) RenameScript(c *gin.Context) {
	var req dto.RenameScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	s, err := h.scripts.Rename(c.Request.Context(), dto.BindScriptID(c), currentUserID(c), req.Title)
	if err != nil {
		respondError(c, err, "failed to rename script")
		return
	}

	dto.Success(c, dto.ToScriptResponse(s))
}

// DeleteScript 删除脚本及其全部版本
func (h *ScriptHandler) DeleteScript(c *gin.Context) {
	ctx := c.Request.Context()
	scriptID := dto.BindScriptID(c)

	if err := h.scripts.Delete(ctx, scriptID, currentUserID(c)); err != nil {
		respondError(c, err, "failed to delete script")
		return
	}

	if h.cache != nil {
		if err := h.cache.InvalidateScript(ctx, scriptID); err != nil {
			logger.Warn(ctx, "failed to invalidate script cache", "script_id", scriptID, "error", err.Error())
		}
	}

	dto.NoContent(c)
}

// CommitVersion 提交脚本新版本
func (h *ScriptHandler) CommitVersion(c *gin.Context) {
	var req dto.CommitVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	v, err := h.scripts.CommitVersion(c.Request.Context(), script.CommitInput{
		ScriptID:  dto.BindScriptID(c),
		UserID:    currentUserID(c),
		VersionNo: req.VersionNo,
		Title:     req.Title,
		Source:    req.Source,
	})
	if err != nil {
		respondError(c, err, "failed to commit version")
		return
	}

	dto.Created(c, dto.ToVersionResponse(v))
}

// GetVersion 获取指定版本，优先读缓存
func (h *ScriptHandler) GetVersion(c *gin.Context) {
	ctx := c.Request.Context()
	scriptID := dto.BindScriptID(c)
	versionNo := dto.BindVersionNo(c)
	userID := currentUserID(c)

	if versionNo < 1 {
		dto.BadRequest(c, "invalid version number")
		return
	}

	if h.cache == nil {
		v, err := h.scripts.GetVersion(ctx, scriptID, userID, versionNo)
		if err != nil {
			respondError(c, err, "failed to get version")
			return
		}
		dto.Success(c, dto.ToVersionResponse(v))
		return
	}

	// 缓存键不含用户，命中前必须先确认归属
	if _, err := h.scripts.Get(ctx, scriptID, userID); err != nil {
		respondError(c, err, "failed to get script")
		return
	}

	data, err := h.cache.GetOrLoadSafe(ctx, redis.BuildVersionKey(scriptID, versionNo), versionCacheTTL, func() (interface{}, error) {
		v, err := h.scripts.GetVersion(ctx, scriptID, userID, versionNo)
		if err != nil {
			return nil, err
		}
		return dto.ToVersionResponse(v), nil
	})
	if err != nil {
		respondError(c, err, "failed to get version")
		return
	}

	var resp dto.VersionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		respondError(c, err, "failed to decode cached version")
		return
	}
	dto.Success(c, &resp)
}

// ListVersions 获取脚本的版本列表
func (h *ScriptHandler) ListVersions(c *gin.Context) {
	pageReq := dto.BindPage(c)

	result, err := h.scripts.ListVersions(c.Request.Context(), dto.BindScriptID(c), currentUserID(c), repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		respondError(c, err, "failed to list versions")
		return
	}

	resp := dto.ToVersionListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}
