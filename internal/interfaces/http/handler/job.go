// Package handler 提供 HTTP 请求处理器
package handler

import (
	"encoding/json"

	"github.com/TravelTable/nexusairbx-sub000/internal/application/jobs"
	"github.com/TravelTable/nexusairbx-sub000/internal/application/script"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/repository"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/messaging"
	"github.com/TravelTable/nexusairbx-sub000/internal/interfaces/http/dto"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JobHandler 生成任务处理器
type JobHandler struct {
	manager  *jobs.Manager
	idem     jobs.IdempotencyIndex
	scripts  *script.Service
	producer *messaging.Producer
}

// NewJobHandler 创建任务处理器
func NewJobHandler(manager *jobs.Manager, idem jobs.IdempotencyIndex, scripts *script.Service, producer *messaging.Producer) *JobHandler {
	return &JobHandler{
		manager:  manager,
		idem:     idem,
		scripts:  scripts,
		producer: producer,
	}
}

// CreateJob 提交生成任务
// 携带 X-Idempotency-Key 的重复请求返回首次绑定的任务
func (h *JobHandler) CreateJob(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUserID(c)

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	jobType := entity.JobTypeScriptGen
	if req.JobType == string(entity.JobTypeUIGen) || req.ScriptType == "ui" {
		jobType = entity.JobTypeUIGen
	}
	scriptType := "script"
	if jobType == entity.JobTypeUIGen {
		scriptType = "ui"
	}

	jobID := uuid.NewString()
	idemKey := dto.BindIdempotencyKey(c)
	if idemKey != "" {
		bound, created, err := h.idem.Register(ctx, userID, idemKey, jobID)
		if err != nil {
			respondError(c, err, "failed to register idempotency key")
			return
		}
		if !created {
			existing, err := h.manager.Get(ctx, bound, userID)
			if err == nil {
				dto.Accepted(c, dto.ToJobResponse(existing))
				return
			}
			if !errors.IsCode(err, errors.CodeJobNotFound) {
				respondError(c, err, "failed to get job")
				return
			}
			// 键已绑定但任务未落库，用绑定的 ID 重建任务
			jobID = bound
		}
	}

	// 未指定脚本时隐式创建
	scriptID := req.ScriptID
	if scriptID == "" {
		s, err := h.scripts.CreateScript(ctx, userID, req.Title, scriptType)
		if err != nil {
			respondError(c, err, "failed to create script")
			return
		}
		scriptID = s.ID
	} else {
		if _, err := h.scripts.Get(ctx, scriptID, userID); err != nil {
			respondError(c, err, "failed to get script")
			return
		}
	}

	inputParams, err := json.Marshal(req)
	if err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}

	job, err := h.manager.Create(ctx, jobID, userID, scriptID, jobType, inputParams, idemKey)
	if err != nil {
		respondError(c, err, "failed to create job")
		return
	}

	history := make([]messaging.HistoryMessage, 0, len(req.History))
	for _, item := range req.History {
		history = append(history, messaging.HistoryMessage{
			Role:    item.Role,
			Content: item.Content,
		})
	}

	if _, err := h.producer.PublishScriptJob(ctx, &messaging.ScriptJobMessage{
		JobID:          job.ID,
		UserID:         userID,
		ScriptID:       scriptID,
		JobType:        string(jobType),
		Prompt:         req.Prompt,
		History:        history,
		ScriptType:     scriptType,
		Title:          req.Title,
		IdempotencyKey: idemKey,
	}); err != nil {
		// 发布失败的任务无法被执行，立即终结避免悬挂到超时
		logger.Error(ctx, "failed to publish job message", err, "job_id", job.ID)
		if failErr := h.manager.MarkFailed(ctx, job.ID, entity.JobStageFailed, "failed to enqueue job"); failErr != nil {
			logger.Error(ctx, "failed to mark job failed", failErr, "job_id", job.ID)
		}
		dto.InternalError(c, "failed to enqueue job")
		return
	}

	dto.Accepted(c, dto.ToJobResponse(job))
}

// GetJob 查询任务状态与结果
func (h *JobHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()

	job, err := h.manager.Get(ctx, dto.BindJobID(c), currentUserID(c))
	if err != nil {
		respondError(c, err, "failed to get job")
		return
	}

	dto.Success(c, dto.ToJobResponse(job))
}

// ListJobs 查询当前用户的任务列表
func (h *JobHandler) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()
	pageReq := dto.BindPage(c)

	var filter *repository.JobFilter
	if status := c.Query("status"); status != "" {
		filter = &repository.JobFilter{Status: entity.JobStatus(status)}
	}

	result, err := h.manager.List(ctx, currentUserID(c), filter, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		respondError(c, err, "failed to list jobs")
		return
	}

	resp := dto.ToJobListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}
