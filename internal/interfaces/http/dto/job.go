// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"encoding/json"
	"time"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
)

// HistoryItem 对话历史条目
type HistoryItem struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// CreateJobRequest 创建生成任务请求
// ScriptID 为空时自动创建新脚本
type CreateJobRequest struct {
	Prompt     string        `json:"prompt" binding:"required"`
	History    []HistoryItem `json:"history,omitempty" binding:"max=50,dive"`
	JobType    string        `json:"job_type,omitempty" binding:"omitempty,oneof=script_gen ui_gen"`
	ScriptType string        `json:"script_type,omitempty" binding:"omitempty,oneof=script ui"`
	ScriptID   string        `json:"script_id,omitempty"`
	Title      string        `json:"title,omitempty" binding:"max=255"`
}

// JobResponse 任务响应
type JobResponse struct {
	ID           string          `json:"id"`
	ScriptID     string          `json:"script_id"`
	JobType      string          `json:"job_type"`
	Status       string          `json:"status"`
	Stage        string          `json:"stage"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	TokensUsed   int64           `json:"tokens_used,omitempty"`
	LLMProvider  string          `json:"llm_provider,omitempty"`
	LLMModel     string          `json:"llm_model,omitempty"`
	Deadline     time.Time       `json:"deadline"`
	CreatedAt    time.Time       `json:"created_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// ToJobResponse 转换任务实体
func ToJobResponse(j *entity.GenerationJob) *JobResponse {
	if j == nil {
		return nil
	}
	return &JobResponse{
		ID:           j.ID,
		ScriptID:     j.ScriptID,
		JobType:      string(j.JobType),
		Status:       string(j.Status),
		Stage:        string(j.Stage),
		Result:       j.Result,
		ErrorMessage: j.ErrorMessage,
		TokensUsed:   j.TokensUsed,
		LLMProvider:  j.LLMProvider,
		LLMModel:     j.LLMModel,
		Deadline:     j.Deadline,
		CreatedAt:    j.CreatedAt,
		FinishedAt:   j.FinishedAt,
	}
}

// ToJobListResponse 转换任务列表
func ToJobListResponse(jobs []*entity.GenerationJob) []*JobResponse {
	resp := make([]*JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, ToJobResponse(j))
	}
	return resp
}
