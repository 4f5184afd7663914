// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"
)

// JobType 任务类型
type JobType string

const (
	JobTypeScriptGen JobType = "script_gen"
	JobTypeUIGen     JobType = "ui_gen"
)

// JobStatus 任务状态
// 任务创建即进入 running，终态为 succeeded 或 failed
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobStage 任务所处阶段，非终态任务对外暴露进度
type JobStage string

const (
	JobStagePreparing  JobStage = "preparing"
	JobStageGenerating JobStage = "generating"
	JobStageBilling    JobStage = "billing"
	JobStageSaving     JobStage = "saving"
	JobStageDone       JobStage = "done"
	JobStageFailed     JobStage = "failed"
	JobStageTimeout    JobStage = "timeout"
)

// GenerationJob 生成任务
type GenerationJob struct {
	ID             string          `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         string          `json:"user_id" gorm:"type:uuid;index;not null"`
	ScriptID       string          `json:"script_id" gorm:"type:uuid;index;not null"`
	JobType        JobType         `json:"job_type" gorm:"type:varchar(32);not null"`
	Status         JobStatus       `json:"status" gorm:"type:varchar(16);index;not null"`
	Stage          JobStage        `json:"stage" gorm:"type:varchar(16);not null"`
	InputParams    json.RawMessage `json:"input_params" gorm:"type:jsonb"`
	Result         json.RawMessage `json:"result,omitempty" gorm:"type:jsonb"`
	ErrorMessage   string          `json:"error_message,omitempty" gorm:"type:text"`
	TokensUsed     int64           `json:"tokens_used" gorm:"not null;default:0"`
	LLMProvider    string          `json:"llm_provider,omitempty" gorm:"type:varchar(32)"`
	LLMModel       string          `json:"llm_model,omitempty" gorm:"type:varchar(64)"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" gorm:"type:varchar(128)"`
	Deadline       time.Time       `json:"deadline" gorm:"not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}

// NewGenerationJob 创建新任务，初始即为 running/preparing
func NewGenerationJob(id, userID, scriptID string, jobType JobType, inputParams json.RawMessage, deadline time.Time) *GenerationJob {
	now := time.Now()
	return &GenerationJob{
		ID:          id,
		UserID:      userID,
		ScriptID:    scriptID,
		JobType:     jobType,
		Status:      JobStatusRunning,
		Stage:       JobStagePreparing,
		InputParams: inputParams,
		Deadline:    deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsTerminal 判断任务是否已进入终态
func (j *GenerationJob) IsTerminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// Advance 推进任务阶段，终态任务不再变更
func (j *GenerationJob) Advance(stage JobStage) {
	if j.IsTerminal() {
		return
	}
	j.Stage = stage
	j.UpdatedAt = time.Now()
}

// Succeed 任务成功结束
func (j *GenerationJob) Succeed(result json.RawMessage) {
	if j.IsTerminal() {
		return
	}
	now := time.Now()
	j.Status = JobStatusSucceeded
	j.Stage = JobStageDone
	j.Result = result
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// Fail 任务失败结束
func (j *GenerationJob) Fail(stage JobStage, errMsg string) {
	if j.IsTerminal() {
		return
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.Stage = stage
	j.ErrorMessage = errMsg
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// Overdue 判断任务是否超过截止时间仍未结束
func (j *GenerationJob) Overdue(now time.Time) bool {
	return !j.IsTerminal() && now.After(j.Deadline)
}

// SetLLMMetrics 记录 LLM 调用信息
func (j *GenerationJob) SetLLMMetrics(provider, model string, tokensUsed int64) {
	j.LLMProvider = provider
	j.LLMModel = model
	j.TokensUsed = tokensUsed
}
