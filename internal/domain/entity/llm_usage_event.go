// Package entity 定义领域实体
package entity

import "time"

// LLMUsageEvent 上游 LLM 调用记录，用于用量审计
type LLMUsageEvent struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     string    `json:"user_id" gorm:"type:uuid;index;not null"`
	JobID      string    `json:"job_id" gorm:"type:uuid;index;not null"`
	Provider   string    `json:"provider" gorm:"type:varchar(32);not null"`
	Model      string    `json:"model" gorm:"type:varchar(64);not null"`
	TokensUsed int64     `json:"tokens_used" gorm:"not null;default:0"`
	DurationMs int       `json:"duration_ms" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}
