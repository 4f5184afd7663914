// Package entity 定义领域实体
package entity

import "time"

// Script 脚本产物
// LatestVersionNo 只增不减，指向已提交的最大版本号
type Script struct {
	ID              string    `json:"id" gorm:"type:uuid;primaryKey"`
	UserID          string    `json:"user_id" gorm:"type:uuid;index;not null"`
	Title           string    `json:"title" gorm:"type:varchar(255);not null"`
	ScriptType      string    `json:"script_type" gorm:"type:varchar(32);not null;default:script"`
	LatestVersionNo int       `json:"latest_version_no" gorm:"not null;default:0"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Script) TableName() string {
	return "scripts"
}

// ScriptVersion 脚本版本
// (script_id, version_no) 全局唯一，提交冲突时整个版本提交被拒绝
type ScriptVersion struct {
	ID          string    `json:"id" gorm:"type:uuid;primaryKey"`
	ScriptID    string    `json:"script_id" gorm:"type:uuid;not null;uniqueIndex:uniq_script_version,priority:1"`
	VersionNo   int       `json:"version_no" gorm:"not null;uniqueIndex:uniq_script_version,priority:2"`
	Title       string    `json:"title" gorm:"type:varchar(255)"`
	Source      string    `json:"source" gorm:"type:text;not null"`
	SourceJobID *string   `json:"source_job_id,omitempty" gorm:"type:uuid"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (ScriptVersion) TableName() string {
	return "script_versions"
}
