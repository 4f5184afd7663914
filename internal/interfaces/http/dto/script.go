// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
)

// CreateScriptRequest 创建脚本请求
type CreateScriptRequest struct {
	Title      string `json:"title,omitempty" binding:"max=255"`
	ScriptType string `json:"script_type,omitempty" binding:"omitempty,oneof=script ui"`
}

// RenameScriptRequest 重命名脚本请求
type RenameScriptRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

// CommitVersionRequest 提交脚本版本请求
// VersionNo 为 0 时由服务端自动递增分配
type CommitVersionRequest struct {
	VersionNo int    `json:"version_no,omitempty" binding:"omitempty,min=1"`
	Title     string `json:"title,omitempty" binding:"max=255"`
	Source    string `json:"source" binding:"required"`
}

// ScriptResponse 脚本响应
type ScriptResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ScriptType      string    `json:"script_type"`
	LatestVersionNo int       `json:"latest_version_no"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// VersionResponse 脚本版本响应
type VersionResponse struct {
	ID          string    `json:"id"`
	ScriptID    string    `json:"script_id"`
	VersionNo   int       `json:"version_no"`
	Title       string    `json:"title,omitempty"`
	Source      string    `json:"source"`
	SourceJobID *string   `json:"source_job_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToScriptResponse 转换脚本实体
func ToScriptResponse(s *entity.Script) *ScriptResponse {
	if s == nil {
		return nil
	}
	return &ScriptResponse{
		ID:              s.ID,
		Title:           s.Title,
		ScriptType:      s.ScriptType,
		LatestVersionNo: s.LatestVersionNo,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// ToScriptListResponse 转换脚本列表
func ToScriptListResponse(scripts []*entity.Script) []*ScriptResponse {
	resp := make([]*ScriptResponse, 0, len(scripts))
	for _, s := range scripts {
		resp = append(resp, ToScriptResponse(s))
	}
	return resp
}

// ToVersionResponse 转换版本实体
func ToVersionResponse(v *entity.ScriptVersion) *VersionResponse {
	if v == nil {
		return nil
	}
	return &VersionResponse{
		ID:          v.ID,
		ScriptID:    v.ScriptID,
		VersionNo:   v.VersionNo,
		Title:       v.Title,
		Source:      v.Source,
		SourceJobID: v.SourceJobID,
		CreatedAt:   v.CreatedAt,
	}
}

// ToVersionListResponse 转换版本列表
func ToVersionListResponse(versions []*entity.ScriptVersion) []*VersionResponse {
	resp := make([]*VersionResponse, 0, len(versions))
	for _, v := range versions {
		resp = append(resp, ToVersionResponse(v))
	}
	return resp
}
