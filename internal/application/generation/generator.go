// Package generation 提供脚本生成任务的执行流程
package generation

import "context"

// Message 对话历史消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest 生成请求
type GenerateRequest struct {
	Prompt     string    `json:"prompt"`
	History    []Message `json:"history,omitempty"`
	ScriptType string    `json:"script_type"`
}

// GenerateResult 生成结果
type GenerateResult struct {
	Source     string `json:"source"`
	Title      string `json:"title,omitempty"`
	TokensUsed int64  `json:"tokens_used"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	DurationMs int    `json:"duration_ms"`
}

// Generator 上游生成器接口
type Generator interface {
	// Generate 调用上游模型生成脚本
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
