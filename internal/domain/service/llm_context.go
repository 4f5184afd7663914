// Package service 提供跨层共享的领域辅助能力
package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const llmCtxKeyProvider llmCtxKey = "llm_provider"

// WithProvider 将本次 LLM 调用的提供商写入 Context，供回调层读取
func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

// ProviderFromContext 读取当前调用的提供商，未设置时返回 unknown
func ProviderFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	v := ctx.Value(llmCtxKeyProvider)
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return strings.TrimSpace(s)
}
