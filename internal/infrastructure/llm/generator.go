package llm

import (
	"context"
	"strings"
	"time"

	"github.com/TravelTable/nexusairbx-sub000/internal/application/generation"
	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/service"
	"github.com/TravelTable/nexusairbx-sub000/pkg/errors"
	"github.com/TravelTable/nexusairbx-sub000/pkg/logger"
	"github.com/TravelTable/nexusairbx-sub000/pkg/metrics"

	"github.com/cloudwego/eino/schema"
)

const scriptSystemPrompt = `You are an expert Roblox Luau engineer. Generate a complete, production-quality Luau script for the user's request.
Rules:
- Output only the Luau source code, no surrounding prose and no markdown fences.
- Use Roblox services via game:GetService.
- Prefer task.wait over wait and avoid deprecated APIs.
- Add short comments only where the logic is non-obvious.`

const uiSystemPrompt = `You are an expert Roblox UI engineer. Generate a complete Luau script that builds the requested UI using Instance.new with ScreenGui, Frame, TextLabel, TextButton and related classes.
Rules:
- Output only the Luau source code, no surrounding prose and no markdown fences.
- Parent the ScreenGui to the LocalPlayer's PlayerGui.
- Use UDim2 for all sizing and positioning, and wire button events with Activated.`

// ScriptGenerator 基于 Eino ChatModel 的脚本生成器
type ScriptGenerator struct {
	factory *EinoFactory
	config  *config.LLMConfig
}

// NewScriptGenerator 创建脚本生成器
func NewScriptGenerator(factory *EinoFactory, cfg *config.Config) *ScriptGenerator {
	return &ScriptGenerator{
		factory: factory,
		config:  &cfg.LLM,
	}
}

// Generate 调用上游模型生成脚本源码
func (g *ScriptGenerator) Generate(ctx context.Context, req generation.GenerateRequest) (*generation.GenerateResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.ErrInvalidParam.WithDetail("prompt is required")
	}

	provider := g.config.DefaultProvider
	providerCfg, ok := g.config.Providers[provider]
	if !ok {
		return nil, errors.ErrLLMProviderError.WithDetail("default provider not configured")
	}

	chatModel, err := g.factory.Get(ctx, provider)
	if err != nil {
		return nil, errors.ErrLLMProviderError.WithError(err)
	}

	msgs := buildMessages(req)

	// 提供商写入 Context，供全局回调的追踪 Span 打标
	ctx = service.WithProvider(ctx, provider)

	start := time.Now()
	outMsg, err := chatModel.Generate(ctx, msgs)
	elapsed := time.Since(start)

	metrics.LLMCallDuration.WithLabelValues(provider, providerCfg.Model).Observe(elapsed.Seconds())

	if err != nil {
		metrics.LLMCallErrors.WithLabelValues(provider, providerCfg.Model).Inc()
		logger.Error(ctx, "llm generate failed", err,
			"provider", provider,
			"model", providerCfg.Model,
		)
		return nil, errors.ErrLLMCallFailed.WithError(err)
	}
	if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
		metrics.LLMCallErrors.WithLabelValues(provider, providerCfg.Model).Inc()
		return nil, errors.ErrLLMCallFailed.WithDetail("empty llm response")
	}

	content := strings.TrimSpace(outMsg.Content)

	var tokensUsed int64
	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		tokensUsed = int64(outMsg.ResponseMeta.Usage.TotalTokens)
	}
	if tokensUsed <= 0 {
		// 上游未返回用量时按字符数估算
		tokensUsed = estimateTokens(req, content)
	}

	return &generation.GenerateResult{
		Source:     content,
		TokensUsed: tokensUsed,
		Provider:   provider,
		Model:      providerCfg.Model,
		DurationMs: int(elapsed.Milliseconds()),
	}, nil
}

// buildMessages 组装系统提示、历史对话与用户请求
func buildMessages(req generation.GenerateRequest) []*schema.Message {
	systemPrompt := scriptSystemPrompt
	if req.ScriptType == "ui" {
		systemPrompt = uiSystemPrompt
	}

	msgs := make([]*schema.Message, 0, len(req.History)+2)
	msgs = append(msgs, schema.SystemMessage(systemPrompt))
	for _, h := range req.History {
		switch h.Role {
		case "assistant":
			msgs = append(msgs, schema.AssistantMessage(h.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(h.Content))
		}
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))
	return msgs
}

func estimateTokens(req generation.GenerateRequest, content string) int64 {
	total := len(req.Prompt) + len(content)
	for _, h := range req.History {
		total += len(h.Content)
	}
	estimated := int64(total / 4)
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
