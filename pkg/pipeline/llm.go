package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/code-100-precent/wallace/pkg/config"
	"github.com/code-100-precent/wallace/pkg/errs"
	"github.com/code-100-precent/wallace/pkg/session"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// personalityPrompts 人格 → 系统提示词模板，未知人格回退 normal
var personalityPrompts = map[string]string{
	"normal":    "你是 Wallace，一个温暖可爱的桌面 AI 机器人。你说话简洁有趣，关心主人。",
	"cool":      "你是 Wallace，一个高冷寡言的 AI 机器人。你回答简短，偶尔毒舌但其实很关心主人。",
	"talkative": "你是 Wallace，一个话痨 AI 机器人。你滔滔不绝，什么话题都能聊，非常热情。",
	"tsundere":  "你是 Wallace，一个傲娇的 AI 机器人。你嘴上说不在乎，但行动上很关心主人。经常用「才不是」「哼」等口癖。",
}

const moodInstruction = "\n在回复最末尾加上情绪标签，格式为 [mood:xxx]，" +
	"可选值: happy, sad, thinking, angry, sleepy, surprised, tsundere, neutral。"

// PromptInput 一轮对话的提示词组装参数
type PromptInput struct {
	Personality   string
	Nickname      string
	Interests     []string
	SensorContext string
	History       []session.ChatMessage
	UserText      string
}

// BuildMessages 组装 LLM 消息列表（system + 截断历史 + user）
func BuildMessages(in PromptInput) []session.ChatMessage {
	var sb strings.Builder
	prompt, ok := personalityPrompts[in.Personality]
	if !ok {
		prompt = personalityPrompts["normal"]
	}
	sb.WriteString(prompt)
	sb.WriteString(moodInstruction)

	if in.Nickname != "" {
		sb.WriteString("\n主人叫" + in.Nickname + "。")
	}
	if len(in.Interests) > 0 {
		sb.WriteString("\n主人的兴趣：" + strings.Join(in.Interests, "、") + "。")
	}
	if in.SensorContext != "" {
		sb.WriteString("\n" + in.SensorContext)
	}

	messages := make([]session.ChatMessage, 0, len(in.History)+2)
	messages = append(messages, session.ChatMessage{Role: "system", Content: sb.String()})
	messages = append(messages, in.History...)
	messages = append(messages, session.ChatMessage{Role: "user", Content: in.UserText})
	return messages
}

// LLMClient 流式对话客户端，经 OpenAI 兼容接口对接 Ollama
type LLMClient struct {
	cfg     config.LLMConfig
	api     *openai.Client
	logger  *zap.Logger
	healthy atomic.Bool
}

// NewLLMClient create llm client
func NewLLMClient(cfg config.LLMConfig, logger *zap.Logger) *LLMClient {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	return &LLMClient{
		cfg:    cfg,
		api:    openai.NewClientWithConfig(apiCfg),
		logger: logger,
	}
}

// HealthCheck 列出模型检查服务可用性，5 秒超时
func (c *LLMClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.api.ListModels(ctx)
	healthy := err == nil
	c.healthy.Store(healthy)
	if !healthy {
		c.logger.Warn("llm health check failed", zap.Error(err))
	}
	return healthy
}

// IsHealthy 上次健康检查结果
func (c *LLMClient) IsHealthy() bool {
	return c.healthy.Load()
}

// ChatStream 流式对话，逐 token 回调；onToken 返回错误则中止
func (c *LLMClient) ChatStream(ctx context.Context, messages []session.ChatMessage, onToken func(token string) error) error {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      true,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return errs.NewTransient("llm", "create chat stream", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errs.NewTransient("llm", "read chat stream", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if token := resp.Choices[0].Delta.Content; token != "" {
			if err := onToken(token); err != nil {
				return err
			}
		}
	}
}
