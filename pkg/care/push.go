package care

import (
	"context"
	"strings"
	"time"

	"github.com/code-100-precent/wallace/pkg/errs"
	"github.com/code-100-precent/wallace/pkg/pipeline"
	"github.com/code-100-precent/wallace/pkg/protocol"
	"github.com/code-100-precent/wallace/pkg/session"
	"go.uber.org/zap"
)

// careSystemPrompt 关怀语句生成的系统提示
const careSystemPrompt = "你是 Wallace，生成一句简短的关怀语句。"

// Pusher 主动关怀推送器：生成一句关怀并连同语音推到在线会话
type Pusher struct {
	registry    *session.Registry
	llm         pipeline.LLM
	tts         pipeline.TTS
	pushTimeout time.Duration
	logger      *zap.Logger
}

// NewPusher create care pusher
func NewPusher(registry *session.Registry, llm pipeline.LLM, tts pipeline.TTS, pushTimeout time.Duration, logger *zap.Logger) *Pusher {
	return &Pusher{
		registry:    registry,
		llm:         llm,
		tts:         tts,
		pushTimeout: pushTimeout,
		logger:      logger,
	}
}

// PushToSession 向单个会话推送关怀。
// 前置：用户在场；限时抢流水线锁，抢不到静默放弃。
func (p *Pusher) PushToSession(ctx context.Context, sess *session.Session, prompt, mood string) {
	if !sess.ProximityPresent() {
		p.logger.Debug("skipping care push: user not present",
			zap.String("userID", sess.UserID))
		return
	}

	if !sess.TryLockPipeline(p.pushTimeout) {
		p.logger.Debug("skipping care push: pipeline busy",
			zap.String("userID", sess.UserID))
		return
	}
	defer sess.UnlockPipeline()

	messages := []session.ChatMessage{
		{Role: "system", Content: careSystemPrompt},
		{Role: "user", Content: prompt},
	}
	var sb strings.Builder
	err := p.llm.ChatStream(ctx, messages, func(token string) error {
		sb.WriteString(token)
		return nil
	})
	if err != nil {
		e := errs.Classify(err, "llm")
		p.logger.Warn("care push llm failed",
			zap.String("userID", sess.UserID),
			zap.String("errorType", e.Type.String()),
			zap.Error(e),
		)
		return
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return
	}

	if err := sess.Sink.WriteText(protocol.Care(text, mood)); err != nil {
		p.logger.Warn("care push send failed",
			zap.String("userID", sess.UserID),
			zap.Error(err),
		)
		return
	}

	emit := func(frame []byte) error {
		return sess.Sink.WriteBinary(frame)
	}
	if err := p.tts.Synthesize(ctx, sess.TTSBackend(), text, emit); err != nil {
		p.logger.Warn("care push tts failed",
			zap.String("userID", sess.UserID),
			zap.Error(err),
		)
	}
}

// PushAll 向所有在线会话推送，逐会话隔离故障
func (p *Pusher) PushAll(ctx context.Context, prompt, mood string) {
	for _, sess := range p.registry.All() {
		func(sess *session.Session) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("care push panicked",
						zap.String("userID", sess.UserID),
						zap.Any("panic", r),
					)
				}
			}()
			p.PushToSession(ctx, sess, prompt, mood)
		}(sess)
	}
}
