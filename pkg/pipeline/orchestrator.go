package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/code-100-precent/wallace/pkg/emotion"
	"github.com/code-100-precent/wallace/pkg/errs"
	"github.com/code-100-precent/wallace/pkg/protocol"
	"github.com/code-100-precent/wallace/pkg/sensor"
	"github.com/code-100-precent/wallace/pkg/session"
	"go.uber.org/zap"
)

// randomFactPrompt 摇一摇冷知识的一次性用户消息
const randomFactPrompt = "请用一句话分享一个随机的有趣冷知识，" +
	"要有趣、简短，结尾加上 [mood:surprised]。"

// randomFactLockWait 冷知识推送等待流水线锁的上限
const randomFactLockWait = time.Second

// ASR 语音识别协作方
type ASR interface {
	HasSpeech(samples []float32) bool
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// LLM 流式对话协作方
type LLM interface {
	ChatStream(ctx context.Context, messages []session.ChatMessage, onToken func(token string) error) error
}

// TTS 语音合成协作方
type TTS interface {
	Synthesize(ctx context.Context, backend, text string, emit func(frame []byte) error) error
}

// Orchestrator ASR → LLM → TTS 流水线编排器
type Orchestrator struct {
	asr             ASR
	llm             LLM
	tts             TTS
	sensor          *sensor.Engine
	maxHistoryTurns int
	logger          *zap.Logger
}

// NewOrchestrator create orchestrator
func NewOrchestrator(asr ASR, llm LLM, tts TTS, sensorEngine *sensor.Engine, maxHistoryTurns int, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		asr:             asr,
		llm:             llm,
		tts:             tts,
		sensor:          sensorEngine,
		maxHistoryTurns: maxHistoryTurns,
		logger:          logger,
	}
}

// OnAudioStart 打断当前流水线并进入录音态
func (o *Orchestrator) OnAudioStart(sess *session.Session) error {
	o.CancelPipeline(sess)
	sess.ClearAudio()
	return sess.TransitionTo(session.StateRecording)
}

// OnAudioEnd 结束录音并启动流水线任务
func (o *Orchestrator) OnAudioEnd(sess *session.Session) error {
	if err := sess.TransitionTo(session.StateProcessing); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle := &session.TaskHandle{Cancel: cancel, Done: make(chan struct{})}
	sess.SetPipeline(handle)
	go func() {
		defer close(handle.Done)
		defer sess.ClearPipeline(handle)
		o.runPipeline(ctx, sess)
	}()
	return nil
}

// CancelPipeline 取消当前流水线并等待其退出。
// 本轮发出过 tts_start 且尚未收尾时，由本方法（而非流水线自身）补发
// tts_cancel；判定依据是会话上的播报标记而非取消时采样的状态。幂等。
func (o *Orchestrator) CancelPipeline(sess *session.Session) {
	if handle := sess.Pipeline(); handle != nil {
		handle.Cancel()
		<-handle.Done
		sess.ClearPipeline(handle)
	}

	if sess.TakeTTSStarted() {
		if err := sess.Sink.WriteText(protocol.TTSCancel()); err != nil {
			o.logger.Warn("failed to send tts_cancel",
				zap.String("userID", sess.UserID),
				zap.Error(err),
			)
		}
	}

	sess.SetState(session.StateIdle)
}

// runPipeline 完整流水线：VAD → ASR → LLM → 分句 TTS
func (o *Orchestrator) runPipeline(ctx context.Context, sess *session.Session) {
	// 持锁期间本 socket 上没有其他生产者（推送、冷知识）能发帧
	if err := sess.LockPipeline(ctx); err != nil {
		return
	}
	defer sess.UnlockPipeline()

	samples := sess.TakeAudio()
	if !o.asr.HasSpeech(samples) {
		o.transition(sess, session.StateIdle)
		return
	}

	text, err := o.asr.Transcribe(ctx, samples)
	if err != nil {
		if ctx.Err() == nil {
			o.logFailure(sess, errs.Classify(err, "asr"))
			sess.SetState(session.StateIdle)
		}
		return
	}
	if text == "" {
		o.transition(sess, session.StateIdle)
		return
	}

	// 树洞模式：只转写不回应
	if sess.TreehouseMode() {
		o.logger.Info("treehouse transcription",
			zap.String("userID", sess.UserID),
			zap.String("text", text),
		)
		o.transition(sess, session.StateIdle)
		return
	}

	messages := BuildMessages(PromptInput{
		Personality:   sess.Personality(),
		Nickname:      sess.Memory.Nickname,
		Interests:     sess.Memory.Interests,
		SensorContext: o.sensor.Context(sess),
		History:       sess.HistoryWindow(o.maxHistoryTurns),
		UserText:      text,
	})

	o.transition(sess, session.StateSpeaking)

	cleaned, err := o.speak(ctx, sess, messages, "thinking")
	if err != nil {
		if ctx.Err() == nil {
			o.logFailure(sess, errs.Classify(err, "llm"))
			sess.SetState(session.StateIdle)
		} else {
			o.logger.Debug("pipeline cancelled", zap.String("userID", sess.UserID))
		}
		return
	}

	sess.AppendTurn(text, cleaned)
	o.afterTurn(sess)
	sess.SetState(session.StateIdle)
}

// logFailure 按错误类别定级：瞬时错误会自愈，记 warn；其余记 error
func (o *Orchestrator) logFailure(sess *session.Session, e *errs.Error) {
	fields := []zap.Field{
		zap.String("userID", sess.UserID),
		zap.String("service", e.Service),
		zap.String("errorType", e.Type.String()),
		zap.Error(e),
	}
	if e.Type == errs.ErrorTypeTransient {
		o.logger.Warn("pipeline degraded", fields...)
		return
	}
	o.logger.Error("pipeline failed", fields...)
}

// transition 内部必然合法的状态转换，被拒绝说明有编排 bug
func (o *Orchestrator) transition(sess *session.Session, target session.State) {
	if err := sess.TransitionTo(target); err != nil {
		o.logger.Error("state transition rejected",
			zap.String("userID", sess.UserID),
			zap.Error(err),
		)
	}
}

// speak 驱动 LLM 流式输出 + 逐句 TTS，收尾发送最终 text 与 tts_end。
// 返回剥离标签后的完整回复。
func (o *Orchestrator) speak(ctx context.Context, sess *session.Session, messages []session.ChatMessage, startMood string) (string, error) {
	emit := func(frame []byte) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return sess.Sink.WriteBinary(frame)
	}

	var full strings.Builder
	seg := NewSegmenter()
	spoke := false

	speakSentence := func(sentence string) error {
		clean := emotion.Strip(sentence)
		if clean == "" {
			return nil
		}
		if !spoke {
			if err := sess.Sink.WriteText(protocol.TTSStart(startMood)); err != nil {
				return err
			}
			sess.MarkTTSStarted()
			spoke = true
		}
		if err := o.tts.Synthesize(ctx, sess.TTSBackend(), clean, emit); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// 双后端均失败：本句静音，流水线继续
			e := errs.Classify(err, "tts")
			o.logger.Warn("tts failed for sentence",
				zap.String("userID", sess.UserID),
				zap.String("errorType", e.Type.String()),
				zap.Error(e),
			)
		}
		return nil
	}

	err := o.llm.ChatStream(ctx, messages, func(token string) error {
		full.WriteString(token)
		for _, sentence := range seg.Push(token) {
			if err := speakSentence(sentence); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if remaining := seg.Flush(); remaining != "" {
		if err := speakSentence(remaining); err != nil {
			return "", err
		}
	}

	mood, cleaned := emotion.Extract(full.String())
	if err := sess.Sink.WriteText(protocol.Text(cleaned, false, mood)); err != nil {
		return "", err
	}
	if spoke {
		if err := sess.Sink.WriteText(protocol.TTSEnd()); err != nil {
			return "", err
		}
		sess.ClearTTSStarted()
	}
	return cleaned, nil
}

// afterTurn 记忆记账：累计互动次数，按节流保存并下发 memory_sync
func (o *Orchestrator) afterTurn(sess *session.Session) {
	sess.Memory.InteractionCount++
	if sess.Store == nil {
		return
	}
	if !sess.Store.HasChanges(sess.Memory) || !sess.Store.ShouldSync() {
		return
	}
	if err := sess.Store.Save(sess.Memory); err != nil {
		o.logger.Error("failed to save memory",
			zap.String("userID", sess.UserID),
			zap.Error(err),
		)
		return
	}
	sess.Store.MarkSynced(sess.Memory)
	if err := sess.Sink.WriteText(protocol.MemorySync(sess.Memory)); err != nil {
		o.logger.Warn("failed to push memory_sync",
			zap.String("userID", sess.UserID),
			zap.Error(err),
		)
	}
}

// PushRandomFact 摇一摇触发：空闲时生成一条冷知识并播报。
// 不经过 RECORDING，不写入对话历史；忙碌或抢锁超时则静默丢弃。
func (o *Orchestrator) PushRandomFact(ctx context.Context, sess *session.Session) {
	if !sess.TryLockPipeline(randomFactLockWait) {
		return
	}
	defer sess.UnlockPipeline()

	if sess.State() != session.StateIdle {
		o.logger.Debug("ignoring shake: session busy",
			zap.String("userID", sess.UserID),
			zap.String("state", sess.State().String()),
		)
		return
	}

	// 主动推送场景，跳过 RECORDING 直接进入处理
	sess.SetState(session.StateProcessing)
	sess.SetState(session.StateSpeaking)

	messages := []session.ChatMessage{{Role: "user", Content: randomFactPrompt}}
	if _, err := o.speak(ctx, sess, messages, "surprised"); err != nil {
		if ctx.Err() == nil {
			o.logger.Error("random fact failed",
				zap.String("userID", sess.UserID),
				zap.Error(err),
			)
		}
		sess.SetState(session.StateIdle)
		return
	}

	sess.SetState(session.StateIdle)
	o.logger.Info("random fact pushed", zap.String("userID", sess.UserID))
}
