package care

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/wallace/pkg/session"
	"go.uber.org/zap"
)

// recordSink 记录下行帧顺序的测试通道
type recordSink struct {
	mu     sync.Mutex
	texts  [][]byte
	frames [][]byte
}

func (r *recordSink) WriteText(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, data)
	return nil
}

func (r *recordSink) WriteBinary(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, data)
	return nil
}

func (r *recordSink) Close() error { return nil }

func (r *recordSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts), len(r.frames)
}

type stubLLM struct {
	text string
}

func (s *stubLLM) ChatStream(_ context.Context, _ []session.ChatMessage, onToken func(string) error) error {
	if s.text == "" {
		return nil
	}
	return onToken(s.text)
}

type stubTTS struct {
	frames int
}

func (s *stubTTS) Synthesize(_ context.Context, _ string, _ string, emit func([]byte) error) error {
	for i := 0; i < s.frames; i++ {
		if err := emit(bytes.Repeat([]byte{0}, 1024)); err != nil {
			return err
		}
	}
	return nil
}

func newTestPusher(llm *stubLLM, tts *stubTTS, timeout time.Duration) *Pusher {
	return NewPusher(session.NewRegistry(), llm, tts, timeout, zap.NewNop())
}

// TestPushToSession 关怀消息先于语音帧下发
func TestPushToSession(t *testing.T) {
	sink := &recordSink{}
	sess := session.New("u1", sink, zap.NewNop())
	pusher := newTestPusher(&stubLLM{text: "记得喝水哦"}, &stubTTS{frames: 2}, time.Second)

	pusher.PushToSession(context.Background(), sess, "提醒主人喝水", "caring")

	texts, frames := sink.counts()
	if texts != 1 {
		t.Fatalf("Expected 1 care message, got %d", texts)
	}
	if frames != 2 {
		t.Errorf("Expected 2 audio frames, got %d", frames)
	}

	var msg map[string]interface{}
	if err := sonic.Unmarshal(sink.texts[0], &msg); err != nil {
		t.Fatal(err)
	}
	if msg["type"] != "care" {
		t.Errorf("Expected type care, got %v", msg["type"])
	}
	if msg["content"] != "记得喝水哦" {
		t.Errorf("Unexpected content: %v", msg["content"])
	}
	if msg["mood"] != "caring" {
		t.Errorf("Expected mood caring, got %v", msg["mood"])
	}
}

// TestPushSkipsWhenUserAbsent 用户不在场不打扰
func TestPushSkipsWhenUserAbsent(t *testing.T) {
	sink := &recordSink{}
	sess := session.New("u1", sink, zap.NewNop())
	sess.SetProximity(false)
	pusher := newTestPusher(&stubLLM{text: "记得喝水哦"}, &stubTTS{frames: 2}, time.Second)

	pusher.PushToSession(context.Background(), sess, "提醒主人喝水", "caring")

	if texts, frames := sink.counts(); texts != 0 || frames != 0 {
		t.Errorf("Expected no output, got %d texts %d frames", texts, frames)
	}
}

// TestPushSkipsWhenPipelineBusy 抢不到流水线锁则放弃
func TestPushSkipsWhenPipelineBusy(t *testing.T) {
	sink := &recordSink{}
	sess := session.New("u1", sink, zap.NewNop())
	if !sess.TryLockPipeline(time.Second) {
		t.Fatal("setup: lock acquire failed")
	}
	defer sess.UnlockPipeline()

	pusher := newTestPusher(&stubLLM{text: "记得喝水哦"}, &stubTTS{frames: 2}, 20*time.Millisecond)
	pusher.PushToSession(context.Background(), sess, "提醒主人喝水", "caring")

	if texts, frames := sink.counts(); texts != 0 || frames != 0 {
		t.Errorf("Expected no output while busy, got %d texts %d frames", texts, frames)
	}
}

// TestPushSkipsEmptyReply LLM 返回空串时不下发
func TestPushSkipsEmptyReply(t *testing.T) {
	sink := &recordSink{}
	sess := session.New("u1", sink, zap.NewNop())
	pusher := newTestPusher(&stubLLM{text: "  "}, &stubTTS{frames: 2}, time.Second)

	pusher.PushToSession(context.Background(), sess, "提醒主人喝水", "caring")

	if texts, frames := sink.counts(); texts != 0 || frames != 0 {
		t.Errorf("Expected no output for empty reply, got %d texts %d frames", texts, frames)
	}
}

// TestPushAll 广播覆盖全部在线会话
func TestPushAll(t *testing.T) {
	registry := session.NewRegistry()
	pusher := NewPusher(registry, &stubLLM{text: "早上好"}, &stubTTS{frames: 1}, time.Second, zap.NewNop())

	sinks := make([]*recordSink, 3)
	for i, id := range []string{"a", "b", "c"} {
		sinks[i] = &recordSink{}
		registry.Replace(id, session.New(id, sinks[i], zap.NewNop()))
	}

	pusher.PushAll(context.Background(), "道一声早安", "happy")

	for i, sink := range sinks {
		if texts, _ := sink.counts(); texts != 1 {
			t.Errorf("Expected session %d to receive 1 care message, got %d", i, texts)
		}
	}
}
