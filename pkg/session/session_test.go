package session

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// memorySink 测试用内存下行通道
type memorySink struct {
	mu     sync.Mutex
	texts  [][]byte
	frames [][]byte
}

func (m *memorySink) WriteText(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, data)
	return nil
}

func (m *memorySink) WriteBinary(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
	return nil
}

func (m *memorySink) Close() error { return nil }

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return New("u1", &memorySink{}, zap.NewNop())
}

// TestStateTransitions 测试状态机合法边
func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		ok   bool
	}{
		{"idle→recording", StateIdle, StateRecording, true},
		{"idle→processing", StateIdle, StateProcessing, false},
		{"idle→speaking", StateIdle, StateSpeaking, false},
		{"recording→processing", StateRecording, StateProcessing, true},
		{"recording→idle", StateRecording, StateIdle, true},
		{"recording→speaking", StateRecording, StateSpeaking, false},
		{"processing→speaking", StateProcessing, StateSpeaking, true},
		{"processing→idle", StateProcessing, StateIdle, true},
		{"processing→recording", StateProcessing, StateRecording, false},
		{"speaking→idle", StateSpeaking, StateIdle, true},
		{"speaking→recording", StateSpeaking, StateRecording, true},
		{"speaking→processing", StateSpeaking, StateProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newTestSession(t)
			sess.SetState(tt.from)
			err := sess.TransitionTo(tt.to)
			if tt.ok && err != nil {
				t.Errorf("Expected transition allowed, got error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Expected transition rejected")
				}
				if sess.State() != tt.from {
					t.Errorf("State changed on rejected transition: %s", sess.State())
				}
			}
		})
	}
}

// TestAudioBufferEvenInvariant 缓冲长度始终保持偶数
func TestAudioBufferEvenInvariant(t *testing.T) {
	sess := newTestSession(t)

	sess.AppendAudio([]byte{0x01, 0x02, 0x03})
	sess.AppendAudio([]byte{0x04})
	samples := sess.TakeAudio()
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples from 4 bytes, got %d", len(samples))
	}
}

// TestTakeAudioNormalization int16 归一化到 [-1, 1]
func TestTakeAudioNormalization(t *testing.T) {
	sess := newTestSession(t)
	// int16 LE: -32768, 16384
	sess.AppendAudio([]byte{0x00, 0x80, 0x00, 0x40})
	samples := sess.TakeAudio()
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[0] != -1.0 {
		t.Errorf("Expected -1.0, got %f", samples[0])
	}
	if samples[1] != 0.5 {
		t.Errorf("Expected 0.5, got %f", samples[1])
	}
}

// TestTakeAudioClears take 后缓冲清空
func TestTakeAudioClears(t *testing.T) {
	sess := newTestSession(t)
	sess.AppendAudio([]byte{0x01, 0x02})
	sess.TakeAudio()
	if got := sess.TakeAudio(); len(got) != 0 {
		t.Errorf("Expected empty buffer after take, got %d samples", len(got))
	}
}

// TestHistoryWindow 历史窗口截断
func TestHistoryWindow(t *testing.T) {
	sess := newTestSession(t)
	for i := 0; i < 15; i++ {
		sess.AppendTurn("q", "a")
	}
	window := sess.HistoryWindow(10)
	if len(window) != 20 {
		t.Fatalf("Expected 20 messages, got %d", len(window))
	}
	for i, msg := range window {
		wantRole := "user"
		if i%2 == 1 {
			wantRole = "assistant"
		}
		if msg.Role != wantRole {
			t.Fatalf("Expected alternating roles, message %d is %s", i, msg.Role)
		}
	}
}

// TestPipelineLock 限时抢锁
func TestPipelineLock(t *testing.T) {
	sess := newTestSession(t)

	if !sess.TryLockPipeline(10 * time.Millisecond) {
		t.Fatal("Expected lock acquired on idle session")
	}
	if sess.TryLockPipeline(10 * time.Millisecond) {
		t.Fatal("Expected second acquire to time out")
	}
	sess.UnlockPipeline()
	if !sess.TryLockPipeline(10 * time.Millisecond) {
		t.Fatal("Expected lock acquired after release")
	}
	sess.UnlockPipeline()
}

// TestWakewordOneShot 唤醒信号读取后清除
func TestWakewordOneShot(t *testing.T) {
	sess := newTestSession(t)
	sess.SetWakewordConfirmed(true)
	if !sess.TakeWakewordConfirmed() {
		t.Fatal("Expected confirmed signal")
	}
	if sess.TakeWakewordConfirmed() {
		t.Fatal("Expected signal cleared after take")
	}
}

// TestRegistryReplace 第二个连接顶替登记项
func TestRegistryReplace(t *testing.T) {
	reg := NewRegistry()
	a := newTestSession(t)
	b := newTestSession(t)

	if prev := reg.Replace("u1", a); prev != nil {
		t.Fatal("Expected no previous session")
	}
	if prev := reg.Replace("u1", b); prev != a {
		t.Fatal("Expected replace to return the first session")
	}
	got, ok := reg.Get("u1")
	if !ok || got != b {
		t.Fatal("Expected second session to win the slot")
	}
}

// TestRegistryRemoveIf 仅删除仍指向旧会话的登记项
func TestRegistryRemoveIf(t *testing.T) {
	reg := NewRegistry()
	a := newTestSession(t)
	b := newTestSession(t)
	reg.Replace("u1", a)
	reg.Replace("u1", b)

	if reg.RemoveIf("u1", a) {
		t.Fatal("Expected stale remove to be a no-op")
	}
	if _, ok := reg.Get("u1"); !ok {
		t.Fatal("Expected new session to survive stale remove")
	}
	if !reg.RemoveIf("u1", b) {
		t.Fatal("Expected matching remove to succeed")
	}
	if reg.Len() != 0 {
		t.Fatal("Expected empty registry")
	}
}

// TestUpdateSensorPartial 缺失字段保持旧值
func TestUpdateSensorPartial(t *testing.T) {
	sess := newTestSession(t)
	temp := 26.0
	sess.UpdateSensor(&temp, nil, nil, nil)
	aq := 120.0
	sess.UpdateSensor(nil, nil, nil, &aq)

	snap := sess.SensorSnapshot()
	if snap.Temp != 26.0 {
		t.Errorf("Expected temp kept at 26, got %f", snap.Temp)
	}
	if snap.AirQuality != 120.0 {
		t.Errorf("Expected air quality 120, got %f", snap.AirQuality)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("Expected updated_at stamped")
	}
}
