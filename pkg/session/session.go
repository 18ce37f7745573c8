package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/code-100-precent/wallace/pkg/errs"
	"github.com/code-100-precent/wallace/pkg/memory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State pipeline state enumeration
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
	StateSpeaking
)

// String returns string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// validTransitions 状态机合法边
var validTransitions = map[State][]State{
	StateIdle:       {StateRecording},
	StateRecording:  {StateProcessing, StateIdle},
	StateProcessing: {StateSpeaking, StateIdle},
	StateSpeaking:   {StateIdle, StateRecording},
}

// SensorData 环境传感器缓存，UpdatedAt 为零值表示从未上报
type SensorData struct {
	Temp       float64
	Humidity   float64
	Light      float64
	AirQuality float64
	UpdatedAt  time.Time
}

// ChatMessage 对话历史中的一条消息
type ChatMessage struct {
	Role    string
	Content string
}

// TaskHandle 可取消的后台任务句柄
type TaskHandle struct {
	Cancel context.CancelFunc
	Done   chan struct{}
}

// Sink 会话下行通道，生产实现见 Writer，测试用内存替身
type Sink interface {
	WriteText(data []byte) error
	WriteBinary(data []byte) error
	Close() error
}

// Session 每个连接一个实例，聚合该连接的全部状态
type Session struct {
	UserID string
	ID     string
	Sink   Sink

	logger *zap.Logger

	mu                sync.Mutex
	personality       string
	treehouseMode     bool
	ttsBackend        string
	state             State
	audioBuf          []byte
	carry             byte
	hasCarry          bool
	wakewordConfirmed bool
	ttsStarted        bool
	chatHistory       []ChatMessage
	lastHeartbeat     time.Time
	proximityPresent  bool
	sensor            SensorData
	batteryPct        float64
	powerMode         string
	wifiRSSI          float64
	pipeline          *TaskHandle
	randomFact        *TaskHandle

	// pipelineLock 串行化同一 socket 上的 LLM+TTS 输出（主流水线、推送、冷知识）
	pipelineLock chan struct{}

	Memory *memory.UserMemory
	Store  *memory.Store
}

// New create session bound to a sink
func New(userID string, sink Sink, logger *zap.Logger) *Session {
	return &Session{
		UserID:           userID,
		ID:               uuid.NewString(),
		Sink:             sink,
		logger:           logger,
		personality:      "normal",
		ttsBackend:       "edge",
		state:            StateIdle,
		lastHeartbeat:    time.Now(),
		proximityPresent: true,
		pipelineLock:     make(chan struct{}, 1),
		Memory:           memory.NewUserMemory(),
	}
}

// State 当前流水线状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState 强制设置状态，仅用于错误恢复和降级路径
func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// TransitionTo 状态机转换，非法边返回错误且状态不变
func (s *Session) TransitionTo(target State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, allowed := range validTransitions[s.state] {
		if allowed == target {
			s.state = target
			return nil
		}
	}
	return errs.NewRecoverable("session",
		fmt.Sprintf("invalid state transition: %s → %s", s.state, target), nil)
}

// AppendAudio 追加音频字节，缓冲长度始终保持偶数（样本为 2 字节）
func (s *Session) AppendAudio(data []byte) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasCarry {
		s.audioBuf = append(s.audioBuf, s.carry)
		s.hasCarry = false
	}
	s.audioBuf = append(s.audioBuf, data...)
	if len(s.audioBuf)%2 != 0 {
		s.carry = s.audioBuf[len(s.audioBuf)-1]
		s.hasCarry = true
		s.audioBuf = s.audioBuf[:len(s.audioBuf)-1]
	}
}

// TakeAudio 取走缓冲并转为 [-1, 1] 归一化 float32 样本
func (s *Session) TakeAudio() []float32 {
	s.mu.Lock()
	buf := s.audioBuf
	s.audioBuf = nil
	s.hasCarry = false
	s.mu.Unlock()

	samples := make([]float32, len(buf)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768.0
	}
	return samples
}

// ClearAudio 清空音频缓冲
func (s *Session) ClearAudio() {
	s.mu.Lock()
	s.audioBuf = nil
	s.hasCarry = false
	s.mu.Unlock()
}

// Personality 当前人格
func (s *Session) Personality() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personality
}

// SetPersonality 切换人格
func (s *Session) SetPersonality(p string) {
	s.mu.Lock()
	s.personality = p
	s.mu.Unlock()
}

// TreehouseMode 树屋模式（只听不答）
func (s *Session) TreehouseMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.treehouseMode
}

// SetTreehouseMode set treehouse mode
func (s *Session) SetTreehouseMode(on bool) {
	s.mu.Lock()
	s.treehouseMode = on
	s.mu.Unlock()
}

// TTSBackend 当前语音合成后端
func (s *Session) TTSBackend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttsBackend
}

// SetTTSBackend set tts backend
func (s *Session) SetTTSBackend(backend string) {
	s.mu.Lock()
	s.ttsBackend = backend
	s.mu.Unlock()
}

// SetWakewordConfirmed 设置一次性唤醒信号
func (s *Session) SetWakewordConfirmed(confirmed bool) {
	s.mu.Lock()
	s.wakewordConfirmed = confirmed
	s.mu.Unlock()
}

// TakeWakewordConfirmed 读取并清除唤醒信号
func (s *Session) TakeWakewordConfirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	confirmed := s.wakewordConfirmed
	s.wakewordConfirmed = false
	return confirmed
}

// MarkTTSStarted 记录本轮已发出 tts_start 且尚未收尾
func (s *Session) MarkTTSStarted() {
	s.mu.Lock()
	s.ttsStarted = true
	s.mu.Unlock()
}

// ClearTTSStarted 播报以 tts_end 正常收尾后清除标记
func (s *Session) ClearTTSStarted() {
	s.mu.Lock()
	s.ttsStarted = false
	s.mu.Unlock()
}

// TakeTTSStarted 读取并清除未收尾的播报标记
func (s *Session) TakeTTSStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	started := s.ttsStarted
	s.ttsStarted = false
	return started
}

// UpdateHeartbeat 刷新心跳时间
func (s *Session) UpdateHeartbeat() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

// LastHeartbeat 上次心跳时间
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// SetProximity 更新人体存在标记
func (s *Session) SetProximity(present bool) {
	s.mu.Lock()
	s.proximityPresent = present
	s.mu.Unlock()
}

// ProximityPresent 当前是否有人
func (s *Session) ProximityPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proximityPresent
}

// UpdateSensor 合并一次传感器上报，nil 字段保持旧值
func (s *Session) UpdateSensor(temp, humidity, light, airQuality *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if temp != nil {
		s.sensor.Temp = *temp
	}
	if humidity != nil {
		s.sensor.Humidity = *humidity
	}
	if light != nil {
		s.sensor.Light = *light
	}
	if airQuality != nil {
		s.sensor.AirQuality = *airQuality
	}
	s.sensor.UpdatedAt = time.Now()
}

// SensorSnapshot 传感器缓存快照
func (s *Session) SensorSnapshot() SensorData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensor
}

// UpdateDeviceState 合并设备状态上报，nil 字段保持旧值
func (s *Session) UpdateDeviceState(batteryPct *float64, powerMode *string, wifiRSSI *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if batteryPct != nil {
		s.batteryPct = *batteryPct
	}
	if powerMode != nil {
		s.powerMode = *powerMode
	}
	if wifiRSSI != nil {
		s.wifiRSSI = *wifiRSSI
	}
}

// AppendTurn 追加一轮完整对话（用户 + 助手）
func (s *Session) AppendTurn(user, assistant string) {
	s.mu.Lock()
	s.chatHistory = append(s.chatHistory,
		ChatMessage{Role: "user", Content: user},
		ChatMessage{Role: "assistant", Content: assistant},
	)
	s.mu.Unlock()
}

// HistoryWindow 最近 2·maxTurns 条消息
func (s *Session) HistoryWindow(maxTurns int) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := 2 * maxTurns
	start := 0
	if len(s.chatHistory) > limit {
		start = len(s.chatHistory) - limit
	}
	window := make([]ChatMessage, len(s.chatHistory)-start)
	copy(window, s.chatHistory[start:])
	return window
}

// ClearHistory 清空对话历史（人格切换时调用）
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.chatHistory = nil
	s.mu.Unlock()
}

// LockPipeline 获取流水线锁，随 ctx 取消
func (s *Session) LockPipeline(ctx context.Context) error {
	select {
	case s.pipelineLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLockPipeline 限时获取流水线锁，超时返回 false
func (s *Session) TryLockPipeline(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.pipelineLock <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// UnlockPipeline 释放流水线锁，调用方必须持有锁
func (s *Session) UnlockPipeline() {
	<-s.pipelineLock
}

// SetPipeline 保存当前流水线任务句柄
func (s *Session) SetPipeline(h *TaskHandle) {
	s.mu.Lock()
	s.pipeline = h
	s.mu.Unlock()
}

// Pipeline 当前流水线任务句柄
func (s *Session) Pipeline() *TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline
}

// ClearPipeline 清除流水线句柄（仅当仍指向 h 时）
func (s *Session) ClearPipeline(h *TaskHandle) {
	s.mu.Lock()
	if s.pipeline == h {
		s.pipeline = nil
	}
	s.mu.Unlock()
}

// SetRandomFact 保存冷知识推送任务句柄
func (s *Session) SetRandomFact(h *TaskHandle) {
	s.mu.Lock()
	s.randomFact = h
	s.mu.Unlock()
}

// RandomFact 冷知识任务句柄
func (s *Session) RandomFact() *TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.randomFact
}
