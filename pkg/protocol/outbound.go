package protocol

import "github.com/bytedance/sonic"

type pongMsg struct {
	Type string `json:"type"`
}

type sessionRestoreMsg struct {
	Type        string `json:"type"`
	Personality string `json:"personality"`
	Treehouse   bool   `json:"treehouse"`
	TTSBackend  string `json:"tts_backend"`
}

type wakewordResultMsg struct {
	Type      string `json:"type"`
	Confirmed bool   `json:"confirmed"`
}

type ttsStartMsg struct {
	Type string `json:"type"`
	Mood string `json:"mood"`
}

type ttsSignalMsg struct {
	Type string `json:"type"`
}

type textMsg struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Partial bool   `json:"partial"`
	Mood    string `json:"mood,omitempty"`
}

type careMsg struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Mood    string `json:"mood"`
}

type sensorAlertMsg struct {
	Type       string `json:"type"`
	Alert      string `json:"alert"`
	Suggestion string `json:"suggestion"`
}

type commandResultMsg struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type memorySyncMsg struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func marshal(v interface{}) []byte {
	// 下行消息均为本包构造的封闭结构体，序列化不会失败
	data, _ := sonic.Marshal(v)
	return data
}

// Pong 心跳应答
func Pong() []byte {
	return marshal(pongMsg{Type: TypePong})
}

// SessionRestore 重连时恢复会话模式
func SessionRestore(personality string, treehouse bool, ttsBackend string) []byte {
	return marshal(sessionRestoreMsg{
		Type:        TypeSessionRestore,
		Personality: personality,
		Treehouse:   treehouse,
		TTSBackend:  ttsBackend,
	})
}

// WakewordResult 唤醒词校验结果
func WakewordResult(confirmed bool) []byte {
	return marshal(wakewordResultMsg{Type: TypeWakewordResult, Confirmed: confirmed})
}

// TTSStart 语音播报开始，mood 为初始表情
func TTSStart(mood string) []byte {
	return marshal(ttsStartMsg{Type: TypeTTSStart, Mood: mood})
}

// TTSCancel 播报被打断
func TTSCancel() []byte {
	return marshal(ttsSignalMsg{Type: TypeTTSCancel})
}

// TTSEnd 播报结束
func TTSEnd() []byte {
	return marshal(ttsSignalMsg{Type: TypeTTSEnd})
}

// Text 一轮对话的最终文本
func Text(content string, partial bool, mood string) []byte {
	return marshal(textMsg{Type: TypeText, Content: content, Partial: partial, Mood: mood})
}

// Care 主动关怀消息
func Care(content, mood string) []byte {
	return marshal(careMsg{Type: TypeCare, Content: content, Mood: mood})
}

// SensorAlert 环境告警
func SensorAlert(alert, suggestion string) []byte {
	return marshal(sensorAlertMsg{Type: TypeSensorAlert, Alert: alert, Suggestion: suggestion})
}

// CommandResult 智能家居指令执行结果
func CommandResult(action string, success bool, message string) []byte {
	return marshal(commandResultMsg{Type: TypeCommandResult, Action: action, Success: success, Message: message})
}

// MemorySync 记忆数据同步
func MemorySync(data interface{}) []byte {
	return marshal(memorySyncMsg{Type: TypeMemorySync, Data: data})
}
