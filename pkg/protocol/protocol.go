package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/wallace/pkg/errs"
)

// 设备 → 服务端消息类型
const (
	TypePing           = "ping"
	TypeAudioStart     = "audio_start"
	TypeAudioEnd       = "audio_end"
	TypeWakewordVerify = "wakeword_verify"
	TypeSensor         = "sensor"
	TypeProximity      = "proximity"
	TypeDeviceState    = "device_state"
	TypeEvent          = "event"
	TypeLocalCmd       = "local_cmd"
	TypeImage          = "image"
	TypeConfig         = "config"
)

// 服务端 → 设备消息类型
const (
	TypePong           = "pong"
	TypeSessionRestore = "session_restore"
	TypeWakewordResult = "wakeword_result"
	TypeTTSStart       = "tts_start"
	TypeTTSCancel      = "tts_cancel"
	TypeTTSEnd         = "tts_end"
	TypeText           = "text"
	TypeCare           = "care"
	TypeSensorAlert    = "sensor_alert"
	TypeCommandResult  = "command_result"
	TypeMemorySync     = "memory_sync"
)

// 事件子类型（event.event）
const (
	EventPersonalitySwitch = "personality_switch"
	EventTreehouseMode     = "treehouse_mode"
	EventShake             = "shake"
	EventTouch             = "touch"
)

// Inbound 设备上行消息的封闭集合
type Inbound interface {
	InboundType() string
}

type Ping struct{}

type AudioStart struct{}

type AudioEnd struct{}

// WakewordVerify 唤醒词校验请求，audio 为 base64 编码的 PCM
type WakewordVerify struct {
	Audio string
}

// Sensor 环境传感器上报，缺失字段保持缓存值不变
type Sensor struct {
	Temp       *float64
	Humidity   *float64
	Light      *float64
	AirQuality *float64
}

// Proximity 人体感应上报，user_present 缺失时视为 true
type Proximity struct {
	Distance    *float64
	UserPresent *bool
}

// DeviceState 设备自身状态上报
type DeviceState struct {
	BatteryPct *float64
	PowerMode  *string
	WifiRSSI   *float64
}

// Event 交互事件，value 为 string | bool | null 联合类型
type Event struct {
	Event string
	Value interface{}
}

// LocalCmd 智能家居指令
type LocalCmd struct {
	Action string
}

// Image 摄像头图像上报，data 为 base64
type Image struct {
	Data string
}

// Config 运行时配置变更
type Config struct {
	TTSBackend *string
}

func (Ping) InboundType() string           { return TypePing }
func (AudioStart) InboundType() string     { return TypeAudioStart }
func (AudioEnd) InboundType() string       { return TypeAudioEnd }
func (WakewordVerify) InboundType() string { return TypeWakewordVerify }
func (Sensor) InboundType() string         { return TypeSensor }
func (Proximity) InboundType() string      { return TypeProximity }
func (DeviceState) InboundType() string    { return TypeDeviceState }
func (Event) InboundType() string          { return TypeEvent }
func (LocalCmd) InboundType() string       { return TypeLocalCmd }
func (Image) InboundType() string          { return TypeImage }
func (Config) InboundType() string         { return TypeConfig }

const service = "protocol"

func malformed(format string, args ...interface{}) *errs.Error {
	return errs.NewRecoverable(service, fmt.Sprintf(format, args...), nil)
}

// ParseInbound 解析并校验一条上行文本帧。
// 未知 type、缺失必填字段、字段类型错误均返回可恢复错误，由调用方记录后丢弃。
func ParseInbound(data []byte) (Inbound, error) {
	var raw map[string]interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, errs.NewRecoverable(service, "invalid json", err)
	}

	typ, ok := raw["type"].(string)
	if !ok {
		return nil, malformed("missing or non-string type field")
	}

	switch typ {
	case TypePing:
		return Ping{}, nil
	case TypeAudioStart:
		return AudioStart{}, nil
	case TypeAudioEnd:
		return AudioEnd{}, nil
	case TypeWakewordVerify:
		audio, err := reqString(raw, typ, "audio")
		if err != nil {
			return nil, err
		}
		return WakewordVerify{Audio: audio}, nil
	case TypeSensor:
		msg := Sensor{}
		var err error
		if msg.Temp, err = optFloat(raw, typ, "temp"); err != nil {
			return nil, err
		}
		if msg.Humidity, err = optFloat(raw, typ, "humidity"); err != nil {
			return nil, err
		}
		if msg.Light, err = optFloat(raw, typ, "light"); err != nil {
			return nil, err
		}
		if msg.AirQuality, err = optFloat(raw, typ, "air_quality"); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeProximity:
		msg := Proximity{}
		var err error
		if msg.Distance, err = optFloat(raw, typ, "distance"); err != nil {
			return nil, err
		}
		if msg.UserPresent, err = optBool(raw, typ, "user_present"); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeDeviceState:
		msg := DeviceState{}
		var err error
		if msg.BatteryPct, err = optFloat(raw, typ, "battery_pct"); err != nil {
			return nil, err
		}
		if msg.PowerMode, err = optString(raw, typ, "power_mode"); err != nil {
			return nil, err
		}
		if msg.WifiRSSI, err = optFloat(raw, typ, "wifi_rssi"); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeEvent:
		name, err := reqString(raw, typ, "event")
		if err != nil {
			return nil, err
		}
		switch name {
		case EventPersonalitySwitch, EventTreehouseMode, EventShake, EventTouch:
		default:
			return nil, malformed("event: unknown event %q", name)
		}
		value := raw["value"]
		switch value.(type) {
		case nil, string, bool, float64:
		default:
			return nil, malformed("event: value must be string, bool or null")
		}
		return Event{Event: name, Value: value}, nil
	case TypeLocalCmd:
		action, err := reqString(raw, typ, "action")
		if err != nil {
			return nil, err
		}
		return LocalCmd{Action: action}, nil
	case TypeImage:
		data, err := reqString(raw, typ, "data")
		if err != nil {
			return nil, err
		}
		return Image{Data: data}, nil
	case TypeConfig:
		msg := Config{}
		var err error
		if msg.TTSBackend, err = optString(raw, typ, "tts_backend"); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, malformed("unknown message type %q", typ)
	}
}

func reqString(raw map[string]interface{}, typ, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", malformed("%s: missing required field %s", typ, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed("%s: field %s must be a string", typ, key)
	}
	return s, nil
}

func optString(raw map[string]interface{}, typ, key string) (*string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, malformed("%s: field %s must be a string", typ, key)
	}
	return &s, nil
}

func optFloat(raw map[string]interface{}, typ, key string) (*float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, malformed("%s: field %s must be a number", typ, key)
	}
	return &f, nil
}

func optBool(raw map[string]interface{}, typ, key string) (*bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, malformed("%s: field %s must be a bool", typ, key)
	}
	return &b, nil
}
