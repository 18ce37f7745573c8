package protocol

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseInboundSimpleTypes 测试无字段消息解析
func TestParseInboundSimpleTypes(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"type":"ping"}`, TypePing},
		{`{"type":"audio_start"}`, TypeAudioStart},
		{`{"type":"audio_end"}`, TypeAudioEnd},
	}
	for _, tt := range tests {
		msg, err := ParseInbound([]byte(tt.raw))
		require.NoError(t, err)
		assert.Equal(t, tt.want, msg.InboundType())
	}
}

// TestParseInboundSensor 传感器字段可部分缺失
func TestParseInboundSensor(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"sensor","temp":26.5,"air_quality":120}`))
	require.NoError(t, err)
	s, ok := msg.(Sensor)
	require.True(t, ok)
	require.NotNil(t, s.Temp)
	assert.Equal(t, 26.5, *s.Temp)
	assert.Nil(t, s.Humidity)
	assert.Nil(t, s.Light)
	require.NotNil(t, s.AirQuality)
	assert.Equal(t, 120.0, *s.AirQuality)
}

// TestParseInboundMalformed 畸形消息均报可恢复错误
func TestParseInboundMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"非法 JSON", `{not json`},
		{"缺少 type", `{"temp":1}`},
		{"type 非字符串", `{"type":1}`},
		{"未知 type", `{"type":"bogus"}`},
		{"wakeword 缺 audio", `{"type":"wakeword_verify"}`},
		{"sensor 字段类型错", `{"type":"sensor","temp":"hot"}`},
		{"proximity 字段类型错", `{"type":"proximity","user_present":"yes"}`},
		{"event 未知事件", `{"type":"event","event":"dance"}`},
		{"event 缺事件名", `{"type":"event"}`},
		{"event value 类型非法", `{"type":"event","event":"shake","value":[1]}`},
		{"local_cmd 缺 action", `{"type":"local_cmd"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInbound([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

// TestParseInboundEvent 事件 value 联合类型
func TestParseInboundEvent(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"event","event":"treehouse_mode","value":true}`))
	require.NoError(t, err)
	ev := msg.(Event)
	assert.Equal(t, EventTreehouseMode, ev.Event)
	assert.Equal(t, true, ev.Value)

	msg, err = ParseInbound([]byte(`{"type":"event","event":"personality_switch","value":"tsundere"}`))
	require.NoError(t, err)
	assert.Equal(t, "tsundere", msg.(Event).Value)

	msg, err = ParseInbound([]byte(`{"type":"event","event":"shake"}`))
	require.NoError(t, err)
	assert.Nil(t, msg.(Event).Value)
}

// TestParseInboundProximity 人体感应缺省字段
func TestParseInboundProximity(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"proximity","distance":1.2}`))
	require.NoError(t, err)
	p := msg.(Proximity)
	require.NotNil(t, p.Distance)
	assert.Nil(t, p.UserPresent)
}

// TestOutboundRoundTrip 下行消息序列化后可解析且字段不变
func TestOutboundRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want map[string]interface{}
	}{
		{"pong", Pong(), map[string]interface{}{"type": "pong"}},
		{"tts_start", TTSStart("thinking"), map[string]interface{}{"type": "tts_start", "mood": "thinking"}},
		{"tts_cancel", TTSCancel(), map[string]interface{}{"type": "tts_cancel"}},
		{"tts_end", TTSEnd(), map[string]interface{}{"type": "tts_end"}},
		{"text", Text("你好！", false, "happy"), map[string]interface{}{
			"type": "text", "content": "你好！", "partial": false, "mood": "happy"}},
		{"care", Care("喝水", "caring"), map[string]interface{}{
			"type": "care", "content": "喝水", "mood": "caring"}},
		{"sensor_alert", SensorAlert("air_quality_bad", "开窗通通风"), map[string]interface{}{
			"type": "sensor_alert", "alert": "air_quality_bad", "suggestion": "开窗通通风"}},
		{"wakeword_result", WakewordResult(true), map[string]interface{}{
			"type": "wakeword_result", "confirmed": true}},
		{"session_restore", SessionRestore("tsundere", true, "cosyvoice"), map[string]interface{}{
			"type": "session_restore", "personality": "tsundere", "treehouse": true, "tts_backend": "cosyvoice"}},
		{"command_result", CommandResult("light/on", true, "light/on executed"), map[string]interface{}{
			"type": "command_result", "action": "light/on", "success": true, "message": "light/on executed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]interface{}
			require.NoError(t, sonic.Unmarshal(tt.data, &got))
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], "field %s", k)
			}
		})
	}
}

// TestTextOmitsEmptyMood text 的 mood 为空时省略
func TestTextOmitsEmptyMood(t *testing.T) {
	var got map[string]interface{}
	require.NoError(t, sonic.Unmarshal(Text("hi", true, ""), &got))
	_, present := got["mood"]
	assert.False(t, present)
}
