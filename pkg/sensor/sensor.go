package sensor

import (
	"fmt"
	"strings"
	"time"

	"github.com/code-100-precent/wallace/pkg/config"
	"github.com/code-100-precent/wallace/pkg/protocol"
	"github.com/code-100-precent/wallace/pkg/session"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Alert 一条触发的环境告警
type Alert struct {
	Kind       string
	Suggestion string
}

// Engine 传感器数据处理：缓存更新、LLM 上下文、阈值告警。
// 防抖表为进程级：某一类告警触发后，冷却期内所有会话的同类告警都被抑制。
type Engine struct {
	cfg      config.SensorConfig
	logger   *zap.Logger
	debounce *gocache.Cache
}

// NewEngine create sensor engine
func NewEngine(cfg config.SensorConfig, logger *zap.Logger) *Engine {
	cooldown := time.Duration(cfg.AlertCooldown) * time.Second
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		debounce: gocache.New(cooldown, cooldown),
	}
}

// Update 合并一次上报到会话缓存，缺失字段保持旧值
func (e *Engine) Update(sess *session.Session, msg protocol.Sensor) {
	sess.UpdateSensor(msg.Temp, msg.Humidity, msg.Light, msg.AirQuality)
}

// UpdateProximity 更新人体感应状态，user_present 缺失时保持旧值
func (e *Engine) UpdateProximity(sess *session.Session, msg protocol.Proximity) {
	if msg.UserPresent != nil {
		sess.SetProximity(*msg.UserPresent)
	}
}

// Context 将传感器缓存格式化为 LLM 上下文行，从未上报时返回空串
func (e *Engine) Context(sess *session.Session) string {
	cache := sess.SensorSnapshot()
	if cache.UpdatedAt.IsZero() {
		return ""
	}

	parts := []string{
		fmt.Sprintf("室温%.0f°C", cache.Temp),
		fmt.Sprintf("湿度%.0f%%", cache.Humidity),
	}

	switch {
	case cache.Light < e.cfg.LightDarkThreshold:
		parts = append(parts, "光线较暗")
	case cache.Light > 500:
		parts = append(parts, "光线明亮")
	default:
		parts = append(parts, fmt.Sprintf("光线%.0flux", cache.Light))
	}

	if cache.AirQuality > e.cfg.AirQualityThreshold {
		parts = append(parts, "空气质量较差")
	} else {
		parts = append(parts, "空气质量良好")
	}

	return "当前环境：" + strings.Join(parts, "，")
}

// CheckAlerts 按固定顺序评估四类阈值，逐类防抖后返回需要下发的告警
func (e *Engine) CheckAlerts(sess *session.Session) []Alert {
	cache := sess.SensorSnapshot()

	checks := []struct {
		kind       string
		triggered  bool
		suggestion string
	}{
		{"air_quality_bad", cache.AirQuality > e.cfg.AirQualityThreshold, "空气质量不太好，建议开窗通通风"},
		{"light_too_dark", cache.Light < e.cfg.LightDarkThreshold, "光线有点暗，要不要开个灯"},
		{"temp_too_high", cache.Temp > e.cfg.TempHigh, fmt.Sprintf("温度有点高(%.0f°C)，注意降温", cache.Temp)},
		{"temp_too_low", cache.Temp < e.cfg.TempLow, fmt.Sprintf("温度有点低(%.0f°C)，注意保暖", cache.Temp)},
	}

	var alerts []Alert
	for _, c := range checks {
		if !c.triggered {
			continue
		}
		if _, suppressed := e.debounce.Get(c.kind); suppressed {
			continue
		}
		e.debounce.SetDefault(c.kind, struct{}{})
		alerts = append(alerts, Alert{Kind: c.kind, Suggestion: c.suggestion})
		e.logger.Info("sensor alert triggered",
			zap.String("userID", sess.UserID),
			zap.String("kind", c.kind),
		)
	}
	return alerts
}
