package smarthome

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/wallace/pkg/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// sceneStep 场景联动中的一步
type sceneStep struct {
	Device  string
	Action  string
	Payload map[string]interface{}
}

// scenes 场景联动定义
var scenes = map[string][]sceneStep{
	"sleep": {
		{Device: "light", Action: "off"},
		{Device: "ac", Action: "sleep_mode"},
	},
	"wakeup": {
		{Device: "light", Action: "on", Payload: map[string]interface{}{"brightness": 50}},
	},
}

// Manager 智能家居 MQTT 管理。
// broker 不可用时进入降级模式：指令返回失败但不影响其他功能。
type Manager struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	logger *zap.Logger
}

// NewManager create smart-home manager
func NewManager(cfg config.MQTTConfig, logger *zap.Logger) *Manager {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID("wallace-server").
		SetAutoReconnect(true).
		SetConnectRetryInterval(time.Duration(cfg.ReconnectInterval) * time.Second).
		SetConnectTimeout(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected",
			zap.String("broker", cfg.Broker),
			zap.Int("port", cfg.Port),
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}

	return &Manager{
		cfg:    cfg,
		client: mqtt.NewClient(opts),
		logger: logger,
	}
}

// Connect 连接 broker，失败只降级不报错
func (m *Manager) Connect() {
	token := m.client.Connect()
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		m.logger.Warn("mqtt connection failed, running in degraded mode",
			zap.Error(token.Error()))
	}
}

// Disconnect 断开 broker
func (m *Manager) Disconnect() {
	m.client.Disconnect(250)
}

// IsConnected 当前是否连接
func (m *Manager) IsConnected() bool {
	return m.client.IsConnected()
}

// Execute 执行一条指令。action 形如 scene/<name> 时执行场景联动。
func (m *Manager) Execute(action string) (bool, string) {
	if name, ok := strings.CutPrefix(action, "scene/"); ok {
		return m.executeScene(name)
	}
	return m.publish(action, nil)
}

// publish 发布单条设备指令到 {prefix}/{action}
func (m *Manager) publish(action string, payload map[string]interface{}) (bool, string) {
	if !m.client.IsConnected() {
		return false, "mqtt not connected"
	}

	topic := m.cfg.TopicPrefix + "/" + action
	if payload == nil {
		payload = map[string]interface{}{}
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return false, err.Error()
	}

	token := m.client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(5 * time.Second) {
		return false, "mqtt publish timed out"
	}
	if err := token.Error(); err != nil {
		m.logger.Error("mqtt publish failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return false, err.Error()
	}

	m.logger.Info("mqtt publish",
		zap.String("topic", topic),
		zap.ByteString("payload", body),
	)
	return true, action + " executed"
}

// executeScene 执行场景联动，汇总每步结果
func (m *Manager) executeScene(name string) (bool, string) {
	steps, ok := scenes[name]
	if !ok {
		return false, "unknown scene: " + name
	}

	allOK := true
	var parts []string
	for _, step := range steps {
		action := step.Device + "/" + step.Action
		success, msg := m.publish(action, step.Payload)
		if !success {
			allOK = false
		}
		parts = append(parts, fmt.Sprintf("%s: %s", action, msg))
	}
	return allOK, strings.Join(parts, "; ")
}
