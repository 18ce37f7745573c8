package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/code-100-precent/wallace/pkg/config"
	"github.com/code-100-precent/wallace/pkg/memory"
	"github.com/code-100-precent/wallace/pkg/pipeline"
	"github.com/code-100-precent/wallace/pkg/protocol"
	"github.com/code-100-precent/wallace/pkg/sensor"
	"github.com/code-100-precent/wallace/pkg/session"
	"github.com/code-100-precent/wallace/pkg/smarthome"
	"github.com/code-100-precent/wallace/pkg/wakeword"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// heartbeatCheckInterval 心跳检查周期
const heartbeatCheckInterval = 30 * time.Second

// Handler 连接路由：接入、消息分发、心跳、重连恢复
type Handler struct {
	registry   *session.Registry
	orch       *pipeline.Orchestrator
	sensor     *sensor.Engine
	wakeword   *wakeword.Verifier
	smarthome  *smarthome.Manager
	cfg        config.ServerConfig
	ttsDefault string
	memoryDir  string
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewHandler create websocket handler
func NewHandler(
	registry *session.Registry,
	orch *pipeline.Orchestrator,
	sensorEngine *sensor.Engine,
	verifier *wakeword.Verifier,
	smartHome *smarthome.Manager,
	cfg config.ServerConfig,
	ttsDefault string,
	memoryDir string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		registry:   registry,
		orch:       orch,
		sensor:     sensorEngine,
		wakeword:   verifier,
		smarthome:  smartHome,
		cfg:        cfg,
		ttsDefault: ttsDefault,
		memoryDir:  memoryDir,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleWS 处理 /ws/:user_id 的完整连接生命周期
func (h *Handler) HandleWS(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.String("userID", userID),
			zap.Error(err),
		)
		return
	}

	writer := session.NewWriter(c.Request.Context(), conn, h.logger)
	sess := session.New(userID, writer, h.logger)
	if h.ttsDefault != "" {
		sess.SetTTSBackend(h.ttsDefault)
	}

	// 重连检查：继承模式与记忆，打断旧流水线
	prev, reconnect := h.registry.Get(userID)
	if reconnect {
		sess.SetPersonality(prev.Personality())
		sess.SetTreehouseMode(prev.TreehouseMode())
		sess.SetTTSBackend(prev.TTSBackend())
		sess.Memory = prev.Memory
		sess.Store = prev.Store
		h.orch.CancelPipeline(prev)
	} else {
		store := memory.NewStore(userID, h.memoryDir, h.cfg.MemSyncInterval, h.logger)
		mem := store.Load()
		if mem.FirstMet == "" {
			mem.FirstMet = time.Now().Format("2006-01-02")
		}
		sess.Memory = mem
		sess.Store = store
	}

	if reconnect {
		// session_restore 必须是新 socket 上的第一条文本帧
		if err := sess.Sink.WriteText(protocol.SessionRestore(
			sess.Personality(), sess.TreehouseMode(), sess.TTSBackend(),
		)); err != nil {
			h.logger.Warn("failed to send session_restore",
				zap.String("userID", userID),
				zap.Error(err),
			)
		}
	}

	h.registry.Replace(userID, sess)
	h.logger.Info("session connected",
		zap.String("userID", userID),
		zap.String("sessionID", sess.ID),
		zap.Bool("reconnect", reconnect),
	)

	heartbeatStop := make(chan struct{})
	go h.heartbeatMonitor(sess, writer, heartbeatStop)

	h.receiveLoop(conn, sess)

	// 断开清理
	close(heartbeatStop)
	h.orch.CancelPipeline(sess)
	if handle := sess.RandomFact(); handle != nil {
		handle.Cancel()
	}
	h.flushMemory(sess)
	h.registry.RemoveIf(userID, sess)
	writer.Close()
	h.logger.Info("session closed", zap.String("userID", userID))
}

// receiveLoop 消息接收主循环，读错误（含对端关闭）时返回
func (h *Handler) receiveLoop(conn *websocket.Conn, sess *session.Session) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Warn("websocket read error",
					zap.String("userID", sess.UserID),
					zap.Error(err),
				)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			sess.AppendAudio(data)
		case websocket.TextMessage:
			h.route(sess, data)
		}
	}
}

// route 解析文本帧并按类型分发。畸形输入记录后丢弃，绝不断开连接。
func (h *Handler) route(sess *session.Session, raw []byte) {
	msg, err := protocol.ParseInbound(raw)
	if err != nil {
		h.logger.Warn("malformed message",
			zap.String("userID", sess.UserID),
			zap.Error(err),
		)
		return
	}

	switch m := msg.(type) {
	case protocol.Ping:
		sess.UpdateHeartbeat()
		h.send(sess, protocol.Pong())

	case protocol.AudioStart:
		if err := h.orch.OnAudioStart(sess); err != nil {
			h.logger.Error("audio_start rejected",
				zap.String("userID", sess.UserID),
				zap.Error(err),
			)
		}

	case protocol.AudioEnd:
		if err := h.orch.OnAudioEnd(sess); err != nil {
			h.logger.Error("audio_end rejected",
				zap.String("userID", sess.UserID),
				zap.Error(err),
			)
		}

	case protocol.WakewordVerify:
		confirmed := h.wakeword.Verify(context.Background(), m.Audio)
		h.send(sess, protocol.WakewordResult(confirmed))
		sess.SetWakewordConfirmed(confirmed)

	case protocol.Sensor:
		h.sensor.Update(sess, m)
		for _, alert := range h.sensor.CheckAlerts(sess) {
			h.send(sess, protocol.SensorAlert(alert.Kind, alert.Suggestion))
		}

	case protocol.Proximity:
		h.sensor.UpdateProximity(sess, m)

	case protocol.DeviceState:
		sess.UpdateDeviceState(m.BatteryPct, m.PowerMode, m.WifiRSSI)

	case protocol.Event:
		h.handleEvent(sess, m)

	case protocol.LocalCmd:
		success, result := h.smarthome.Execute(m.Action)
		h.send(sess, protocol.CommandResult(m.Action, success, result))

	case protocol.Image:
		// 图像识别暂未接入

	case protocol.Config:
		if m.TTSBackend != nil {
			sess.SetTTSBackend(*m.TTSBackend)
		}
	}
}

func (h *Handler) handleEvent(sess *session.Session, m protocol.Event) {
	switch m.Event {
	case protocol.EventPersonalitySwitch:
		sess.SetPersonality(cast.ToString(m.Value))
		sess.ClearHistory()

	case protocol.EventTreehouseMode:
		sess.SetTreehouseMode(cast.ToBool(m.Value))

	case protocol.EventShake:
		ctx, cancel := context.WithCancel(context.Background())
		handle := &session.TaskHandle{Cancel: cancel, Done: make(chan struct{})}
		sess.SetRandomFact(handle)
		go func() {
			defer close(handle.Done)
			h.orch.PushRandomFact(ctx, sess)
		}()

	case protocol.EventTouch:
		// 触摸暂不响应
	}
}

func (h *Handler) send(sess *session.Session, data []byte) {
	if err := sess.Sink.WriteText(data); err != nil {
		h.logger.Warn("failed to send message",
			zap.String("userID", sess.UserID),
			zap.Error(err),
		)
	}
}

// heartbeatMonitor 周期检查心跳，超时关闭连接交由断开路径清理
func (h *Handler) heartbeatMonitor(sess *session.Session, writer *session.Writer, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			elapsed := time.Since(sess.LastHeartbeat())
			if elapsed > h.cfg.HeartbeatTimeout {
				h.logger.Warn("heartbeat timeout, closing connection",
					zap.String("userID", sess.UserID),
					zap.Duration("elapsed", elapsed),
				)
				writer.Close()
				return
			}
		}
	}
}

// flushMemory 断开时落盘未保存的记忆
func (h *Handler) flushMemory(sess *session.Session) {
	if sess.Store == nil || !sess.Store.HasChanges(sess.Memory) {
		return
	}
	if err := sess.Store.Save(sess.Memory); err != nil {
		h.logger.Error("failed to flush memory on disconnect",
			zap.String("userID", sess.UserID),
			zap.Error(err),
		)
		return
	}
	sess.Store.MarkSynced(sess.Memory)
}
