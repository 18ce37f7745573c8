package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/code-100-precent/wallace/pkg/config"
	"github.com/code-100-precent/wallace/pkg/errs"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// FrameSize PCM 帧大小：512 samples × 2 bytes = 1024 bytes
const FrameSize = 1024

// TTSBackend 语音合成后端，输出 16kHz 16bit mono PCM 帧
type TTSBackend interface {
	Synthesize(ctx context.Context, text string, emit func(frame []byte) error) error
}

// framer 将任意长度的 PCM 字节流切成定长帧，末帧补零
type framer struct {
	buf  []byte
	emit func([]byte) error
}

func (f *framer) write(p []byte) error {
	f.buf = append(f.buf, p...)
	for len(f.buf) >= FrameSize {
		frame := f.buf[:FrameSize]
		f.buf = f.buf[FrameSize:]
		if err := f.emit(frame); err != nil {
			return err
		}
	}
	return nil
}

func (f *framer) flush() error {
	if len(f.buf) == 0 {
		return nil
	}
	frame := make([]byte, FrameSize)
	copy(frame, f.buf)
	f.buf = nil
	return f.emit(frame)
}

const (
	edgeWSSURL = "wss://speech.platform.bing.com/consumer/speech/synthesize/" +
		"readaloud/edge/v1?TrustedClientToken=6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	edgeOrigin = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"
)

// EdgeTTS 微软 Edge 朗读服务后端。
// 请求 raw-16khz-16bit-mono-pcm 输出格式，省去解码步骤直接分帧。
type EdgeTTS struct {
	voice  string
	logger *zap.Logger
}

// NewEdgeTTS create edge tts backend
func NewEdgeTTS(voice string, logger *zap.Logger) *EdgeTTS {
	return &EdgeTTS{voice: voice, logger: logger}
}

// Synthesize 通过朗读 websocket 合成文本
func (e *EdgeTTS) Synthesize(ctx context.Context, text string, emit func([]byte) error) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
	header := http.Header{"Origin": []string{edgeOrigin}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, edgeWSSURL+"&ConnectionId="+requestID, header)
	if err != nil {
		return errs.NewTransient("tts-edge", "dial readaloud websocket", err)
	}
	defer conn.Close()

	// ctx 取消时关闭连接，打断阻塞中的读
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	timestamp := time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
	speechConfig := "X-Timestamp:" + timestamp + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":` +
		`{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"raw-16khz-16bit-mono-pcm"}}}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(speechConfig)); err != nil {
		return errs.NewTransient("tts-edge", "send speech config", err)
	}

	ssml := fmt.Sprintf(
		"<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='zh-CN'>"+
			"<voice name='%s'>%s</voice></speak>",
		e.voice, html.EscapeString(text))
	ssmlMsg := "X-RequestId:" + requestID + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + timestamp + "\r\n" +
		"Path:ssml\r\n\r\n" + ssml
	if err := conn.WriteMessage(websocket.TextMessage, []byte(ssmlMsg)); err != nil {
		return errs.NewTransient("tts-edge", "send ssml", err)
	}

	fr := &framer{emit: emit}
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errs.NewTransient("tts-edge", "read synthesis stream", err)
		}

		switch msgType {
		case websocket.TextMessage:
			if strings.Contains(string(data), "Path:turn.end") {
				return fr.flush()
			}
		case websocket.BinaryMessage:
			// 二进制帧格式：2 字节大端头部长度 + 头部 + 音频负载
			if len(data) < 2 {
				continue
			}
			headerLen := int(binary.BigEndian.Uint16(data[:2]))
			if len(data) < 2+headerLen {
				continue
			}
			if !strings.Contains(string(data[2:2+headerLen]), "Path:audio") {
				continue
			}
			if err := fr.write(data[2+headerLen:]); err != nil {
				return err
			}
		}
	}
}

// CosyVoiceTTS CosyVoice 本地合成后端，HTTP 直出 PCM
type CosyVoiceTTS struct {
	voice  string
	client *resty.Client
	logger *zap.Logger
}

// NewCosyVoiceTTS create cosyvoice tts backend
func NewCosyVoiceTTS(baseURL, voice string, logger *zap.Logger) *CosyVoiceTTS {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &CosyVoiceTTS{voice: voice, client: client, logger: logger}
}

// Synthesize 请求 /tts 接口并分帧
func (c *CosyVoiceTTS) Synthesize(ctx context.Context, text string, emit func([]byte) error) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text, "voice": c.voice}).
		Post("/tts")
	if err != nil {
		return errs.NewTransient("tts-cosyvoice", "tts request failed", err)
	}
	if resp.IsError() {
		return errs.NewTransient("tts-cosyvoice", "tts returned "+resp.Status(), nil)
	}

	fr := &framer{emit: emit}
	if err := fr.write(resp.Body()); err != nil {
		return err
	}
	return fr.flush()
}

// TTSManager 双后端管理 + 降级：选中后端失败时改试另一个一次
type TTSManager struct {
	edge      TTSBackend
	cosyvoice TTSBackend
	logger    *zap.Logger
}

// NewTTSManager create tts manager
func NewTTSManager(cfg config.TTSConfig, logger *zap.Logger) *TTSManager {
	return &TTSManager{
		edge:      NewEdgeTTS(cfg.EdgeVoice, logger),
		cosyvoice: NewCosyVoiceTTS(cfg.CosyVoiceURL, cfg.CosyVoiceVoice, logger),
		logger:    logger,
	}
}

// NewTTSManagerWithBackends 测试注入用
func NewTTSManagerWithBackends(edge, cosyvoice TTSBackend, logger *zap.Logger) *TTSManager {
	return &TTSManager{edge: edge, cosyvoice: cosyvoice, logger: logger}
}

// Synthesize 用指定后端合成，失败后降级到另一后端
func (m *TTSManager) Synthesize(ctx context.Context, backend, text string, emit func([]byte) error) error {
	primary, fallback := m.edge, m.cosyvoice
	fallbackName := "cosyvoice"
	if backend == "cosyvoice" {
		primary, fallback = m.cosyvoice, m.edge
		fallbackName = "edge"
	}

	err := primary.Synthesize(ctx, text, emit)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.logger.Warn("primary tts backend failed, falling back",
		zap.String("backend", backend),
		zap.String("fallback", fallbackName),
		zap.Error(err),
	)

	if err := fallback.Synthesize(ctx, text, emit); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Error("both tts backends failed", zap.Error(err))
		return err
	}
	return nil
}
