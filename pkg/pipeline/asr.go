package pipeline

import (
	"context"
	"encoding/binary"
	"math"
	"strings"

	"github.com/code-100-precent/wallace/pkg/config"
	"github.com/code-100-precent/wallace/pkg/errs"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPASR 语音识别客户端，对接 faster-whisper 风格的 HTTP 转写服务
type HTTPASR struct {
	cfg    config.ASRConfig
	client *resty.Client
	logger *zap.Logger
}

// NewHTTPASR create asr client
func NewHTTPASR(cfg config.ASRConfig, logger *zap.Logger) *HTTPASR {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)
	return &HTTPASR{cfg: cfg, client: client, logger: logger}
}

// HasSpeech 简单能量检测：归一化音频的 RMS 高于阈值视为有语音
func (a *HTTPASR) HasSpeech(samples []float32) bool {
	if len(samples) == 0 {
		return false
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return rms > a.cfg.VADThreshold
}

// Transcribe 将归一化样本转回 int16 PCM 上传转写，返回去空白的文本
func (a *HTTPASR) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}

	var result struct {
		Text string `json:"text"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParam("language", a.cfg.Language).
		SetBody(pcm).
		SetResult(&result).
		Post("/transcribe")
	if err != nil {
		return "", errs.NewTransient("asr", "transcribe request failed", err)
	}
	if resp.IsError() {
		return "", errs.NewTransient("asr", "transcribe returned "+resp.Status(), nil)
	}
	return strings.TrimSpace(result.Text), nil
}
