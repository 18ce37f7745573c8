package wakeword

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTimeout 校验超时，超时按确认处理（宁可误唤醒，不让主人干等）
const DefaultTimeout = 2 * time.Second

// Verifier 唤醒词二次确认，对接 openWakeWord 打分服务
type Verifier struct {
	client    *resty.Client
	threshold float64
	timeout   time.Duration
	logger    *zap.Logger
}

// NewVerifier create wakeword verifier
func NewVerifier(baseURL string, threshold float64, logger *zap.Logger) *Verifier {
	return &Verifier{
		client:    resty.New().SetBaseURL(baseURL),
		threshold: threshold,
		timeout:   DefaultTimeout,
		logger:    logger,
	}
}

// Verify 对 base64 PCM 做二次确认。
// 超时、服务不可用或音频不可解码时一律放行（fail-open）。
func (v *Verifier) Verify(ctx context.Context, audioBase64 string) bool {
	audio, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		v.logger.Warn("wakeword audio is not valid base64, defaulting to confirmed", zap.Error(err))
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var result struct {
		Score float64 `json:"score"`
	}
	resp, err := v.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(audio).
		SetResult(&result).
		Post("/score")
	if err != nil {
		v.logger.Warn("wakeword verification failed, defaulting to confirmed", zap.Error(err))
		return true
	}
	if resp.IsError() {
		v.logger.Warn("wakeword verifier returned error, defaulting to confirmed",
			zap.String("status", resp.Status()))
		return true
	}

	return result.Score >= v.threshold
}
