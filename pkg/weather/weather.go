package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/code-100-precent/wallace/pkg/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client 心知天气实况查询
type Client struct {
	cfg    config.WeatherConfig
	client *resty.Client
	logger *zap.Logger
}

// NewClient create weather client
func NewClient(cfg config.WeatherConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: resty.New().SetTimeout(5 * time.Second),
		logger: logger,
	}
}

// Now 查询当前天气，格式如「多云，26°C」。任何失败返回空串。
func (c *Client) Now(ctx context.Context) string {
	if c.cfg.APIKey == "" {
		return "（未配置天气 API）"
	}

	var result struct {
		Results []struct {
			Now struct {
				Text        string `json:"text"`
				Temperature string `json:"temperature"`
			} `json:"now"`
		} `json:"results"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":      c.cfg.APIKey,
			"location": c.cfg.City,
		}).
		SetResult(&result).
		Get(c.cfg.APIURL)
	if err != nil {
		c.logger.Warn("weather api failed", zap.Error(err))
		return ""
	}
	if resp.IsError() || len(result.Results) == 0 {
		c.logger.Warn("weather api returned no data", zap.String("status", resp.Status()))
		return ""
	}

	now := result.Results[0].Now
	return fmt.Sprintf("%s，%s°C", now.Text, now.Temperature)
}
