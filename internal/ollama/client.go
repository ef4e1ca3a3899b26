package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"jobMatch/internal/config"
)

// ErrEmptyResponse 表示后端返回了成功状态但没有 response 字段。
var ErrEmptyResponse = errors.New("ollama: empty response")

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Client 调用 Ollama 的 /api/generate 接口（非流式）。
type Client struct {
	url        string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option 用于定制 Client。
type Option func(*Client)

// WithHTTPClient 替换默认的 http.Client。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient 根据配置构造客户端。RatePerSecond 为 0 时不限流。
func NewClient(cfg config.OllamaConfig, opts ...Option) *Client {
	c := &Client{
		url:        strings.TrimSpace(cfg.URL),
		model:      cfg.Model,
		httpClient: &http.Client{},
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model 返回当前使用的模型名。
func (c *Client) Model() string {
	return c.model
}

// Generate 发送单个 prompt 并返回模型输出文本。
// 超时由调用方通过 ctx 控制。
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyResponse
	}

	return out.Response, nil
}
