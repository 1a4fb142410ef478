package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pickpulse/shiva/pkg/metrics"
)

const anthropicVersion = "2023-06-01"

type anthropicClient struct {
	cfg        Config
	httpClient *http.Client
	metrics    *metrics.EngineMetrics
}

func (c *anthropicClient) Provider() string { return c.cfg.Provider }

func (c *anthropicClient) Complete(ctx context.Context, prompt, system string) (string, error) {
	payload := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": c.cfg.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if system != "" {
		payload["system"] = system
	}
	if c.cfg.Temperature > 0 {
		payload["temperature"] = c.cfg.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	content, err := c.post(ctx, body)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordLLM(c.cfg.Provider, status, time.Since(start).Seconds())
	return content, err
}

func (c *anthropicClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST",
		c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("api error %d: %s", resp.StatusCode, string(b))
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}
	return sb.String(), nil
}
