// Package openai talks to an OpenAI-compatible chat completions
// endpoint carrying the sampled frames inline as data URIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
	"github.com/trueframe/trueframe-analysis-service/internal/domain/port"
)

// temperature stays low so the model answers literally instead of
// creatively; the interpreter depends on that.
const temperature = 0.3

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type Gateway struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewGateway validates the credential up front: a missing key aborts
// at boot, never mid-submission.
func NewGateway(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, &port.AuthConfigurationError{}
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("inference endpoint is not configured")
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Infer performs exactly one round trip and surfaces the raw response
// text. No retries here; the 429/402 distinction is preserved for the
// caller.
func (g *Gateway) Infer(ctx context.Context, req entity.AnalysisRequest) (string, error) {
	parts := make([]contentPart, 0, len(req.Frames)+1)
	parts = append(parts, contentPart{Type: "text", Text: req.Instruction})
	for _, f := range req.Frames {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: f.DataURI},
		})
	}

	body, err := json.Marshal(chatRequest{
		Model:       g.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read inference response: %w", err)
	}

	g.logger.Debug("inference round trip finished",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("frames", len(req.Frames)),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &port.RateLimitError{Body: string(respBody)}
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", &port.QuotaExceededError{Body: string(respBody)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", &port.GatewayError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("inference response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
