package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	commonhttp "crm-assistant/internal/common/http"
	"crm-assistant/internal/common/logger"
)

// GatewayConfig configures the HTTP model gateway.
type GatewayConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// GatewayClient talks to an internal GenAI gateway over JSON/HTTP.
type GatewayClient struct {
	config GatewayConfig
	client *commonhttp.Client
	logger logger.Logger
}

type gatewayRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type gatewayResponse struct {
	Text string `json:"text"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func NewGatewayClient(cfg GatewayConfig, log logger.Logger) *GatewayClient {
	return &GatewayClient{
		config: cfg,
		client: commonhttp.NewClient(cfg.Timeout),
		logger: log.With(map[string]interface{}{"provider": "gateway"}),
	}
}

// WithHTTPClient replaces the transport, mainly for httptest servers.
func (g *GatewayClient) WithHTTPClient(c *http.Client) *GatewayClient {
	g.client = commonhttp.NewClientFrom(c)
	return g
}

func (g *GatewayClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = g.config.Model
	}
	body, err := json.Marshal(gatewayRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrBackend, err)
	}

	text, err := withRetries(ctx, g.config.MaxRetries, isRetryableGatewayError, func() (string, error) {
		return g.send(ctx, body)
	})
	if err != nil {
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrEmptyResponse) {
			return "", err
		}
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return text, nil
}

func (g *GatewayClient) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(g.config.BaseURL, "/")+"/api/ai/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	resp, err := g.client.DoWithContext(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.Warn("gateway returned non-OK status", map[string]interface{}{
			"status": resp.StatusCode,
		})
		return "", &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}

	var out gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", ErrEmptyResponse
	}
	return out.Text, nil
}

func isRetryableGatewayError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return commonhttp.IsRetryableStatus(se.code)
	}
	return !errors.Is(err, ErrEmptyResponse)
}
