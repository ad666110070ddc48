// Package llm provides provider-agnostic chat clients for the model backend.
package llm

import (
	"context"
	"errors"
	"fmt"

	"crm-assistant/internal/common/config"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/observability"
)

var (
	ErrTimeout       = errors.New("LLM_TIMEOUT")
	ErrBackend       = errors.New("LLM_BACKEND_FAILED")
	ErrEmptyResponse = errors.New("LLM_EMPTY_RESPONSE")
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions carries per-call decoding parameters.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
	Model       string
}

// ChatClient sends a chat exchange to a model backend and returns the reply text.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// SystemAndUser builds the two-message exchange every pipeline stage sends.
func SystemAndUser(system, user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

// Closer is implemented by clients that hold SDK connections.
type Closer interface {
	Close() error
}

// NewFromConfig builds the configured provider wrapped with metrics and tracing.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig, obs *observability.Observability, log logger.Logger) (ChatClient, error) {
	var (
		inner ChatClient
		err   error
	)

	switch cfg.Provider {
	case "gateway", "":
		inner = NewGatewayClient(GatewayConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Timeout:    config.GetDuration(cfg.Timeout),
			MaxRetries: cfg.MaxRetries,
		}, log)
	case "gemini":
		inner, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.MaxRetries, log)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "gateway"
	}
	return NewInstrumented(inner, provider, obs), nil
}
