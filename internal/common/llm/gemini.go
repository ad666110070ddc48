package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"crm-assistant/internal/common/logger"
)

const defaultGeminiModel = "gemini-2.0-flash"

// geminiRequest is everything one GenerateContent call needs.
type geminiRequest struct {
	Model       string
	System      *ai.Content
	Parts       []ai.Part
	Temperature float32
	MaxTokens   int32
}

type geminiGenerateFunc func(ctx context.Context, req geminiRequest) (*ai.GenerateContentResponse, error)

// GeminiClient calls Google Gemini through the generative-ai-go SDK.
type GeminiClient struct {
	client     *ai.Client
	generate   geminiGenerateFunc
	model      string
	maxRetries int
	logger     logger.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, model string, maxRetries int, log logger.Logger) (*GeminiClient, error) {
	client, err := ai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	g := newGeminiClient(sdkGenerate(client), model, maxRetries, log)
	g.client = client
	return g, nil
}

func newGeminiClient(generate geminiGenerateFunc, model string, maxRetries int, log logger.Logger) *GeminiClient {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{
		generate:   generate,
		model:      model,
		maxRetries: maxRetries,
		logger:     log.With(map[string]interface{}{"provider": "gemini"}),
	}
}

func sdkGenerate(client *ai.Client) geminiGenerateFunc {
	return func(ctx context.Context, req geminiRequest) (*ai.GenerateContentResponse, error) {
		model := client.GenerativeModel(req.Model)
		model.SetTemperature(req.Temperature)
		if req.MaxTokens > 0 {
			model.SetMaxOutputTokens(req.MaxTokens)
		}
		model.SystemInstruction = req.System
		return model.GenerateContent(ctx, req.Parts...)
	}
}

// buildGeminiRequest moves system messages into the system instruction and
// sends every other message as a text part.
func buildGeminiRequest(messages []Message, opts ChatOptions, defaultModel string) geminiRequest {
	req := geminiRequest{
		Model:       opts.Model,
		Temperature: float32(opts.Temperature),
		MaxTokens:   int32(opts.MaxTokens),
	}
	if req.Model == "" {
		req.Model = defaultModel
	}

	var system []ai.Part
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, ai.Text(m.Content))
			continue
		}
		req.Parts = append(req.Parts, ai.Text(m.Content))
	}
	if len(system) > 0 {
		req.System = &ai.Content{Parts: system}
	}
	return req
}

// replyText joins the text parts of every candidate.
func replyText(resp *ai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(ai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func (g *GeminiClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	req := buildGeminiRequest(messages, opts, g.model)

	text, err := withRetries(ctx, g.maxRetries, func(error) bool { return true }, func() (string, error) {
		resp, err := g.generate(ctx, req)
		if err != nil {
			return "", err
		}
		return replyText(resp)
	})
	if err != nil {
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrEmptyResponse) {
			return "", err
		}
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrTimeout
		}
		g.logger.Warn("gemini call failed", map[string]interface{}{"error": err.Error()})
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return text, nil
}

func (g *GeminiClient) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
