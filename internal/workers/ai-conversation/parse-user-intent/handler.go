// Package parseuserintent extracts a structured, untrusted intent from a question.
package parseuserintent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"crm-assistant/internal/common/llm"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/metrics"
	"crm-assistant/internal/common/observability"
)

const (
	StageName = "extract_intent"
)

var (
	ErrModelUnavailable = errors.New("INTENT_MODEL_UNAVAILABLE")
	ErrMalformedOutput  = errors.New("INTENT_MALFORMED_OUTPUT")
	ErrStructureInvalid = errors.New("INTENT_STRUCTURE_INVALID")
)

type Handler struct {
	config *Config
	client llm.ChatClient
	obs    *observability.Observability
	logger logger.Logger
}

func NewHandler(config *Config, client llm.ChatClient, obs *observability.Observability, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		client: client,
		obs:    obs,
		logger: log.With(map[string]interface{}{"stage": StageName}),
	}
}

// Execute asks the model for an intent. When extraction fails but the question
// is small talk, the result is a conversation instead of an error.
func (h *Handler) Execute(ctx context.Context, question string) (*Result, error) {
	ctx, span := h.obs.StartSpan(ctx, StageName)
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	}()

	log := logger.FromContext(ctx, h.logger)

	result, err := h.extract(ctx, question)
	if err != nil {
		if MatchSmalltalk(question) {
			log.Info("extraction failed, treating question as small talk", map[string]interface{}{
				"error": err.Error(),
			})
			span.SetAttributes(attribute.Bool("intent.smalltalk_fallback", true))
			observability.EndSpan(span, nil)
			return &Result{Conversation: true, Fallback: true}, nil
		}
		log.Warn("intent extraction failed", map[string]interface{}{"error": err.Error()})
		observability.EndSpan(span, err)
		return nil, err
	}

	fields := map[string]interface{}{"conversation": result.Conversation}
	if result.Intent != nil {
		fields["queryType"] = string(result.Intent.QueryType)
		fields["table"] = result.Intent.Table
		fields["metric"] = result.Intent.Metric
		span.SetAttributes(attribute.String("intent.query_type", string(result.Intent.QueryType)))
	}
	log.Info("intent extracted", fields)
	observability.EndSpan(span, nil)
	return result, nil
}

func (h *Handler) extract(ctx context.Context, question string) (*Result, error) {
	reply, err := h.client.Chat(ctx, llm.SystemAndUser(SystemPrompt(), question), llm.ChatOptions{
		Temperature: h.config.Temperature,
		MaxTokens:   h.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	logger.FromContext(ctx, h.logger).Debug("extraction reply", map[string]interface{}{"reply": reply})
	return ParseReply(reply)
}
