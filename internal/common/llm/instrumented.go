package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"crm-assistant/internal/common/metrics"
	"crm-assistant/internal/common/observability"
)

// InstrumentedClient records call counts and a span around every chat call.
type InstrumentedClient struct {
	inner    ChatClient
	provider string
	obs      *observability.Observability
}

func NewInstrumented(inner ChatClient, provider string, obs *observability.Observability) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, provider: provider, obs: obs}
}

func (c *InstrumentedClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	ctx, span := c.obs.StartSpan(ctx, "llm.chat",
		attribute.String("llm.provider", c.provider),
		attribute.Float64("llm.temperature", opts.Temperature),
		attribute.Int("llm.messages", len(messages)),
	)
	start := time.Now()

	out, err := c.inner.Chat(ctx, messages, opts)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMCalls.WithLabelValues(c.provider, status).Inc()
	span.SetAttributes(attribute.Int64("llm.duration_ms", time.Since(start).Milliseconds()))
	observability.EndSpan(span, err)
	return out, err
}

// Close releases the wrapped client when it holds a connection.
func (c *InstrumentedClient) Close() error {
	if closer, ok := c.inner.(Closer); ok {
		return closer.Close()
	}
	return nil
}
