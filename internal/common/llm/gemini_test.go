package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	ai "github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-assistant/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func textResponse(texts ...string) *ai.GenerateContentResponse {
	parts := make([]ai.Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, ai.Text(t))
	}
	return &ai.GenerateContentResponse{Candidates: []*ai.Candidate{{Content: &ai.Content{Parts: parts}}}}
}

type fakeGenerate struct {
	calls     int
	requests  []geminiRequest
	responses []*ai.GenerateContentResponse
	errs      []error
}

func (f *fakeGenerate) generate(_ context.Context, req geminiRequest) (*ai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	var resp *ai.GenerateContentResponse
	var err error
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return resp, err
}

// ==========================
// Request Building Tests
// ==========================

func TestBuildGeminiRequest(t *testing.T) {
	req := buildGeminiRequest(
		SystemAndUser("You answer CRM questions.", "How many won leads?"),
		ChatOptions{Temperature: 0.2, MaxTokens: 128},
		"gemini-test",
	)

	assert.Equal(t, "gemini-test", req.Model)
	assert.InDelta(t, 0.2, req.Temperature, 1e-6)
	assert.Equal(t, int32(128), req.MaxTokens)
	require.NotNil(t, req.System)
	assert.Equal(t, []ai.Part{ai.Text("You answer CRM questions.")}, req.System.Parts)
	assert.Equal(t, []ai.Part{ai.Text("How many won leads?")}, req.Parts)
}

func TestBuildGeminiRequest_ModelOverrideAndNoSystem(t *testing.T) {
	req := buildGeminiRequest([]Message{{Role: RoleUser, Content: "hi"}}, ChatOptions{Model: "other"}, "gemini-test")

	assert.Equal(t, "other", req.Model)
	assert.Nil(t, req.System)
	assert.Equal(t, int32(0), req.MaxTokens)
	assert.Len(t, req.Parts, 1)
}

func TestReplyText(t *testing.T) {
	text, err := replyText(textResponse("You have ", "12 won leads."))
	require.NoError(t, err)
	assert.Equal(t, "You have 12 won leads.", text)

	_, err = replyText(nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = replyText(&ai.GenerateContentResponse{Candidates: []*ai.Candidate{{Content: nil}}})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = replyText(textResponse("   "))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

// ==========================
// Chat Tests
// ==========================

func TestGeminiClient_Chat_Success(t *testing.T) {
	fake := &fakeGenerate{responses: []*ai.GenerateContentResponse{textResponse("Hello there.")}}
	g := newGeminiClient(fake.generate, "", 0, logger.NewTestLogger(t))

	out, err := g.Chat(context.Background(), SystemAndUser("persona", "hi"), ChatOptions{Temperature: 0.7})

	require.NoError(t, err)
	assert.Equal(t, "Hello there.", out)
	require.Len(t, fake.requests, 1)
	assert.Equal(t, defaultGeminiModel, fake.requests[0].Model)
	assert.NoError(t, g.Close())
}

func TestGeminiClient_Chat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		fake       *fakeGenerate
		maxRetries int
		wantErr    error
		wantCalls  int
	}{
		{
			name:      "backend error",
			fake:      &fakeGenerate{errs: []error{errors.New("googleapi: Error 500")}},
			wantErr:   ErrBackend,
			wantCalls: 1,
		},
		{
			name:      "empty reply",
			fake:      &fakeGenerate{responses: []*ai.GenerateContentResponse{textResponse("")}},
			wantErr:   ErrEmptyResponse,
			wantCalls: 1,
		},
		{
			name:       "retries exhausted",
			fake:       &fakeGenerate{errs: []error{errors.New("unavailable"), errors.New("unavailable")}},
			maxRetries: 1,
			wantErr:    ErrBackend,
			wantCalls:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGeminiClient(tt.fake.generate, "gemini-test", tt.maxRetries, logger.NewTestLogger(t))

			out, err := g.Chat(context.Background(), SystemAndUser("s", "u"), ChatOptions{})

			assert.Empty(t, out)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCalls, tt.fake.calls)
		})
	}
}

func TestGeminiClient_Chat_RetryRecovers(t *testing.T) {
	fake := &fakeGenerate{
		errs:      []error{errors.New("unavailable"), nil},
		responses: []*ai.GenerateContentResponse{nil, textResponse("ok")},
	}
	g := newGeminiClient(fake.generate, "gemini-test", 2, logger.NewTestLogger(t))

	out, err := g.Chat(context.Background(), SystemAndUser("s", "u"), ChatOptions{})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, fake.calls)
}

func TestGeminiClient_Chat_DeadlineIsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	fake := &fakeGenerate{errs: []error{context.DeadlineExceeded}}
	g := newGeminiClient(fake.generate, "gemini-test", 0, logger.NewTestLogger(t))

	_, err := g.Chat(ctx, SystemAndUser("s", "u"), ChatOptions{})

	assert.ErrorIs(t, err, ErrTimeout)
}
