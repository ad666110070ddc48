// Package handlers exposes the question pipeline over HTTP.
package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	apperrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/ratelimit"
	"crm-assistant/internal/models"
	answerquestion "crm-assistant/internal/workers/ai-conversation/answer-question"
)

const maxBodyBytes = 64 << 10

// Asker answers one question.
type Asker interface {
	Execute(ctx context.Context, req answerquestion.Request) (*models.Answer, error)
}

// RateLimiter decides whether a caller may ask another question.
type RateLimiter interface {
	Allow(ctx context.Context, callerID string) ratelimit.Decision
}

type AskHandler struct {
	asker      Asker
	limiter    RateLimiter
	apiKey     string
	timeout    time.Duration
	production bool
	logger     logger.Logger
}

// AskOptions configures an AskHandler. A nil Limiter disables rate limiting.
type AskOptions struct {
	APIKey     string
	Timeout    time.Duration
	Production bool
	Limiter    RateLimiter
}

func NewAskHandler(asker Asker, opts AskOptions, log logger.Logger) *AskHandler {
	return &AskHandler{
		asker:      asker,
		limiter:    opts.Limiter,
		apiKey:     opts.APIKey,
		timeout:    opts.Timeout,
		production: opts.Production,
		logger:     log.With(map[string]interface{}{"component": "ask_handler"}),
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// ServeHTTP handles POST /api/ask.
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	key := r.Header.Get("X-API-Key")
	if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
		h.writeError(w, apperrors.NewUnauthorizedError())
		return
	}

	var req answerquestion.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, apperrors.NewMalformedRequestError("invalid json: "+err.Error()))
		return
	}

	if h.limiter != nil && req.Caller.ID != "" {
		decision := h.limiter.Allow(r.Context(), req.Caller.ID)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Round(time.Second)/time.Second)))
			h.writeError(w, apperrors.NewRateLimitedError(req.Caller.ID))
			return
		}
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	answer, err := h.asker.Execute(ctx, req)
	if err != nil {
		h.writeError(w, apperrors.Normalize(err))
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func (h *AskHandler) writeError(w http.ResponseWriter, stdErr *apperrors.StandardError) {
	status := apperrors.HTTPStatus(stdErr)
	body := errorBody{Error: errorDetail{
		Code:    string(stdErr.Code),
		Message: stdErr.Message,
	}}
	if id, ok := stdErr.Metadata["requestId"].(string); ok {
		body.Error.RequestID = id
	}
	if !h.production {
		body.Error.Details = stdErr.Details
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", map[string]interface{}{
			"code":    string(stdErr.Code),
			"status":  status,
			"details": stdErr.Details,
		})
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
