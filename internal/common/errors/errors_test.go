package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Classification Tests
// ==========================

func TestClassifyQueryError(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"dial tcp 10.0.0.1:5432: connect: connection refused", CategoryDatabaseUnavailable},
		{"driver: bad connection", CategoryDatabaseUnavailable},
		{"pq: sorry, too many clients already", CategoryDatabaseUnavailable},
		{"context deadline exceeded", CategoryQueryTimeout},
		{"pq: canceling statement due to statement timeout", CategoryQueryTimeout},
		{`pq: column "foo" does not exist`, CategoryUnknownField},
		{`pq: invalid input syntax for type integer: "LD-1"`, CategoryInvalidFilterValue},
		{"pq: permission denied for table leads", CategoryAccessDenied},
		{"something else entirely", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyQueryError(errors.New(tt.msg)))
		})
	}
	assert.Equal(t, CategoryGeneric, ClassifyQueryError(nil))
}

func TestNewQueryExecutionFailedError(t *testing.T) {
	cause := fmt.Errorf("query failed: %w", errors.New("connection refused"))
	e := NewQueryExecutionFailedError(cause)

	assert.Equal(t, ErrCodeQueryExecutionFailed, e.Code)
	assert.Equal(t, CategoryDatabaseUnavailable, e.Metadata["category"])
	assert.Equal(t, "The database is currently unavailable", e.Message)
	assert.True(t, e.Retryable)
	assert.True(t, errors.Is(e, cause))

	generic := NewQueryExecutionFailedError(errors.New("boom"))
	assert.False(t, generic.Retryable)
	assert.Equal(t, CategoryGeneric, generic.Metadata["category"])
}

func TestNewForbiddenMetricError(t *testing.T) {
	e := NewForbiddenMetricError("total_revenue")
	assert.Equal(t, ErrCodeForbiddenMetric, e.Code)
	assert.Equal(t, "total_revenue", e.Metadata["metric"])
	assert.False(t, e.Retryable)
}

// ==========================
// HTTP Mapping Tests
// ==========================

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *StandardError
		want int
	}{
		{"malformed", NewMalformedRequestError("empty question"), http.StatusBadRequest},
		{"unauthorized", NewUnauthorizedError(), http.StatusUnauthorized},
		{"forbidden metric", NewForbiddenMetricError("revenue"), http.StatusForbidden},
		{"extraction", NewExtractionFailedError(errors.New("bad json")), http.StatusUnprocessableEntity},
		{"invalid intent", NewInvalidIntentError("table not allowed"), http.StatusUnprocessableEntity},
		{"rate limited", NewRateLimitedError("u1"), http.StatusTooManyRequests},
		{"query unavailable", NewQueryExecutionFailedError(errors.New("connection refused")), http.StatusServiceUnavailable},
		{"query timeout", NewQueryExecutionFailedError(errors.New("context deadline exceeded")), http.StatusServiceUnavailable},
		{"query generic", NewQueryExecutionFailedError(errors.New("syntax error")), http.StatusBadGateway},
		{"answer generation", NewAnswerGenerationFailedError(errors.New("timeout")), http.StatusBadGateway},
		{"internal", NewInternalError(errors.New("panic")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(ErrCodeMalformedRequest))
	assert.True(t, IsClientError(ErrCodeForbiddenMetric))
	assert.True(t, IsClientError(ErrCodeInvalidIntent))
	assert.False(t, IsClientError(ErrCodeQueryExecutionFailed))
	assert.False(t, IsClientError(ErrCodeAnswerGenerationFailed))
	assert.False(t, IsClientError(ErrCodeInternal))
}

// ==========================
// BPMN Conversion Tests
// ==========================

func TestConvertToBPMNError(t *testing.T) {
	e := NewQueryExecutionFailedError(errors.New("connection refused"))
	bpmn := ConvertToBPMNError(e)

	assert.Equal(t, "QUERY_EXECUTION_FAILED", bpmn.Code)
	assert.Equal(t, 2, bpmn.Retries)
	assert.True(t, bpmn.Retryable)

	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "QUERY_EXECUTION_FAILED", vars["errorCode"])
	assert.Equal(t, "query_execution_failed", vars["originalErrorCode"])
	assert.Equal(t, CategoryDatabaseUnavailable, vars["errorCategory"])
}

func TestConvertToBPMNError_NonRetryableHasNoRetries(t *testing.T) {
	for _, e := range []*StandardError{
		NewQueryExecutionFailedError(errors.New("column does not exist")),
		NewForbiddenMetricError("revenue"),
		NewInternalError(errors.New("boom")),
	} {
		assert.Zero(t, ConvertToBPMNError(e).Retries, "code %s", e.Code)
	}
}

func TestConvertToBPMNError_UnmappedCode(t *testing.T) {
	bpmn := ConvertToBPMNError(NewRateLimitedError("u1"))
	assert.Equal(t, "RATE_LIMITED", bpmn.Code)
}

// ==========================
// Unwrapping Tests
// ==========================

func TestAsStandardError(t *testing.T) {
	wrapped := fmt.Errorf("stage failed: %w", NewInvalidIntentError("bad table"))

	stdErr, ok := AsStandardError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidIntent, stdErr.Code)

	_, ok = AsStandardError(errors.New("plain"))
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, Normalize(context.Canceled).Code)

	orig := NewMalformedRequestError("x")
	assert.Same(t, orig, Normalize(orig))
}
