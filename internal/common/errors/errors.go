// Package errors provides the pipeline error taxonomy and its BPMN workflow integration.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents a stable, machine-readable error code returned to callers.
type ErrorCode string

const (
	ErrCodeMalformedRequest       ErrorCode = "malformed_request"
	ErrCodeExtractionFailed       ErrorCode = "extraction_failed"
	ErrCodeInvalidIntent          ErrorCode = "invalid_intent"
	ErrCodeForbiddenMetric        ErrorCode = "forbidden_metric"
	ErrCodeQueryExecutionFailed   ErrorCode = "query_execution_failed"
	ErrCodeAnswerGenerationFailed ErrorCode = "answer_generation_failed"

	ErrCodeUnauthorized ErrorCode = "unauthorized"
	ErrCodeRateLimited  ErrorCode = "rate_limited"
	ErrCodeInternal     ErrorCode = "internal_error"
)

// Query failure categories, derived from data-store error messages.
const (
	CategoryDatabaseUnavailable = "database_unavailable"
	CategoryQueryTimeout        = "query_timeout"
	CategoryUnknownField        = "unknown_field"
	CategoryInvalidFilterValue  = "invalid_filter_value"
	CategoryAccessDenied        = "access_denied"
	CategoryGeneric             = "generic"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata sets a metadata key and returns the same error for chaining.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError unwraps err looking for a StandardError.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewMalformedRequestError rejects caller input before the pipeline starts.
func NewMalformedRequestError(details string) *StandardError {
	return newError(ErrCodeMalformedRequest, "The request is malformed", details, nil)
}

// NewExtractionFailedError reports model output that could not be turned into an intent.
func NewExtractionFailedError(err error) *StandardError {
	return newError(ErrCodeExtractionFailed, "Could not understand the question", errDetails(err), err)
}

// NewInvalidIntentError reports an intent rejected by the whitelist checks.
func NewInvalidIntentError(reason string) *StandardError {
	return newError(ErrCodeInvalidIntent, reason, reason, nil)
}

// NewForbiddenMetricError reports a revenue or money metric.
func NewForbiddenMetricError(metric string) *StandardError {
	e := newError(ErrCodeForbiddenMetric, "Revenue and monetary metrics are not available", "metric: "+metric, nil)
	return e.WithMetadata("metric", metric)
}

// NewQueryExecutionFailedError classifies a data-store failure by its message.
func NewQueryExecutionFailedError(err error) *StandardError {
	category := ClassifyQueryError(err)
	e := newError(ErrCodeQueryExecutionFailed, queryCategoryMessages[category], errDetails(err), err)
	e.Retryable = category == CategoryDatabaseUnavailable || category == CategoryQueryTimeout
	return e.WithMetadata("category", category)
}

// NewAnswerGenerationFailedError reports a failed model call after a result was computed.
func NewAnswerGenerationFailedError(err error) *StandardError {
	return newError(ErrCodeAnswerGenerationFailed, "Could not phrase the answer", errDetails(err), err)
}

// NewUnauthorizedError rejects a request with a missing or wrong API key.
func NewUnauthorizedError() *StandardError {
	return newError(ErrCodeUnauthorized, "Unauthorized", "", nil)
}

// NewRateLimitedError rejects a caller over its request budget.
func NewRateLimitedError(callerID string) *StandardError {
	return newError(ErrCodeRateLimited, "Too many requests", "caller: "+callerID, nil)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", errDetails(err), err)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 4. Query Error Classification
// ==========================

var queryCategoryMessages = map[string]string{
	CategoryDatabaseUnavailable: "The database is currently unavailable",
	CategoryQueryTimeout:        "The query took too long to complete",
	CategoryUnknownField:        "The requested field does not exist",
	CategoryInvalidFilterValue:  "A filter value has the wrong format",
	CategoryAccessDenied:        "Access to the requested data was denied",
	CategoryGeneric:             "The query could not be executed",
}

var queryErrorPatterns = []struct {
	category string
	needles  []string
}{
	{CategoryDatabaseUnavailable, []string{"connection refused", "bad connection", "no such host", "database is closed", "too many clients"}},
	{CategoryQueryTimeout, []string{"context deadline exceeded", "canceling statement", "statement timeout", "i/o timeout"}},
	{CategoryUnknownField, []string{"does not exist", "undefined column"}},
	{CategoryInvalidFilterValue, []string{"invalid input syntax", "invalid input value"}},
	{CategoryAccessDenied, []string{"permission denied"}},
}

// ClassifyQueryError sniffs a data-store error message for a known category.
func ClassifyQueryError(err error) string {
	if err == nil {
		return CategoryGeneric
	}
	msg := strings.ToLower(err.Error())
	for _, p := range queryErrorPatterns {
		for _, needle := range p.needles {
			if strings.Contains(msg, needle) {
				return p.category
			}
		}
	}
	return CategoryGeneric
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeMalformedRequest:       "MALFORMED_REQUEST",
	ErrCodeExtractionFailed:       "EXTRACTION_FAILED",
	ErrCodeInvalidIntent:          "INVALID_INTENT",
	ErrCodeForbiddenMetric:        "FORBIDDEN_METRIC",
	ErrCodeQueryExecutionFailed:   "QUERY_EXECUTION_FAILED",
	ErrCodeAnswerGenerationFailed: "ANSWER_GENERATION_FAILED",
	ErrCodeInternal:               "INTERNAL_ERROR",
}

// GetRetryCount returns the recommended job retry count for a code.
// Pipeline failures terminate the request, so only infrastructure failures retry.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeQueryExecutionFailed:
		return 2
	case ErrCodeInternal:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = strings.ToUpper(string(stdErr.Code))
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if category, ok := stdErr.Metadata["category"]; ok {
		vars["errorCategory"] = category
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 6. Utility Functions
// ==========================

// IsClientError reports whether the code is caused by the caller's input.
func IsClientError(code ErrorCode) bool {
	switch code {
	case ErrCodeMalformedRequest, ErrCodeExtractionFailed, ErrCodeInvalidIntent,
		ErrCodeForbiddenMetric, ErrCodeUnauthorized, ErrCodeRateLimited:
		return true
	}
	return false
}

// GetErrorCategory returns the coarse category of an error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeMalformedRequest, ErrCodeInvalidIntent:
		return "VALIDATION"
	case ErrCodeForbiddenMetric, ErrCodeUnauthorized, ErrCodeRateLimited:
		return "POLICY"
	case ErrCodeExtractionFailed, ErrCodeAnswerGenerationFailed:
		return "AI"
	case ErrCodeQueryExecutionFailed:
		return "DATABASE"
	default:
		return "OTHER"
	}
}

// HTTPStatus maps an error code to the HTTP status returned by the API.
func HTTPStatus(stdErr *StandardError) int {
	switch stdErr.Code {
	case ErrCodeMalformedRequest:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbiddenMetric:
		return http.StatusForbidden
	case ErrCodeExtractionFailed, ErrCodeInvalidIntent:
		return http.StatusUnprocessableEntity
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeQueryExecutionFailed:
		if c, _ := stdErr.Metadata["category"].(string); c == CategoryDatabaseUnavailable || c == CategoryQueryTimeout {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case ErrCodeAnswerGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
