package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

/**
 * Error taxonomy for the OCR extraction engine
 *
 * Every failure that crosses a provider boundary is classified into one of
 * the codes below. The orchestrator only looks at Code and Retryable.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	ErrorProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrorRateLimited         ErrorCode = "RATE_LIMITED"
	ErrorQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	ErrorTimeout             ErrorCode = "TIMEOUT"
	ErrorInvalidResponse     ErrorCode = "INVALID_RESPONSE"
	ErrorAPI                 ErrorCode = "API_ERROR"
	ErrorAllProvidersFailed  ErrorCode = "ALL_PROVIDERS_FAILED"
)

// DefaultRetryAfter is used when a 429 carries no usable Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// OCRError represents a classified provider or orchestration failure
type OCRError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Provider   string                 `json:"provider,omitempty"`
	Retryable  bool                   `json:"retryable"`
	RetryAfter time.Duration          `json:"retryAfter,omitempty"`
	StatusCode int                    `json:"statusCode,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
}

func (e *OCRError) Error() string {
	prefix := string(e.Code)
	if e.Provider != "" {
		prefix = fmt.Sprintf("%s[%s]", e.Code, e.Provider)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *OCRError) Unwrap() error {
	return e.Cause
}

// Clone copies the error and its details; the cause is shared
func (e *OCRError) Clone() *OCRError {
	if e == nil {
		return nil
	}
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			if list, ok := v.([]string); ok {
				v = append([]string(nil), list...)
			}
			c.Details[k] = v
		}
	}
	return &c
}

// Factory functions for common errors

func NewProviderUnavailableError(provider string, reason string) *OCRError {
	return &OCRError{
		Code:      ErrorProviderUnavailable,
		Message:   fmt.Sprintf("provider unavailable: %s", reason),
		Provider:  provider,
		Retryable: false,
		Timestamp: time.Now(),
	}
}

func NewRateLimitedError(provider string, retryAfter time.Duration) *OCRError {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &OCRError{
		Code:       ErrorRateLimited,
		Message:    fmt.Sprintf("rate limited, retry after %v", retryAfter),
		Provider:   provider,
		Retryable:  true,
		RetryAfter: retryAfter,
		StatusCode: http.StatusTooManyRequests,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"retry_after_ms": retryAfter.Milliseconds(),
		},
	}
}

func NewQuotaExceededError(provider string, statusCode int, message string) *OCRError {
	if message == "" {
		message = "quota exceeded"
	}
	return &OCRError{
		Code:       ErrorQuotaExceeded,
		Message:    message,
		Provider:   provider,
		Retryable:  false,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
	}
}

func NewTimeoutError(provider string, timeout time.Duration, cause error) *OCRError {
	return &OCRError{
		Code:      ErrorTimeout,
		Message:   fmt.Sprintf("timed out after %v", timeout),
		Provider:  provider,
		Retryable: true,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": timeout.String(),
		},
		Cause: cause,
	}
}

func NewInvalidResponseError(provider string, cause error) *OCRError {
	return &OCRError{
		Code:      ErrorInvalidResponse,
		Message:   "malformed response from provider",
		Provider:  provider,
		Retryable: true,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewAPIError(provider string, statusCode int, retryable bool, cause error) *OCRError {
	msg := "provider API call failed"
	if statusCode > 0 {
		msg = fmt.Sprintf("provider returned status %d", statusCode)
	}
	return &OCRError{
		Code:       ErrorAPI,
		Message:    msg,
		Provider:   provider,
		Retryable:  retryable,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewAllProvidersFailedError(attempted []string, last error) *OCRError {
	return &OCRError{
		Code:      ErrorAllProvidersFailed,
		Message:   fmt.Sprintf("all providers failed (attempted: %s)", strings.Join(attempted, ", ")),
		Retryable: false,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"attempted": attempted,
		},
		Cause: last,
	}
}

// FromHTTPStatus classifies a non-2xx provider response.
// 429 => RATE_LIMITED, 402/403 => QUOTA_EXCEEDED, 5xx => retryable API_ERROR,
// any other status => non-retryable API_ERROR.
func FromHTTPStatus(provider string, statusCode int, body string, retryAfterHeader string) *OCRError {
	var cause error
	if body != "" {
		cause = stderrors.New(truncate(body, 512))
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		e := NewRateLimitedError(provider, ParseRetryAfter(retryAfterHeader, time.Now()))
		e.Cause = cause
		return e
	case statusCode == http.StatusPaymentRequired || statusCode == http.StatusForbidden:
		e := NewQuotaExceededError(provider, statusCode, fmt.Sprintf("quota exceeded (status %d)", statusCode))
		e.Cause = cause
		return e
	case statusCode >= 500:
		return NewAPIError(provider, statusCode, true, cause)
	default:
		return NewAPIError(provider, statusCode, false, cause)
	}
}

// ParseRetryAfter understands both delta-seconds and HTTP-date forms.
// Returns 0 when the header is absent or unparsable.
func ParseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// As extracts an *OCRError from an error chain
func As(err error) (*OCRError, bool) {
	var ocrErr *OCRError
	if stderrors.As(err, &ocrErr) {
		return ocrErr, true
	}
	return nil, false
}

// IsRetryable reports whether the orchestrator may retry after err.
// Unclassified errors are treated as retryable API errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ocrErr, ok := As(err); ok {
		return ocrErr.Retryable
	}
	return true
}

// CodeOf returns the taxonomy code of err, or API_ERROR for unclassified errors
func CodeOf(err error) ErrorCode {
	if ocrErr, ok := As(err); ok {
		return ocrErr.Code
	}
	return ErrorAPI
}

// ToMap converts error to map for job tracking storage
func (e *OCRError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"retryable":  e.Retryable,
		"timestamp":  e.Timestamp,
	}

	if e.Provider != "" {
		result["provider"] = e.Provider
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
