package provider

import (
	"fmt"
	"strings"
	"time"
)

// AdapterError is the base error type for all provider errors.
type AdapterError struct {
	Message string
	Cause   error
}

func (e *AdapterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// BackendError represents an error returned by an LLM backend. Retryable
// distinguishes transient failures (retried with backoff) from permanent
// ones (surfaced immediately).
type BackendError struct {
	AdapterError
	Backend    string
	StatusCode int
	Retryable  bool
	RetryAfter *time.Duration
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Backend, e.Message, e.StatusCode, e.Retryable)
}

// Transient backend errors.

type RateLimitError struct{ BackendError }
type ServerError struct{ BackendError }

// Permanent backend errors.

type AuthError struct{ BackendError }
type ContextLengthError struct{ BackendError }

// InvalidRequestError is a permanent validation failure. It carries a digest
// of the offending request so the failure is diagnosable without replaying
// the call.
type InvalidRequestError struct {
	BackendError
	Digest RequestDigest
}

func (e *InvalidRequestError) Error() string {
	if e.Digest.MessageCount == 0 && e.Digest.ToolCount == 0 {
		return e.BackendError.Error()
	}
	return fmt.Sprintf("%s %s", e.BackendError.Error(), e.Digest)
}

// Non-backend errors.

// TimeoutError marks a single attempt exceeding its deadline. Retryable.
type TimeoutError struct {
	AdapterError
	Attempt int
}

// NetworkError marks a transport-level failure. Retryable.
type NetworkError struct{ AdapterError }

// AbortError marks a caller cancellation. Never retried.
type AbortError struct{ AdapterError }

// ConfigError marks client misconfiguration. Never retried.
type ConfigError struct{ AdapterError }

// RequestDigest summarizes a request for permanent-error diagnostics.
type RequestDigest struct {
	MessageCount int
	ToolCount    int
	ApproxBytes  int
	LastMessages []string
}

const digestPreviewLen = 120

// DigestRequest builds a diagnostic digest: message and tool counts, the
// approximate payload size, and a preview of the last few messages.
func DigestRequest(req Request) RequestDigest {
	d := RequestDigest{
		MessageCount: len(req.Messages),
		ToolCount:    len(req.Tools),
	}
	for _, m := range req.Messages {
		for _, b := range m.Blocks {
			d.ApproxBytes += len(b.PlainText())
		}
	}
	d.ApproxBytes += len(req.System)

	start := len(req.Messages) - 3
	if start < 0 {
		start = 0
	}
	for _, m := range req.Messages[start:] {
		preview := m.Text()
		if preview == "" {
			if uses := m.ToolUses(); len(uses) > 0 {
				preview = "tool_use: " + uses[0].Name
			} else if results := m.ToolResults(); len(results) > 0 {
				preview = "tool_result for " + results[0].ToolUseID
			}
		}
		preview = strings.ReplaceAll(preview, "\n", " ")
		if len(preview) > digestPreviewLen {
			preview = preview[:digestPreviewLen] + "..."
		}
		d.LastMessages = append(d.LastMessages, fmt.Sprintf("%s: %s", m.Role, preview))
	}
	return d
}

func (d RequestDigest) String() string {
	return fmt.Sprintf("(messages=%d tools=%d ~%dB; last: %s)",
		d.MessageCount, d.ToolCount, d.ApproxBytes, strings.Join(d.LastMessages, " | "))
}

// FromStatusCode maps an HTTP status code to the appropriate error type.
func FromStatusCode(backend string, statusCode int, msg string, retryAfter *time.Duration) error {
	be := BackendError{
		AdapterError: AdapterError{Message: msg},
		Backend:      backend,
		StatusCode:   statusCode,
		RetryAfter:   retryAfter,
	}

	switch statusCode {
	case 400, 404, 422:
		be.Retryable = false
		return &InvalidRequestError{BackendError: be}
	case 401, 403:
		be.Retryable = false
		return &AuthError{BackendError: be}
	case 408:
		be.Retryable = true
		return &TimeoutError{AdapterError: AdapterError{Message: msg}}
	case 413:
		be.Retryable = false
		return &ContextLengthError{BackendError: be}
	case 429:
		be.Retryable = true
		return &RateLimitError{BackendError: be}
	case 500, 502, 503, 504:
		be.Retryable = true
		return &ServerError{BackendError: be}
	default:
		if statusCode >= 400 && statusCode < 500 {
			be.Retryable = false
			return &InvalidRequestError{BackendError: be}
		}
		// Unknown status codes default to retryable.
		be.Retryable = true
		return &ServerError{BackendError: be}
	}
}

// IsRetryable reports whether the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *TimeoutError:
		return true
	case *NetworkError:
		return true
	case *AuthError:
		return false
	case *ContextLengthError:
		return false
	case *InvalidRequestError:
		return false
	case *AbortError:
		return false
	case *ConfigError:
		return false
	case *ToolArgumentError:
		return false
	case *BackendError:
		return e.Retryable
	default:
		return false
	}
}

// retryAfterOf extracts a Retry-After hint if the error carries one.
func retryAfterOf(err error) *time.Duration {
	if rl, ok := err.(*RateLimitError); ok {
		return rl.RetryAfter
	}
	return nil
}
