// Package llm talks to an OpenAI-compatible chat-completions endpoint and
// turns financial-document text into structured extraction records.
package llm

import "fmt"

// Error code values.
const (
	ErrTransport    = "TRANSPORT"
	ErrRateLimited  = "RATE_LIMITED"
	ErrBadResponse  = "BAD_RESPONSE"
	ErrParseFailure = "PARSE_FAILURE"
	ErrNoAPIKey     = "NO_API_KEY"
)

// Error is a structured LLM failure. Retryable errors are worth another
// attempt with backoff; the rest fail the call immediately.
type Error struct {
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Retryable: retryableCode(code)}
}

func wrapError(code string, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Retryable: retryableCode(code), Cause: cause}
}

func retryableCode(code string) bool {
	switch code {
	case ErrTransport, ErrRateLimited, ErrParseFailure, ErrBadResponse:
		return true
	}
	return false
}
