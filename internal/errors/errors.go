package errors

import (
	"errors"
	"fmt"
)

// TrawlError carries a stable error code plus the context needed for
// logging, retries, and user-facing suggestions. Category, severity, and
// retryability are all derived from the code, so call sites only choose
// the code and message.
type TrawlError struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string
}

func (e *TrawlError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TrawlError) Unwrap() error {
	return e.Cause
}

// Is matches two TrawlErrors by code, so errors.Is(err, New(code, ""))
// works as a code check anywhere in a wrap chain.
func (e *TrawlError) Is(target error) bool {
	t, ok := target.(*TrawlError)
	return ok && e.Code == t.Code
}

// WithDetail attaches a key-value pair. Chainable.
func (e *TrawlError) WithDetail(key, value string) *TrawlError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an actionable hint for the user. Chainable.
func (e *TrawlError) WithSuggestion(suggestion string) *TrawlError {
	e.Suggestion = suggestion
	return e
}

// New builds a TrawlError from a code and message.
func New(code string, message string) *TrawlError {
	return newError(code, message, nil)
}

// Wrap builds a TrawlError around an underlying cause.
func Wrap(err error, code string, message string) *TrawlError {
	return newError(code, message, err)
}

func newError(code, message string, cause error) *TrawlError {
	return &TrawlError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *TrawlError {
	return newError(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *TrawlError {
	return newError(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *TrawlError {
	return newError(ErrCodeInternal, message, cause)
}

// GitIndexingError creates the fatal error for a failed git-aware indexing
// run. There is deliberately no fallback constructor: callers must surface
// this error, never substitute degraded non-git behavior.
func GitIndexingError(cause error) *TrawlError {
	return newError(ErrCodeGitIndexingFailed,
		"git-aware indexing failed and fallbacks are disabled", cause)
}

// asTrawl finds the first TrawlError in err's chain.
func asTrawl(err error) (*TrawlError, bool) {
	var te *TrawlError
	ok := errors.As(err, &te)
	return te, ok
}

// IsRetryable reports whether the operation that produced err may be
// retried. Non-TrawlErrors are never retryable.
func IsRetryable(err error) bool {
	te, ok := asTrawl(err)
	return ok && te.Retryable
}

// IsFatal reports whether err must abort the current operation.
func IsFatal(err error) bool {
	te, ok := asTrawl(err)
	return ok && te.Severity == SeverityFatal
}

// GetCode returns err's code, or "" for non-TrawlErrors.
func GetCode(err error) string {
	if te, ok := asTrawl(err); ok {
		return te.Code
	}
	return ""
}

// GetCategory returns err's category, or "" for non-TrawlErrors.
func GetCategory(err error) Category {
	if te, ok := asTrawl(err); ok {
		return te.Category
	}
	return ""
}
