package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassificationFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeRegistryCorrupt, CategoryIO, SeverityError, false},
		{ErrCodeRegistrySave, CategoryIO, SeverityFatal, false},
		{ErrCodeStoreTimeout, CategoryNetwork, SeverityWarning, true},
		{ErrCodeStoreUnavailable, CategoryNetwork, SeverityWarning, true},
		{ErrCodeInvalidInput, CategoryValidation, SeverityError, false},
		{ErrCodeGitTimeout, CategoryInternal, SeverityWarning, true},
		{ErrCodeGitIndexingFailed, CategoryInternal, SeverityFatal, false},
		{ErrCodeRefCountUnderflow, CategoryInternal, SeverityFatal, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := New(tt.code, "boom")
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.retryable, e.Retryable)
		})
	}
}

func TestError_FormatAndUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	e := Wrap(cause, ErrCodeStoreUnavailable, "store unreachable")

	assert.Equal(t, "[ERR_302_STORE_UNAVAILABLE] store unreachable", e.Error())
	assert.ErrorIs(t, e, cause)
}

func TestError_IsMatchesByCode(t *testing.T) {
	a := New(ErrCodeAliasNotFound, "alias x missing")
	b := New(ErrCodeAliasNotFound, "different message")

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, New(ErrCodeInvalidInput, "alias x missing"))
}

func TestError_WithDetailAndSuggestion(t *testing.T) {
	e := New(ErrCodeSwapPrecond, "target moved").
		WithDetail("expected", "/v1").
		WithDetail("actual", "/v2").
		WithSuggestion("re-resolve and retry")

	assert.Equal(t, "/v1", e.Details["expected"])
	assert.Equal(t, "/v2", e.Details["actual"])
	assert.Equal(t, "re-resolve and retry", e.Suggestion)
}

func TestHelperConstructors(t *testing.T) {
	assert.Equal(t, ErrCodeConfigInvalid, ConfigError("bad", nil).Code)
	assert.Equal(t, ErrCodeInvalidInput, ValidationError("bad", nil).Code)
	assert.Equal(t, ErrCodeInternal, InternalError("bad", nil).Code)

	git := GitIndexingError(stderrors.New("mode mismatch"))
	assert.Equal(t, ErrCodeGitIndexingFailed, git.Code)
	assert.True(t, IsFatal(git))
}

func TestPredicatesUnwrapNestedErrors(t *testing.T) {
	inner := New(ErrCodeStoreTimeout, "slow scroll")
	wrapped := fmt.Errorf("during reconcile: %w", inner)

	require.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrCodeStoreTimeout, GetCode(wrapped))
	assert.Equal(t, CategoryNetwork, GetCategory(wrapped))
}

func TestPredicatesOnForeignErrors(t *testing.T) {
	plain := stderrors.New("plain")

	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(plain))
	assert.Empty(t, GetCode(plain))
	assert.Empty(t, GetCategory(plain))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsFatal(nil))
}
