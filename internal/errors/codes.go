// Package errors provides structured error handling for codetrawl.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Network / store errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network and store transport errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound    = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission  = "ERR_202_FILE_PERMISSION"
	ErrCodeRegistryCorrupt = "ERR_203_REGISTRY_CORRUPT"
	ErrCodeRegistrySave    = "ERR_204_REGISTRY_SAVE"
	ErrCodeAliasWrite      = "ERR_205_ALIAS_WRITE"

	// Network / store errors (300-399)
	ErrCodeStoreTimeout     = "ERR_301_STORE_TIMEOUT"
	ErrCodeStoreUnavailable = "ERR_302_STORE_UNAVAILABLE"
	ErrCodeStoreIO          = "ERR_303_STORE_IO"

	// Validation errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeAliasSuffix    = "ERR_402_ALIAS_SUFFIX"
	ErrCodeReservedName   = "ERR_403_RESERVED_NAME"
	ErrCodeSwapPrecond    = "ERR_404_SWAP_PRECONDITION"
	ErrCodeAliasNotFound  = "ERR_405_ALIAS_NOT_FOUND"
	ErrCodeInvalidPath    = "ERR_406_INVALID_PATH"
	ErrCodeQueryEmpty     = "ERR_407_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed   = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed      = "ERR_503_SEARCH_FAILED"
	ErrCodeGitCommand        = "ERR_504_GIT_COMMAND"
	ErrCodeGitTimeout        = "ERR_505_GIT_TIMEOUT"
	ErrCodeGitIndexingFailed = "ERR_506_GIT_INDEXING_FAILED"
	ErrCodeRefCountUnderflow = "ERR_507_REFCOUNT_UNDERFLOW"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeGitIndexingFailed, ErrCodeRefCountUnderflow, ErrCodeRegistrySave:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreTimeout, ErrCodeStoreUnavailable, ErrCodeGitTimeout:
		return true
	default:
		return false
	}
}
