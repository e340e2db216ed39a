package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: network timeouts, 5xx responses from the task service.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid input, expired upload URL, oversized attachment.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: rate limiting by the remote service.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	// Examples: nil pointer, corrupted tracker state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Service temporarily unavailable (5xx)
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR" // Network connectivity issue

	// Permanent errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Resource does not exist
	ErrCodeConflict     ErrorCode = "CONFLICT"      // Conflicting operation or state
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed or invalid input
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"  // API key rejected
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"     // Authorization denied
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Operation was canceled

	// Resource errors
	ErrCodeRateLimit ErrorCode = "RATE_LIMITED" // Rate limit exceeded

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic

	// Task lifecycle errors
	ErrCodeRetriesExhausted  ErrorCode = "RETRIES_EXHAUSTED"  // Retry budget spent without success
	ErrCodeTaskCreateFailed  ErrorCode = "TASK_CREATE_FAILED" // Remote task creation failed
	ErrCodeCompletionTimeout ErrorCode = "COMPLETION_TIMEOUT" // No terminal observation within deadline
	ErrCodeUnknownTask       ErrorCode = "UNKNOWN_TASK"       // Observation for an untracked task

	// File attachment errors
	ErrCodeFileRegisterFailed ErrorCode = "FILE_REGISTER_FAILED" // File record creation failed
	ErrCodeUploadExpired      ErrorCode = "UPLOAD_EXPIRED"       // Presigned upload URL past expiry
	ErrCodeUploadFailed       ErrorCode = "UPLOAD_FAILED"        // Content upload failed
	ErrCodeAttachmentTooLarge ErrorCode = "ATTACHMENT_TOO_LARGE" // Inline attachment over size ceiling

	// Webhook errors
	ErrCodeInvalidWebhook ErrorCode = "INVALID_WEBHOOK" // Malformed webhook delivery
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	// Transient
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNetworkErr:
		return CategoryTransient

	// Permanent
	case ErrCodeNotFound, ErrCodeConflict, ErrCodeInvalidInput, ErrCodeUnauthorized,
		ErrCodeForbidden, ErrCodeCanceled:
		return CategoryPermanent

	// Resource
	case ErrCodeRateLimit:
		return CategoryResource

	// Internal
	case ErrCodeInternal, ErrCodePanic:
		return CategoryInternal

	// Task lifecycle (terminal from the caller's perspective)
	case ErrCodeRetriesExhausted, ErrCodeTaskCreateFailed, ErrCodeUnknownTask:
		return CategoryPermanent
	case ErrCodeCompletionTimeout:
		return CategoryTransient

	// Files and webhooks
	case ErrCodeFileRegisterFailed, ErrCodeUploadExpired, ErrCodeUploadFailed,
		ErrCodeAttachmentTooLarge, ErrCodeInvalidWebhook:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:            "operation timed out",
	ErrCodeUnavailable:        "service temporarily unavailable",
	ErrCodeNetworkErr:         "network connectivity error",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "conflicting operation",
	ErrCodeInvalidInput:       "invalid input provided",
	ErrCodeUnauthorized:       "authentication required",
	ErrCodeForbidden:          "access denied",
	ErrCodeCanceled:           "operation canceled",
	ErrCodeRateLimit:          "rate limit exceeded",
	ErrCodeInternal:           "internal error",
	ErrCodePanic:              "recovered from panic",
	ErrCodeRetriesExhausted:   "retries exhausted",
	ErrCodeTaskCreateFailed:   "task creation failed",
	ErrCodeCompletionTimeout:  "task did not complete within deadline",
	ErrCodeUnknownTask:        "task is not tracked",
	ErrCodeFileRegisterFailed: "file registration failed",
	ErrCodeUploadExpired:      "upload URL expired",
	ErrCodeUploadFailed:       "file upload failed",
	ErrCodeAttachmentTooLarge: "attachment exceeds size limit",
	ErrCodeInvalidWebhook:     "malformed webhook delivery",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
