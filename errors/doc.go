// Package errors provides a structured error taxonomy for taskwatch. It
// defines the error codes and categories used by every component that talks
// to the remote task service, so retry and surfacing decisions are made in
// one place.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: Temporary failures where retry may succeed (network issues, 5xx)
//   - Permanent: Failures where retry will not help (invalid input, expired URL)
//   - Resource: Resource exhaustion issues (rate limits)
//   - Internal: Unexpected errors indicating bugs or system failures
//
// # Error Codes
//
// Each error has a specific code that identifies the type of failure:
//
//   - TIMEOUT: Operation timed out
//   - RETRIES_EXHAUSTED: Retry budget spent without success
//   - UPLOAD_EXPIRED: Presigned upload URL past its expiry
//   - COMPLETION_TIMEOUT: No terminal observation within the poll deadline
//   - UNKNOWN_TASK: Observation arrived for an untracked task
//   - And more...
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.ErrCodeTimeout, "task poll timed out")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "fetching task detail")
//
// Check if an error is retryable:
//
//	if errors.IsRetryable(err) {
//	    // retry logic
//	}
//
// # JSON Serialization
//
// All errors support JSON serialization for logging and diagnostics:
//
//	data, err := json.Marshal(svcErr)
package errors
