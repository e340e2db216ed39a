// Package retry wraps calls to the remote task service with bounded
// exponential backoff.
//
// Only failures the error taxonomy marks as retryable are retried; a
// permanent error (invalid input, expired upload URL) surfaces on the
// first attempt. Spending the budget yields a RETRIES_EXHAUSTED error
// wrapping the last failure.
//
//	caller := retry.NewCaller(retry.WithMaxRetries(3), retry.WithJitter())
//	resp, err := retry.DoValue(ctx, caller, "create task", func(ctx context.Context) (*api.CreateTaskResponse, error) {
//	    return transport.CreateTask(ctx, req)
//	})
package retry
