package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/vinayprograms/taskwatch/errors"
	"github.com/vinayprograms/taskwatch/logging"
)

// Default retry parameters.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Caller runs operations against the remote service, retrying failures
// the error taxonomy marks as retryable. Delays grow exponentially:
// BaseDelay before the first retry, doubled before each one after.
type Caller struct {
	maxRetries int
	baseDelay  time.Duration
	jitter     bool
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *logging.Logger
}

// Option configures a Caller.
type Option func(*Caller)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(c *Caller) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Caller) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithJitter randomizes each delay between 50% and 100% of its nominal
// value, so callers retrying the same outage don't synchronize.
func WithJitter() Option {
	return func(c *Caller) {
		c.jitter = true
	}
}

// WithSleep replaces the delay function. Tests use this to observe delays
// without waiting for them.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Caller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Caller) {
		c.logger = l
	}
}

// NewCaller creates a Caller with the default retry policy.
func NewCaller(opts ...Option) *Caller {
	c := &Caller{
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      sleepCtx,
		logger:     logging.New().WithComponent("retry"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do runs op, retrying retryable failures up to the retry budget. The
// operation name appears in logs and in the exhaustion error. A permanent
// error returns immediately; spending the budget returns RETRIES_EXHAUSTED
// wrapping the last failure.
func (c *Caller) Do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	var lastErr error

	attempts := c.maxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, operation+" aborted")
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := c.delay(attempt)
		c.logger.RetryAttempt(operation, attempt, delay, err)
		if serr := c.sleep(ctx, delay); serr != nil {
			return errors.Wrap(serr, operation+" aborted during backoff")
		}
	}

	return errors.RetriesExhausted(attempts, lastErr)
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, c *Caller, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Do(ctx, operation, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// delay returns the backoff before retry number attempt (1-based).
func (c *Caller) delay(attempt int) time.Duration {
	d := c.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	if c.jitter {
		d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
	}
	return d
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
