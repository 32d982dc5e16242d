package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RetryPolicy defines the strategy for retrying failed requests.
type RetryPolicy interface {
	// ShouldRetry determines if a request should be retried based on the error and attempt number.
	ShouldRetry(ctx context.Context, err error, attempt int) bool

	// BackoffDuration calculates how long to wait before the next retry attempt.
	BackoffDuration(attempt int) time.Duration
}

// DefaultRetryPolicy implements a retry policy with exponential backoff and jitter.
type DefaultRetryPolicy struct {
	config     RetryConfig
	classifier *ErrorClassifier
}

// NewDefaultRetryPolicy creates a new default retry policy with the given configuration.
//
// Arguments:
//   - config: Retry configuration specifying backoff behavior and limits.
//
// Returns:
//   - *DefaultRetryPolicy: A new default retry policy instance.
func NewDefaultRetryPolicy(config RetryConfig) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{config: config, classifier: NewErrorClassifier()}
}

// ShouldRetry determines if a request should be retried based on the error type and attempt count.
//
// Arguments:
//   - ctx: Context for the operation (checked for cancellation).
//   - err: The error that occurred during the request.
//   - attempt: The current attempt number (1-based).
//
// Returns:
//   - bool: True if the request should be retried, false otherwise.
func (p *DefaultRetryPolicy) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if ctx.Err() != nil {
		return false
	}

	if attempt > p.config.MaxRetries {
		return false
	}

	return p.classifier.IsRetryable(err)
}

// BackoffDuration calculates the backoff duration for a given attempt using
// exponential backoff with ±25% jitter.
//
// Arguments:
//   - attempt: The attempt number that just failed (1-based).
//
// Returns:
//   - time.Duration: The duration to wait before the next attempt.
func (p *DefaultRetryPolicy) BackoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	backoff := float64(p.config.BaseBackoff) * math.Pow(p.config.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(p.config.MaxBackoff) {
		backoff = float64(p.config.MaxBackoff)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.config.BaseBackoff)
	}

	return time.Duration(backoff)
}

// noRetryPolicy never retries. It is used for calls that advance server-side
// state, where a retry could skip or repeat data.
type noRetryPolicy struct{}

func (noRetryPolicy) ShouldRetry(context.Context, error, int) bool { return false }
func (noRetryPolicy) BackoffDuration(int) time.Duration            { return 0 }

// isRetryableError classifies errors that carry no IsRetryable method.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection reset",
		"connection refused",
		"no such host",
		"timeout",
		"temporary failure",
		"server misbehaving",
		"network is unreachable",
		"unexpected eof",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// isRetryableHTTPStatus determines if an HTTP status code should trigger a retry.
func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// RetryableOperation represents an operation that can be retried.
type RetryableOperation[T any] func(ctx context.Context, attempt int) (T, error)

// RetryObserver is notified before each backoff wait.
type RetryObserver func(attempt int, wait time.Duration, err error)

// ExecuteWithRetry executes an operation with retry logic according to the specified policy.
//
// Arguments:
//   - ctx: Context for cancellation and timeouts.
//   - operation: The operation to execute with retry logic.
//   - policy: The retry policy to use for determining retry behavior.
//   - observe: Optional callback invoked before each retry.
//
// Returns:
//   - T: The result of the successful operation.
//   - int: The number of attempts made.
//   - error: The final error if all retry attempts failed.
func ExecuteWithRetry[T any](ctx context.Context, operation RetryableOperation[T], policy RetryPolicy, observe RetryObserver) (T, int, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		result, err := operation(ctx, attempt)
		if err == nil {
			return result, attempt, nil
		}

		if !policy.ShouldRetry(ctx, err, attempt) {
			return zero, attempt, err
		}

		wait := policy.BackoffDuration(attempt)

		var rateLimitErr *RateLimitError
		if errors.As(err, &rateLimitErr) && rateLimitErr.RetryAfter > wait {
			wait = rateLimitErr.RetryAfter
		}

		if observe != nil {
			observe(attempt, wait, err)
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, attempt, ctx.Err()
			}
		}
	}
}

// CircuitBreaker implements the circuit breaker pattern to prevent cascading failures.
// When the error rate exceeds a threshold, the circuit opens and fails fast.
type CircuitBreaker struct {
	mu              sync.Mutex
	threshold       float64
	timeout         time.Duration
	requestCount    int
	errorCount      int
	lastFailureTime time.Time
	state           CircuitState
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means requests are allowed through normally.
	CircuitClosed CircuitState = iota

	// CircuitOpen means requests are failing fast.
	CircuitOpen

	// CircuitHalfOpen means we're testing if the service has recovered.
	CircuitHalfOpen
)

// minBreakerRequests is the number of requests observed before the breaker may open.
const minBreakerRequests = 10

// NewCircuitBreaker creates a new circuit breaker.
//
// Arguments:
//   - threshold: Error rate threshold (0.0-1.0) for opening the circuit.
//   - timeout: Duration to keep the circuit open before trying again.
//
// Returns:
//   - *CircuitBreaker: A new circuit breaker instance.
func NewCircuitBreaker(threshold float64, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		state:     CircuitClosed,
	}
}

// CanExecute checks if a request can be executed based on the circuit breaker state.
//
// Returns:
//   - error: A *CircuitBreakerError if the circuit is open, nil otherwise.
func (cb *CircuitBreaker) CanExecute() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.state = CircuitHalfOpen
			return nil
		}
		return &CircuitBreakerError{State: "open"}
	default:
		return &CircuitBreakerError{State: "unknown"}
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RecordSuccess records a successful request execution.
// A success in the half-open state closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.requestCount = 0
		cb.errorCount = 0
	}
}

// RecordFailure records a failed request execution.
// This may open the circuit if the error rate exceeds the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++
	cb.errorCount++
	cb.lastFailureTime = time.Now()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		return
	}

	if cb.requestCount < minBreakerRequests {
		return
	}

	if float64(cb.errorCount)/float64(cb.requestCount) >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// CircuitBreakerError represents an error when the circuit breaker is open.
type CircuitBreakerError struct {
	State string
}

// Error returns the error message for CircuitBreakerError.
func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// IsRetryable returns false so an open breaker fails the call immediately.
func (e *CircuitBreakerError) IsRetryable() bool {
	return false
}
