package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrEndOfRun is returned by ExportSession.NextBlock when the server reports
// that the run has no more rows. It is not a failure.
var ErrEndOfRun = errors.New("end of export run")

// ErrorKind names the stage of an export that failed.
type ErrorKind string

const (
	KindInitialization ErrorKind = "initialization"
	KindFetch          ErrorKind = "fetch"
	KindStreaming      ErrorKind = "streaming"
)

// InitializationError is returned when an export run could not be started,
// either because the remote call failed or because it returned no usable
// run identifier.
type InitializationError struct {
	WorkspaceID int
	Message     string
	Underlying  error
}

// Error returns the error message for InitializationError.
func (e *InitializationError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("initialize export in workspace %d: %v", e.WorkspaceID, e.Underlying)
	}
	return fmt.Sprintf("initialize export in workspace %d: %s", e.WorkspaceID, e.Message)
}

// Unwrap returns the underlying error.
func (e *InitializationError) Unwrap() error { return e.Underlying }

// Kind returns KindInitialization.
func (e *InitializationError) Kind() ErrorKind { return KindInitialization }

// IsRetryable reports whether the underlying failure looked transient.
func (e *InitializationError) IsRetryable() bool {
	return e.Underlying != nil && NewErrorClassifier().IsTemporary(e.Underlying)
}

// FetchError is returned when a results block could not be retrieved.
// It never means end-of-run.
type FetchError struct {
	RunID      string
	Block      int
	Underlying error
}

// Error returns the error message for FetchError.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch block %d of run %s: %v", e.Block, e.RunID, e.Underlying)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error { return e.Underlying }

// Kind returns KindFetch.
func (e *FetchError) Kind() ErrorKind { return KindFetch }

// IsRetryable reports whether the underlying failure looked transient.
func (e *FetchError) IsRetryable() bool {
	return NewErrorClassifier().IsTemporary(e.Underlying)
}

// StreamingError is returned when a long-text value could not be streamed
// or decoded.
type StreamingError struct {
	ArtifactID int
	Field      string
	Underlying error
}

// Error returns the error message for StreamingError.
func (e *StreamingError) Error() string {
	return fmt.Sprintf("stream field %q of object %d: %v", e.Field, e.ArtifactID, e.Underlying)
}

// Unwrap returns the underlying error.
func (e *StreamingError) Unwrap() error { return e.Underlying }

// Kind returns KindStreaming.
func (e *StreamingError) Kind() ErrorKind { return KindStreaming }

// IsRetryable reports whether the underlying failure looked transient.
func (e *StreamingError) IsRetryable() bool {
	return NewErrorClassifier().IsTemporary(e.Underlying)
}

// ContractError reports a call that violates the session's contract, such
// as resolving a field that is not long text.
type ContractError struct {
	Operation string
	Message   string
}

// Error returns the error message for ContractError.
func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// StateError reports an operation attempted in the wrong session state.
type StateError struct {
	Operation string
	State     SessionState
}

// Error returns the error message for StateError.
func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Operation, e.State)
}

// HTTPError represents an HTTP error response from the export API.
type HTTPError struct {
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int

	// Status is the HTTP status text (e.g., "400 Bad Request").
	Status string

	// Message is the error message from the API response.
	Message string

	// ErrorType is the platform's error type name, if reported.
	ErrorType string
}

// Error returns the error message for HTTPError.
func (e *HTTPError) Error() string {
	if e.ErrorType != "" && e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s (%s)", e.StatusCode, e.Message, e.ErrorType)
	} else if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %s", e.Status)
}

// IsRetryable returns true if this HTTP error should trigger a retry.
func (e *HTTPError) IsRetryable() bool {
	return isRetryableHTTPStatus(e.StatusCode)
}

// IsNotFound returns true if this is a 404 Not Found error.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsServerError returns true if this is a 5xx server error.
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// RateLimitError represents a rate limit error (HTTP 429).
type RateLimitError struct {
	// RetryAfter is the duration to wait before retrying.
	RetryAfter time.Duration

	Message string
}

// Error returns the error message for RateLimitError.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %v: %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("rate limit exceeded: %s", e.Message)
}

// IsRetryable returns true since rate limit errors should always be retried.
func (e *RateLimitError) IsRetryable() bool {
	return true
}

// ValidationError represents a request rejected before it was sent.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// IsRetryable returns false since validation errors indicate client bugs.
func (e *ValidationError) IsRetryable() bool {
	return false
}

// NetworkError represents a network-level error.
type NetworkError struct {
	Operation  string
	Address    string
	Underlying error
}

// Error returns the error message for NetworkError.
func (e *NetworkError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("network error during %s to %s: %v", e.Operation, e.Address, e.Underlying)
	}
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Underlying)
}

// IsRetryable returns true unless the request was cancelled by the caller.
func (e *NetworkError) IsRetryable() bool {
	return !errors.Is(e.Underlying, context.Canceled) && !errors.Is(e.Underlying, context.DeadlineExceeded)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *NetworkError) Unwrap() error {
	return e.Underlying
}

// AuthenticationError represents a rejected credential (HTTP 401).
type AuthenticationError struct {
	Message string
}

// Error returns the error message for AuthenticationError.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error: %s", e.Message)
}

// IsRetryable returns false since authentication errors require new credentials.
func (e *AuthenticationError) IsRetryable() bool {
	return false
}

// AuthorizationError represents a credential without access (HTTP 403).
type AuthorizationError struct {
	Message  string
	Resource string
}

// Error returns the error message for AuthorizationError.
func (e *AuthorizationError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("authorization error for resource '%s': %s", e.Resource, e.Message)
	}
	return fmt.Sprintf("authorization error: %s", e.Message)
}

// IsRetryable returns false since authorization errors require permission changes.
func (e *AuthorizationError) IsRetryable() bool {
	return false
}

// SerializationError represents an error during JSON encoding or decoding.
type SerializationError struct {
	// Operation is "marshal" or "unmarshal".
	Operation  string
	Type       string
	Underlying error
}

// Error returns the error message for SerializationError.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s of %s: %v", e.Operation, e.Type, e.Underlying)
}

// IsRetryable returns false since serialization errors indicate data format issues.
func (e *SerializationError) IsRetryable() bool {
	return false
}

// Unwrap returns the underlying error for error unwrapping.
func (e *SerializationError) Unwrap() error {
	return e.Underlying
}

// apiErrorBody is the JSON error document returned by the platform.
type apiErrorBody struct {
	Message   string `json:"Message"`
	ErrorType string `json:"ErrorType"`
}

// ErrorClassifier provides methods for classifying and handling different types of errors.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// IsRetryable determines if an error should trigger a retry attempt.
//
// Arguments:
//   - err: The error to classify.
//
// Returns:
//   - bool: True if the error is retryable, false otherwise.
func (ec *ErrorClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable interface{ IsRetryable() bool }
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return isRetryableError(err)
}

// ClassifyHTTPError creates a specific error type based on an HTTP response.
//
// Arguments:
//   - resp: The HTTP response containing the error.
//   - body: The response body (if available).
//
// Returns:
//   - error: A specific error type based on the HTTP response.
func (ec *ErrorClassifier) ClassifyHTTPError(resp *http.Response, body []byte) error {
	if resp == nil {
		return fmt.Errorf("nil HTTP response")
	}

	var parsed apiErrorBody
	message := ""
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
			message = parsed.Message
		} else {
			message = string(body)
		}
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    message,
		}
	case http.StatusUnauthorized:
		if message == "" {
			message = "invalid or missing credentials"
		}
		return &AuthenticationError{Message: message}
	case http.StatusForbidden:
		if message == "" {
			message = "insufficient permissions"
		}
		authzErr := &AuthorizationError{Message: message}
		if resp.Request != nil && resp.Request.URL != nil {
			authzErr.Resource = resp.Request.URL.Path
		}
		return authzErr
	}

	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    message,
		ErrorType:  parsed.ErrorType,
	}
}

// WrapNetworkError wraps a network error with additional context.
func (ec *ErrorClassifier) WrapNetworkError(operation, address string, err error) error {
	return &NetworkError{
		Operation:  operation,
		Address:    address,
		Underlying: err,
	}
}

// WrapSerializationError creates a serialization error with context.
func (ec *ErrorClassifier) WrapSerializationError(operation, typeName string, err error) error {
	return &SerializationError{
		Operation:  operation,
		Type:       typeName,
		Underlying: err,
	}
}

// IsTemporary checks if an error is temporary and likely to resolve itself.
//
// Arguments:
//   - err: The error to check.
//
// Returns:
//   - bool: True if the error is likely temporary, false otherwise.
func (ec *ErrorClassifier) IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	var (
		netErr     *NetworkError
		rateErr    *RateLimitError
		httpErr    *HTTPError
		breakerErr *CircuitBreakerError
	)
	switch {
	case errors.As(err, &rateErr), errors.As(err, &breakerErr):
		return true
	case errors.As(err, &netErr):
		return netErr.IsRetryable()
	case errors.As(err, &httpErr):
		return httpErr.IsServerError()
	}

	return false
}

// IsPermanent checks if an error is permanent and won't resolve with retries.
//
// Arguments:
//   - err: The error to check.
//
// Returns:
//   - bool: True if the error is permanent, false otherwise.
func (ec *ErrorClassifier) IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var (
		authnErr *AuthenticationError
		authzErr *AuthorizationError
		valErr   *ValidationError
		serErr   *SerializationError
		httpErr  *HTTPError
	)
	switch {
	case errors.As(err, &authnErr), errors.As(err, &authzErr), errors.As(err, &valErr), errors.As(err, &serErr):
		return true
	case errors.As(err, &httpErr):
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
	}

	return false
}
