package client

import "time"

// Result represents the tagged outcome of a remote call: either Data or Error
// is meaningful, never both. Every export API wrapper returns a Result so the
// session can match on it instead of relying on panics or sentinel values.
type Result[T any] struct {
	// Data contains the successful result of the operation.
	Data T

	// Error contains any error that occurred during the operation.
	Error error

	// Metadata contains timing and retry information about the call.
	Metadata *ResultMetadata
}

// ResultMetadata contains observability information about an operation.
type ResultMetadata struct {
	// Operation names the remote call, e.g. "initializeexport".
	Operation string

	// Attempt is the number of attempts made (1 = first attempt succeeded).
	Attempt int

	// Duration is the total time taken for the operation including retries.
	Duration time.Duration
}

// IsSuccess returns true if the result represents a successful operation.
func (r *Result[T]) IsSuccess() bool {
	return r.Error == nil
}

// IsError returns true if the result represents a failed operation.
func (r *Result[T]) IsError() bool {
	return r.Error != nil
}

// Success creates a successful result with the given data.
//
// Example:
//
//	return Success(rows)
func Success[T any](data T) Result[T] {
	return Result[T]{Data: data}
}

// Error creates an error result with the given error.
//
// Example:
//
//	return Error[[]Row](fmt.Errorf("block not available"))
func Error[T any](err error) Result[T] {
	var zero T
	return Result[T]{Data: zero, Error: err}
}

// SuccessWithMetadata creates a successful result with data and metadata.
func SuccessWithMetadata[T any](data T, metadata *ResultMetadata) Result[T] {
	return Result[T]{Data: data, Metadata: metadata}
}

// ErrorWithMetadata creates an error result with an error and metadata.
func ErrorWithMetadata[T any](err error, metadata *ResultMetadata) Result[T] {
	var zero T
	return Result[T]{Data: zero, Error: err, Metadata: metadata}
}

// ToGoResult converts a Result[T] to Go's (T, error) pattern.
//
// Example:
//
//	rows, err := ToGoResult(api.RetrieveNextResultsBlockFromExport(ctx, ws, runID, 10))
func ToGoResult[T any](result Result[T]) (T, error) {
	if result.IsError() {
		var zero T
		return zero, result.Error
	}
	return result.Data, nil
}

// FromGoResult converts Go's (T, error) pattern to Result[T].
func FromGoResult[T any](data T, err error) Result[T] {
	if err != nil {
		return Error[T](err)
	}
	return Success(data)
}
