package noaa

import "fmt"

// TransientError indicates a transport failure, rate limit, or upstream
// server error. Safe to retry with backoff.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient fetch error: API returned status %d", e.Status)
	}
	return fmt.Sprintf("transient fetch error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Retryable marks the error as safe to retry
func (e *TransientError) Retryable() bool {
	return true
}

// InvalidRequestError indicates the API rejected the request (bad station
// id, malformed range). Retrying the same request cannot succeed.
type InvalidRequestError struct {
	Status int
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("invalid request: API returned status %d: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// Retryable marks the error as not safe to retry
func (e *InvalidRequestError) Retryable() bool {
	return false
}

// SchemaError indicates the response body did not match the expected shape,
// which usually means the API contract changed underneath us.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unexpected API response shape: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Retryable marks the error as not safe to retry
func (e *SchemaError) Retryable() bool {
	return false
}
