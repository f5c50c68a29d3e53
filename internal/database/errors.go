package database

import "fmt"

// StoreUnavailableError indicates the underlying store could not be used
// (file lock contention, disk error). Safe to retry with backoff.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// Retryable marks the error as safe to retry
func (e *StoreUnavailableError) Retryable() bool {
	return true
}

// InvalidRowError indicates a malformed row, such as a missing primary-key
// component. The batch it arrived in is rejected; retrying cannot succeed.
type InvalidRowError struct {
	StationID string
	Reason    string
}

func (e *InvalidRowError) Error() string {
	return fmt.Sprintf("invalid row (station %q): %s", e.StationID, e.Reason)
}

// Retryable marks the error as not safe to retry
func (e *InvalidRowError) Retryable() bool {
	return false
}
