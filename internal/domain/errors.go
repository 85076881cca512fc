package domain

import (
	"errors"
	"time"
)

// Common domain errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidSpec  = errors.New("invalid transfer spec")
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownTransfer is returned by queries and commands given an id the
	// queue has never seen. It is a caller bug, not a transfer failure.
	ErrUnknownTransfer = errors.New("unknown transfer")

	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUnsupportedScheme      = errors.New("unsupported url scheme")

	// Executor errors
	ErrMountUnavailable  = errors.New("download directory unavailable")
	ErrInsufficientSpace = errors.New("insufficient space")
	ErrSizeMismatch      = errors.New("downloaded size does not match content length")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
)

// TransferError attaches an outcome classification to an error raised while
// running a transfer.
type TransferError struct {
	Outcome Outcome
	Err     error
}

// Error returns the error message
func (e *TransferError) Error() string {
	if e.Err != nil {
		return e.Outcome.String() + ": " + e.Err.Error()
	}
	return e.Outcome.String()
}

// Unwrap returns the underlying error
func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a new transfer error
func NewTransferError(outcome Outcome, err error) *TransferError {
	return &TransferError{Outcome: outcome, Err: err}
}

// OutcomeOf extracts the outcome carried by err, if any.
func OutcomeOf(err error) (Outcome, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Outcome, true
	}
	return OutcomeNone, false
}

// RetryableError represents a server asking the client to come back later.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
