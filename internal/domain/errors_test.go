package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTransferError_Error(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		err     error
		want    string
	}{
		{
			name:    "with underlying error",
			outcome: OutcomeFailedNetworkError,
			err:     errors.New("connection reset"),
			want:    "failed_network_error: connection reset",
		},
		{
			name:    "outcome only",
			outcome: OutcomeFailedCannotResume,
			err:     nil,
			want:    "failed_cannot_resume",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := NewTransferError(tt.outcome, tt.err)
			if got := te.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Outcome
		wantOk bool
	}{
		{
			name:   "transfer error",
			err:    NewTransferError(OutcomeFailedNotEnoughSpace, ErrInsufficientSpace),
			want:   OutcomeFailedNotEnoughSpace,
			wantOk: true,
		},
		{
			name:   "wrapped transfer error",
			err:    fmt.Errorf("http: %w", NewTransferError(OutcomeFailedFileNotFound, nil)),
			want:   OutcomeFailedFileNotFound,
			wantOk: true,
		},
		{
			name:   "regular error",
			err:    errors.New("regular error"),
			want:   OutcomeNone,
			wantOk: false,
		},
		{
			name:   "nil error",
			err:    nil,
			want:   OutcomeNone,
			wantOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OutcomeOf(tt.err)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("OutcomeOf() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestRetryableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "with underlying error",
			err:  errors.New("service unavailable"),
			want: "service unavailable",
		},
		{
			name: "nil error",
			err:  nil,
			want: "retryable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := NewRetryableError(tt.err, time.Second)
			if got := re.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRetryAfter(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantDuration time.Duration
		wantOk       bool
	}{
		{
			name:         "retryable error",
			err:          NewRetryableError(errors.New("err"), 5*time.Minute),
			wantDuration: 5 * time.Minute,
			wantOk:       true,
		},
		{
			name:         "wrapped retryable error",
			err:          fmt.Errorf("wrapped: %w", NewRetryableError(errors.New("err"), 30*time.Second)),
			wantDuration: 30 * time.Second,
			wantOk:       true,
		},
		{
			name:         "regular error",
			err:          errors.New("regular error"),
			wantDuration: 0,
			wantOk:       false,
		},
		{
			name:         "nil error",
			err:          nil,
			wantDuration: 0,
			wantOk:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			duration, ok := GetRetryAfter(tt.err)
			if duration != tt.wantDuration || ok != tt.wantOk {
				t.Errorf("GetRetryAfter() = (%v, %v), want (%v, %v)",
					duration, ok, tt.wantDuration, tt.wantOk)
			}
			if IsRetryable(tt.err) != tt.wantOk {
				t.Errorf("IsRetryable() = %v, want %v", !tt.wantOk, tt.wantOk)
			}
		})
	}
}

func TestErrorsAsUnwrap(t *testing.T) {
	te := NewTransferError(OutcomeFailedMountUnavailable, ErrMountUnavailable)
	if !errors.Is(te, ErrMountUnavailable) {
		t.Error("TransferError should unwrap to ErrMountUnavailable")
	}

	re := NewRetryableError(ErrInsufficientSpace, time.Second)
	if !errors.Is(re, ErrInsufficientSpace) {
		t.Error("RetryableError should unwrap to ErrInsufficientSpace")
	}
}
