package domain

import "fmt"

// Outcome classifies how one executor run ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeFinished
	OutcomeCancelled
	OutcomePaused
	OutcomeRetryLater
	OutcomeFailedUnknown
	OutcomeFailedMountUnavailable
	OutcomeFailedNotEnoughSpace
	OutcomeFailedHTTPProtocolError
	OutcomeFailedNetworkError
	OutcomeFailedTooManyRedirects
	OutcomeFailedTooManyRetries
	OutcomeFailedCannotResume
	OutcomeFailedUnhandledRedirect
	OutcomeFailedUnhandledHTTPCode
	OutcomeFailedHTTPErrorCode
	OutcomeFailedFileNotFound
	OutcomeFailedConnectionRefused
	OutcomeFailedFTPLoginError
	OutcomeFailedSizeMismatch
	OutcomeFailedChecksumMismatch
)

var outcomeNames = [...]string{
	OutcomeNone:                    "none",
	OutcomeFinished:                "finished",
	OutcomeCancelled:               "cancelled",
	OutcomePaused:                  "paused",
	OutcomeRetryLater:              "retry_later",
	OutcomeFailedUnknown:           "failed_unknown",
	OutcomeFailedMountUnavailable:  "failed_mount_unavailable",
	OutcomeFailedNotEnoughSpace:    "failed_not_enough_space",
	OutcomeFailedHTTPProtocolError: "failed_http_protocol_error",
	OutcomeFailedNetworkError:      "failed_network_error",
	OutcomeFailedTooManyRedirects:  "failed_too_many_redirects",
	OutcomeFailedTooManyRetries:    "failed_too_many_retries",
	OutcomeFailedCannotResume:      "failed_cannot_resume",
	OutcomeFailedUnhandledRedirect: "failed_unhandled_redirect",
	OutcomeFailedUnhandledHTTPCode: "failed_unhandled_http_code",
	OutcomeFailedHTTPErrorCode:     "failed_http_error_code",
	OutcomeFailedFileNotFound:      "failed_file_not_found",
	OutcomeFailedConnectionRefused: "failed_connection_refused",
	OutcomeFailedFTPLoginError:     "failed_ftp_login_error",
	OutcomeFailedSizeMismatch:      "failed_size_mismatch",
	OutcomeFailedChecksumMismatch:  "failed_checksum_mismatch",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(name string) (Outcome, error) {
	for i, n := range outcomeNames {
		if n == name {
			return Outcome(i), nil
		}
	}
	return OutcomeNone, fmt.Errorf("unknown outcome %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	parsed, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// IsFailure reports whether the outcome puts a transfer in StatusFailed.
func (o Outcome) IsFailure() bool {
	return o >= OutcomeFailedUnknown
}

// Requeues reports whether a transfer ending with o goes back to the pending
// queue. Finished, cancelled and failed runs do not.
func (o Outcome) Requeues() bool {
	switch o {
	case OutcomeFinished, OutcomeCancelled:
		return false
	}
	return !o.IsFailure()
}
