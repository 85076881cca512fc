package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a transfer.
type Status int

const (
	StatusQueued Status = iota
	StatusStarting
	StatusRunning
	StatusPausedForData
	StatusPausedForWifi
	StatusPausedRetry
	StatusPausedUser
	StatusPausedSystem
	StatusCancelledUser
	StatusCompleted
	StatusFailed
)

// Filter is a bitmask of status categories used by list queries.
// The zero value matches every transfer.
type Filter int

const (
	FilterAll     Filter = 0
	FilterPending Filter = 1 << (iota - 1)
	FilterRunning
	FilterActive
	FilterInactive
	FilterPaused
	FilterCompleted
	FilterCancelled
	FilterFailed
)

var filterNames = []struct {
	name string
	bit  Filter
}{
	{"pending", FilterPending},
	{"running", FilterRunning},
	{"active", FilterActive},
	{"inactive", FilterInactive},
	{"paused", FilterPaused},
	{"completed", FilterCompleted},
	{"cancelled", FilterCancelled},
	{"failed", FilterFailed},
}

// ParseFilter parses a comma separated list of category names ("active,paused").
// An empty string is FilterAll.
func ParseFilter(s string) (Filter, error) {
	var f Filter
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || part == "all" {
			continue
		}
		found := false
		for _, fn := range filterNames {
			if fn.name == part {
				f |= fn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown filter %q", part)
		}
	}
	return f, nil
}

// Action is the primary user action offered for a status.
type Action string

const (
	ActionNone   Action = "none"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionRetry  Action = "retry"
	ActionFlash  Action = "flash"
)

type statusInfo struct {
	name       string
	categories Filter
	subtext    string
	action     Action
	terminal   bool
}

// statusTable must have one row per Status value, in declaration order.
var statusTable = [...]statusInfo{
	StatusQueued: {
		name:       "queued",
		categories: FilterActive | FilterPending,
		subtext:    "queued",
		action:     ActionNone,
	},
	StatusStarting: {
		name:       "starting",
		categories: FilterActive | FilterPending | FilterRunning,
		subtext:    "queued",
		action:     ActionNone,
	},
	StatusRunning: {
		name:       "running",
		categories: FilterActive | FilterRunning,
		action:     ActionPause,
	},
	StatusPausedForData: {
		name:       "paused_for_data",
		categories: FilterActive | FilterPending | FilterPaused,
		subtext:    "paused-for-network",
		action:     ActionNone,
	},
	StatusPausedForWifi: {
		name:       "paused_for_wifi",
		categories: FilterActive | FilterPending | FilterPaused,
		subtext:    "paused-for-wifi",
		action:     ActionNone,
	},
	StatusPausedRetry: {
		name:       "paused_retry",
		categories: FilterActive | FilterPending | FilterPaused,
		subtext:    "paused-retry",
		action:     ActionNone,
	},
	StatusPausedUser: {
		name:       "paused_user",
		categories: FilterInactive | FilterPaused,
		subtext:    "paused",
		action:     ActionResume,
	},
	StatusPausedSystem: {
		name:       "paused_system",
		categories: FilterPaused,
		subtext:    "paused-retry",
		action:     ActionNone,
	},
	StatusCancelledUser: {
		name:       "cancelled",
		categories: FilterInactive | FilterCancelled,
		subtext:    "cancelled",
		action:     ActionRetry,
		terminal:   true,
	},
	StatusCompleted: {
		name:       "completed",
		categories: FilterInactive | FilterCompleted,
		subtext:    "completed",
		action:     ActionFlash,
		terminal:   true,
	},
	StatusFailed: {
		name:       "failed",
		categories: FilterFailed,
		subtext:    "failed",
		action:     ActionRetry,
		terminal:   true,
	},
}

// AllStatuses lists every status in declaration order.
func AllStatuses() []Status {
	out := make([]Status, len(statusTable))
	for i := range statusTable {
		out[i] = Status(i)
	}
	return out
}

func (s Status) info() statusInfo {
	if s < 0 || int(s) >= len(statusTable) {
		panic(fmt.Sprintf("domain: invalid status %d", int(s)))
	}
	return statusTable[s]
}

// Valid reports whether s is a declared status.
func (s Status) Valid() bool {
	return s >= 0 && int(s) < len(statusTable)
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusTable[s].name
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for i, info := range statusTable {
		if info.name == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsTerminal reports whether only retry can move a transfer out of s.
func (s Status) IsTerminal() bool { return s.info().terminal }

// IsActive reports whether s belongs to the Active category.
func (s Status) IsActive() bool { return s.info().categories&FilterActive != 0 }

// MatchesFilter reports whether s belongs to any category in mask.
func (s Status) MatchesFilter(mask Filter) bool {
	if mask == FilterAll {
		return true
	}
	return s.info().categories&mask != 0
}

// Subtext is the short human readable description of s. Running transfers
// have no fixed subtext; callers render progress instead.
func (s Status) Subtext() string { return s.info().subtext }

// PrimaryAction is the main action a user can take in status s.
func (s Status) PrimaryAction() Action { return s.info().action }

// CanCancel reports whether a cancel action is offered in status s.
func (s Status) CanCancel() bool { return !s.IsTerminal() }

var validTransitions = map[Status][]Status{
	StatusQueued: {StatusStarting, StatusPausedForData, StatusPausedForWifi, StatusCancelledUser},
	StatusStarting: {
		StatusRunning, StatusPausedForData, StatusPausedForWifi, StatusPausedUser,
		StatusPausedSystem, StatusCancelledUser, StatusCompleted, StatusFailed,
	},
	StatusRunning: {
		StatusPausedForData, StatusPausedForWifi, StatusPausedRetry, StatusPausedUser,
		StatusPausedSystem, StatusCancelledUser, StatusCompleted, StatusFailed,
	},
	StatusPausedForData: {StatusQueued, StatusStarting, StatusPausedForWifi, StatusCancelledUser},
	StatusPausedForWifi: {StatusQueued, StatusStarting, StatusPausedForData, StatusCancelledUser},
	StatusPausedRetry: {
		StatusQueued, StatusStarting, StatusPausedForData, StatusPausedForWifi, StatusCancelledUser,
	},
	StatusPausedUser:    {StatusQueued, StatusCancelledUser},
	StatusPausedSystem:  {StatusQueued, StatusCancelledUser},
	StatusCancelledUser: {StatusQueued},
	StatusCompleted:     {StatusQueued},
	StatusFailed:        {StatusQueued},
}

// CanTransition reports whether a transfer may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidStateTransition when from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return nil
}
