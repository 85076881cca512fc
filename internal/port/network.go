package port

import "github.com/otaupdater/ota-download-manager/internal/domain"

// ConnectivitySource reports the host's current network state.
type ConnectivitySource interface {
	Current() domain.Connectivity
}

// WakeLock keeps the host awake while a transfer runs.
type WakeLock interface {
	Acquire(tag string)
	Release()
	Held() bool
}
