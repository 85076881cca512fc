package service

import "github.com/otaupdater/ota-download-manager/internal/domain"

// Verdict is the outcome of evaluating the network against a transfer.
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictNoConnectivity
	VerdictWifiRequired
	VerdictMobileSizeCapExceeded
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictNoConnectivity:
		return "no_connectivity"
	case VerdictWifiRequired:
		return "wifi_required"
	case VerdictMobileSizeCapExceeded:
		return "mobile_size_cap_exceeded"
	}
	return "unknown"
}

// PausedStatus maps a non-OK verdict to the status a transfer waits in.
// VerdictOK has no paused status and returns false.
func (v Verdict) PausedStatus() (domain.Status, bool) {
	switch v {
	case VerdictNoConnectivity:
		return domain.StatusPausedForData, true
	case VerdictWifiRequired, VerdictMobileSizeCapExceeded:
		return domain.StatusPausedForWifi, true
	}
	return domain.StatusQueued, false
}

// NetworkSettings are the user and platform limits applied to transfers.
type NetworkSettings struct {
	// WifiOnly forbids transfers on any network other than Wi-Fi.
	WifiOnly bool
	// MobileMaxBytes caps the size of a transfer on cellular networks. Zero means no cap.
	MobileMaxBytes int64
}

// EvaluateNetwork decides whether a transfer of totalBytes may run on conn.
// A totalBytes of zero means the size is not known yet and never trips the cap.
func EvaluateNetwork(totalBytes int64, conn domain.Connectivity, settings NetworkSettings) Verdict {
	if !conn.Available() {
		return VerdictNoConnectivity
	}
	if settings.WifiOnly && conn.Type != domain.NetworkWifi {
		return VerdictWifiRequired
	}
	if conn.Type == domain.NetworkCellular && settings.MobileMaxBytes > 0 && totalBytes > settings.MobileMaxBytes {
		return VerdictMobileSizeCapExceeded
	}
	return VerdictOK
}
