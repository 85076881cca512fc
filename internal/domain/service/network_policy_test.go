package service

import (
	"testing"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

func TestEvaluateNetwork(t *testing.T) {
	wifi := domain.Connectivity{Connected: true, Type: domain.NetworkWifi}
	cellular := domain.Connectivity{Connected: true, Type: domain.NetworkCellular}
	ethernet := domain.Connectivity{Connected: true, Type: domain.NetworkEthernet}
	connecting := domain.Connectivity{Connecting: true, Type: domain.NetworkCellular}
	offline := domain.Connectivity{}

	tests := []struct {
		name     string
		total    int64
		conn     domain.Connectivity
		settings NetworkSettings
		want     Verdict
	}{
		{"offline", 10, offline, NetworkSettings{}, VerdictNoConnectivity},
		{"offline beats wifi only", 10, offline, NetworkSettings{WifiOnly: true}, VerdictNoConnectivity},
		{"connecting counts as available", 10, connecting, NetworkSettings{}, VerdictOK},
		{"wifi only on cellular", 10, cellular, NetworkSettings{WifiOnly: true}, VerdictWifiRequired},
		{"wifi only on ethernet", 10, ethernet, NetworkSettings{WifiOnly: true}, VerdictWifiRequired},
		{"wifi only on wifi", 10, wifi, NetworkSettings{WifiOnly: true}, VerdictOK},
		{"cellular over cap", 2000, cellular, NetworkSettings{MobileMaxBytes: 1000}, VerdictMobileSizeCapExceeded},
		{"cellular at cap", 1000, cellular, NetworkSettings{MobileMaxBytes: 1000}, VerdictOK},
		{"cellular unknown size", 0, cellular, NetworkSettings{MobileMaxBytes: 1000}, VerdictOK},
		{"cap ignored on wifi", 2000, wifi, NetworkSettings{MobileMaxBytes: 1000}, VerdictOK},
		{"no cap configured", 1 << 40, cellular, NetworkSettings{}, VerdictOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluateNetwork(tt.total, tt.conn, tt.settings); got != tt.want {
				t.Errorf("EvaluateNetwork() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerdict_PausedStatus(t *testing.T) {
	tests := []struct {
		verdict Verdict
		want    domain.Status
		wantOk  bool
	}{
		{VerdictOK, domain.StatusQueued, false},
		{VerdictNoConnectivity, domain.StatusPausedForData, true},
		{VerdictWifiRequired, domain.StatusPausedForWifi, true},
		{VerdictMobileSizeCapExceeded, domain.StatusPausedForWifi, true},
	}

	for _, tt := range tests {
		t.Run(tt.verdict.String(), func(t *testing.T) {
			got, ok := tt.verdict.PausedStatus()
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("PausedStatus() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}
