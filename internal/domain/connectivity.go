package domain

import (
	"fmt"
	"strings"
)

// NetworkType is the kind of the currently active network.
type NetworkType int

const (
	NetworkNone NetworkType = iota
	NetworkWifi
	NetworkCellular
	NetworkEthernet
	NetworkOther
)

func (t NetworkType) String() string {
	switch t {
	case NetworkWifi:
		return "wifi"
	case NetworkCellular:
		return "cellular"
	case NetworkEthernet:
		return "ethernet"
	case NetworkOther:
		return "other"
	default:
		return "none"
	}
}

// ParseNetworkType parses the textual form produced by NetworkType.String.
func ParseNetworkType(s string) (NetworkType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wifi":
		return NetworkWifi, nil
	case "cellular", "mobile":
		return NetworkCellular, nil
	case "ethernet":
		return NetworkEthernet, nil
	case "other":
		return NetworkOther, nil
	case "", "none":
		return NetworkNone, nil
	}
	return NetworkNone, fmt.Errorf("unknown network type %q", s)
}

// Connectivity is a point-in-time view of the host's network.
type Connectivity struct {
	Connected  bool
	Connecting bool
	Type       NetworkType
}

// Available reports whether a network is up or coming up.
func (c Connectivity) Available() bool {
	return c.Type != NetworkNone && (c.Connected || c.Connecting)
}

func (c Connectivity) String() string {
	switch {
	case c.Connected:
		return c.Type.String()
	case c.Connecting:
		return c.Type.String() + " (connecting)"
	}
	return "none"
}
