package network

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/port"
)

// Config holds monitor configuration
type Config struct {
	// Interface name patterns (path.Match syntax) per network type.
	WifiInterfaces     []string
	EthernetInterfaces []string
	CellularInterfaces []string
	PollInterval       time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		WifiInterfaces:     []string{"wlan*", "wlp*", "wl*"},
		EthernetInterfaces: []string{"eth*", "enp*", "eno*", "ens*", "en*"},
		CellularInterfaces: []string{"rmnet*", "ccmni*", "wwan*", "ppp*", "usb*"},
		PollInterval:       10 * time.Second,
	}
}

// Monitor tracks the host's connectivity by inspecting its network
// interfaces. An external signal can override the probed value with Set.
type Monitor struct {
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	probed   domain.Connectivity
	override *domain.Connectivity

	listInterfaces func() (gnet.InterfaceStatList, error)
}

// Ensure Monitor implements port.ConnectivitySource
var _ port.ConnectivitySource = (*Monitor)(nil)

// New creates a new Monitor
func New(cfg Config, logger *zap.Logger) *Monitor {
	def := DefaultConfig()
	if len(cfg.WifiInterfaces) == 0 {
		cfg.WifiInterfaces = def.WifiInterfaces
	}
	if len(cfg.EthernetInterfaces) == 0 {
		cfg.EthernetInterfaces = def.EthernetInterfaces
	}
	if len(cfg.CellularInterfaces) == 0 {
		cfg.CellularInterfaces = def.CellularInterfaces
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		config:         cfg,
		logger:         logger,
		listInterfaces: gnet.Interfaces,
	}
}

// Current returns the override if one is set, else the last probed state.
func (m *Monitor) Current() domain.Connectivity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.override != nil {
		return *m.override
	}
	return m.probed
}

// Set pins the reported connectivity, e.g. from a platform broadcast.
func (m *Monitor) Set(c domain.Connectivity) {
	m.mu.Lock()
	m.override = &c
	m.mu.Unlock()
	m.logger.Info("connectivity set externally", zap.Stringer("network", c))
}

// ClearOverride returns to probing interfaces.
func (m *Monitor) ClearOverride() {
	m.mu.Lock()
	m.override = nil
	m.mu.Unlock()
}

// Refresh probes the interfaces and reports whether the result changed.
func (m *Monitor) Refresh() (domain.Connectivity, bool, error) {
	ifaces, err := m.listInterfaces()
	if err != nil {
		return m.Current(), false, err
	}
	c := m.classify(ifaces)

	m.mu.Lock()
	changed := c != m.probed
	m.probed = c
	overridden := m.override != nil
	m.mu.Unlock()

	if changed {
		m.logger.Debug("connectivity probed", zap.Stringer("network", c), zap.Bool("overridden", overridden))
	}
	return c, changed && !overridden, nil
}

// Run polls until ctx is done, calling onChange whenever the probed
// connectivity changes.
func (m *Monitor) Run(ctx context.Context, onChange func(domain.Connectivity)) {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		if c, changed, err := m.Refresh(); err != nil {
			m.logger.Warn("failed to probe network interfaces", zap.Error(err))
		} else if changed && onChange != nil {
			onChange(c)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) classify(ifaces gnet.InterfaceStatList) domain.Connectivity {
	best := domain.NetworkNone
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") || len(iface.Addrs) == 0 {
			continue
		}
		t := m.typeOf(iface.Name)
		if rank(t) > rank(best) {
			best = t
		}
	}
	if best == domain.NetworkNone {
		return domain.Connectivity{}
	}
	return domain.Connectivity{Connected: true, Type: best}
}

func (m *Monitor) typeOf(name string) domain.NetworkType {
	switch {
	case matchAny(m.config.WifiInterfaces, name):
		return domain.NetworkWifi
	case matchAny(m.config.CellularInterfaces, name):
		return domain.NetworkCellular
	case matchAny(m.config.EthernetInterfaces, name):
		return domain.NetworkEthernet
	}
	return domain.NetworkOther
}

// rank orders network types by preference as the default route.
func rank(t domain.NetworkType) int {
	switch t {
	case domain.NetworkWifi:
		return 4
	case domain.NetworkEthernet:
		return 3
	case domain.NetworkCellular:
		return 2
	case domain.NetworkOther:
		return 1
	}
	return 0
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}
