package network

import (
	"errors"
	"testing"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

func iface(name string, flags ...string) gnet.InterfaceStat {
	return gnet.InterfaceStat{
		Name:  name,
		Flags: flags,
		Addrs: gnet.InterfaceAddrList{{Addr: "192.168.1.2/24"}},
	}
}

func newTestMonitor(list gnet.InterfaceStatList, err error) *Monitor {
	m := New(Config{}, zap.NewNop())
	m.listInterfaces = func() (gnet.InterfaceStatList, error) { return list, err }
	return m
}

func TestMonitor_Classify(t *testing.T) {
	tests := []struct {
		name string
		list gnet.InterfaceStatList
		want domain.Connectivity
	}{
		{
			name: "only loopback",
			list: gnet.InterfaceStatList{iface("lo", "up", "loopback")},
			want: domain.Connectivity{},
		},
		{
			name: "cellular",
			list: gnet.InterfaceStatList{iface("lo", "up", "loopback"), iface("rmnet0", "up")},
			want: domain.Connectivity{Connected: true, Type: domain.NetworkCellular},
		},
		{
			name: "wifi preferred over cellular",
			list: gnet.InterfaceStatList{iface("rmnet0", "up"), iface("wlan0", "up", "broadcast")},
			want: domain.Connectivity{Connected: true, Type: domain.NetworkWifi},
		},
		{
			name: "down wifi ignored",
			list: gnet.InterfaceStatList{iface("wlan0", "broadcast"), iface("eth0", "up")},
			want: domain.Connectivity{Connected: true, Type: domain.NetworkEthernet},
		},
		{
			name: "no address ignored",
			list: gnet.InterfaceStatList{{Name: "wlan0", Flags: []string{"up"}}},
			want: domain.Connectivity{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(tt.list, nil)
			got, _, err := m.Refresh()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, m.Current())
		})
	}
}

func TestMonitor_OverrideWins(t *testing.T) {
	m := newTestMonitor(gnet.InterfaceStatList{iface("wlan0", "up")}, nil)
	_, changed, err := m.Refresh()
	require.NoError(t, err)
	assert.True(t, changed)

	cellular := domain.Connectivity{Connected: true, Type: domain.NetworkCellular}
	m.Set(cellular)
	assert.Equal(t, cellular, m.Current())

	m.ClearOverride()
	assert.Equal(t, domain.NetworkWifi, m.Current().Type)
}

func TestMonitor_RefreshError(t *testing.T) {
	m := newTestMonitor(nil, errors.New("boom"))
	_, changed, err := m.Refresh()
	assert.Error(t, err)
	assert.False(t, changed)
}
