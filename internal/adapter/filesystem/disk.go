package filesystem

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/otaupdater/ota-download-manager/internal/port"
)

// GetDiskUsage returns disk usage for the download root
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	usage, err := disk.Usage(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	return &port.DiskUsage{
		Total:   usage.Total,
		Used:    usage.Used,
		Free:    usage.Free,
		UsedPct: usage.UsedPercent,
	}, nil
}

// FreeSpace returns the bytes available under dir
func (m *Manager) FreeSpace(dir string) (int64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to get disk stats for %s: %w", dir, err)
	}
	return int64(usage.Free), nil
}
