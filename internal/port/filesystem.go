package port

import (
	"io"
	"time"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// FileSystem defines the destination-side operations of a transfer.
type FileSystem interface {
	// RootDir returns the download root directory
	RootDir() string

	// DestinationPath returns where the file described by spec is stored
	DestinationPath(spec domain.TransferSpec) string

	// EnsureDir creates dir and its parents if needed
	EnsureDir(dir string) error

	// Stat returns the size of path, or exists=false if it is absent
	Stat(path string) (size int64, exists bool, err error)

	// Remove deletes path; a missing file is not an error
	Remove(path string) error

	// OpenDestination opens path for writing, appending when appendMode is set
	// and truncating otherwise
	OpenDestination(path string, appendMode bool) (io.WriteCloser, error)

	// FreeSpace returns the bytes available to unprivileged writers under dir
	FreeSpace(dir string) (int64, error)

	// GetDiskUsage returns disk usage statistics for the root directory
	GetDiskUsage() (*DiskUsage, error)

	// MD5 returns the lowercase hex MD5 digest of path
	MD5(path string) (string, error)

	// CleanOrphans removes files under the root that are not in keep and
	// were last modified before olderThan ago. Returns the number removed.
	CleanOrphans(keep map[string]bool, olderThan time.Duration) (int, error)
}
