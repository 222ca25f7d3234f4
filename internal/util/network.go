package util

import (
	"fmt"
	"path/filepath"
)

const (
	// LocalHashWorkers is the hash pool size for local disks
	LocalHashWorkers = 20
	// NetworkHashWorkers is the hash pool size when the files live on a NAS
	NetworkHashWorkers = 4
)

// NetworkInfo contains information about a filesystem's network characteristics
type NetworkInfo struct {
	IsNetwork bool   // Whether the filesystem is network-mounted
	Protocol  string // Protocol (smb, nfs, cifs, etc.) or empty if local
	MountPath string // Mount point of the filesystem
}

// DetectNetworkFilesystem checks if a path is on a network-mounted filesystem
func DetectNetworkFilesystem(path string) (*NetworkInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	return detectPlatformNetwork(absPath)
}

// IsNetworkPath checks if a path is on a network filesystem (convenience function)
func IsNetworkPath(path string) bool {
	info, err := DetectNetworkFilesystem(path)
	if err != nil {
		return false
	}
	return info.IsNetwork
}

// HashWorkers sizes an I/O bound worker pool for files under root.
// A positive override always wins.
func HashWorkers(root string, override int) int {
	if override > 0 {
		return override
	}
	if root == "" {
		return LocalHashWorkers
	}
	info, err := DetectNetworkFilesystem(root)
	if err != nil {
		DebugLog("Network detection failed for %s: %v", root, err)
		return LocalHashWorkers
	}
	if info.IsNetwork {
		InfoLog("Network filesystem detected (%s at %s), using %d hash workers",
			info.Protocol, info.MountPath, NetworkHashWorkers)
		return NetworkHashWorkers
	}
	return LocalHashWorkers
}
