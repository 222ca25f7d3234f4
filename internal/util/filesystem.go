package util

import (
	"os"
	"path/filepath"
	"syscall"
)

// IsSameFilesystem checks if two paths are on the same filesystem
// by comparing their device IDs (st_dev).
// A destination that does not exist yet is compared through its parent.
func IsSameFilesystem(path1, path2 string) (bool, error) {
	stat1, err := os.Stat(path1)
	if err != nil {
		return false, err
	}

	stat2, err := os.Stat(path2)
	if os.IsNotExist(err) {
		stat2, err = os.Stat(filepath.Dir(path2))
	}
	if err != nil {
		return false, err
	}

	sys1, ok1 := stat1.Sys().(*syscall.Stat_t)
	sys2, ok2 := stat2.Sys().(*syscall.Stat_t)
	if !ok1 || !ok2 {
		return false, nil
	}

	return sys1.Dev == sys2.Dev, nil
}

// IsURL reports whether a catalog path is a remote location
func IsURL(path string) bool {
	return len(path) >= 4 && path[:4] == "http"
}
