//go:build !linux

package util

// detectPlatformNetwork assumes local storage outside Linux
func detectPlatformNetwork(path string) (*NetworkInfo, error) {
	return &NetworkInfo{}, nil
}
