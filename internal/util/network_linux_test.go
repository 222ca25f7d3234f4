//go:build linux

package util

import (
	"strings"
	"testing"
)

func TestParseMounts(t *testing.T) {
	input := `sysfs /sys sysfs rw,nosuid 0 0
/dev/sda1 / ext4 rw,relatime 0 0
//nas/media /mnt/media cifs rw,vers=3.0 0 0
broken-line
nas:/export /mnt/nfs nfs4 rw 0 0
`
	mounts, err := parseMounts(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parseMounts failed: %v", err)
	}
	if len(mounts) != 4 {
		t.Fatalf("expected 4 mounts, got %d: %v", len(mounts), mounts)
	}
	if mounts["/mnt/media"] != "cifs" {
		t.Errorf("expected cifs for /mnt/media, got %q", mounts["/mnt/media"])
	}
	if mounts["/mnt/nfs"] != "nfs4" {
		t.Errorf("expected nfs4 for /mnt/nfs, got %q", mounts["/mnt/nfs"])
	}
}

func TestHashWorkers(t *testing.T) {
	if got := HashWorkers(t.TempDir(), 7); got != 7 {
		t.Errorf("override ignored: got %d", got)
	}
	if got := HashWorkers("", 0); got != LocalHashWorkers {
		t.Errorf("expected %d for empty root, got %d", LocalHashWorkers, got)
	}
	got := HashWorkers(t.TempDir(), 0)
	if got != LocalHashWorkers && got != NetworkHashWorkers {
		t.Errorf("unexpected worker count %d", got)
	}
}

func TestDetectNetworkFilesystem_NonExistent(t *testing.T) {
	if _, err := DetectNetworkFilesystem("/definitely/not/here/mlb"); err == nil {
		t.Error("expected error for non-existent path")
	}
}
