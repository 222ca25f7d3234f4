//go:build linux

package util

import (
	"bufio"
	"io"
	"os"
	"strings"
	"syscall"
)

// Linux VFS magic numbers of network filesystems
var networkMagic = map[uint32]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0x517b:     "smb",
	0x01021994: "smbfs",
	0x564c:     "ncp",
	0xfe534d42: "smb2",
}

var networkFsTypes = []string{"nfs", "cifs", "smb", "ncpfs", "fuse.sshfs", "fuse.rclone"}

func detectPlatformNetwork(path string) (*NetworkInfo, error) {
	info := &NetworkInfo{}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, err
	}
	if proto, ok := networkMagic[uint32(stat.Type)]; ok {
		info.IsNetwork = true
		info.Protocol = proto
	}

	f, err := os.Open("/proc/mounts")
	if err != nil {
		return info, nil
	}
	defer f.Close()

	mounts, err := parseMounts(f)
	if err != nil {
		return info, nil
	}

	best := ""
	for mountPoint, fsType := range mounts {
		if !strings.HasPrefix(path, mountPoint) || len(mountPoint) <= len(best) {
			continue
		}
		best = mountPoint
		lower := strings.ToLower(fsType)
		for _, t := range networkFsTypes {
			if strings.Contains(lower, t) {
				info.IsNetwork = true
				info.Protocol = lower
				info.MountPath = mountPoint
				break
			}
		}
	}
	return info, nil
}

// parseMounts reads /proc/mounts formatted lines into mountpoint -> fstype
func parseMounts(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[fields[1]] = fields[2]
	}
	return mounts, scanner.Err()
}
