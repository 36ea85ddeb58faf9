package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/litekeeper/litekeeper/internal/core"
)

// DiskSpace describes the filesystem backing a path.
type DiskSpace struct {
	Path        string  `json:"path"`
	MountPoint  string  `json:"mount_point,omitempty"`
	Device      string  `json:"device,omitempty"`
	Fstype      string  `json:"fstype,omitempty"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// SpaceFor reports capacity of the volume that holds path. The path itself
// does not have to exist yet; the nearest existing ancestor is measured.
func SpaceFor(path string) (DiskSpace, error) {
	probe := nearestExisting(path)
	usage, err := disk.Usage(probe)
	if err != nil {
		return DiskSpace{}, fmt.Errorf("reading disk usage for %s: %w", probe, err)
	}

	space := DiskSpace{
		Path:        path,
		Fstype:      usage.Fstype,
		TotalBytes:  usage.Total,
		FreeBytes:   usage.Free,
		UsedBytes:   usage.Used,
		UsedPercent: usage.UsedPercent,
	}
	if part, ok := PartitionFor(probe); ok {
		space.MountPoint = part.Mountpoint
		space.Device = part.Device
		if space.Fstype == "" {
			space.Fstype = part.Fstype
		}
	}
	return space, nil
}

// CheckFreeSpace verifies the volume behind path has at least required bytes
// free. A shortfall is reported as a disk-full storage error carrying the
// measured numbers.
func CheckFreeSpace(path string, required uint64) (DiskSpace, error) {
	space, err := SpaceFor(path)
	if err != nil {
		return space, err
	}
	if space.FreeBytes < required {
		return space, core.ErrDiskFull(path, required, space.FreeBytes)
	}
	return space, nil
}

// PartitionFor returns the mounted partition containing path, matched by the
// longest mount point prefix.
func PartitionFor(path string) (disk.PartitionStat, bool) {
	parts, err := disk.Partitions(true)
	if err != nil || len(parts) == 0 {
		return disk.PartitionStat{}, false
	}

	target := normalizeMountPath(path)
	var best disk.PartitionStat
	bestLen := -1
	for _, part := range parts {
		mount := normalizeMountPath(part.Mountpoint)
		if !mountContains(mount, target) {
			continue
		}
		if len(mount) > bestLen {
			best = part
			bestLen = len(mount)
		}
	}
	return best, bestLen >= 0
}

// networkFstypes lists filesystem types that indicate a remote volume.
var networkFstypes = map[string]bool{
	"nfs":        true,
	"nfs4":       true,
	"cifs":       true,
	"smbfs":      true,
	"smb2":       true,
	"afpfs":      true,
	"ncpfs":      true,
	"webdav":     true,
	"davfs":      true,
	"sshfs":      true,
	"fuse.sshfs": true,
	"9p":         true,
	"glusterfs":  true,
	"ceph":       true,
	"lustre":     true,
}

// IsNetworkFilesystem reports whether fstype names a remote filesystem.
func IsNetworkFilesystem(fstype string) bool {
	return networkFstypes[strings.ToLower(strings.TrimSpace(fstype))]
}

// IsNetworkPath reports whether path lives on a network volume, either by UNC
// syntax or by the filesystem type of its mount.
func IsNetworkPath(path string) bool {
	if strings.HasPrefix(path, `\\`) || strings.HasPrefix(path, "//") {
		return true
	}
	if part, ok := PartitionFor(nearestExisting(path)); ok {
		return IsNetworkFilesystem(part.Fstype)
	}
	return false
}

// nearestExisting walks up from path to the first component that exists.
func nearestExisting(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

func normalizeMountPath(path string) string {
	p := filepath.Clean(path)
	if runtime.GOOS == "windows" {
		p = strings.ToLower(p)
	}
	return p
}

func mountContains(mount, target string) bool {
	if mount == target {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(mount, sep) {
		mount += sep
	}
	return strings.HasPrefix(target, mount)
}
