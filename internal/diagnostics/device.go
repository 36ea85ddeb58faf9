package diagnostics

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/disk"
)

// BlockDevice describes the physical disk backing a filesystem path.
type BlockDevice struct {
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	Vendor     string `json:"vendor,omitempty"`
	SizeBytes  uint64 `json:"size_bytes"`
	DriveType  string `json:"drive_type"`
	Controller string `json:"controller"`
	Removable  bool   `json:"removable"`
}

// DeviceFor resolves the block device behind path. Containers and virtual
// machines often expose no matching device; absence is not an error.
func DeviceFor(path string) (*BlockDevice, bool) {
	part, ok := PartitionFor(nearestExisting(path))
	if !ok {
		return nil, false
	}

	info, err := ghw.Block()
	if err != nil || info == nil {
		return nil, false
	}

	for _, d := range info.Disks {
		for _, p := range d.Partitions {
			if !partitionMatches(p.Name, p.MountPoint, part) {
				continue
			}
			return &BlockDevice{
				Name:       d.Name,
				Model:      cleanHWField(d.Model),
				Vendor:     cleanHWField(d.Vendor),
				SizeBytes:  d.SizeBytes,
				DriveType:  d.DriveType.String(),
				Controller: d.StorageController.String(),
				Removable:  d.IsRemovable,
			}, true
		}
	}
	return nil, false
}

// Warnings returns concerns about hosting a database on this device.
func (d *BlockDevice) Warnings() []string {
	var warns []string
	if d.Removable {
		warns = append(warns, fmt.Sprintf("device %s is removable; the database disappears with the media", d.Name))
	}
	if strings.EqualFold(d.DriveType, "ODD") || strings.EqualFold(d.DriveType, "FDD") {
		warns = append(warns, fmt.Sprintf("device %s is optical or floppy media and cannot host a writable database reliably", d.Name))
	}
	if strings.EqualFold(d.DriveType, "virtual") || strings.EqualFold(d.Controller, "virtio") {
		warns = append(warns, fmt.Sprintf("device %s is virtual; host snapshot restores can roll the database back in time", d.Name))
	}
	return warns
}

func partitionMatches(name, mount string, part disk.PartitionStat) bool {
	if mount != "" && filepath.Clean(mount) == filepath.Clean(part.Mountpoint) {
		return true
	}
	return name != "" && name == filepath.Base(part.Device)
}

func cleanHWField(s string) string {
	if strings.EqualFold(s, "unknown") {
		return ""
	}
	return strings.TrimSpace(s)
}
