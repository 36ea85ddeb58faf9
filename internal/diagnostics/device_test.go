package diagnostics

import (
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
)

func TestDeviceFor(t *testing.T) {
	t.Parallel()

	// Containers and VMs often expose no block device at all; only the
	// shape of a positive answer is checked.
	dev, ok := DeviceFor(t.TempDir())
	if !ok {
		return
	}
	if dev.Name == "" {
		t.Error("matched device must have a name")
	}
}

func TestBlockDevice_Warnings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		dev  BlockDevice
		want []string // substring expected in each warning, in order
	}{
		{"fixed ssd", BlockDevice{Name: "nvme0n1", DriveType: "SSD", Controller: "NVMe"}, nil},
		{"fixed hdd", BlockDevice{Name: "sda", DriveType: "HDD", Controller: "SCSI"}, nil},
		{"removable", BlockDevice{Name: "sdb", DriveType: "SSD", Removable: true}, []string{"removable"}},
		{"optical", BlockDevice{Name: "sr0", DriveType: "ODD"}, []string{"optical"}},
		{"virtual drive", BlockDevice{Name: "loop0", DriveType: "virtual"}, []string{"snapshot"}},
		{"virtio controller", BlockDevice{Name: "vda", DriveType: "HDD", Controller: "virtio"}, []string{"snapshot"}},
		{"removable optical", BlockDevice{Name: "sr0", DriveType: "ODD", Removable: true}, []string{"removable", "optical"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			warns := tc.dev.Warnings()
			if len(warns) != len(tc.want) {
				t.Fatalf("got %d warnings %v, want %d", len(warns), warns, len(tc.want))
			}
			for i, sub := range tc.want {
				if !strings.Contains(warns[i], sub) {
					t.Errorf("warning[%d] = %q, want substring %q", i, warns[i], sub)
				}
			}
		})
	}
}

func TestPartitionMatches(t *testing.T) {
	t.Parallel()

	part := disk.PartitionStat{Device: "/dev/sda1", Mountpoint: "/data"}

	if !partitionMatches("sda1", "", part) {
		t.Error("device base name should match")
	}
	if !partitionMatches("other", "/data", part) {
		t.Error("mount point should match")
	}
	if partitionMatches("sdb1", "/var", part) {
		t.Error("unrelated partition should not match")
	}
	if partitionMatches("", "", part) {
		t.Error("empty partition data should not match")
	}
}

func TestCleanHWField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"unknown", ""},
		{"Unknown", ""},
		{" Samsung SSD 980 ", "Samsung SSD 980"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := cleanHWField(tc.in); got != tc.want {
			t.Errorf("cleanHWField(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
