package diagnostics

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo holds the host facts attached to diagnostic reports.
type SystemInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Arch            string `json:"arch"`
	UptimeSec       uint64 `json:"uptime_sec"`

	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`

	GoVersion string `json:"go_version"`
	NumCPU    int    `json:"num_cpu"`
}

// SystemCollector gathers host information. Static facts are cached after the
// first collection; uptime and memory are refreshed on every call.
type SystemCollector struct {
	mu sync.Mutex

	infoCollected   bool
	hostname        string
	os              string
	platform        string
	platformVersion string
	kernel          string
	arch            string
}

// NewSystemCollector creates a new system info collector.
func NewSystemCollector() *SystemCollector {
	return &SystemCollector{}
}

// Collect gathers current host information.
func (c *SystemCollector) Collect() SystemInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := SystemInfo{
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}

	c.collectHostInfo(&info)
	c.collectMemoryInfo(&info)

	if up, err := host.Uptime(); err == nil {
		info.UptimeSec = up
	}
	return info
}

func (c *SystemCollector) collectHostInfo(info *SystemInfo) {
	if !c.infoCollected {
		if h, err := host.Info(); err == nil {
			c.hostname = h.Hostname
			c.os = h.OS
			c.platform = h.Platform
			c.platformVersion = h.PlatformVersion
			c.kernel = h.KernelVersion
			c.arch = h.KernelArch
		}
		c.infoCollected = true
	}
	info.Hostname = c.hostname
	info.OS = c.os
	info.Platform = c.platform
	info.PlatformVersion = c.platformVersion
	info.KernelVersion = c.kernel
	info.Arch = c.arch
}

// collectMemoryInfo reads system memory information.
func (c *SystemCollector) collectMemoryInfo(info *SystemInfo) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	info.MemTotalMB = float64(vm.Total) / 1024 / 1024
	info.MemUsedMB = float64(vm.Used) / 1024 / 1024
	info.MemPercent = vm.UsedPercent
}
