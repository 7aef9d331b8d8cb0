package pipeline

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage is a point-in-time snapshot folded into the run record at
// run end.
type ResourceUsage struct {
	ProcessRSSBytes   uint64  `json:"process_rss_bytes"`
	SystemTotalBytes  uint64  `json:"system_total_bytes"`
	SystemUsedBytes   uint64  `json:"system_used_bytes"`
	SystemUsedPercent float64 `json:"system_used_percent"`
}

// SnapshotResources collects process and system memory figures. Best effort:
// a probe failure leaves the corresponding fields zero rather than failing
// the run.
func SnapshotResources() ResourceUsage {
	var usage ResourceUsage

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
			usage.ProcessRSSBytes = memInfo.RSS
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		usage.SystemTotalBytes = vm.Total
		usage.SystemUsedBytes = vm.Used
		usage.SystemUsedPercent = vm.UsedPercent
	}

	return usage
}
