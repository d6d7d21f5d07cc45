package system

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MemorySnapshot captures host and process memory at one point in time. It is
// attached to reclamation warnings so operators can correlate a boundary that
// resists collection with actual memory pressure.
type MemorySnapshot struct {
	HostTotalBytes     uint64  `json:"host_total_bytes"`
	HostAvailableBytes uint64  `json:"host_available_bytes"`
	HostUsedPercent    float64 `json:"host_used_percent"`
	ProcessRSSBytes    uint64  `json:"process_rss_bytes"`
}

// CaptureMemory takes a best-effort snapshot. Fields that cannot be read stay
// zero; the snapshot is diagnostic, never load-bearing.
func CaptureMemory() MemorySnapshot {
	var snap MemorySnapshot

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.HostTotalBytes = vm.Total
		snap.HostAvailableBytes = vm.Available
		snap.HostUsedPercent = vm.UsedPercent
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			snap.ProcessRSSBytes = info.RSS
		}
	}

	return snap
}
