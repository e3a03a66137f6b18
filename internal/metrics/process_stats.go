package metrics

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// SelfStats is a point-in-time resource snapshot of the running process,
// reported on the admin status endpoint.
type SelfStats struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	Goroutines int       `json:"goroutines"`
	Timestamp  time.Time `json:"timestamp"`
}

// CollectSelf gathers resource usage for the current process. Fields that
// the platform cannot provide are left zero rather than failing the whole
// snapshot.
func CollectSelf() (SelfStats, error) {
	pid := int32(os.Getpid())
	p, err := process.NewProcess(pid)
	if err != nil {
		return SelfStats{}, fmt.Errorf("inspect pid %d: %w", pid, err)
	}
	s := SelfStats{
		PID:        pid,
		Goroutines: runtime.NumGoroutine(),
		Timestamp:  time.Now(),
	}
	if cpu, err := p.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		s.MemoryRSS = mem.RSS
		s.MemoryMB = float64(mem.RSS) / 1024 / 1024
	}
	if th, err := p.NumThreads(); err == nil {
		s.NumThreads = th
	}
	if fds, err := p.NumFDs(); err == nil {
		s.NumFDs = fds
	}
	return s, nil
}
