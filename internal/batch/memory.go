package batch

import (
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"FeedIngestor/internal/domain"
)

// Sampler captures the process memory state.
type Sampler interface {
	Sample() domain.MemoryStats
}

// ProcessSampler reads the resident set size through gopsutil and falls back to the
// Go runtime's view of system memory when the OS query fails.
type ProcessSampler struct {
	proc *process.Process
}

var _ Sampler = (*ProcessSampler)(nil)

// NewProcessSampler binds to the current process.
func NewProcessSampler() *ProcessSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &ProcessSampler{}
	}
	return &ProcessSampler{proc: proc}
}

// Sample returns RSS plus runtime heap counters.
func (s *ProcessSampler) Sample() domain.MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := domain.MemoryStats{
		RSS:       ms.Sys,
		HeapAlloc: ms.HeapAlloc,
		NumGC:     ms.NumGC,
		SampledAt: time.Now(),
	}
	if s.proc != nil {
		if info, err := s.proc.MemoryInfo(); err == nil && info != nil {
			stats.RSS = info.RSS
		}
	}
	return stats
}

// RuntimeCollector forces a garbage collection and returns freed memory to the OS.
func RuntimeCollector() {
	debug.FreeOSMemory()
}
