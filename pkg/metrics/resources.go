package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

var (
	// ProcessRSS is the resident memory of the job in bytes.
	ProcessRSS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ntuple_process_resident_bytes",
		Help: "Resident set size of the ntuple process",
	})

	// ProcessCPU is the average CPU use of the job since it started.
	ProcessCPU = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ntuple_process_cpu_percent",
		Help: "Average CPU percent of the ntuple process since start",
	})
)

// ResourceUsage contains resource usage information
type ResourceUsage struct {
	CPUPercent            float64
	MemoryRSS             uint64
	MemoryVMS             uint64
	SystemMemoryPercent   float64
	SystemMemoryAvailable uint64
	GoroutineCount        int
}

// ResourceMonitor samples the resource use of the current process.
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
	mu           sync.Mutex
}

// NewResourceMonitor creates a resource monitor for this process. Sampling
// degrades to runtime statistics when the process table is unreadable.
func NewResourceMonitor() *ResourceMonitor {
	rm := &ResourceMonitor{startTime: time.Now()}
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec
	if err != nil {
		return rm
	}
	rm.process = proc
	if cpuTime, err := proc.Times(); err == nil {
		rm.startCPUTime = cpuTime.Total()
	}
	return rm
}

// Usage returns current resource usage.
func (rm *ResourceMonitor) Usage() *ResourceUsage {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	usage := &ResourceUsage{GoroutineCount: runtime.NumGoroutine()}
	if rm.process != nil {
		if cpuTime, err := rm.process.Times(); err == nil {
			if elapsed := time.Since(rm.startTime).Seconds(); elapsed > 0 {
				usage.CPUPercent = ((cpuTime.Total() - rm.startCPUTime) / elapsed) * 100
			}
		}
		if memInfo, err := rm.process.MemoryInfo(); err == nil {
			usage.MemoryRSS = memInfo.RSS
			usage.MemoryVMS = memInfo.VMS
		}
	}
	if usage.MemoryRSS == 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		usage.MemoryRSS = ms.Sys
	}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemoryPercent = vmStat.UsedPercent
		usage.SystemMemoryAvailable = vmStat.Available
	}
	return usage
}

// Publish samples usage and sets the process gauges.
func (rm *ResourceMonitor) Publish() *ResourceUsage {
	usage := rm.Usage()
	ProcessRSS.Set(float64(usage.MemoryRSS))
	ProcessCPU.Set(usage.CPUPercent)
	return usage
}
