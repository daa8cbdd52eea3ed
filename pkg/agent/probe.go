package agent

import (
	"fmt"
	"runtime"
	"time"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/mackerelio/go-osstat/memory"
	"github.com/mackerelio/go-osstat/network"
	"github.com/shirou/gopsutil/disk"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// cpuSampleInterval is how long the CPU counters are sampled per probe. Short
// enough to ride inside a heartbeat, long enough for a stable delta.
const cpuSampleInterval = 250 * time.Millisecond

// ProbeCapabilities inspects the local machine and builds the capability
// descriptor advertised at registration. Probes that fail leave the matching
// field at zero rather than failing registration.
func ProbeCapabilities() model.NodeCapabilities {
	caps := model.NodeCapabilities{
		CPUCores:  uint32(runtime.NumCPU()),
		Supported: []model.ResourceType{model.ResourceCPU, model.ResourceMemory, model.ResourceBandwidth},
	}
	if mem, err := memory.Get(); err == nil {
		caps.MemoryBytes = mem.Total
	}
	if du, err := disk.Usage("/"); err == nil {
		caps.StorageBytes = du.Total
		caps.Supported = append(caps.Supported, model.ResourceStorage)
	}
	return caps
}

// ProbeUtilization samples CPU, memory and disk and returns the node's
// performance metrics alongside its current free capacity.
func ProbeUtilization() (model.PerformanceMetrics, model.AvailableResources, error) {
	var (
		metrics model.PerformanceMetrics
		avail   model.AvailableResources
	)

	cpuUtil, err := sampleCPU(cpuSampleInterval)
	if err != nil {
		return metrics, avail, fmt.Errorf("sample cpu: %w", err)
	}
	metrics.CPUUtilization = cpuUtil
	avail.CPUCores = float64(runtime.NumCPU()) * (1 - cpuUtil)

	mem, err := memory.Get()
	if err != nil {
		return metrics, avail, fmt.Errorf("sample memory: %w", err)
	}
	if mem.Total > 0 {
		metrics.MemoryUtilization = float64(mem.Used) / float64(mem.Total)
	}
	avail.MemoryBytes = mem.Free

	if du, err := disk.Usage("/"); err == nil {
		avail.StorageBytes = du.Free
	}

	metrics.SuccessRate = 1.0
	return metrics, avail, nil
}

// sampleCPU returns the busy fraction of CPU time over the interval.
func sampleCPU(interval time.Duration) (float64, error) {
	before, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	time.Sleep(interval)
	after, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	total := float64(after.Total - before.Total)
	if total <= 0 {
		return 0, nil
	}
	idle := float64(after.Idle - before.Idle)
	return 1 - idle/total, nil
}

// ProbeBandwidth estimates current network throughput in Mbps, summed across
// interfaces over the sample interval.
func ProbeBandwidth(interval time.Duration) (rxMbps, txMbps float64, err error) {
	before, err := network.Get()
	if err != nil {
		return 0, 0, err
	}
	time.Sleep(interval)
	after, err := network.Get()
	if err != nil {
		return 0, 0, err
	}

	byName := make(map[string]network.Stats, len(before))
	for _, s := range before {
		byName[s.Name] = s
	}
	for _, s := range after {
		prev, ok := byName[s.Name]
		if !ok {
			continue
		}
		rxMbps += float64(s.RxBytes-prev.RxBytes) * 8 / 1e6 / interval.Seconds()
		txMbps += float64(s.TxBytes-prev.TxBytes) * 8 / 1e6 / interval.Seconds()
	}
	return rxMbps, txMbps, nil
}
