package system

import (
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	MinQueueDepth     = 2
	MaxQueueDepth     = 16
	DefaultQueueDepth = 4
)

// QueueDepth подбирает размер очередей между стадиями так, чтобы все кадры
// в работе занимали небольшую долю свободной памяти.
func QueueDepth(frameBytes int64) int {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return DefaultQueueDepth
	}
	return queueDepthFor(vm.Available, frameBytes)
}

func queueDepthFor(available uint64, frameBytes int64) int {
	if frameBytes <= 0 {
		return DefaultQueueDepth
	}
	// Две очереди, в каждом слоте не больше одного кадра; тратим не больше
	// 1/8 свободной памяти.
	depth := int(available / 8 / uint64(frameBytes) / 2)
	if depth < MinQueueDepth {
		return MinQueueDepth
	}
	if depth > MaxQueueDepth {
		return MaxQueueDepth
	}
	return depth
}

// ResourceSnapshot - снимок ресурсов текущего процесса.
type ResourceSnapshot struct {
	RSS        uint64
	CPUPercent float64
	LogicalCPU int
}

// Snapshot снимает потребление памяти и CPU текущим процессом.
func Snapshot() (ResourceSnapshot, error) {
	var snap ResourceSnapshot
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return snap, err
	}
	if mi, err := proc.MemoryInfo(); err == nil {
		snap.RSS = mi.RSS
	}
	if pct, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = pct
	}
	if n, err := cpu.Counts(true); err == nil {
		snap.LogicalCPU = n
	}
	return snap, nil
}
