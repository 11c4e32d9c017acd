// Package collect implements a periodic task runner plus the CPU and
// memory samplers that feed the Metric Registry. Each task runs on its
// own ticker and stops via a done channel, giving bounded stop latency
// without a polling sleep loop.
package collect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"netsentry/internal/metrics"
	"netsentry/internal/netlog"
)

// Sampler performs one round of measurement, updating metrics it owns in
// the registry it was constructed against.
type Sampler interface {
	Sample(ctx context.Context) error
	Name() string
}

// Task runs a Sampler on a fixed interval until stopped.
type Task struct {
	sampler  Sampler
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewTask creates a collector task for sampler, sampling every interval.
func NewTask(sampler Sampler, interval time.Duration) *Task {
	return &Task{sampler: sampler, interval: interval}
}

// Start begins the task's collect loop in a background goroutine. Calling
// Start on an already-running task is a no-op.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	go t.collectLoop(t.stopCh)
}

// Stop halts the task's collect loop and waits for it to exit. Calling Stop
// on a task that isn't running is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
}

// IsRunning reports whether the task's collect loop is active.
func (t *Task) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) collectLoop(stopCh chan struct{}) {
	defer t.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if err := t.sampler.Sample(ctx); err != nil {
		netlog.Default.Warnf("collect: %s: %v", t.sampler.Name(), err)
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := t.sampler.Sample(ctx); err != nil {
				netlog.Default.Warnf("collect: %s: %v", t.sampler.Name(), err)
			}
		}
	}
}

// Scheduler owns a fixed set of collector tasks and starts/stops them
// together.
type Scheduler struct {
	tasks []*Task
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Register adds a task to the scheduler. Must be called before StartAll.
func (s *Scheduler) Register(t *Task) {
	s.tasks = append(s.tasks, t)
}

// StartAll starts every registered task.
func (s *Scheduler) StartAll() {
	for _, t := range s.tasks {
		t.Start()
	}
}

// StopAll stops every registered task and waits for them to exit.
func (s *Scheduler) StopAll() {
	for _, t := range s.tasks {
		t.Stop()
	}
}

// CPUSampler reports overall and per-core CPU usage percentages, grounded
// on CpuCollector::collect's total-plus-per-core GaugeMetric layout.
type CPUSampler struct {
	registry *metrics.Registry
	total    *metrics.Metric
	cores    []*metrics.Metric
}

// NewCPUSampler registers cpu.usage and one cpu.core.N.usage gauge per
// logical core detected on this host.
func NewCPUSampler(reg *metrics.Registry) (*CPUSampler, error) {
	total, err := reg.Register("cpu.usage", metrics.Gauge)
	if err != nil {
		return nil, err
	}

	counts, err := cpu.Percent(0, true)
	if err != nil {
		counts = nil
	}
	cores := make([]*metrics.Metric, len(counts))
	for i := range counts {
		m, err := reg.Register(fmt.Sprintf("cpu.core.%d.usage", i), metrics.Gauge)
		if err != nil {
			return nil, err
		}
		cores[i] = m
	}

	return &CPUSampler{registry: reg, total: total, cores: cores}, nil
}

func (s *CPUSampler) Name() string { return "cpu" }

// Sample updates cpu.usage and each cpu.core.N.usage gauge.
func (s *CPUSampler) Sample(ctx context.Context) error {
	overall, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return err
	}
	if len(overall) > 0 {
		s.total.Update(overall[0])
	}

	if len(s.cores) == 0 {
		return nil
	}
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return err
	}
	for i, m := range s.cores {
		if i < len(perCore) {
			m.Update(perCore[i])
		}
	}
	return nil
}

// MemorySampler reports system memory and swap usage in megabytes plus
// usage percentages.
type MemorySampler struct {
	total            *metrics.Metric
	used             *metrics.Metric
	free             *metrics.Metric
	usagePercent     *metrics.Metric
	swapTotal        *metrics.Metric
	swapUsed         *metrics.Metric
	swapUsagePercent *metrics.Metric
}

// NewMemorySampler registers memory.{total,used,free,usage_percent} and
// memory.swap_{total,used,usage_percent} gauges.
func NewMemorySampler(reg *metrics.Registry) (*MemorySampler, error) {
	names := []string{
		"memory.total", "memory.used", "memory.free", "memory.usage_percent",
		"memory.swap_total", "memory.swap_used", "memory.swap_usage_percent",
	}
	registered := make([]*metrics.Metric, len(names))
	for i, name := range names {
		m, err := reg.Register(name, metrics.Gauge)
		if err != nil {
			return nil, err
		}
		registered[i] = m
	}
	return &MemorySampler{
		total:            registered[0],
		used:             registered[1],
		free:             registered[2],
		usagePercent:     registered[3],
		swapTotal:        registered[4],
		swapUsed:         registered[5],
		swapUsagePercent: registered[6],
	}, nil
}

func (s *MemorySampler) Name() string { return "memory" }

const bytesPerMB = 1024.0 * 1024.0

// Sample updates all memory and swap gauges from the current host state.
func (s *MemorySampler) Sample(ctx context.Context) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return err
	}
	s.total.Update(float64(vm.Total) / bytesPerMB)
	s.used.Update(float64(vm.Used) / bytesPerMB)
	s.free.Update(float64(vm.Free) / bytesPerMB)
	if vm.Total > 0 {
		s.usagePercent.Update(100.0 * float64(vm.Used) / float64(vm.Total))
	}

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil // swap may be unavailable in restricted environments; host stats already recorded.
	}
	s.swapTotal.Update(float64(swap.Total) / bytesPerMB)
	s.swapUsed.Update(float64(swap.Used) / bytesPerMB)
	if swap.Total > 0 {
		s.swapUsagePercent.Update(100.0 * float64(swap.Used) / float64(swap.Total))
	}
	return nil
}
