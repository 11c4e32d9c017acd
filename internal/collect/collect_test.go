package collect

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"netsentry/internal/metrics"
)

type countingSampler struct {
	calls int32
}

func (s *countingSampler) Name() string { return "counting" }

func (s *countingSampler) Sample(ctx context.Context) error {
	atomic.AddInt32(&s.calls, 1)
	return nil
}

func TestTaskSamplesImmediatelyOnStart(t *testing.T) {
	s := &countingSampler{}
	task := NewTask(s, time.Hour)
	task.Start()
	defer task.Stop()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&s.calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&s.calls) == 0 {
		t.Fatal("expected at least one sample on start before the first tick")
	}
}

func TestTaskStopIsIdempotentAndJoins(t *testing.T) {
	s := &countingSampler{}
	task := NewTask(s, 10*time.Millisecond)
	task.Start()
	time.Sleep(50 * time.Millisecond)
	task.Stop()

	callsAfterStop := atomic.LoadInt32(&s.calls)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&s.calls) != callsAfterStop {
		t.Fatal("expected no further samples after Stop")
	}

	task.Stop() // must not block or panic
	if task.IsRunning() {
		t.Fatal("expected IsRunning = false after Stop")
	}
}

func TestSchedulerStartAllStopAll(t *testing.T) {
	a := &countingSampler{}
	b := &countingSampler{}
	sched := NewScheduler()
	sched.Register(NewTask(a, 5*time.Millisecond))
	sched.Register(NewTask(b, 5*time.Millisecond))

	sched.StartAll()
	time.Sleep(30 * time.Millisecond)
	sched.StopAll()

	if atomic.LoadInt32(&a.calls) == 0 || atomic.LoadInt32(&b.calls) == 0 {
		t.Fatal("expected both tasks to have sampled at least once")
	}
}

func TestCPUSamplerRegistersAndUpdatesGauge(t *testing.T) {
	reg := metrics.NewRegistry()
	sampler, err := NewCPUSampler(reg)
	if err != nil {
		t.Fatalf("NewCPUSampler: %v", err)
	}
	if err := sampler.Sample(context.Background()); err != nil {
		t.Fatalf("Sample: %v", err)
	}

	m, err := reg.Get("cpu.usage")
	if err != nil {
		t.Fatalf("Get cpu.usage: %v", err)
	}
	if _, lastUpdated := m.Current(); lastUpdated.IsZero() {
		t.Fatal("expected cpu.usage to have been updated")
	}
}

func TestMemorySamplerRegistersAndUpdatesGauges(t *testing.T) {
	reg := metrics.NewRegistry()
	sampler, err := NewMemorySampler(reg)
	if err != nil {
		t.Fatalf("NewMemorySampler: %v", err)
	}
	if err := sampler.Sample(context.Background()); err != nil {
		t.Fatalf("Sample: %v", err)
	}

	total, err := reg.Get("memory.total")
	if err != nil {
		t.Fatalf("Get memory.total: %v", err)
	}
	value, _ := total.Current()
	if value <= 0 {
		t.Fatalf("memory.total = %v, want > 0", value)
	}
}
