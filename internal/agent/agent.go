// Package agent wires the telemetry plane's components into the running
// process: the Collector Scheduler, capture driver, Worker Pool, Flow
// Table, Protocol Recognizer chain, Alert Engine and persistence sink.
// Startup order is collectors first, then the alert rules derived from the
// CPU/memory threshold config keys, then capture (optional).
package agent

import (
	"fmt"
	"runtime"
	"time"

	"netsentry/internal/alert"
	"netsentry/internal/capture"
	"netsentry/internal/capture/natscap"
	"netsentry/internal/collect"
	"netsentry/internal/config"
	"netsentry/internal/flow"
	"netsentry/internal/metrics"
	"netsentry/internal/netlog"
	"netsentry/internal/notification"
	"netsentry/internal/protocol"
	"netsentry/internal/ring"
	"netsentry/internal/store"
	"netsentry/internal/workpool"
)

// ringCapacity is the bounded capture-to-worker-pool queue size.
const ringCapacity = 4096

// Agent owns every live component and coordinates their startup and
// shutdown order.
type Agent struct {
	cfg *config.Config
	log *netlog.Logger

	Registry *metrics.Registry
	Flows    *flow.Table
	Alerts   *alert.Engine

	scheduler *collect.Scheduler
	chain     *protocol.Chain
	pool      *workpool.Pool
	buffer    *ring.Buffer[capture.Packet]
	driver    capture.Driver
	sink      *store.GobSink
	emailer   *notification.EmailNotifier

	packetsDropped *metrics.Metric

	drainStop chan struct{}
}

// New builds an Agent from cfg. It registers the CPU/memory collectors,
// the worker pool, the protocol recognizer chain, and (if
// cfg.EnablePacketCapture) a capture driver chosen by cfg.CaptureSource.
// Capture failures are logged and leave the agent running without capture
// rather than aborting startup.
func New(cfg *config.Config, storeRoot string) (*Agent, error) {
	a := &Agent{
		cfg:       cfg,
		log:       netlog.New(netlog.ParseLevel(cfg.LogLevel), nil),
		Registry:  metrics.NewRegistry(),
		Flows:     flow.NewTable(flow.DefaultMaxFlows),
		chain:     protocol.NewChain(),
		scheduler: collect.NewScheduler(),
		buffer:    ring.New[capture.Packet](ringCapacity),
	}
	a.Alerts = alert.NewEngine(
		time.Duration(cfg.AlertCooldownSeconds)*time.Second,
		time.Second,
	)

	if storeRoot != "" {
		a.sink = store.NewGobSink(storeRoot)
		a.Flows.OnEvict(a.persistEvictedFlow)
	}

	if cfg.EnableEmailAlerts {
		a.emailer = notification.NewEmailNotifier(cfg)
	}

	dropped, err := a.Registry.Register("packets.dropped", metrics.Counter)
	if err != nil {
		return nil, fmt.Errorf("agent: register packets.dropped: %w", err)
	}
	a.packetsDropped = dropped

	if err := a.registerCollectors(); err != nil {
		return nil, err
	}
	a.registerThresholdAlerts()
	a.Alerts.RegisterCallback(a.persistAlert)

	a.pool = workpool.NewPool(runtime.NumCPU(), ringCapacity, a.handleJob)

	if cfg.EnablePacketCapture {
		driver, err := newCaptureDriver(cfg)
		if err != nil {
			a.log.Warnf("agent: capture init failed (source=%s): %v", cfg.CaptureSource, err)
		} else {
			a.driver = driver
		}
	}

	return a, nil
}

// newCaptureDriver selects the capture source named by cfg.CaptureSource:
// "nats" consumes packets published by a separate capture process over
// internal/capture/natscap, anything else (including the default "live")
// opens a local pcap handle on cfg.CaptureInterface.
func newCaptureDriver(cfg *config.Config) (capture.Driver, error) {
	if cfg.CaptureSource == "nats" {
		return natscap.NewDriver(cfg.NATSURL, cfg.NATSSubject)
	}
	return capture.NewLiveDriver(cfg.CaptureInterface, true, time.Second)
}

func (a *Agent) registerCollectors() error {
	cpuSampler, err := collect.NewCPUSampler(a.Registry)
	if err != nil {
		return fmt.Errorf("agent: cpu sampler: %w", err)
	}
	memSampler, err := collect.NewMemorySampler(a.Registry)
	if err != nil {
		return fmt.Errorf("agent: memory sampler: %w", err)
	}
	a.scheduler.Register(collect.NewTask(cpuSampler, time.Second))
	a.scheduler.Register(collect.NewTask(memSampler, time.Second))
	return nil
}

// registerThresholdAlerts creates the four default rules wired from the
// cpu_threshold_*/memory_threshold_* config keys, once the metrics they
// reference exist.
func (a *Agent) registerThresholdAlerts() {
	a.addThresholdAlert("High CPU Usage (Warning)", "cpu.usage", float64(a.cfg.CPUThresholdWarning), alert.Warning)
	a.addThresholdAlert("High CPU Usage (Critical)", "cpu.usage", float64(a.cfg.CPUThresholdCritical), alert.Critical)
	a.addThresholdAlert("High Memory Usage (Warning)", "memory.usage_percent", float64(a.cfg.MemoryThresholdWarning), alert.Warning)
	a.addThresholdAlert("High Memory Usage (Critical)", "memory.usage_percent", float64(a.cfg.MemoryThresholdCritical), alert.Critical)
}

func (a *Agent) addThresholdAlert(name, metricName string, threshold float64, severity alert.Severity) {
	if err := a.Alerts.AddMetricThresholdAlert(a.Registry, name, metricName, alert.GreaterThan, threshold, severity); err != nil {
		a.log.Warnf("agent: could not register alert %q: %v", name, err)
	}
}

// Start brings every component up: collectors, alert engine, worker pool,
// capture (if configured), and the ring-to-pool drain loop.
func (a *Agent) Start() error {
	a.scheduler.StartAll()
	a.Alerts.Start()
	a.pool.Start()

	a.drainStop = make(chan struct{})
	go a.drainLoop()

	if a.driver != nil {
		packets, err := a.driver.Start()
		if err != nil {
			return fmt.Errorf("agent: start capture: %w", err)
		}
		go a.feedRing(packets)
	}
	return nil
}

// Stop tears every component down in reverse order, bounded by each
// component's own shutdown latency.
func (a *Agent) Stop() {
	if a.driver != nil {
		a.driver.Stop()
	}
	a.buffer.Close()
	if a.drainStop != nil {
		close(a.drainStop)
	}
	a.pool.Stop()
	a.Alerts.Stop()
	a.scheduler.StopAll()
}

// feedRing copies packets from the capture driver's channel into the
// bounded ring buffer, dropping (and counting) whatever the ring can't
// hold.
func (a *Agent) feedRing(packets <-chan capture.Packet) {
	for pkt := range packets {
		if !a.buffer.Push(pkt) {
			a.packetsDropped.Increment(1)
		}
	}
}

// drainLoop moves packets from the ring buffer onto the worker pool,
// dropping (and counting) whatever the pool's queue can't hold.
func (a *Agent) drainLoop() {
	for {
		pkt, ok := a.buffer.Pop()
		if !ok {
			return
		}
		if !a.pool.Submit(workpool.Job{Packet: pkt.Info, Payload: pkt.Payload}) {
			a.packetsDropped.Increment(1)
		}
	}
}

// handleJob is the worker pool's handler: it ingests the packet into the
// Flow Table, then runs the protocol recognizer chain only if the flow's
// protocol isn't already known, so an identified flow's later packets
// skip the recognizer fan-out entirely.
func (a *Agent) handleJob(job workpool.Job) {
	if job.Packet == nil {
		return
	}
	a.Flows.Ingest(job.Packet, job.Packet.WireLen)

	pkt := job.Packet
	stats, ok := a.Flows.ConnectionStats(pkt.SrcIP, pkt.DstIP, pkt.SrcPort, pkt.DstPort, pkt.Protocol)
	if ok && stats.Protocol != "" {
		return
	}

	if info, recognized := a.chain.Recognize(pkt, job.Payload); recognized {
		a.Flows.SetProtocol(pkt, string(info.Kind))
	}
}

func (a *Agent) persistEvictedFlow(key flow.Key, stats flow.Stats) {
	if a.sink == nil {
		return
	}
	rec := store.NewFlowRecord(key, stats)
	if err := a.sink.Write(store.Snapshot{Flows: []store.FlowRecord{rec}}, time.Now()); err != nil {
		a.log.Warnf("agent: failed to persist evicted flow: %v", err)
	}
}

func (a *Agent) persistAlert(fired alert.Alert) {
	a.log.Warnf("%s", fired.Message())

	if a.emailer != nil {
		if err := a.emailer.Notify(fired); err != nil {
			a.log.Warnf("agent: failed to email alert %q: %v", fired.Name, err)
		}
	}

	if a.sink == nil {
		return
	}
	rec := store.NewAlertRecord(fired, time.Now())
	if err := a.sink.Write(store.Snapshot{Alerts: []store.AlertRecord{rec}}, time.Now()); err != nil {
		a.log.Warnf("agent: failed to persist alert: %v", err)
	}
}
