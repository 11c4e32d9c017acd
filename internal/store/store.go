// Package store implements persistence for the telemetry agent's
// snapshots: metric points, flow records and alert firings written to
// timestamped directories as gob-encoded data files plus a JSON summary,
// and a YAML bulk-export format for offline inspection. The package
// writes a snapshot only when a caller passes one to GobSink.Write; it
// runs no schedule of its own.
package store

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
	"gopkg.in/yaml.v3"

	"netsentry/internal/alert"
	"netsentry/internal/flow"
	"netsentry/internal/metrics"
)

// MetricPoint is one persisted metric sample.
type MetricPoint struct {
	Name  string
	Kind  string
	Value float64
	At    *timestamppb.Timestamp
}

// FlowRecord is one persisted connection's accumulated stats.
type FlowRecord struct {
	IP1, IP2        string
	Port1, Port2    uint16
	Protocol        uint8
	AppProtocol     string // recognized application protocol, if known
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
	FirstSeen       *timestamppb.Timestamp
	LastSeen        *timestamppb.Timestamp
}

// AlertRecord is one persisted alert firing. Severity is the ordinal
// (0=Info, 1=Warning, 2=Error, 3=Critical), matching alert.Severity's
// declared order.
type AlertRecord struct {
	Name         string
	Description  string
	Severity     int
	At           *timestamppb.Timestamp
	Acknowledged bool
}

// Snapshot bundles everything captured in a single persistence cycle.
type Snapshot struct {
	Metrics []MetricPoint
	Flows   []FlowRecord
	Alerts  []AlertRecord
}

func init() {
	gob.Register(&timestamppb.Timestamp{})
}

// summary mirrors GobWriter's SummaryData shape, generalized to all three
// record kinds persisted per cycle.
type summary struct {
	Timestamp    string `json:"timestamp"`
	MetricCount  int    `json:"metric_count"`
	FlowCount    int    `json:"flow_count"`
	AlertCount   int    `json:"alert_count"`
}

// GobSink persists snapshots under timestamped directories beneath
// rootPath.
type GobSink struct {
	rootPath string
}

// NewGobSink creates a sink rooted at rootPath. The directory is created
// lazily on first Write.
func NewGobSink(rootPath string) *GobSink {
	return &GobSink{rootPath: rootPath}
}

// Write persists one snapshot cycle, named by a timestamp directory.
func (s *GobSink) Write(snap Snapshot, at time.Time) error {
	dirName := at.UTC().Format("2006-01-02_15-04-05")
	dir := filepath.Join(s.rootPath, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create snapshot directory: %w", err)
	}

	if len(snap.Metrics) > 0 {
		if err := writeGobFile(filepath.Join(dir, "metrics.dat"), snap.Metrics); err != nil {
			return err
		}
	}
	if len(snap.Flows) > 0 {
		if err := writeGobFile(filepath.Join(dir, "flows.dat"), snap.Flows); err != nil {
			return err
		}
	}
	if len(snap.Alerts) > 0 {
		if err := writeGobFile(filepath.Join(dir, "alerts.dat"), snap.Alerts); err != nil {
			return err
		}
	}

	sum := summary{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		MetricCount: len(snap.Metrics),
		FlowCount:   len(snap.Flows),
		AlertCount:  len(snap.Alerts),
	}
	return writeJSONSummary(filepath.Join(dir, "summary.json"), sum)
}

func writeGobFile(path string, v interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: create %q: %w", path, err)
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(v); err != nil {
		return fmt.Errorf("store: encode %q: %w", path, err)
	}
	return nil
}

func writeJSONSummary(path string, sum summary) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: create summary: %w", err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

// ExportYAML writes the full snapshot as a single human-readable YAML
// document, for bulk offline export. The flat key:value config format
// (internal/config) is reserved for the process's own settings, so a
// structured export of recorded data uses YAML instead.
func ExportYAML(path string, snap Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal yaml export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("store: write yaml export: %w", err)
	}
	return nil
}

// ToTimestamp converts a time.Time to the wire timestamp type used across
// all three record kinds.
func ToTimestamp(t time.Time) *timestamppb.Timestamp {
	return timestamppb.New(t)
}

// NewMetricPoint converts a registry metric sample into its persisted form.
func NewMetricPoint(name string, kind metrics.Kind, value float64, at time.Time) MetricPoint {
	return MetricPoint{
		Name:  name,
		Kind:  kind.String(),
		Value: value,
		At:    ToTimestamp(at),
	}
}

// NewFlowRecord converts a flow table entry into its persisted form.
func NewFlowRecord(key flow.Key, stats flow.Stats) FlowRecord {
	return FlowRecord{
		IP1:             key.IP1,
		IP2:             key.IP2,
		Port1:           key.Port1,
		Port2:           key.Port2,
		Protocol:        key.Protocol,
		AppProtocol:     stats.Protocol,
		BytesSent:       stats.BytesSent,
		BytesReceived:   stats.BytesReceived,
		PacketsSent:     stats.PacketsSent,
		PacketsReceived: stats.PacketsReceived,
		FirstSeen:       ToTimestamp(stats.FirstSeen),
		LastSeen:        ToTimestamp(stats.LastSeen),
	}
}

// NewAlertRecord converts a fired alert into its persisted form.
// Acknowledged is always false: a freshly fired alert starts
// unacknowledged, and nothing in this agent currently sets it true.
func NewAlertRecord(a alert.Alert, at time.Time) AlertRecord {
	return AlertRecord{
		Name:         a.Name,
		Description:  a.Message(),
		Severity:     int(a.Severity),
		At:           ToTimestamp(at),
		Acknowledged: false,
	}
}
