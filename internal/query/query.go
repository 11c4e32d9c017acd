// Package query implements the read-model snapshot builders behind the
// REST query surface: flat, JSON-friendly views built directly from the
// live Metric Registry and Flow Table, since there is no query-time
// database of its own.
package query

import (
	"sort"
	"strconv"

	"netsentry/internal/flow"
	"netsentry/internal/metrics"
)

// DefaultLimit is applied to every limited view when the caller omits or
// supplies an invalid limit.
const DefaultLimit = 10

// MetricView is one metric's current value, as exposed by /api/v1/metrics.
type MetricView struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ConnectionView is one flow's accumulated stats, as exposed by
// /api/v1/network/connections.
type ConnectionView struct {
	Source          string `json:"source"`
	Destination     string `json:"destination"`
	Protocol        uint8  `json:"protocol"`
	BytesSent       uint64 `json:"bytes_sent"`
	BytesReceived   uint64 `json:"bytes_received"`
	PacketsSent     uint64 `json:"packets_sent"`
	PacketsReceived uint64 `json:"packets_received"`
}

// HostView is one host's total observed traffic, as exposed by
// /api/v1/network/hosts.
type HostView struct {
	IP    string `json:"ip"`
	Bytes uint64 `json:"bytes"`
}

// NetworkStats is the summary exposed by /api/v1/network/stats.
type NetworkStats struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// View builds read-only snapshots from a Metric Registry and a Flow
// Table. It holds no state of its own.
type View struct {
	registry *metrics.Registry
	flows    *flow.Table
}

// NewView creates a View over the given registry and flow table.
func NewView(registry *metrics.Registry, flows *flow.Table) *View {
	return &View{registry: registry, flows: flows}
}

// Metrics returns every registered metric's current value, sorted by name
// for deterministic output.
func (v *View) Metrics() []MetricView {
	names := v.registry.ListNames()
	sort.Strings(names)

	views := make([]MetricView, 0, len(names))
	for _, name := range names {
		m, err := v.registry.Get(name)
		if err != nil {
			continue
		}
		value, _ := m.Current()
		views = append(views, MetricView{Name: name, Value: value})
	}
	return views
}

// Metric returns a single metric's current value. ok is false if no metric
// of that name is registered.
func (v *View) Metric(name string) (MetricView, bool) {
	m, err := v.registry.Get(name)
	if err != nil {
		return MetricView{}, false
	}
	value, _ := m.Current()
	return MetricView{Name: name, Value: value}, true
}

// NetworkStats summarizes the flow table's current size.
func (v *View) NetworkStats() NetworkStats {
	return NetworkStats{Status: "Active", Connections: v.flows.FlowCount()}
}

// Connections returns the top limit connections by total bytes. limit == 0
// yields an empty slice, matching the REST surface's "limit=0 yields an
// empty array" rule; the flow table's own TopConnections treats 0 as
// "unbounded", so that case is special-cased here rather than there.
func (v *View) Connections(limit int) []ConnectionView {
	if limit == 0 {
		return []ConnectionView{}
	}
	records := v.flows.TopConnections(limit)
	views := make([]ConnectionView, 0, len(records))
	for _, r := range records {
		views = append(views, ConnectionView{
			Source:          formatEndpoint(r.Key.IP1, r.Key.Port1),
			Destination:     formatEndpoint(r.Key.IP2, r.Key.Port2),
			Protocol:        r.Key.Protocol,
			BytesSent:       r.Stats.BytesSent,
			BytesReceived:   r.Stats.BytesReceived,
			PacketsSent:     r.Stats.PacketsSent,
			PacketsReceived: r.Stats.PacketsReceived,
		})
	}
	return views
}

// Hosts returns the top limit hosts by total traffic. limit == 0 yields an
// empty slice; see Connections for why that case is handled here.
func (v *View) Hosts(limit int) []HostView {
	if limit == 0 {
		return []HostView{}
	}
	records := v.flows.TopHosts(limit)
	views := make([]HostView, 0, len(records))
	for _, r := range records {
		views = append(views, HostView{IP: r.Host, Bytes: r.Total})
	}
	return views
}

func formatEndpoint(ip string, port uint16) string {
	return ip + ":" + strconv.FormatUint(uint64(port), 10)
}

// NormalizeLimit applies the REST surface's default-and-fallback rule: a
// missing or non-numeric limit becomes DefaultLimit; zero stays zero
// (callers get an empty array); a negative value also falls back to the
// default, matching "invalid integers fall back to default".
func NormalizeLimit(raw string) int {
	if raw == "" {
		return DefaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return DefaultLimit
	}
	return n
}
