// Package flow implements the Flow Table and Host Traffic Index:
// bidirectional connection bookkeeping keyed by a canonicalized 5-tuple,
// plus per-host byte totals.
package flow

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"netsentry/internal/decode"
)

// DefaultMaxFlows is the soft eviction limit: once the table holds more than
// this many flows, the least-recently-touched flow is evicted to make room
// for the new one.
const DefaultMaxFlows = 100000

// Key is a canonicalized 5-tuple. Canonicalization orders the two endpoints
// lexicographically by (IP, port) so that packets in either direction of the
// same connection map to the same key.
type Key struct {
	IP1, IP2     string
	Port1, Port2 uint16
	Protocol     uint8
}

// lessKey orders keys by IP1, IP2, Port1, Port2, Protocol, for a total
// order usable as a deterministic tie-break.
func lessKey(a, b Key) bool {
	if a.IP1 != b.IP1 {
		return a.IP1 < b.IP1
	}
	if a.IP2 != b.IP2 {
		return a.IP2 < b.IP2
	}
	if a.Port1 != b.Port1 {
		return a.Port1 < b.Port1
	}
	if a.Port2 != b.Port2 {
		return a.Port2 < b.Port2
	}
	return a.Protocol < b.Protocol
}

// canonicalize returns the connection key for a packet along with whether the
// packet's source endpoint is the key's "first" endpoint (IP1/Port1) — used
// to attribute sent vs. received byte/packet counts.
func canonicalize(srcIP, dstIP string, srcPort, dstPort uint16, protocol uint8) (Key, bool) {
	swap := srcIP > dstIP || (srcIP == dstIP && srcPort > dstPort)
	if !swap {
		return Key{IP1: srcIP, IP2: dstIP, Port1: srcPort, Port2: dstPort, Protocol: protocol}, true
	}
	return Key{IP1: dstIP, IP2: srcIP, Port1: dstPort, Port2: srcPort, Protocol: protocol}, false
}

// Stats accumulates bidirectional traffic counters for one connection.
// "Sent"/"Received" are relative to the key's IP1 endpoint.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	FirstSeen       time.Time
	LastSeen        time.Time
	Protocol        string // recognized application protocol, once known
}

type entry struct {
	key     Key
	stats   Stats
	element *list.Element
}

// EvictHandler is invoked once per evicted flow, outside the table's lock,
// so the write-behind store can persist it before it's forgotten.
type EvictHandler func(key Key, stats Stats)

// Table is the Flow Table plus Host Traffic Index. Safe for concurrent use.
type Table struct {
	mu         sync.Mutex
	flows      map[Key]*entry
	lru        *list.List // front = most recently touched
	hostTotals map[string]uint64
	maxFlows   int
	onEvict    EvictHandler
}

// NewTable creates an empty Table. maxFlows <= 0 uses DefaultMaxFlows.
func NewTable(maxFlows int) *Table {
	if maxFlows <= 0 {
		maxFlows = DefaultMaxFlows
	}
	return &Table{
		flows:      make(map[Key]*entry),
		lru:        list.New(),
		hostTotals: make(map[string]uint64),
		maxFlows:   maxFlows,
	}
}

// OnEvict registers the handler invoked once per flow evicted to stay under
// the soft capacity limit, so it is surfaced to the store exactly once.
func (t *Table) OnEvict(handler EvictHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvict = handler
}

// Ingest records a decoded packet against the flow table and the host
// traffic index. size is the wire length to attribute as traffic.
func (t *Table) Ingest(pkt *decode.PacketInfo, size int) {
	key, srcIsIP1 := canonicalize(pkt.SrcIP, pkt.DstIP, pkt.SrcPort, pkt.DstPort, pkt.Protocol)

	t.mu.Lock()

	var evicted []ConnectionRecord
	e, ok := t.flows[key]
	if !ok {
		e = &entry{key: key, stats: Stats{FirstSeen: pkt.Timestamp, LastSeen: pkt.Timestamp}}
		e.element = t.lru.PushFront(e)
		t.flows[key] = e
		evicted = t.evictIfOverCapacityLocked()
	} else {
		t.lru.MoveToFront(e.element)
	}

	e.stats.LastSeen = pkt.Timestamp
	if srcIsIP1 {
		e.stats.PacketsSent++
		e.stats.BytesSent += uint64(size)
	} else {
		e.stats.PacketsReceived++
		e.stats.BytesReceived += uint64(size)
	}

	t.hostTotals[pkt.SrcIP] += uint64(size)
	t.hostTotals[pkt.DstIP] += uint64(size)

	handler := t.onEvict
	t.mu.Unlock()

	if handler != nil {
		for _, rec := range evicted {
			handler(rec.Key, rec.Stats)
		}
	}
}

// SetProtocol records the recognized application protocol for a connection,
// once, the first time it becomes known. Later calls are no-ops so that a
// protocol recognized on the first packet isn't later overwritten.
func (t *Table) SetProtocol(pkt *decode.PacketInfo, protocol string) {
	key, _ := canonicalize(pkt.SrcIP, pkt.DstIP, pkt.SrcPort, pkt.DstPort, pkt.Protocol)

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.flows[key]; ok && e.stats.Protocol == "" {
		e.stats.Protocol = protocol
	}
}

// evictIfOverCapacityLocked drops the least-recently-touched flow(s) until
// the table is back at or under maxFlows, returning what was evicted so the
// caller can surface it to the write-behind store once unlocked. Caller
// must hold t.mu.
func (t *Table) evictIfOverCapacityLocked() []ConnectionRecord {
	var evicted []ConnectionRecord
	for len(t.flows) > t.maxFlows {
		oldest := t.lru.Back()
		if oldest == nil {
			return evicted
		}
		dropped := oldest.Value.(*entry)
		t.lru.Remove(oldest)
		delete(t.flows, dropped.key)
		evicted = append(evicted, ConnectionRecord{Key: dropped.key, Stats: dropped.stats})
	}
	return evicted
}

// ConnectionRecord pairs a Key with its accumulated Stats, returned by
// TopConnections.
type ConnectionRecord struct {
	Key   Key
	Stats Stats
}

// TopConnections returns up to limit connections ordered by descending total
// bytes (sent + received), ties broken by most recent LastSeen, then by the
// full canonical key, for determinism.
func (t *Table) TopConnections(limit int) []ConnectionRecord {
	t.mu.Lock()
	records := make([]ConnectionRecord, 0, len(t.flows))
	for k, e := range t.flows {
		records = append(records, ConnectionRecord{Key: k, Stats: e.stats})
	}
	t.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		ti := records[i].Stats.BytesSent + records[i].Stats.BytesReceived
		tj := records[j].Stats.BytesSent + records[j].Stats.BytesReceived
		if ti != tj {
			return ti > tj
		}
		if !records[i].Stats.LastSeen.Equal(records[j].Stats.LastSeen) {
			return records[i].Stats.LastSeen.After(records[j].Stats.LastSeen)
		}
		return lessKey(records[i].Key, records[j].Key)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// ConnectionStats looks up a single connection by its raw (uncanonicalized)
// endpoints, canonicalizing internally.
func (t *Table) ConnectionStats(srcIP, dstIP string, srcPort, dstPort uint16, protocol uint8) (Stats, bool) {
	key, _ := canonicalize(srcIP, dstIP, srcPort, dstPort, protocol)
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.flows[key]
	if !ok {
		return Stats{}, false
	}
	return e.stats, true
}

// HostTrafficStats returns a copy of the per-host byte totals.
func (t *Table) HostTrafficStats() map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint64, len(t.hostTotals))
	for host, total := range t.hostTotals {
		out[host] = total
	}
	return out
}

// HostRecord pairs a host address with its traffic total, returned by
// TopHosts.
type HostRecord struct {
	Host  string
	Total uint64
}

// TopHosts returns up to limit hosts ordered by descending traffic total.
func (t *Table) TopHosts(limit int) []HostRecord {
	t.mu.Lock()
	records := make([]HostRecord, 0, len(t.hostTotals))
	for host, total := range t.hostTotals {
		records = append(records, HostRecord{Host: host, Total: total})
	}
	t.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Total != records[j].Total {
			return records[i].Total > records[j].Total
		}
		return records[i].Host < records[j].Host
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// FlowCount returns the number of active flows, for metrics/testing.
func (t *Table) FlowCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// Reset clears all flows and host totals.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows = make(map[Key]*entry)
	t.lru = list.New()
	t.hostTotals = make(map[string]uint64)
}
