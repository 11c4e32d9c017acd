package flow

import (
	"testing"
	"time"

	"netsentry/internal/decode"
)

func pkt(srcIP, dstIP string, srcPort, dstPort uint16) *decode.PacketInfo {
	return &decode.PacketInfo{
		Timestamp: time.Now(),
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Protocol:  6,
	}
}

func TestIngestCanonicalizesBothDirections(t *testing.T) {
	table := NewTable(0)
	table.Ingest(pkt("10.0.0.1", "10.0.0.2", 1000, 80), 100)
	table.Ingest(pkt("10.0.0.2", "10.0.0.1", 80, 1000), 50)

	if table.FlowCount() != 1 {
		t.Fatalf("FlowCount = %d, want 1", table.FlowCount())
	}

	stats, ok := table.ConnectionStats("10.0.0.1", "10.0.0.2", 1000, 80, 6)
	if !ok {
		t.Fatal("expected connection to be found")
	}
	if stats.BytesSent != 100 || stats.BytesReceived != 50 {
		t.Fatalf("stats = %+v, want BytesSent=100 BytesReceived=50", stats)
	}
	if stats.PacketsSent != 1 || stats.PacketsReceived != 1 {
		t.Fatalf("stats = %+v, want 1 packet each direction", stats)
	}
}

func TestTopConnectionsOrdersByTotalBytes(t *testing.T) {
	table := NewTable(0)
	table.Ingest(pkt("10.0.0.1", "10.0.0.2", 1, 2), 10)
	table.Ingest(pkt("10.0.0.3", "10.0.0.4", 1, 2), 1000)
	table.Ingest(pkt("10.0.0.5", "10.0.0.6", 1, 2), 500)

	top := table.TopConnections(2)
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].Key.IP1 != "10.0.0.3" || top[1].Key.IP1 != "10.0.0.5" {
		t.Fatalf("top order = %+v, want 10.0.0.3 then 10.0.0.5", top)
	}
}

func TestTopConnectionsTieBreaksOnLastSeenThenKey(t *testing.T) {
	table := NewTable(0)

	older := time.Now().Add(-time.Minute)
	newer := time.Now()

	p1 := pkt("10.0.0.1", "10.0.0.2", 1, 2)
	p1.Timestamp = older
	table.Ingest(p1, 100)

	p2 := pkt("10.0.0.3", "10.0.0.4", 1, 2)
	p2.Timestamp = newer
	table.Ingest(p2, 100)

	top := table.TopConnections(2)
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].Key.IP1 != "10.0.0.3" {
		t.Fatalf("top[0] = %+v, want the connection with the more recent LastSeen first", top[0])
	}

	table2 := NewTable(0)
	same := time.Now()
	a := pkt("10.0.0.9", "10.0.0.10", 1, 2)
	a.Timestamp = same
	table2.Ingest(a, 100)
	b := pkt("10.0.0.5", "10.0.0.6", 1, 2)
	b.Timestamp = same
	table2.Ingest(b, 100)

	top2 := table2.TopConnections(2)
	if top2[0].Key.IP1 != "10.0.0.5" {
		t.Fatalf("top2[0] = %+v, want the lexicographically smaller key first on a full tie", top2[0])
	}
}

func TestHostTrafficStatsAccumulatesBothEndpoints(t *testing.T) {
	table := NewTable(0)
	table.Ingest(pkt("10.0.0.1", "10.0.0.2", 1, 2), 100)
	table.Ingest(pkt("10.0.0.1", "10.0.0.3", 1, 2), 50)

	totals := table.HostTrafficStats()
	if totals["10.0.0.1"] != 150 {
		t.Fatalf("host 10.0.0.1 total = %d, want 150", totals["10.0.0.1"])
	}
	if totals["10.0.0.2"] != 100 || totals["10.0.0.3"] != 50 {
		t.Fatalf("unexpected per-peer totals: %+v", totals)
	}
}

func TestEvictionDropsLeastRecentlyTouched(t *testing.T) {
	table := NewTable(2)
	table.Ingest(pkt("10.0.0.1", "10.0.0.2", 1, 2), 1)
	table.Ingest(pkt("10.0.0.3", "10.0.0.4", 1, 2), 1)
	// Touch the first connection again so it's most-recently-used.
	table.Ingest(pkt("10.0.0.1", "10.0.0.2", 1, 2), 1)
	// Adding a third distinct flow should evict 10.0.0.3<->10.0.0.4.
	table.Ingest(pkt("10.0.0.5", "10.0.0.6", 1, 2), 1)

	if table.FlowCount() != 2 {
		t.Fatalf("FlowCount = %d, want 2", table.FlowCount())
	}
	if _, ok := table.ConnectionStats("10.0.0.3", "10.0.0.4", 1, 2, 6); ok {
		t.Fatal("expected least-recently-touched flow to be evicted")
	}
	if _, ok := table.ConnectionStats("10.0.0.1", "10.0.0.2", 1, 2, 6); !ok {
		t.Fatal("expected recently-touched flow to survive eviction")
	}
}

func TestOnEvictFiresOnceForEachEvictedFlow(t *testing.T) {
	table := NewTable(1)
	var evictedKeys []Key
	table.OnEvict(func(key Key, stats Stats) {
		evictedKeys = append(evictedKeys, key)
	})

	table.Ingest(pkt("10.0.0.1", "10.0.0.2", 1, 2), 1)
	table.Ingest(pkt("10.0.0.3", "10.0.0.4", 1, 2), 1)

	if len(evictedKeys) != 1 || evictedKeys[0].IP1 != "10.0.0.1" {
		t.Fatalf("evictedKeys = %+v", evictedKeys)
	}
}

func TestSetProtocolOnlySetsOnce(t *testing.T) {
	table := NewTable(0)
	p := pkt("10.0.0.1", "10.0.0.2", 1000, 80)
	table.Ingest(p, 10)
	table.SetProtocol(p, "http")
	table.SetProtocol(p, "other")

	stats, _ := table.ConnectionStats("10.0.0.1", "10.0.0.2", 1000, 80, 6)
	if stats.Protocol != "http" {
		t.Fatalf("Protocol = %q, want %q (first write wins)", stats.Protocol, "http")
	}
}
