// Command netsentry-ctl is an offline companion to netsentryd: it replays
// a pcap file through the decoder, flow table and protocol recognizer
// chain and prints a summary, dumps the keys a config file sets,
// generates synthetic pcap fixtures, or inspects a persisted snapshot's
// gob-encoded data files.
package main

import (
	"encoding/gob"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"netsentry/internal/capture"
	"netsentry/internal/config"
	"netsentry/internal/flow"
	"netsentry/internal/protocol"
	"netsentry/internal/store"
)

func main() {
	mode := flag.String("mode", "replay", "operating mode: 'replay', 'config', 'generate' or 'dump'")
	pcapPath := flag.String("pcap", "", "pcap file to replay (required for replay mode)")
	configPath := flag.String("config", "", "path to the configuration file (defaults built in if omitted)")
	exportPath := flag.String("export", "", "optional path to write a YAML export of the replayed snapshot")
	topN := flag.Int("top", 10, "number of top connections/hosts to print")
	genOut := flag.String("out", "test.pcap", "output pcap file path (generate mode)")
	genCount := flag.Int("count", 1000, "number of synthetic packets to generate (generate mode)")
	dumpFile := flag.String("dump-file", "", "gob-encoded snapshot data file to inspect (dump mode)")
	dumpKind := flag.String("dump-kind", "flows", "record kind stored in -dump-file: 'metrics', 'flows' or 'alerts'")
	flag.Parse()

	switch *mode {
	case "replay":
		runReplay(*pcapPath, *exportPath, *topN)
	case "config":
		runConfigDump(*configPath)
	case "generate":
		runGenerate(*genOut, *genCount)
	case "dump":
		runDump(*dumpFile, *dumpKind)
	default:
		fmt.Fprintf(os.Stderr, "netsentry-ctl: unknown mode %q\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

func runReplay(pcapPath, exportPath string, topN int) {
	if pcapPath == "" {
		fmt.Fprintln(os.Stderr, "netsentry-ctl: -pcap is required for replay mode")
		flag.Usage()
		os.Exit(1)
	}

	driver, err := capture.NewOfflineDriver(pcapPath)
	if err != nil {
		log.Fatalf("netsentry-ctl: failed to open %q: %v", pcapPath, err)
	}

	packets, err := driver.Start()
	if err != nil {
		log.Fatalf("netsentry-ctl: failed to start replay: %v", err)
	}

	flows := flow.NewTable(flow.DefaultMaxFlows)
	chain := protocol.NewChain()

	count := 0
	for pkt := range packets {
		flows.Ingest(pkt.Info, pkt.Info.WireLen)
		if info, ok := chain.Recognize(pkt.Info, pkt.Payload); ok {
			flows.SetProtocol(pkt.Info, string(info.Kind))
		}
		count++
	}
	driver.Stop()

	fmt.Printf("replayed %d packets, %d flows\n\n", count, flows.FlowCount())

	fmt.Printf("top %d connections by total bytes:\n", topN)
	for _, rec := range flows.TopConnections(topN) {
		fmt.Printf("  %s:%d <-> %s:%d  sent=%d received=%d protocol=%s\n",
			rec.Key.IP1, rec.Key.Port1, rec.Key.IP2, rec.Key.Port2,
			rec.Stats.BytesSent, rec.Stats.BytesReceived, rec.Stats.Protocol)
	}

	fmt.Printf("\ntop %d hosts by traffic:\n", topN)
	for _, rec := range flows.TopHosts(topN) {
		fmt.Printf("  %s  total=%d\n", rec.Host, rec.Total)
	}

	if exportPath != "" {
		snap := store.Snapshot{}
		for _, rec := range flows.TopConnections(0) {
			snap.Flows = append(snap.Flows, store.NewFlowRecord(rec.Key, rec.Stats))
		}
		if err := store.ExportYAML(exportPath, snap); err != nil {
			log.Fatalf("netsentry-ctl: failed to export %q: %v", exportPath, err)
		}
		fmt.Printf("\nexported snapshot to %s\n", exportPath)
	}
}

func runConfigDump(configPath string) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("netsentry-ctl: failed to load config %q: %v", configPath, err)
		}
		cfg = loaded
	}
	fmt.Print(cfg.Dump())
}

// runGenerate writes count synthetic Ethernet/IPv4/TCP packets to a pcap
// file, for building replay fixtures without a live capture.
func runGenerate(outPath string, count int) {
	f, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("netsentry-ctl: failed to create %q: %v", outPath, err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("netsentry-ctl: failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	log.Printf("netsentry-ctl: generating %d packets into %s", count, outPath)

	for i := 0; i < count; i++ {
		if err := writeSyntheticPacket(w, rng); err != nil {
			log.Fatalf("netsentry-ctl: failed to write packet %d: %v", i, err)
		}
	}
	log.Printf("netsentry-ctl: wrote %d packets to %s", count, outPath)
}

func writeSyntheticPacket(w *pcapgo.Writer, rng *rand.Rand) error {
	srcIP := net.IP{byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256))}
	dstIP := net.IP{byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256))}
	srcPort := layers.TCPPort(rng.Intn(65535-1024) + 1024)
	dstPort := layers.TCPPort(rng.Intn(65535-1024) + 1024)
	payloadSize := rng.Intn(1400) + 50

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP:    srcIP,
		DstIP:    dstIP,
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
	}
	tcp := &layers.TCP{
		SrcPort: srcPort,
		DstPort: dstPort,
		Seq:     rng.Uint32(),
		Ack:     rng.Uint32(),
		SYN:     true,
		Window:  14600,
	}
	tcp.SetNetworkLayerForChecksum(ip)

	payload := make([]byte, payloadSize)
	rng.Read(payload)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize layers: %w", err)
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	return w.WritePacket(ci, buf.Bytes())
}

// runDump decodes a gob file written by store.GobSink and prints every
// record it contains. kind selects which of the three record shapes the
// file holds.
func runDump(path, kind string) {
	if path == "" {
		fmt.Fprintln(os.Stderr, "netsentry-ctl: -dump-file is required for dump mode")
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("netsentry-ctl: failed to open %q: %v", path, err)
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	switch kind {
	case "metrics":
		var points []store.MetricPoint
		if err := dec.Decode(&points); err != nil {
			log.Fatalf("netsentry-ctl: failed to decode metrics: %v", err)
		}
		for _, p := range points {
			fmt.Printf("%s  %s=%v (%s)\n", p.At.AsTime().Format(time.RFC3339), p.Name, p.Value, p.Kind)
		}
	case "flows":
		var recs []store.FlowRecord
		if err := dec.Decode(&recs); err != nil {
			log.Fatalf("netsentry-ctl: failed to decode flows: %v", err)
		}
		for _, r := range recs {
			fmt.Printf("%s:%d <-> %s:%d  protocol=%s sent=%d received=%d first=%s last=%s\n",
				r.IP1, r.Port1, r.IP2, r.Port2, r.AppProtocol, r.BytesSent, r.BytesReceived,
				r.FirstSeen.AsTime().Format(time.RFC3339), r.LastSeen.AsTime().Format(time.RFC3339))
		}
	case "alerts":
		var recs []store.AlertRecord
		if err := dec.Decode(&recs); err != nil {
			log.Fatalf("netsentry-ctl: failed to decode alerts: %v", err)
		}
		for _, r := range recs {
			fmt.Printf("%s  [severity=%d ack=%v] %s: %s\n", r.At.AsTime().Format(time.RFC3339), r.Severity, r.Acknowledged, r.Name, r.Description)
		}
	default:
		fmt.Fprintf(os.Stderr, "netsentry-ctl: unknown dump kind %q\n", kind)
		os.Exit(1)
	}
}
