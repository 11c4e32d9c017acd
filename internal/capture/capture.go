// Package capture implements packet capture drivers: reading frames from
// a live network interface or an offline pcap file and decoding them
// onto a channel of Packets.
package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"netsentry/internal/decode"
	"netsentry/internal/netlog"
)

// Packet is one decoded frame ready for the worker pool.
type Packet struct {
	Info    *decode.PacketInfo
	Payload []byte
}

// Driver produces a stream of decoded packets until Stop is called or the
// underlying source is exhausted.
type Driver interface {
	// Start begins reading and returns a channel of packets that is closed
	// when the source is exhausted or Stop is called.
	Start() (<-chan Packet, error)
	Stop()
}

// snaplen is large enough to never truncate an Ethernet+IP+TCP/UDP
// header plus a typical MTU payload.
const snaplen = 65535

// LiveDriver captures from a live network interface.
type LiveDriver struct {
	iface   string
	handle  *pcap.Handle
	stopped chan struct{}
}

// NewLiveDriver opens a live capture handle on iface. promiscuous mirrors
// the constructor argument pcap.OpenLive takes directly.
func NewLiveDriver(iface string, promiscuous bool, timeout time.Duration) (*LiveDriver, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("capture: open live interface %q: %w", iface, err)
	}
	return &LiveDriver{iface: iface, handle: handle, stopped: make(chan struct{})}, nil
}

// Start launches the read loop in a background goroutine.
func (d *LiveDriver) Start() (<-chan Packet, error) {
	out := make(chan Packet, 1024)
	go d.readLoop(out)
	return out, nil
}

// Stop closes the pcap handle, which unblocks the read loop.
func (d *LiveDriver) Stop() {
	select {
	case <-d.stopped:
		return
	default:
		close(d.stopped)
	}
	d.handle.Close()
}

func (d *LiveDriver) readLoop(out chan<- Packet) {
	defer close(out)
	source := gopacket.NewPacketSource(d.handle, d.handle.LinkType())
	for raw := range source.Packets() {
		select {
		case <-d.stopped:
			return
		default:
		}
		emit(out, raw)
	}
}

// OfflineDriver replays packets from a pcap file, for testing and for the
// netsentry-ctl replay tool.
type OfflineDriver struct {
	path    string
	handle  *pcap.Handle
	stopped chan struct{}
}

// NewOfflineDriver opens a pcap file for offline replay.
func NewOfflineDriver(path string) (*OfflineDriver, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open pcap file %q: %w", path, err)
	}
	return &OfflineDriver{path: path, handle: handle, stopped: make(chan struct{})}, nil
}

// Start launches the replay loop in a background goroutine.
func (d *OfflineDriver) Start() (<-chan Packet, error) {
	out := make(chan Packet, 1024)
	go d.readLoop(out)
	return out, nil
}

// Stop halts replay before the file is exhausted.
func (d *OfflineDriver) Stop() {
	select {
	case <-d.stopped:
		return
	default:
		close(d.stopped)
	}
	d.handle.Close()
}

func (d *OfflineDriver) readLoop(out chan<- Packet) {
	defer close(out)
	source := gopacket.NewPacketSource(d.handle, d.handle.LinkType())
	for raw := range source.Packets() {
		select {
		case <-d.stopped:
			return
		default:
		}
		emit(out, raw)
	}
}

func emit(out chan<- Packet, raw gopacket.Packet) {
	data := raw.Data()
	info, err := decode.Decode(data, raw.Metadata().Timestamp)
	if err != nil {
		netlog.Default.Debugf("capture: dropping frame: %v", err)
		return
	}
	out <- Packet{Info: info, Payload: decode.Payload(data)}
}
