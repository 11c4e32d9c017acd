// Package decode implements a frame decoder: parsing raw Ethernet II /
// IPv4 / TCP|UDP frames into a flat PacketInfo shape (dotted-quad IP
// strings, microsecond timestamps, raw bytes retained) that the rest of
// the telemetry plane consumes.
package decode

import (
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrTruncated is returned when the frame is too short to contain the
// headers its declared layers imply.
var ErrTruncated = errors.New("decode: truncated frame")

// PacketInfo is the decoder's output: immutable once produced.
type PacketInfo struct {
	Timestamp time.Time // microsecond-resolution wall clock
	WireLen   int
	Raw       []byte
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	Protocol  uint8
}

// Decode parses a captured frame. data holds the captured bytes, and its
// length is recorded as WireLen; ts is the capture timestamp. Non-IPv4
// frames are rejected outright. A
// recognized IPv4 frame whose L4 protocol is neither TCP nor UDP (e.g.
// ICMP) is still decoded, with ports left at 0. Frames too short to
// contain an Ethernet header, or an IPv4 header once Ethernet is
// stripped, are rejected with ErrTruncated.
func Decode(data []byte, ts time.Time) (*PacketInfo, error) {
	if len(data) < 14 {
		return nil, ErrTruncated
	}
	// An IPv4 EtherType needs at least the header length its IHL declares.
	if data[12] == 0x08 && data[13] == 0x00 {
		if len(data) < 14+20 || len(data) < 14+int(data[14]&0x0f)*4 {
			return nil, ErrTruncated
		}
	}

	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)

	info := &PacketInfo{
		Timestamp: ts.Truncate(time.Microsecond),
		WireLen:   len(data),
		Raw:       append([]byte(nil), data...),
	}

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil, errors.New("decode: not an IPv4 packet")
	}
	ipv4, ok := ipLayer.(*layers.IPv4)
	if !ok {
		return nil, errors.New("decode: malformed IPv4 layer")
	}
	info.SrcIP = ipv4.SrcIP.String()
	info.DstIP = ipv4.DstIP.String()
	info.Protocol = uint8(ipv4.Protocol)

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		info.SrcPort = uint16(tcp.SrcPort)
		info.DstPort = uint16(tcp.DstPort)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		info.SrcPort = uint16(udp.SrcPort)
		info.DstPort = uint16(udp.DstPort)
	}
	// Other L4 protocols (e.g. ICMP) keep ports at 0.

	return info, nil
}

// Payload returns the application-layer bytes of the decoded frame, i.e.
// everything gopacket attributed to the transport layer's payload. Used by
// protocol recognizers that need the bytes following the TCP/UDP header.
func Payload(data []byte) []byte {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	if app := packet.ApplicationLayer(); app != nil {
		return app.Payload()
	}
	if transport := packet.TransportLayer(); transport != nil {
		return transport.LayerPayload()
	}
	return nil
}
