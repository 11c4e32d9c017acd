// Package protocol implements a Protocol Recognizer chain: best-effort
// identification of HTTP, DNS and TLS traffic from a packet's transport
// payload. The chain tries recognizers in a fixed order — HTTP, then DNS,
// then TLS — and returns the first match.
package protocol

import (
	"encoding/binary"
	"strconv"
	"strings"

	"netsentry/internal/decode"
)

// Kind names a recognized application protocol.
type Kind string

const (
	HTTP Kind = "http"
	DNS  Kind = "dns"
	TLS  Kind = "tls"
)

// HTTPInfo holds the fields extracted from an HTTP request or response line
// plus headers.
type HTTPInfo struct {
	IsRequest  bool
	Method     string
	URI        string
	Version    string
	StatusCode int
	Headers    map[string]string
}

// DNSInfo holds the fields extracted from a DNS message header.
type DNSInfo struct {
	TransactionID uint16
	IsQuery       bool
}

// TLSInfo holds the fields extracted from a TLS record, and the SNI
// extracted from a Client Hello's server_name extension when present.
type TLSInfo struct {
	ContentType   uint8
	Version       uint16
	IsHandshake   bool
	IsClientHello bool
	IsServerHello bool
	ServerName    string
}

// Info is the recognition result for one packet: exactly one of the typed
// fields matching Kind is populated.
type Info struct {
	Kind Kind
	HTTP *HTTPInfo
	DNS  *DNSInfo
	TLS  *TLSInfo
}

// Recognizer identifies one protocol from a packet's metadata and transport
// payload.
type Recognizer interface {
	Kind() Kind
	Recognize(pkt *decode.PacketInfo, payload []byte) (*Info, bool)
}

// Chain runs recognizers in a fixed, stable order and returns the first
// match.
type Chain struct {
	recognizers []Recognizer
}

// NewChain returns the chain used throughout netsentry: HTTP, then DNS, then
// TLS.
func NewChain() *Chain {
	return &Chain{recognizers: []Recognizer{httpRecognizer{}, dnsRecognizer{}, tlsRecognizer{}}}
}

// Recognize tries each recognizer in order and returns the first match.
func (c *Chain) Recognize(pkt *decode.PacketInfo, payload []byte) (*Info, bool) {
	for _, r := range c.recognizers {
		if info, ok := r.Recognize(pkt, payload); ok {
			return info, true
		}
	}
	return nil, false
}

const (
	protoTCP = 6
	protoUDP = 17
)

var httpMethods = []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH", "CONNECT", "TRACE"}

type httpRecognizer struct{}

func (httpRecognizer) Kind() Kind { return HTTP }

func (httpRecognizer) Recognize(pkt *decode.PacketInfo, payload []byte) (*Info, bool) {
	if pkt.Protocol != protoTCP || len(payload) < 16 {
		return nil, false
	}
	if !looksLikeHTTP(payload) {
		return nil, false
	}

	var data *HTTPInfo
	switch {
	case pkt.SrcPort == 80 || pkt.SrcPort == 8080:
		data = parseHTTPResponse(payload)
	case pkt.DstPort == 80 || pkt.DstPort == 8080:
		data = parseHTTPRequest(payload)
	default:
		return nil, false
	}
	return &Info{Kind: HTTP, HTTP: data}, true
}

func looksLikeHTTP(payload []byte) bool {
	n := len(payload)
	if n > 8 {
		n = 8
	}
	start := string(payload[:n])
	for _, method := range httpMethods {
		if strings.HasPrefix(start, method) && strings.HasPrefix(start[len(method):], " ") {
			return true
		}
	}
	return strings.HasPrefix(start, "HTTP/")
}

func splitHeaderBlock(raw string) string {
	if idx := strings.Index(raw, "\r\n\r\n"); idx >= 0 {
		return raw[:idx]
	}
	return raw
}

func parseHeaders(block string, afterFirstLine int) map[string]string {
	headers := make(map[string]string)
	pos := afterFirstLine
	for pos < len(block) {
		end := strings.Index(block[pos:], "\r\n")
		var line string
		if end < 0 {
			line = block[pos:]
			pos = len(block)
		} else {
			line = block[pos : pos+end]
			pos += end + 2
		}
		if colon := strings.Index(line, ":"); colon >= 0 {
			key := line[:colon]
			value := strings.TrimLeft(line[colon+1:], " \t")
			headers[key] = value
		}
	}
	return headers
}

func parseHTTPRequest(payload []byte) *HTTPInfo {
	info := &HTTPInfo{IsRequest: true, Headers: map[string]string{}}
	raw := string(payload)
	block := splitHeaderBlock(raw)

	lineEnd := strings.Index(block, "\r\n")
	if lineEnd < 0 {
		return info
	}
	requestLine := block[:lineEnd]

	methodEnd := strings.Index(requestLine, " ")
	if methodEnd < 0 {
		return info
	}
	info.Method = requestLine[:methodEnd]

	uriEnd := strings.Index(requestLine[methodEnd+1:], " ")
	if uriEnd < 0 {
		return info
	}
	uriEnd += methodEnd + 1
	info.URI = requestLine[methodEnd+1 : uriEnd]
	info.Version = requestLine[uriEnd+1:]

	info.Headers = parseHeaders(block, lineEnd+2)
	return info
}

func parseHTTPResponse(payload []byte) *HTTPInfo {
	info := &HTTPInfo{IsRequest: false, Headers: map[string]string{}}
	raw := string(payload)
	block := splitHeaderBlock(raw)

	lineEnd := strings.Index(block, "\r\n")
	if lineEnd < 0 {
		return info
	}
	statusLine := block[:lineEnd]

	versionEnd := strings.Index(statusLine, " ")
	if versionEnd < 0 {
		return info
	}
	info.Version = statusLine[:versionEnd]

	codeEnd := strings.Index(statusLine[versionEnd+1:], " ")
	if codeEnd < 0 {
		codeEnd = len(statusLine) - versionEnd - 1
	} else {
		codeEnd += versionEnd + 1
	}
	codeStr := statusLine[versionEnd+1 : codeEnd]
	if code, err := strconv.Atoi(codeStr); err == nil {
		info.StatusCode = code
	}

	info.Headers = parseHeaders(block, lineEnd+2)
	return info
}

type dnsRecognizer struct{}

func (dnsRecognizer) Kind() Kind { return DNS }

func (dnsRecognizer) Recognize(pkt *decode.PacketInfo, payload []byte) (*Info, bool) {
	onPort53 := pkt.SrcPort == 53 || pkt.DstPort == 53
	if !onPort53 || (pkt.Protocol != protoTCP && pkt.Protocol != protoUDP) {
		return nil, false
	}
	data := &DNSInfo{}
	if len(payload) >= 12 {
		data.TransactionID = binary.BigEndian.Uint16(payload[0:2])
		flags := binary.BigEndian.Uint16(payload[2:4])
		data.IsQuery = flags&0x8000 == 0
	}
	return &Info{Kind: DNS, DNS: data}, true
}

type tlsRecognizer struct{}

func (tlsRecognizer) Kind() Kind { return TLS }

func (tlsRecognizer) Recognize(pkt *decode.PacketInfo, payload []byte) (*Info, bool) {
	if pkt.Protocol != protoTCP || len(payload) < 5 {
		return nil, false
	}
	contentType := payload[0]
	version := binary.BigEndian.Uint16(payload[1:3])
	if !(contentType >= 20 && contentType <= 23) {
		return nil, false
	}
	if !((version >= 0x0300 && version <= 0x0304) || version == 0x0100) {
		return nil, false
	}

	data := &TLSInfo{ContentType: contentType, Version: version}
	data.IsHandshake = contentType == 22
	if data.IsHandshake && len(payload) >= 6 {
		handshakeType := payload[5]
		data.IsClientHello = handshakeType == 1
		data.IsServerHello = handshakeType == 2

		if data.IsClientHello && len(payload) > 43 {
			data.ServerName = extractServerName(payload)
		}
	}
	return &Info{Kind: TLS, TLS: data}, true
}

// extractServerName walks a TLS Client Hello's fixed-offset fields (session
// ID, cipher suites, compression methods) to reach the extensions block and
// pull the server_name (type 0) extension.
func extractServerName(data []byte) string {
	sessionIDLen := int(data[43])
	offset := 44 + sessionIDLen
	if len(data) <= offset+1 {
		return ""
	}

	cipherSuitesLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2 + cipherSuitesLen
	if len(data) <= offset {
		return ""
	}

	compressionMethodsLen := int(data[offset])
	offset += 1 + compressionMethodsLen
	if len(data) <= offset+1 {
		return ""
	}

	extensionsLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	end := offset + extensionsLen
	if end > len(data) {
		end = len(data)
	}
	pos := offset
	for pos+4 <= end {
		extType := binary.BigEndian.Uint16(data[pos : pos+2])
		extLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		pos += 4

		if extType == 0 && pos+extLen <= end && extLen > 2 {
			listLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
			namePos := pos + 2
			if listLen > 3 && namePos+listLen <= end {
				nameType := data[namePos]
				nameLen := int(binary.BigEndian.Uint16(data[namePos+1 : namePos+3]))
				namePos += 3
				if nameType == 0 && namePos+nameLen <= end {
					return string(data[namePos : namePos+nameLen])
				}
			}
		}
		pos += extLen
	}
	return ""
}
