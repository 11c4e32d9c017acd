package natscap

import (
	"bytes"
	"encoding/gob"
	"testing"
	"time"

	"netsentry/internal/decode"
)

func TestEnvelopeRoundTripsOverGob(t *testing.T) {
	info := decode.PacketInfo{
		Timestamp: time.Now().Truncate(time.Microsecond),
		WireLen:   60,
		SrcIP:     "10.0.0.1",
		DstIP:     "10.0.0.2",
		SrcPort:   1234,
		DstPort:   443,
		Protocol:  6,
	}
	payload := []byte("hello")

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(Envelope{Info: info, Payload: payload}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got Envelope
	if err := gob.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Info.SrcIP != info.SrcIP || got.Info.DstPort != info.DstPort {
		t.Fatalf("Info = %+v, want %+v", got.Info, info)
	}
	if string(got.Payload) != string(payload) {
		t.Fatalf("Payload = %q, want %q", got.Payload, payload)
	}
	if !got.Info.Timestamp.Equal(info.Timestamp) {
		t.Fatalf("Timestamp = %v, want %v", got.Info.Timestamp, info.Timestamp)
	}
}
