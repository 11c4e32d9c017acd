// Package natscap implements a distributed capture probe: a Publisher that
// ships captured packets over NATS to a central collector, and a Subscriber
// that consumes them. The wire envelope is gob-encoded rather than
// protobuf, matching the encoding already used for on-disk persistence.
package natscap

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"netsentry/internal/capture"
	"netsentry/internal/decode"
)

// Envelope is the wire shape of one captured packet as shipped over NATS.
type Envelope struct {
	Info    decode.PacketInfo
	Payload []byte
}

// Publisher ships captured packets to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to natsURL and returns a Publisher bound to
// subject.
func NewPublisher(natsURL, subject string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("natscap: connect: %w", err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish gob-encodes info/payload and publishes it.
func (p *Publisher) Publish(info *decode.PacketInfo, payload []byte) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(Envelope{Info: *info, Payload: payload}); err != nil {
		return fmt.Errorf("natscap: encode: %w", err)
	}
	return p.nc.Publish(p.subject, buf.Bytes())
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}

// Handler processes one packet received from the subject.
type Handler func(info *decode.PacketInfo, payload []byte)

// Subscriber consumes packets published to a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to natsURL and returns a Subscriber bound to
// subject.
func NewSubscriber(natsURL, subject string) (*Subscriber, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("natscap: connect: %w", err)
	}
	return &Subscriber{nc: nc, subject: subject}, nil
}

// Start subscribes and invokes handler for every decoded message. Decode
// errors are swallowed with a log line rather than killing the
// subscription.
func (s *Subscriber) Start(handler Handler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var env Envelope
		if err := gob.NewDecoder(bytes.NewReader(msg.Data)).Decode(&env); err != nil {
			return
		}
		handler(&env.Info, env.Payload)
	})
	if err != nil {
		return fmt.Errorf("natscap: subscribe: %w", err)
	}
	s.sub = sub
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}

// Driver adapts a Subscriber to capture.Driver, so the agent can treat a
// NATS-fed packet stream exactly like a local pcap capture: an alternate
// capture source for a deployment where capture and processing run as
// separate processes.
type Driver struct {
	sub *Subscriber
	out chan capture.Packet

	mu      sync.Mutex
	stopped bool
}

// NewDriver connects to natsURL and returns a Driver that will, once
// started, emit packets published to subject.
func NewDriver(natsURL, subject string) (*Driver, error) {
	sub, err := NewSubscriber(natsURL, subject)
	if err != nil {
		return nil, err
	}
	return &Driver{sub: sub, out: make(chan capture.Packet, 1024)}, nil
}

// Start subscribes and begins forwarding decoded packets onto the
// returned channel.
func (d *Driver) Start() (<-chan capture.Packet, error) {
	if err := d.sub.Start(func(info *decode.PacketInfo, payload []byte) {
		// Holding mu across the send means Stop cannot observe stopped ==
		// false, close d.out, and have this send land on the closed
		// channel: the close is serialized behind whichever callback
		// already passed the check.
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.stopped {
			return
		}
		d.out <- capture.Packet{Info: info, Payload: payload}
	}); err != nil {
		return nil, err
	}
	return d.out, nil
}

// Stop unsubscribes, then closes the output channel under the same lock
// the callback uses, so no in-flight send can race the close.
func (d *Driver) Stop() {
	d.sub.Close()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	close(d.out)
}
