package transport

import (
	"context"
	"fmt"
)

// EncodeQUICVarint encodes v as a QUIC variable-length integer
// (RFC 9000 §16), used to prefix WebTransport session datagrams with
// their stream/session id on the wire.
func EncodeQUICVarint(v uint64) []byte {
	switch {
	case v <= 63:
		return []byte{byte(v)}
	case v <= 16383:
		b := make([]byte, 2)
		b[0] = 0x40 | byte(v>>8)
		b[1] = byte(v)
		return b
	case v <= 1073741823:
		b := make([]byte, 4)
		b[0] = 0x80 | byte(v>>24)
		b[1] = byte(v >> 16)
		b[2] = byte(v >> 8)
		b[3] = byte(v)
		return b
	default:
		b := make([]byte, 8)
		b[0] = 0xC0 | byte(v>>56)
		for i := 1; i < 8; i++ {
			b[i] = byte(v >> uint(56-8*i))
		}
		return b
	}
}

// DecodeQUICVarint reads one QUIC varint from the front of b, returning
// the decoded value, the number of bytes consumed, and an error if b is
// too short for the length its first two bits indicate.
func DecodeQUICVarint(b []byte) (value uint64, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("transport: empty varint")
	}
	lenTag := b[0] >> 6
	n := 1 << lenTag
	if len(b) < n {
		return 0, 0, fmt.Errorf("transport: truncated varint, need %d bytes have %d", n, len(b))
	}
	value = uint64(b[0] & 0x3F)
	for i := 1; i < n; i++ {
		value = (value << 8) | uint64(b[i])
	}
	return value, n, nil
}

// DatagramSession is the minimal surface of a WebTransport session's
// datagram channel the bridge needs.
type DatagramSession interface {
	ReceiveDatagram(ctx context.Context) ([]byte, error)
	SendDatagram(b []byte) error
}

// Bridge adapts one WebTransport session's datagrams to the
// ALPN-agnostic inner media format: inbound datagrams have their QUIC
// stream-id varint prefix stripped before being handed to the media
// core, and outbound datagrams have it prepended before hitting the
// wire, mirroring the reference's spawn_webtransport_bridge.
type Bridge struct {
	session   DatagramSession
	sessionID uint64
	Outbound  chan []byte // media-core writes raw (unprefixed) datagrams here
	Inbound   chan []byte // media-core reads raw (unprefixed) datagrams here
}

// NewBridge starts the two pump goroutines and returns the channels
// the media core reads/writes on. ctx cancellation stops both pumps.
func NewBridge(ctx context.Context, session DatagramSession, sessionID uint64) *Bridge {
	b := &Bridge{
		session:   session,
		sessionID: sessionID,
		Outbound:  make(chan []byte, 64),
		Inbound:   make(chan []byte, 64),
	}
	go b.pumpOutbound(ctx)
	go b.pumpInbound(ctx)
	return b
}

func (b *Bridge) pumpOutbound(ctx context.Context) {
	prefix := EncodeQUICVarint(b.sessionID)
	for {
		select {
		case <-ctx.Done():
			return
		case datagram, ok := <-b.Outbound:
			if !ok {
				return
			}
			framed := make([]byte, 0, len(prefix)+len(datagram))
			framed = append(framed, prefix...)
			framed = append(framed, datagram...)
			_ = b.session.SendDatagram(framed)
		}
	}
}

func (b *Bridge) pumpInbound(ctx context.Context) {
	for {
		raw, err := b.session.ReceiveDatagram(ctx)
		if err != nil {
			close(b.Inbound)
			return
		}
		_, consumed, err := DecodeQUICVarint(raw)
		if err != nil {
			continue
		}
		stripped := raw[consumed:]
		select {
		case b.Inbound <- stripped:
		case <-ctx.Done():
			return
		}
	}
}
