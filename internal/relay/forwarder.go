// Package relay implements the zero-knowledge forwarder: it reads
// media datagrams, parses only the cleartext header, and fans them out
// verbatim to subscribers without ever touching the ciphertext. A
// per-subscriber circuit breaker (adapted from the reference server's
// health-check pattern) keeps a consistently-unreachable peer from
// being retried on every single forwarded frame.
package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/SweetLiberty92/Paracord-sub001/internal/logx"
	"github.com/SweetLiberty92/Paracord-sub001/internal/room"
	"github.com/SweetLiberty92/Paracord-sub001/internal/speaker"
	"github.com/SweetLiberty92/Paracord-sub001/internal/wire"
)

// breakerThreshold is the number of consecutive send failures after
// which a subscriber is skipped for breakerCooldown-1 sends and then
// probed with the next one, rather than retried on every frame.
const (
	breakerThreshold = 50
	breakerCooldown  = 25
)

// circuitBreaker tracks consecutive send failures for one connection.
type circuitBreaker struct {
	failures atomic.Uint32
	skips    atomic.Uint32
}

func (b *circuitBreaker) shouldSkip() bool {
	if b.failures.Load() < breakerThreshold {
		return false
	}
	// Probe occasionally instead of permanently skipping.
	n := b.skips.Add(1)
	if n >= breakerCooldown {
		b.skips.Store(0)
		return false
	}
	return true
}

func (b *circuitBreaker) recordFailure() { b.failures.Add(1) }
func (b *circuitBreaker) recordSuccess() { b.failures.Store(0); b.skips.Store(0) }

// DatagramSender abstracts the outbound side of one participant's
// connection, so the forwarder needs no transport-specific type.
type DatagramSender interface {
	SendDatagram(b []byte) error
}

// ConnectionHandle is everything the forwarder needs to read from and
// write to one participant's connection.
type ConnectionHandle struct {
	UserID  int64
	RoomID  string
	Sender  DatagramSender
	breaker circuitBreaker
}

// FederationForwarder forwards a verbatim datagram to a federated
// room's remote servers. Implemented by the federation package;
// declared here to avoid an import cycle.
type FederationForwarder interface {
	ForwardToFederation(roomID string, datagram []byte)
	IsFederated(roomID string) bool
}

// Forwarder owns every connected participant's handle and fans out
// datagrams within rooms.
type Forwarder struct {
	mu          sync.RWMutex
	connections map[int64]*ConnectionHandle
	rooms       *room.Manager
	speakers    *speaker.Detector
	federation  FederationForwarder
	lg          *logx.Logger

	datagramsForwarded atomic.Uint64
	bytesForwarded     atomic.Uint64
	breakerTrips       atomic.Uint64
}

// DatagramsForwarded returns the running count of datagrams
// successfully handed to a subscriber's Sender.
func (f *Forwarder) DatagramsForwarded() uint64 { return f.datagramsForwarded.Load() }

// BytesForwarded returns the running count of bytes successfully
// handed to subscribers' Senders.
func (f *Forwarder) BytesForwarded() uint64 { return f.bytesForwarded.Load() }

// BreakerTrips returns the running count of sends skipped because a
// subscriber's circuit breaker was open.
func (f *Forwarder) BreakerTrips() uint64 { return f.breakerTrips.Load() }

// New builds a Forwarder over an existing room manager and speaker
// detector. federation may be nil if federation is disabled.
func New(rooms *room.Manager, speakers *speaker.Detector, federation FederationForwarder) *Forwarder {
	return &Forwarder{
		connections: make(map[int64]*ConnectionHandle),
		rooms:       rooms,
		speakers:    speakers,
		federation:  federation,
		lg:          logx.New("relay"),
	}
}

// Register adds userID's connection handle, making it eligible to
// receive forwarded datagrams.
func (f *Forwarder) Register(userID int64, roomID string, sender DatagramSender) *ConnectionHandle {
	h := &ConnectionHandle{UserID: userID, RoomID: roomID, Sender: sender}
	f.mu.Lock()
	f.connections[userID] = h
	f.mu.Unlock()
	return h
}

// Unregister removes userID's connection handle, e.g. on disconnect.
func (f *Forwarder) Unregister(userID int64) {
	f.mu.Lock()
	delete(f.connections, userID)
	f.mu.Unlock()
}

func (f *Forwarder) handleFor(userID int64) *ConnectionHandle {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connections[userID]
}

// HandleDatagram implements one iteration of the per-connection
// forwarding loop (spec.md §4.10, steps 2-7) for a single datagram
// received from senderID.
func (f *Forwarder) HandleDatagram(senderID int64, datagram []byte) {
	if len(datagram) < wire.HeaderSize {
		f.lg.Printf("dropping short datagram from user %d (%d bytes)", senderID, len(datagram))
		return
	}

	h, err := wire.Decode(datagram)
	if err != nil {
		f.lg.Printf("dropping unparseable datagram from user %d: %v", senderID, err)
		return
	}

	senderRoom := f.roomIDFor(senderID)
	if senderRoom == "" {
		return
	}
	f.speakers.ReportAudioLevel(senderID, h.AudioLevel)

	r := f.rooms.Get(senderRoom)
	if r == nil {
		return
	}

	for _, p := range r.Participants() {
		if p.UserID == senderID {
			continue
		}
		if p.Deafened {
			continue
		}
		if !p.IsSubscribedTo(senderID) {
			continue
		}
		f.sendTo(p.UserID, datagram)
	}

	if f.federation != nil && f.federation.IsFederated(senderRoom) {
		f.federation.ForwardToFederation(senderRoom, datagram)
	}
}

func (f *Forwarder) roomIDFor(userID int64) string {
	h := f.handleFor(userID)
	if h == nil {
		return ""
	}
	return h.RoomID
}

// sendTo delivers datagram to userID's connection, honoring the
// circuit breaker and never propagating the failure to the sender
// (spec.md §4.10 step 7 and §7 "Transport errors from a single
// subscriber during fan-out").
func (f *Forwarder) sendTo(userID int64, datagram []byte) {
	h := f.handleFor(userID)
	if h == nil {
		return
	}
	if h.breaker.shouldSkip() {
		f.breakerTrips.Add(1)
		return
	}
	if err := h.Sender.SendDatagram(datagram); err != nil {
		h.breaker.recordFailure()
		f.lg.Printf("send to user %d failed: %v", userID, err)
		return
	}
	h.breaker.recordSuccess()
	f.datagramsForwarded.Add(1)
	f.bytesForwarded.Add(uint64(len(datagram)))
}

// Run runs the forwarding loop for one connection in the caller's
// goroutine: it reads datagrams from read until ctx is cancelled (the
// broadcast shutdown signal) or read returns an error, handing each to
// HandleDatagram.
func (f *Forwarder) Run(ctx context.Context, senderID int64, read func(context.Context) ([]byte, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		datagram, err := read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.lg.Printf("read error from user %d: %v", senderID, err)
			return
		}
		f.HandleDatagram(senderID, datagram)
	}
}
