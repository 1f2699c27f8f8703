package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"

	"github.com/SweetLiberty92/Paracord-sub001/internal/auth"
	"github.com/SweetLiberty92/Paracord-sub001/internal/control"
	"github.com/SweetLiberty92/Paracord-sub001/internal/e2ee"
	"github.com/SweetLiberty92/Paracord-sub001/internal/logx"
	"github.com/SweetLiberty92/Paracord-sub001/internal/p2p"
	"github.com/SweetLiberty92/Paracord-sub001/internal/relay"
	"github.com/SweetLiberty92/Paracord-sub001/internal/room"
	"github.com/SweetLiberty92/Paracord-sub001/internal/transport"
)

// controlStream is the narrow bidirectional-stream surface the control
// loop needs, satisfied by *quic.Stream, a WebTransport stream, and by
// fakes in tests.
type controlStream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// mediaConn is the narrow transport surface serveConnection drives,
// satisfied by a raw QUIC connection (quicConnAdapter) or a bridged
// WebTransport session (webtransportConn), so the join/relay/control
// lifecycle below is agnostic to which ALPN the client negotiated.
type mediaConn interface {
	AcceptStream(ctx context.Context) (controlStream, error)
	RemoteAddr() net.Addr
	Close(reason string) error
	SendDatagram(b []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)
}

// quicConnAdapter adapts *quic.Conn to mediaConn.
type quicConnAdapter struct{ conn *quic.Conn }

func (a quicConnAdapter) AcceptStream(ctx context.Context) (controlStream, error) {
	return a.conn.AcceptStream(ctx)
}
func (a quicConnAdapter) RemoteAddr() net.Addr { return a.conn.RemoteAddr() }
func (a quicConnAdapter) Close(reason string) error {
	return a.conn.CloseWithError(0, reason)
}
func (a quicConnAdapter) SendDatagram(b []byte) error { return a.conn.SendDatagram(b) }
func (a quicConnAdapter) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return a.conn.ReceiveDatagram(ctx)
}

// webtransportConn adapts a *webtransport.Session plus the Bridge
// pumping its datagrams (internal/transport/bridge.go) to mediaConn, so
// a browser client reaches the same join/relay/control lifecycle a raw
// QUIC client does.
type webtransportConn struct {
	sess   *webtransport.Session
	bridge *transport.Bridge
}

func (w webtransportConn) AcceptStream(ctx context.Context) (controlStream, error) {
	return w.sess.AcceptStream(ctx)
}
func (w webtransportConn) RemoteAddr() net.Addr { return w.sess.RemoteAddr() }
func (w webtransportConn) Close(reason string) error {
	return w.sess.CloseWithError(0, reason)
}
func (w webtransportConn) SendDatagram(b []byte) error {
	select {
	case w.bridge.Outbound <- b:
		return nil
	default:
		return fmt.Errorf("webtransport: outbound datagram queue full")
	}
}
func (w webtransportConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-w.bridge.Inbound:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// streamRegistry tracks each connected user's live control stream, so a
// KeyAnnounce from one connection can be routed to another recipient's
// stream instead of only that recipient's own join-time catch-up
// (spec.md §4.11's "forward as KeyDeliver" requirement), mirroring
// relay.Forwarder's per-user ConnectionHandle map but for the control
// plane instead of the datagram plane.
type streamRegistry struct {
	mu      sync.Mutex
	streams map[int64]controlStream
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{streams: make(map[int64]controlStream)}
}

func (r *streamRegistry) register(userID int64, s controlStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[userID] = s
}

func (r *streamRegistry) unregister(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, userID)
}

func (r *streamRegistry) get(userID int64) (controlStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[userID]
	return s, ok
}

// serveConnection runs the full lifecycle of one authenticated media
// connection: handshake on the first bidirectional stream, room join,
// relay registration, control-message handling, and the datagram
// forwarding loop, until the connection closes or ctx is cancelled.
func serveConnection(
	ctx context.Context,
	conn mediaConn,
	validator *auth.Validator,
	forwarder *relay.Forwarder,
	rooms *room.Manager,
	keys *e2ee.Registry,
	p2pCoord *p2p.Coordinator,
	streams *streamRegistry,
	lg *logx.Logger,
) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		lg.Printf("accept control stream from %s: %v", conn.RemoteAddr(), err)
		return
	}

	meta, err := auth.AcceptAndAuth(stream, validator, conn.RemoteAddr().String())
	if err != nil {
		lg.Printf("handshake failed from %s: %v", conn.RemoteAddr(), err)
		conn.Close("auth failed")
		return
	}
	lg.Printf("user %d authenticated from %s", meta.UserID, conn.RemoteAddr())

	roomID := rooms.GetOrCreate(meta.GuildID, meta.ChannelID)

	if _, err := rooms.Join(roomID, meta.UserID, meta.SessionID, room.ConnectionRelay); err != nil {
		lg.Printf("user %d join %s failed: %v", meta.UserID, roomID, err)
		conn.Close("join failed")
		return
	}
	dist := keys.Get(roomID)
	catchUp, joinNotice := dist.HandleParticipantJoin(meta.UserID)
	lg.Printf("room %s: rotation notice %v after join of %d", roomID, joinNotice, meta.UserID)

	forwarder.Register(meta.UserID, roomID, conn)
	streams.register(meta.UserID, stream)

	defer func() {
		leaveNotice := dist.HandleParticipantLeave(meta.UserID)
		lg.Printf("room %s: rotation notice %v after leave of %d", roomID, leaveNotice, meta.UserID)
		if _, err := rooms.Leave(roomID, meta.UserID); err != nil {
			lg.Printf("leave %s: %v", roomID, err)
		}
		if rooms.Get(roomID) == nil {
			keys.Drop(roomID)
		}
		forwarder.Unregister(meta.UserID)
		streams.unregister(meta.UserID)
		p2pCoord.RemoveAddress(meta.UserID)
	}()

	for _, d := range catchUp {
		deliverKey(stream, d, lg)
	}

	go runControlLoop(ctx, stream, meta.UserID, roomID, rooms, dist, streams, lg)

	forwarder.Run(ctx, meta.UserID, func(ctx context.Context) ([]byte, error) {
		return conn.ReceiveDatagram(ctx)
	})
}

// runControlLoop processes Subscribe and KeyAnnounce frames for the
// lifetime of the connection's control stream.
func runControlLoop(ctx context.Context, stream controlStream, userID int64, roomID string, rooms *room.Manager, dist *e2ee.Distributor, streams *streamRegistry, lg *logx.Logger) {
	dec := control.NewDecoder()
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := stream.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
		}
		if err != nil {
			return
		}

		for {
			env, ok, err := dec.Next()
			if err != nil {
				lg.Printf("user %d: control framing error: %v", userID, err)
				return
			}
			if !ok {
				break
			}
			handleControlFrame(stream, env, userID, roomID, rooms, dist, streams, lg)
		}
	}
}

func handleControlFrame(stream controlStream, env control.Envelope, userID int64, roomID string, rooms *room.Manager, dist *e2ee.Distributor, streams *streamRegistry, lg *logx.Logger) {
	switch env.Kind {
	case control.KindSubscribe:
		var p control.SubscribePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			lg.Printf("user %d: malformed Subscribe: %v", userID, err)
			return
		}
		r := rooms.Get(roomID)
		if r == nil {
			return
		}
		if err := r.SetSubscribed(userID, p.UserID, true); err != nil {
			lg.Printf("user %d: subscribe to %d: %v", userID, p.UserID, err)
		}

	case control.KindKeyAnnounce:
		var p control.KeyAnnouncePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			lg.Printf("user %d: malformed KeyAnnounce: %v", userID, err)
			return
		}
		encKeys := make([]e2ee.EncryptedKey, len(p.EncryptedKeys))
		for i, ek := range p.EncryptedKeys {
			encKeys[i] = e2ee.EncryptedKey{RecipientID: ek.RecipientUserID, Ciphertext: ek.Ciphertext}
		}
		deliveries := dist.HandleKeyAnnounce(userID, p.Epoch, encKeys)
		for _, d := range deliveries {
			recipientStream, ok := streams.get(d.RecipientID)
			if !ok {
				lg.Printf("room %s: recipient %d not connected, dropping key from %d (epoch %d)", roomID, d.RecipientID, d.SenderID, d.Epoch)
				continue
			}
			deliverKey(recipientStream, d, lg)
		}

	default:
		// Auth/Pong are handled during the handshake; file-transfer and
		// bulk-data kinds are out of the media core's scope (spec.md
		// Non-goals).
	}
}

func deliverKey(stream controlStream, d e2ee.Delivery, lg *logx.Logger) {
	frame, err := control.Encode(control.KindKeyDeliver, control.KeyDeliverPayload{
		SenderUserID: d.SenderID,
		Epoch:        d.Epoch,
		Ciphertext:   d.Ciphertext,
	})
	if err != nil {
		lg.Printf("encode KeyDeliver: %v", err)
		return
	}
	if _, err := stream.Write(frame); err != nil {
		lg.Printf("write KeyDeliver: %v", err)
	}
}
