package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/SweetLiberty92/Paracord-sub001/internal/auth"
	"github.com/SweetLiberty92/Paracord-sub001/internal/control"
	"github.com/SweetLiberty92/Paracord-sub001/internal/e2ee"
	"github.com/SweetLiberty92/Paracord-sub001/internal/logx"
	"github.com/SweetLiberty92/Paracord-sub001/internal/p2p"
	"github.com/SweetLiberty92/Paracord-sub001/internal/relay"
	"github.com/SweetLiberty92/Paracord-sub001/internal/room"
	"github.com/SweetLiberty92/Paracord-sub001/internal/speaker"
)

// fakeStream is a controlStream that records writes and reports EOF on
// every read, enough to drive handleControlFrame/deliverKey without a
// real QUIC stream.
type fakeStream struct {
	written bytes.Buffer
}

func (f *fakeStream) Read(p []byte) (int, error)  { return 0, io.EOF }
func (f *fakeStream) Write(p []byte) (int, error) { return f.written.Write(p) }

// authedStream serves one pre-encoded Auth frame on the first Read,
// then behaves like an idle stream that immediately hits EOF, so
// auth.AcceptAndAuth succeeds and the subsequent control loop returns
// promptly instead of busy-spinning.
type authedStream struct {
	bytes.Buffer
	served bool
}

func (s *authedStream) Read(p []byte) (int, error) {
	if !s.served {
		s.served = true
		return s.Buffer.Read(p)
	}
	return 0, io.EOF
}

func newAuthedStream(t *testing.T, token string) *authedStream {
	t.Helper()
	frame, err := control.Encode(control.KindAuth, control.AuthPayload{Token: token})
	if err != nil {
		t.Fatalf("encode auth: %v", err)
	}
	s := &authedStream{}
	s.Write(frame)
	return s
}

// fakeMediaConn is a mediaConn that hands out one pre-authenticated
// control stream and blocks the datagram loop on unblock, enough to
// drive serveConnection's join/relay lifecycle without a real QUIC/
// WebTransport connection. started is closed the first time the
// datagram loop is reached, which only happens after join and relay
// registration have already succeeded.
type fakeMediaConn struct {
	stream  *authedStream
	accepts int
	started chan struct{}
	unblock chan struct{}
}

func newFakeMediaConn(stream *authedStream) *fakeMediaConn {
	return &fakeMediaConn{stream: stream, started: make(chan struct{}), unblock: make(chan struct{})}
}

func (f *fakeMediaConn) AcceptStream(ctx context.Context) (controlStream, error) {
	f.accepts++
	if f.accepts > 1 {
		return nil, io.EOF
	}
	return f.stream, nil
}
func (f *fakeMediaConn) RemoteAddr() net.Addr        { return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (f *fakeMediaConn) Close(reason string) error   { return nil }
func (f *fakeMediaConn) SendDatagram(b []byte) error { return nil }
func (f *fakeMediaConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	close(f.started)
	select {
	case <-f.unblock:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestServeConnectionCreatesRoomAndJoinsWithoutPreSeeding(t *testing.T) {
	rooms := room.NewManager(0)
	validator := auth.NewValidator([]byte("secret"))
	forwarder := relay.New(rooms, speaker.New(), nil)
	keys := e2ee.NewRegistry()
	p2pCoord := p2p.New()
	streams := newStreamRegistry()
	lg := logx.New("test")

	token, err := validator.Sign(7, "sess-1", 3, 4, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	conn := newFakeMediaConn(newAuthedStream(t, token))

	// rooms has had GetOrCreate/Join called on it zero times before
	// this point: the room must come into existence as a side effect of
	// serving the connection, not from test setup.
	done := make(chan struct{})
	go func() {
		serveConnection(context.Background(), conn, validator, forwarder, rooms, keys, p2pCoord, streams, lg)
		close(done)
	}()

	select {
	case <-conn.started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for serveConnection to reach the datagram loop")
	}

	roomID := room.ID(3, 4)
	r := rooms.Get(roomID)
	if r == nil {
		t.Fatalf("expected room %s to exist once join succeeded", roomID)
	}
	if r.Get(7) == nil {
		t.Fatal("expected user 7 to be a participant of the joined room")
	}

	close(conn.unblock)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serveConnection did not return after the datagram loop unblocked")
	}
}

func TestHandleControlFrameSubscribeUpdatesRoom(t *testing.T) {
	rooms := room.NewManager(0)
	roomID := rooms.GetOrCreate(1, 1)
	rooms.Join(roomID, 1, "s1", room.ConnectionRelay)
	rooms.Join(roomID, 2, "s2", room.ConnectionRelay)
	r := rooms.Get(roomID)
	r.SetSubscribed(1, 2, false)

	payload, _ := control.Encode(control.KindSubscribe, control.SubscribePayload{UserID: 2})
	dec := control.NewDecoder()
	dec.Feed(payload)
	env, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("decode setup: ok=%v err=%v", ok, err)
	}

	lg := logx.New("test")
	streams := newStreamRegistry()
	handleControlFrame(&fakeStream{}, env, 1, roomID, rooms, e2ee.New(roomID), streams, lg)

	if !r.Get(1).IsSubscribedTo(2) {
		t.Fatal("expected Subscribe control frame to re-subscribe user 1 to user 2")
	}
}

func TestHandleControlFrameKeyAnnounceRoutesToRecipientStream(t *testing.T) {
	rooms := room.NewManager(0)
	roomID := rooms.GetOrCreate(1, 1)
	dist := e2ee.New(roomID)

	payload, _ := control.Encode(control.KindKeyAnnounce, control.KeyAnnouncePayload{
		Epoch: 1,
		EncryptedKeys: []control.EncryptedKeyEntry{
			{RecipientUserID: 200, Ciphertext: []byte{0xAB}},
		},
	})
	dec := control.NewDecoder()
	dec.Feed(payload)
	env, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("decode setup: ok=%v err=%v", ok, err)
	}

	lg := logx.New("test")
	streams := newStreamRegistry()
	recipientStream := &fakeStream{}
	streams.register(200, recipientStream)

	handleControlFrame(&fakeStream{}, env, 100, roomID, rooms, dist, streams, lg)

	epoch, ok := dist.CurrentEpoch(100)
	if !ok || epoch != 1 {
		t.Fatalf("CurrentEpoch(100) = (%d, %v), want (1, true)", epoch, ok)
	}

	rdec := control.NewDecoder()
	rdec.Feed(recipientStream.written.Bytes())
	renv, ok, err := rdec.Next()
	if err != nil || !ok {
		t.Fatalf("decode delivered frame: ok=%v err=%v", ok, err)
	}
	if renv.Kind != control.KindKeyDeliver {
		t.Fatalf("recipient stream got Kind %v, want KindKeyDeliver", renv.Kind)
	}
}

func TestHandleControlFrameKeyAnnounceSkipsDisconnectedRecipient(t *testing.T) {
	rooms := room.NewManager(0)
	roomID := rooms.GetOrCreate(1, 1)
	dist := e2ee.New(roomID)

	payload, _ := control.Encode(control.KindKeyAnnounce, control.KeyAnnouncePayload{
		Epoch: 1,
		EncryptedKeys: []control.EncryptedKeyEntry{
			{RecipientUserID: 200, Ciphertext: []byte{0xAB}},
		},
	})
	dec := control.NewDecoder()
	dec.Feed(payload)
	env, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("decode setup: ok=%v err=%v", ok, err)
	}

	lg := logx.New("test")
	streams := newStreamRegistry()

	// No recipient registered; must not panic and must still record the
	// announcement.
	handleControlFrame(&fakeStream{}, env, 100, roomID, rooms, dist, streams, lg)

	if _, ok := dist.CurrentEpoch(100); !ok {
		t.Fatal("expected announcement to be recorded even with no connected recipient")
	}
}

func TestDeliverKeyWritesKeyDeliverFrame(t *testing.T) {
	fs := &fakeStream{}
	lg := logx.New("test")
	deliverKey(fs, e2ee.Delivery{RecipientID: 2, SenderID: 1, Epoch: 3, Ciphertext: []byte{0x01}}, lg)

	dec := control.NewDecoder()
	dec.Feed(fs.written.Bytes())
	env, ok, err := dec.Next()
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if env.Kind != control.KindKeyDeliver {
		t.Fatalf("Kind = %v, want KindKeyDeliver", env.Kind)
	}
}
