// Package transport implements the QUIC endpoint and ALPN dispatch
// described by spec.md §4.2: a single UDP socket serves both the raw
// "paracord-media" ALPN (desktop clients, federation links) and "h3"
// (browsers negotiating WebTransport), routed by inspecting the
// negotiated protocol on each accepted connection.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"

	"github.com/SweetLiberty92/Paracord-sub001/internal/logx"
)

// MediaPath is the HTTP/3 extended-CONNECT path browsers request to
// open the media WebTransport session (spec.md §4.2).
const MediaPath = "/media"

// defaultQUICConfig mirrors the reference's reliance on QUIC library
// defaults for keep-alive and idle timeout (spec.md §4.2).
func defaultQUICConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
	}
}

// Endpoint owns one UDP socket serving both ALPNs.
type Endpoint struct {
	listener   *quic.Listener
	wt         *webtransport.Server
	lg         *logx.Logger
	sessionSeq atomic.Uint64
}

// SessionHandler processes one accepted WebTransport session together
// with the Bridge pumping its datagrams, for the lifetime of the
// session.
type SessionHandler func(ctx context.Context, sess *webtransport.Session, bridge *Bridge)

// Bind opens a UDP listener at addr with tlsConfig's NextProtos
// including MediaALPN and H3ALPN.
func Bind(addr string, tlsConfig *tls.Config) (*Endpoint, error) {
	ln, err := quic.ListenAddr(addr, tlsConfig, defaultQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Endpoint{listener: ln, lg: logx.New("transport")}, nil
}

// SetWebTransportServer wires the http3/WebTransport server used to
// handle connections that negotiated the H3 ALPN. The extended-CONNECT
// request at MediaPath is upgraded to a *webtransport.Session, paired
// with a datagram Bridge (bridge.go, stripping/prepending the QUIC
// varint session-id prefix per the reference's
// spawn_webtransport_bridge), and handed to handleSession.
func (e *Endpoint) SetWebTransportServer(wt *webtransport.Server, handleSession SessionHandler) {
	e.wt = wt
	mux := http.NewServeMux()
	mux.HandleFunc(MediaPath, func(w http.ResponseWriter, r *http.Request) {
		sess, err := wt.Upgrade(w, r)
		if err != nil {
			e.lg.Printf("webtransport upgrade from %s failed: %v", r.RemoteAddr, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		sessionID := e.sessionSeq.Add(1)
		bridge := NewBridge(r.Context(), sess, sessionID)
		handleSession(r.Context(), sess, bridge)
	})
	wt.H3.Handler = mux
}

// MediaHandler processes one accepted raw-media (non-WebTransport)
// QUIC connection.
type MediaHandler func(ctx context.Context, conn *quic.Conn)

// Serve accepts connections until ctx is cancelled, dispatching each
// one by its negotiated ALPN: MediaALPN connections go to handleMedia,
// H3ALPN connections are handed to the WebTransport server.
func (e *Endpoint) Serve(ctx context.Context, handleMedia MediaHandler) error {
	for {
		conn, err := e.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.lg.Printf("accept error: %v", err)
			continue
		}

		alpn := conn.ConnectionState().TLS.NegotiatedProtocol
		switch alpn {
		case MediaALPN:
			go handleMedia(ctx, conn)
		case H3ALPN:
			if e.wt == nil {
				e.lg.Printf("rejecting h3 connection: no WebTransport server configured")
				conn.CloseWithError(0, "h3 not supported")
				continue
			}
			go func() {
				if err := e.wt.ServeQUICConn(conn); err != nil {
					e.lg.Printf("webtransport session error: %v", err)
				}
			}()
		default:
			e.lg.Printf("rejecting connection with unknown ALPN %q", alpn)
			conn.CloseWithError(0, "unsupported ALPN")
		}
	}
}

// Close shuts down the underlying listener.
func (e *Endpoint) Close() error {
	return e.listener.Close()
}

// Addr returns the local listening address.
func (e *Endpoint) Addr() string {
	return e.listener.Addr().String()
}

// Client opens a raw-media QUIC connection to addr.
func Client(ctx context.Context, addr string, tlsConfig *tls.Config) (*quic.Conn, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, defaultQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return conn, nil
}
