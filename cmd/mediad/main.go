// Command mediad runs the media core server: QUIC/WebTransport
// endpoint, authenticated connections, relay fan-out, E2EE key
// distribution, active-speaker detection, P2P coordination, and
// optional federation — wired the way the reference server's main.go
// wires its room, store, and API server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"

	"github.com/SweetLiberty92/Paracord-sub001/internal/adminapi"
	"github.com/SweetLiberty92/Paracord-sub001/internal/auth"
	"github.com/SweetLiberty92/Paracord-sub001/internal/config"
	"github.com/SweetLiberty92/Paracord-sub001/internal/e2ee"
	"github.com/SweetLiberty92/Paracord-sub001/internal/federation"
	"github.com/SweetLiberty92/Paracord-sub001/internal/logx"
	"github.com/SweetLiberty92/Paracord-sub001/internal/p2p"
	"github.com/SweetLiberty92/Paracord-sub001/internal/relay"
	"github.com/SweetLiberty92/Paracord-sub001/internal/room"
	"github.com/SweetLiberty92/Paracord-sub001/internal/speaker"
	"github.com/SweetLiberty92/Paracord-sub001/internal/transport"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("[mediad] %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[mediad] %v", err)
	}

	lg := logx.New("mediad")

	tlsConfig, fingerprint, err := transport.GenerateDevTLSConfig(cfg.CertValidity, cfg.Hostname())
	if err != nil {
		lg.Printf("generate TLS config: %v", err)
		os.Exit(1)
	}
	lg.Printf("TLS certificate fingerprint: %s", fingerprint)

	rooms := room.NewManager(cfg.MaxParticipantsPerRoom)
	speakers := speaker.New()
	validator := auth.NewValidator([]byte(cfg.JWTSecret))
	p2pCoord := p2p.New()

	var forwarderFederation relay.FederationForwarder
	if cfg.FederationEnabled {
		fedRelay := federation.New(speakers)
		forwarderFederation = fedRelay
		originID := federation.NewLocalOriginID()
		lg.Printf("federation enabled, local origin id %s", originID)
	}

	forwarder := relay.New(rooms, speakers, forwarderFederation)
	keys := e2ee.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		lg.Printf("shutting down...")
		cancel()
	}()

	endpoint, err := transport.Bind(cfg.BindAddr, tlsConfig)
	if err != nil {
		lg.Printf("bind: %v", err)
		os.Exit(1)
	}
	defer endpoint.Close()
	lg.Printf("listening on %s", endpoint.Addr())

	streams := newStreamRegistry()

	wtServer := &webtransport.Server{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	handleSession := func(ctx context.Context, sess *webtransport.Session, bridge *transport.Bridge) {
		serveConnection(ctx, webtransportConn{sess: sess, bridge: bridge}, validator, forwarder, rooms, keys, p2pCoord, streams, lg)
	}
	endpoint.SetWebTransportServer(wtServer, handleSession)

	if cfg.AdminAddr != "" {
		admin := adminapi.New(rooms, forwarder)
		go admin.Run(ctx, cfg.AdminAddr)
	}

	handleMedia := func(ctx context.Context, conn *quic.Conn) {
		serveConnection(ctx, quicConnAdapter{conn: conn}, validator, forwarder, rooms, keys, p2pCoord, streams, lg)
	}

	if err := endpoint.Serve(ctx, handleMedia); err != nil {
		lg.Printf("serve: %v", err)
	}
}
