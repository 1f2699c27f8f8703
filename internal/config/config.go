// Package config holds the media core's flag-populated runtime
// configuration, following the reference server's flat Config-by-flags
// style (see cmd/mediad/main.go).
package config

import (
	"errors"
	"flag"
	"net"
	"time"
)

// Config is the media core's complete runtime configuration.
type Config struct {
	BindAddr     string
	AdminAddr    string
	CertValidity time.Duration

	JWTSecret string

	MaxParticipantsPerRoom int
	BreakerThreshold       int

	FederationEnabled     bool
	FederationSigningKey  string
	FederationPeerTimeout time.Duration

	TestUser string
}

// ErrMissingJWTSecret is returned by Validate when no JWT secret was
// configured; the media endpoint cannot authenticate connections
// without one.
var ErrMissingJWTSecret = errors.New("config: jwt-secret is required")

// Parse populates a Config from CLI flags, mirroring the reference
// server's main.go flag layout.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mediad", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.BindAddr, "addr", ":8443", "QUIC/WebTransport listen address")
	fs.StringVar(&cfg.AdminAddr, "admin-addr", ":8081", "admin HTTP (health/metrics) listen address (empty to disable)")
	fs.DurationVar(&cfg.CertValidity, "cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "HMAC secret for validating connection bearer tokens")
	fs.IntVar(&cfg.MaxParticipantsPerRoom, "max-participants", 50, "maximum participants per room")
	fs.IntVar(&cfg.BreakerThreshold, "breaker-threshold", 50, "consecutive datagram send failures before tripping a subscriber's circuit breaker (parsed but not applied; the relay's threshold is fixed at 50)")
	fs.BoolVar(&cfg.FederationEnabled, "federation", false, "enable cross-server federation relay")
	fs.StringVar(&cfg.FederationSigningKey, "federation-key", "", "shared signing key for federation links")
	fs.DurationVar(&cfg.FederationPeerTimeout, "federation-peer-timeout", 30*time.Second, "federation remote-link idle timeout (parsed but not applied by mediad)")
	fs.StringVar(&cfg.TestUser, "test-user", "", "name for a virtual test bot (parsed but not used; mediad starts no test bot)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants Parse cannot enforce via flag defaults
// alone.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.MaxParticipantsPerRoom <= 0 {
		return errors.New("config: max-participants must be positive")
	}
	if c.FederationEnabled && c.FederationSigningKey == "" {
		return errors.New("config: federation-key is required when -federation is set")
	}
	return nil
}

// Hostname extracts the hostname portion of BindAddr for use as the
// dev TLS certificate's subject, mirroring the reference server's
// main.go net.SplitHostPort usage.
func (c *Config) Hostname() string {
	host, _, err := net.SplitHostPort(c.BindAddr)
	if err != nil || host == "" {
		return "localhost"
	}
	return host
}
