// Package auth implements the bearer-token handshake that must happen
// on the first bidirectional stream of a new connection before it is
// allowed to carry media (spec.md §4.3).
package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SweetLiberty92/Paracord-sub001/internal/control"
)

// Mode distinguishes a connection relaying through the server from one
// that has switched to a direct peer-to-peer media path.
type Mode int

const (
	ModeRelay Mode = iota
	ModeP2P
)

// MediaClaims are the JWT claims carried by a bearer token. GuildID and
// ChannelID identify the room the embedding layer is assigning this
// connection to (spec.md §4.9's room_id is derived from this pair via
// room.ID/room.Manager.GetOrCreate, not taken from SessionID).
type MediaClaims struct {
	jwt.RegisteredClaims
	UserID    int64  `json:"sub_uid"`
	SessionID string `json:"sid,omitempty"`
	GuildID   int64  `json:"gid"`
	ChannelID int64  `json:"cid"`
}

// Meta describes an established connection.
type Meta struct {
	UserID     int64
	SessionID  string
	GuildID    int64
	ChannelID  int64
	RemoteAddr string
	Mode       Mode
}

// Error reports a handshake failure. Every case is fatal for the
// connection; there is no retry path.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "auth: " + e.Reason }

// Validator checks bearer tokens against a shared HS256 secret.
type Validator struct {
	secret []byte
}

// NewValidator builds a Validator over secret.
func NewValidator(secret []byte) *Validator {
	return &Validator{secret: secret}
}

// Validate parses and verifies token, returning the embedded claims on
// success.
func (v *Validator) Validate(token string) (claims MediaClaims, err error) {
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return MediaClaims{}, &Error{Reason: fmt.Sprintf("invalid token: %v", err)}
	}
	if claims.UserID == 0 {
		return MediaClaims{}, &Error{Reason: "token missing subject user id"}
	}
	return claims, nil
}

// Sign issues a token for userID in the room identified by
// (guildID, channelID). Within this module only tests call it.
func (v *Validator) Sign(userID int64, sessionID string, guildID, channelID int64, ttl time.Duration) (string, error) {
	claims := MediaClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:    userID,
		SessionID: sessionID,
		GuildID:   guildID,
		ChannelID: channelID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(v.secret)
}

// Stream is the minimal bidirectional stream interface the handshake
// needs, satisfied by a QUIC stream or any io.ReadWriter-like type
// that frames reads in whatever chunks arrive.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// AcceptAndAuth runs the server side of the handshake on stream: it
// reads control frames until a complete Auth message arrives,
// validates the token, and replies with Pong on success.
func AcceptAndAuth(stream Stream, v *Validator, remoteAddr string) (Meta, error) {
	dec := control.NewDecoder()
	buf := make([]byte, 4096)

	for {
		n, err := stream.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
		}
		if err != nil {
			return Meta{}, &Error{Reason: fmt.Sprintf("read: %v", err)}
		}

		env, ok, err := dec.Next()
		if err != nil {
			return Meta{}, &Error{Reason: fmt.Sprintf("framing: %v", err)}
		}
		if !ok {
			continue
		}
		if env.Kind != control.KindAuth {
			return Meta{}, &Error{Reason: "first control message must be Auth"}
		}

		var payload control.AuthPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return Meta{}, &Error{Reason: fmt.Sprintf("malformed Auth payload: %v", err)}
		}

		claims, err := v.Validate(payload.Token)
		if err != nil {
			return Meta{}, err
		}

		pongFrame, err := control.Encode(control.KindPong, control.PongPayload{})
		if err != nil {
			return Meta{}, &Error{Reason: fmt.Sprintf("encode pong: %v", err)}
		}
		if _, err := stream.Write(pongFrame); err != nil {
			return Meta{}, &Error{Reason: fmt.Sprintf("write pong: %v", err)}
		}

		return Meta{
			UserID:     claims.UserID,
			SessionID:  claims.SessionID,
			GuildID:    claims.GuildID,
			ChannelID:  claims.ChannelID,
			RemoteAddr: remoteAddr,
			Mode:       ModeRelay,
		}, nil
	}
}

// ConnectAndAuth runs the client side: it sends Auth{token} and waits
// for Pong.
func ConnectAndAuth(stream Stream, token string) error {
	frame, err := control.Encode(control.KindAuth, control.AuthPayload{Token: token})
	if err != nil {
		return &Error{Reason: fmt.Sprintf("encode auth: %v", err)}
	}
	if _, err := stream.Write(frame); err != nil {
		return &Error{Reason: fmt.Sprintf("write auth: %v", err)}
	}

	dec := control.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
		}
		if err != nil {
			return &Error{Reason: fmt.Sprintf("read: %v", err)}
		}
		env, ok, err := dec.Next()
		if err != nil {
			return &Error{Reason: fmt.Sprintf("framing: %v", err)}
		}
		if !ok {
			continue
		}
		if env.Kind != control.KindPong {
			return &Error{Reason: "expected Pong after Auth"}
		}
		return nil
	}
}
