// Package control implements the length-prefixed JSON framing used on
// every bidirectional control stream. The codec is deliberately
// unaware of message semantics: it only frames bytes in and out.
package control

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// LengthPrefixSize is the size of the big-endian length prefix.
const LengthPrefixSize = 4

// MaxFrameSize bounds a single control frame to guard against a
// malformed or hostile length prefix exhausting memory.
const MaxFrameSize = 1 << 20 // 1 MiB

// FrameError reports a malformed control frame.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string { return "control: " + e.Reason }

// Kind enumerates recognized control-message kinds (spec.md §4.4/§6).
// The codec itself never branches on Kind; this is provided for
// callers that decode the Kind field after framing.
type Kind string

const (
	KindAuth                Kind = "Auth"
	KindPong                Kind = "Pong"
	KindKeyAnnounce         Kind = "KeyAnnounce"
	KindKeyDeliver          Kind = "KeyDeliver"
	KindSubscribe           Kind = "Subscribe"
	KindFileTransferInit    Kind = "FileTransferInit"
	KindFileTransferAccept  Kind = "FileTransferAccept"
	KindFileTransferReject  Kind = "FileTransferReject"
	KindFileTransferDone    Kind = "FileTransferDone"
	KindFileTransferError   Kind = "FileTransferError"
	KindFileDownloadRequest Kind = "FileDownloadRequest"
	KindFileDownloadAccept  Kind = "FileDownloadAccept"
	KindData                Kind = "Data"
	KindEndOfData           Kind = "EndOfData"
)

// Envelope is the outer shape every control frame decodes to before
// the caller inspects Kind and re-unmarshals Payload into a concrete
// type.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode frames one message as a 4-byte big-endian length prefix
// followed by its JSON encoding.
func Encode(kind Kind, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("control: marshal payload: %w", err)
	}
	env := Envelope{Kind: kind, Payload: body}
	encoded, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("control: marshal envelope: %w", err)
	}
	if len(encoded) > MaxFrameSize {
		return nil, &FrameError{Reason: fmt.Sprintf("frame too large: %d bytes", len(encoded))}
	}

	out := make([]byte, LengthPrefixSize+len(encoded))
	binary.BigEndian.PutUint32(out[:LengthPrefixSize], uint32(len(encoded)))
	copy(out[LengthPrefixSize:], encoded)
	return out, nil
}

// Decoder accumulates raw bytes from a stream and yields whole frames,
// buffering partial frames across calls.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly-read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next extracts and returns the next whole frame, if one is fully
// buffered. ok is false (with no error) when more bytes are needed.
func (d *Decoder) Next() (env Envelope, ok bool, err error) {
	if len(d.buf) < LengthPrefixSize {
		return Envelope{}, false, nil
	}
	frameLen := binary.BigEndian.Uint32(d.buf[:LengthPrefixSize])
	if frameLen > MaxFrameSize {
		return Envelope{}, false, &FrameError{Reason: fmt.Sprintf("frame length %d exceeds max %d", frameLen, MaxFrameSize)}
	}
	total := LengthPrefixSize + int(frameLen)
	if len(d.buf) < total {
		return Envelope{}, false, nil
	}

	body := d.buf[LengthPrefixSize:total]
	d.buf = d.buf[total:]

	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, false, &FrameError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return env, true, nil
}
