// Package wire implements the 16-byte cleartext media header and the
// per-frame AEAD that rides on top of it. The header is always sent in
// clear and doubles as the associated data for the AEAD seal, so the
// relay can inspect sequence numbers and audio levels without ever
// touching the ciphertext.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed, wire-exact size of a MediaHeader in bytes.
const HeaderSize = 16

// ProtocolVersion is the only version this codec accepts.
const ProtocolVersion = 1

// TrackType distinguishes audio and video streams in the header.
type TrackType uint8

const (
	TrackAudio TrackType = 0
	TrackVideo TrackType = 1
)

// HeaderError reports a malformed header, distinct from crypto failures.
type HeaderError struct {
	Reason string
}

func (e *HeaderError) Error() string { return "wire: invalid header: " + e.Reason }

// MediaHeader is the cleartext envelope carried by every media datagram.
type MediaHeader struct {
	Version        uint8
	TrackType      TrackType
	SimulcastLayer uint8 // 0-15
	Sequence       uint16
	Timestamp      uint32
	SSRC           uint32
	AudioLevel     uint8 // dBov-style: 0 loudest, 127 silence
	KeyEpoch       uint8
	PayloadLength  uint16
}

// Encode writes h into a fresh 16-byte buffer. It returns an error if
// SimulcastLayer does not fit in 4 bits.
func (h MediaHeader) Encode() ([HeaderSize]byte, error) {
	var buf [HeaderSize]byte
	if h.SimulcastLayer > 0x0F {
		return buf, &HeaderError{Reason: fmt.Sprintf("simulcast layer %d exceeds 4 bits", h.SimulcastLayer)}
	}

	byte0 := ((h.Version & 0x01) << 7) | (((uint8(h.TrackType)) & 0x01) << 6) | (h.SimulcastLayer & 0x0F)
	buf[0] = byte0
	binary.BigEndian.PutUint16(buf[1:3], h.Sequence)
	binary.BigEndian.PutUint32(buf[3:7], h.Timestamp)
	binary.BigEndian.PutUint32(buf[7:11], h.SSRC)
	buf[11] = h.AudioLevel
	buf[12] = h.KeyEpoch
	binary.BigEndian.PutUint16(buf[13:15], h.PayloadLength)
	buf[15] = 0
	return buf, nil
}

// Decode parses a MediaHeader from the first 16 bytes of b.
func Decode(b []byte) (MediaHeader, error) {
	var h MediaHeader
	if len(b) < HeaderSize {
		return h, &HeaderError{Reason: fmt.Sprintf("buffer too short: %d bytes", len(b))}
	}

	byte0 := b[0]
	h.Version = (byte0 >> 7) & 0x01
	trackBit := (byte0 >> 6) & 0x01
	h.SimulcastLayer = byte0 & 0x0F

	switch trackBit {
	case 0:
		h.TrackType = TrackAudio
	case 1:
		h.TrackType = TrackVideo
	default:
		return h, &HeaderError{Reason: "unrecognized track type"}
	}

	h.Sequence = binary.BigEndian.Uint16(b[1:3])
	h.Timestamp = binary.BigEndian.Uint32(b[3:7])
	h.SSRC = binary.BigEndian.Uint32(b[7:11])
	h.AudioLevel = b[11]
	h.KeyEpoch = b[12]
	h.PayloadLength = binary.BigEndian.Uint16(b[13:15])
	return h, nil
}
