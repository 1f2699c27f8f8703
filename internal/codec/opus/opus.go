// Package opus wraps the Opus codec for the media core's audio path:
// 48kHz mono, 20ms/960-sample frames, VoIP mode, inband FEC and DTX,
// with PLC for missing frames. The real encoder/decoder are backed by
// gopkg.in/hraban/opus.v2, which (unlike the Rust original's audiopus
// binding) operates on int16 PCM rather than float32 samples; callers
// convert at the capture/playback boundary, not here.
package opus

import (
	"fmt"

	hropus "gopkg.in/hraban/opus.v2"
)

const (
	SampleRate         = 48000
	Channels           = 1
	FrameSize          = 960 // 20ms at 48kHz
	MaxPacketBytes     = 1275
	defaultBitrate     = 96000
	defaultComplexity  = 5
	expectedLossPct    = 10
)

// FrameSizeError reports an encode call with the wrong sample count.
type FrameSizeError struct {
	Got, Want int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("opus: frame size %d, want %d", e.Got, e.Want)
}

// encoderBackend and decoderBackend are the narrow surfaces of the
// real codec this package needs, so tests can substitute fakes instead
// of linking the cgo binding (mirrors the reference client's
// opusEncoder/opusDecoder interfaces in client/audio.go).
type encoderBackend interface {
	Encode(pcm []int16, data []byte) (int, error)
	SetBitrate(b int) error
	SetDTX(dtx bool) error
	SetInBandFEC(fec bool) error
	SetPacketLossPerc(pct int) error
}

type decoderBackend interface {
	Decode(data []byte, pcm []int16) (int, error)
	DecodeFEC(data []byte, pcm []int16) error
}

// Encoder produces one Opus packet per 960-sample (20ms) input frame.
type Encoder struct {
	backend encoderBackend
}

// NewEncoder builds an Encoder configured per spec.md §4.5: VoIP mode,
// 96kbps, complexity 5, inband FEC on, DTX on, 10% expected loss.
func NewEncoder() (*Encoder, error) {
	enc, err := hropus.NewEncoder(SampleRate, Channels, hropus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus: new encoder: %w", err)
	}
	if err := enc.SetComplexity(defaultComplexity); err != nil {
		return nil, fmt.Errorf("opus: set complexity: %w", err)
	}
	return newEncoderWithBackend(enc)
}

func newEncoderWithBackend(backend encoderBackend) (*Encoder, error) {
	if err := backend.SetBitrate(defaultBitrate); err != nil {
		return nil, fmt.Errorf("opus: set bitrate: %w", err)
	}
	if err := backend.SetInBandFEC(true); err != nil {
		return nil, fmt.Errorf("opus: enable FEC: %w", err)
	}
	if err := backend.SetDTX(true); err != nil {
		return nil, fmt.Errorf("opus: enable DTX: %w", err)
	}
	if err := backend.SetPacketLossPerc(expectedLossPct); err != nil {
		return nil, fmt.Errorf("opus: set expected loss: %w", err)
	}
	return &Encoder{backend: backend}, nil
}

// Encode encodes exactly FrameSize samples into an Opus packet.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSize {
		return nil, &FrameSizeError{Got: len(pcm), Want: FrameSize}
	}
	out := make([]byte, MaxPacketBytes)
	n, err := e.backend.Encode(pcm, out)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return out[:n], nil
}

// Decoder decodes Opus packets back to 960-sample frames, with PLC and
// in-band FEC recovery for missing packets.
type Decoder struct {
	backend decoderBackend
}

// NewDecoder builds a Decoder for 48kHz mono audio.
func NewDecoder() (*Decoder, error) {
	dec, err := hropus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: new decoder: %w", err)
	}
	return &Decoder{backend: dec}, nil
}

// Decode decodes one packet into a fresh 960-sample frame.
func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	pcm := make([]int16, FrameSize)
	n, err := d.backend.Decode(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return pcm[:n], nil
}

// DecodePLC synthesizes a replacement frame for a packet that never
// arrived, using the decoder's internal loss-concealment model.
func (d *Decoder) DecodePLC() ([]int16, error) {
	pcm := make([]int16, FrameSize)
	n, err := d.backend.Decode(nil, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus: PLC: %w", err)
	}
	return pcm[:n], nil
}

// DecodeFEC recovers the frame immediately prior to nextPacket using
// the in-band forward error correction nextPacket carries, when the
// current packet never arrived but the next one did.
func (d *Decoder) DecodeFEC(nextPacket []byte) ([]int16, error) {
	pcm := make([]int16, FrameSize)
	if err := d.backend.DecodeFEC(nextPacket, pcm); err != nil {
		return nil, fmt.Errorf("opus: FEC decode: %w", err)
	}
	return pcm, nil
}
