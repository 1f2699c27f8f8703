// Package vp9 wraps VP9 encode/decode for the simulcast video path:
// three fixed quality tiers, a keyframe-required state machine on the
// decoder, and a Null codec pair for tests and builds without the
// video codec compiled in. Encoding and decoding go through the small
// Backend interfaces below so the simulcast/state-machine logic is
// testable without a cgo binding; NullEncoder and NullDecoder are the
// only implementations in this package, and no libvpx-backed one is
// included.
package vp9

import "fmt"

// Layer identifies one simulcast quality tier.
type Layer int

const (
	LayerLow Layer = iota
	LayerMedium
	LayerHigh
)

// LayerSpec describes one simulcast tier's target encode parameters.
type LayerSpec struct {
	Width, Height int
	FPS           int
	BitrateKbps   int
}

// Layers is the fixed three-tier simulcast table (spec.md §4.6).
var Layers = map[Layer]LayerSpec{
	LayerLow:    {Width: 320, Height: 180, FPS: 15, BitrateKbps: 150},
	LayerMedium: {Width: 640, Height: 360, FPS: 30, BitrateKbps: 500},
	LayerHigh:   {Width: 1280, Height: 720, FPS: 30, BitrateKbps: 1500},
}

// EncodedFrame is one encoder output unit for one simulcast layer.
type EncodedFrame struct {
	Data       []byte
	PTS        uint32
	IsKeyframe bool
	Layer      Layer
	Width      int
	Height     int
}

// EncodeBackend is the narrow surface of a real VP9 encoder this
// package depends on.
type EncodeBackend interface {
	// EncodeI420 encodes one I420 frame at the given dimensions,
	// returning the encoded bitstream and whether it was a keyframe.
	EncodeI420(y, u, v []byte, width, height int, forceKeyframe bool) (data []byte, isKeyframe bool, err error)
}

// DecodeBackend is the narrow surface of a real VP9 decoder.
type DecodeBackend interface {
	// DecodeToI420 decodes one VP9 frame, returning I420 planes.
	DecodeToI420(data []byte) (y, u, v []byte, width, height int, err error)
}

// KeyframeRequiredError signals the caller must request a keyframe
// from the remote sender before decode can proceed.
type KeyframeRequiredError struct{}

func (e *KeyframeRequiredError) Error() string { return "vp9: keyframe required" }

// DecoderState is the decoder's position in the Fresh/Playing state
// machine (spec.md §4.15).
type DecoderState int

const (
	StateFresh DecoderState = iota
	StatePlaying
)

// Encoder produces EncodedFrame outputs for one or more simulcast
// layers from a single source frame.
type Encoder struct {
	backends map[Layer]EncodeBackend
	pts      uint32
}

// NewEncoder builds an Encoder with one backend instance per
// requested layer (callers only pass the layers they want to simulcast
// to).
func NewEncoder(backends map[Layer]EncodeBackend) *Encoder {
	return &Encoder{backends: backends}
}

// EncodeI420 encodes the source frame for every configured layer,
// downscaling to each layer's target resolution first. Downscaling
// uses nearest-neighbor per spec.md §4.6; the public contract is the
// downscaled-resolution output, not the specific resampler.
func (e *Encoder) EncodeI420(y, u, v []byte, width, height int, forceKeyframe bool) ([]EncodedFrame, error) {
	out := make([]EncodedFrame, 0, len(e.backends))
	for layer, backend := range e.backends {
		spec := Layers[layer]
		ly, lu, lv := downscaleI420(y, u, v, width, height, spec.Width, spec.Height)

		data, isKey, err := backend.EncodeI420(ly, lu, lv, spec.Width, spec.Height, forceKeyframe)
		if err != nil {
			return nil, fmt.Errorf("vp9: encode layer %d: %w", layer, err)
		}
		out = append(out, EncodedFrame{
			Data:       data,
			PTS:        e.pts,
			IsKeyframe: isKey,
			Layer:      layer,
			Width:      spec.Width,
			Height:     spec.Height,
		})
	}
	e.pts += 3000 // 90kHz clock / 30fps nominal step; callers may override
	return out, nil
}

// downscaleI420 nearest-neighbor resamples I420 planes from
// (srcW,srcH) to (dstW,dstH).
func downscaleI420(y, u, v []byte, srcW, srcH, dstW, dstH int) (dy, du, dv []byte) {
	dy = nearestResamplePlane(y, srcW, srcH, dstW, dstH)
	cw, ch := (dstW+1)/2, (dstH+1)/2
	scw, sch := (srcW+1)/2, (srcH+1)/2
	du = nearestResamplePlane(u, scw, sch, cw, ch)
	dv = nearestResamplePlane(v, scw, sch, cw, ch)
	return
}

func nearestResamplePlane(src []byte, srcW, srcH, dstW, dstH int) []byte {
	if srcW == dstW && srcH == dstH {
		out := make([]byte, len(src))
		copy(out, src)
		return out
	}
	out := make([]byte, dstW*dstH)
	for dy := 0; dy < dstH; dy++ {
		sy := dy * srcH / dstH
		for dx := 0; dx < dstW; dx++ {
			sx := dx * srcW / dstW
			idx := sy*srcW + sx
			if idx < len(src) {
				out[dy*dstW+dx] = src[idx]
			}
		}
	}
	return out
}

// Decoder tracks the Fresh/Playing keyframe state machine for one
// remote simulcast layer.
type Decoder struct {
	backend DecodeBackend
	state   DecoderState
}

// NewDecoder builds a Decoder starting in the Fresh state.
func NewDecoder(backend DecodeBackend) *Decoder {
	return &Decoder{backend: backend, state: StateFresh}
}

// State returns the decoder's current state-machine position.
func (d *Decoder) State() DecoderState { return d.state }

// NeedsKeyframe reports whether the decoder is waiting on a keyframe.
func (d *Decoder) NeedsKeyframe() bool { return d.state == StateFresh }

// Decode processes one VP9 frame. If the decoder is Fresh, the frame
// must be a keyframe (isKeyframe passed in by the caller from the
// header/bitstream signal) or KeyframeRequiredError is returned and
// the state stays Fresh. A decode error also resets to Fresh.
func (d *Decoder) Decode(data []byte, isKeyframe bool) (y, u, v []byte, width, height int, err error) {
	if d.state == StateFresh && !isKeyframe {
		return nil, nil, nil, 0, 0, &KeyframeRequiredError{}
	}

	y, u, v, width, height, err = d.backend.DecodeToI420(data)
	if err != nil {
		d.state = StateFresh
		return nil, nil, nil, 0, 0, fmt.Errorf("vp9: decode: %w", err)
	}
	d.state = StatePlaying
	return y, u, v, width, height, nil
}

// Reset clears decoder state and re-arms the keyframe requirement.
func (d *Decoder) Reset() {
	d.state = StateFresh
}

// NullEncoder passes I420 bytes through unchanged, for tests and
// builds without the video codec (spec.md §4.6).
type NullEncoder struct{}

func (NullEncoder) EncodeI420(y, u, v []byte, width, height int, forceKeyframe bool) ([]byte, bool, error) {
	out := make([]byte, 0, len(y)+len(u)+len(v))
	out = append(out, y...)
	out = append(out, u...)
	out = append(out, v...)
	return out, true, nil
}

// NullDecoder is the inverse of NullEncoder: it assumes data is a
// concatenated I420 buffer at the given fixed dimensions and splits it
// back into planes unchanged.
type NullDecoder struct {
	Width, Height int
}

func (n NullDecoder) DecodeToI420(data []byte) (y, u, v []byte, width, height int, err error) {
	ySize := n.Width * n.Height
	cw, ch := (n.Width+1)/2, (n.Height+1)/2
	cSize := cw * ch
	if len(data) < ySize+2*cSize {
		return nil, nil, nil, 0, 0, fmt.Errorf("vp9: null decoder short buffer")
	}
	y = data[:ySize]
	u = data[ySize : ySize+cSize]
	v = data[ySize+cSize : ySize+2*cSize]
	return y, u, v, n.Width, n.Height, nil
}
