package vp9

import "testing"

func TestNullCodecRoundTrip(t *testing.T) {
	const w, h = 4, 4
	y := make([]byte, w*h)
	for i := range y {
		y[i] = byte(i)
	}
	cw, ch := (w+1)/2, (h+1)/2
	u := make([]byte, cw*ch)
	v := make([]byte, cw*ch)
	for i := range u {
		u[i] = byte(100 + i)
		v[i] = byte(200 + i)
	}

	enc := NullEncoder{}
	data, isKey, err := enc.EncodeI420(y, u, v, w, h, false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !isKey {
		t.Fatal("NullEncoder should mark every frame as a keyframe")
	}

	dec := NullDecoder{Width: w, Height: h}
	gy, gu, gv, gw, gh, err := dec.DecodeToI420(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gw != w || gh != h {
		t.Fatalf("dimensions = %dx%d, want %dx%d", gw, gh, w, h)
	}
	for i := range y {
		if gy[i] != y[i] {
			t.Fatalf("y[%d] = %d, want %d", i, gy[i], y[i])
		}
	}
	for i := range u {
		if gu[i] != u[i] || gv[i] != v[i] {
			t.Fatalf("chroma mismatch at %d", i)
		}
	}
}

type fakeBackend struct {
	decodeErr    error
	nextIsKeyOK  bool
}

func (f *fakeBackend) DecodeToI420(data []byte) ([]byte, []byte, []byte, int, int, error) {
	if f.decodeErr != nil {
		return nil, nil, nil, 0, 0, f.decodeErr
	}
	return []byte{1}, []byte{2}, []byte{3}, 2, 2, nil
}

func TestDecoderRequiresKeyframeWhenFresh(t *testing.T) {
	d := NewDecoder(&fakeBackend{})
	if !d.NeedsKeyframe() {
		t.Fatal("expected fresh decoder to need a keyframe")
	}
	if _, _, _, _, _, err := d.Decode([]byte{9}, false); err == nil {
		t.Fatal("expected KeyframeRequiredError for non-keyframe while Fresh")
	}
	if d.State() != StateFresh {
		t.Fatal("state must remain Fresh after rejecting a non-keyframe")
	}
}

func TestDecoderTransitionsToPlayingOnKeyframe(t *testing.T) {
	d := NewDecoder(&fakeBackend{})
	if _, _, _, _, _, err := d.Decode([]byte{9}, true); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.State() != StatePlaying {
		t.Fatal("expected Playing after successful keyframe decode")
	}
	// Subsequent non-keyframe deltas are fine while Playing.
	if _, _, _, _, _, err := d.Decode([]byte{9}, false); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
}

func TestDecodeErrorResetsToFresh(t *testing.T) {
	d := NewDecoder(&fakeBackend{})
	d.Decode([]byte{9}, true) // -> Playing

	d.backend = &fakeBackend{decodeErr: errBoom}
	if _, _, _, _, _, err := d.Decode([]byte{9}, false); err == nil {
		t.Fatal("expected decode error")
	}
	if d.State() != StateFresh {
		t.Fatal("expected reset to Fresh after decode error")
	}
}

func TestResetReturnsToFresh(t *testing.T) {
	d := NewDecoder(&fakeBackend{})
	d.Decode([]byte{9}, true)
	d.Reset()
	if d.State() != StateFresh {
		t.Fatal("expected Fresh after Reset")
	}
}

func TestColorConversionRoundTripWithinTolerance(t *testing.T) {
	const w, h = 4, 4
	rgba := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		rgba[i*4] = byte(30 + i*5)
		rgba[i*4+1] = byte(60 + i*3)
		rgba[i*4+2] = byte(90 + i*2)
		rgba[i*4+3] = 255
	}

	y, u, v := RGBAToI420(rgba, w, h)
	back := I420ToRGBA(y, u, v, w, h)

	for i := 0; i < w*h; i++ {
		for c := 0; c < 3; c++ {
			orig := int(rgba[i*4+c])
			got := int(back[i*4+c])
			diff := orig - got
			if diff < 0 {
				diff = -diff
			}
			if diff > 5 {
				t.Fatalf("pixel %d channel %d: orig=%d got=%d diff=%d exceeds tolerance", i, c, orig, got, diff)
			}
		}
	}
}

var errBoom = fakeDecodeErr{}

type fakeDecodeErr struct{}

func (fakeDecodeErr) Error() string { return "boom" }
