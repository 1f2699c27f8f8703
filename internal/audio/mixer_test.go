package audio

import "testing"

func TestSoftClipIsIdentityBelowKnee(t *testing.T) {
	for _, x := range []float32{0, 0.1, -0.5, 0.75, -0.75} {
		if got := SoftClip(x); got != x {
			t.Fatalf("SoftClip(%v) = %v, want %v", x, got, x)
		}
	}
}

func TestSoftClipStaysUnderOne(t *testing.T) {
	for _, x := range []float32{1, 2, 100, 1e6, -1, -100} {
		got := SoftClip(x)
		if got >= 1 || got <= -1 {
			t.Fatalf("SoftClip(%v) = %v, want strictly within (-1,1)", x, got)
		}
	}
}

func TestSoftClipIsMonotonic(t *testing.T) {
	xs := []float32{-10, -2, -1, -0.75, -0.5, 0, 0.5, 0.75, 1, 2, 10}
	prev := SoftClip(xs[0])
	for _, x := range xs[1:] {
		got := SoftClip(x)
		if got < prev {
			t.Fatalf("SoftClip not monotonic at x=%v: got %v < prev %v", x, got, prev)
		}
		prev = got
	}
}

func TestMixSumsAndClips(t *testing.T) {
	a := []float32{0.5, 0.5, 0.5}
	b := []float32{0.5, 0.5, 0.5}
	out := Mix([][]float32{a, b}, 3)
	// 0.5+0.5 = 1.0 lies 0.25 past the 0.75 knee: 0.75 + 0.25*(0.25/1.25) = 0.8.
	for i, v := range out {
		if d := v - 0.8; d > 1e-6 || d < -1e-6 {
			t.Fatalf("out[%d] = %v, want SoftClip(1.0) = 0.8", i, v)
		}
		if v >= 1 {
			t.Fatalf("out[%d] = %v, expected strictly < 1", i, v)
		}
	}
}

func TestMixTreatsShortSourcesAsSilentTail(t *testing.T) {
	a := []float32{1, 1}
	out := Mix([][]float32{a}, 4)
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	if out[2] != 0 || out[3] != 0 {
		t.Fatalf("expected silence past source end, got %v", out)
	}
}
