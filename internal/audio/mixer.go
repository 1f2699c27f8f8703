// Package audio implements device capture/playback framing: resampling
// to the protocol's 48kHz mono 20ms frame contract, bounded
// drop-oldest backpressure on capture, and ring-buffer mixing with a
// monotonic soft-clip on playback.
package audio

// SoftClip applies a rational saturating curve: f(x) = x for |x| <=
// 0.75, smoothly saturating toward +/-1 beyond that. It is monotonic
// and |f(x)| < 1 for all finite x (spec.md §8).
func SoftClip(x float32) float32 {
	const knee = 0.75
	if x >= -knee && x <= knee {
		return x
	}
	sign := float32(1)
	if x < 0 {
		sign = -1
		x = -x
	}
	// Beyond the knee, compress the remaining distance to infinity into
	// the remaining headroom (1-knee) with a 1/(1+t) curve, which is
	// monotonic decreasing in slope and asymptotes to 1.
	t := x - knee
	out := knee + (1-knee)*(t/(t+1))
	return sign * out
}

// Mix sums any number of same-length source buffers and applies
// SoftClip to the result. Shorter sources are treated as silence past
// their end.
func Mix(sources [][]float32, frameLen int) []float32 {
	out := make([]float32, frameLen)
	for _, src := range sources {
		n := len(src)
		if n > frameLen {
			n = frameLen
		}
		for i := 0; i < n; i++ {
			out[i] += src[i]
		}
	}
	for i := range out {
		out[i] = SoftClip(out[i])
	}
	return out
}
