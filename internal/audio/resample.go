package audio

// Resampler converts between two fixed sample rates using linear
// interpolation, always producing the downstream's frame length for a
// fixed-length input chunk. A true FFT-windowed resampler would reduce
// aliasing further; linear interpolation is the minimal dependency-free
// approach and is adequate at the capture/playback boundary where the
// bigger error source is voice-band Opus quantization. This is one of
// the few standard-library-only choices in the module (see DESIGN.md).
type Resampler struct {
	srcRate, dstRate float64
}

// NewResampler builds a Resampler from srcRate to dstRate.
func NewResampler(srcRate, dstRate float64) *Resampler {
	return &Resampler{srcRate: srcRate, dstRate: dstRate}
}

// Process resamples in (at srcRate) to dstRate, returning a buffer
// whose length is len(in)*dstRate/srcRate, truncated to a whole
// sample.
func (r *Resampler) Process(in []float32) []float32 {
	if r.srcRate == r.dstRate || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	outLen := int(float64(len(in)) * r.dstRate / r.srcRate)
	out := make([]float32, outLen)
	ratio := r.srcRate / r.dstRate

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := float32(srcPos - float64(idx))

		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}

// ResampleToFrame resamples in (at srcRate) and returns exactly
// outLen samples, padding with the last sample (or silence if in is
// empty) if the natural resample came up short, and truncating if it
// overshot. This is what guarantees the capture path always emits
// exactly FrameSamples per output frame regardless of device buffering
// jitter.
func (r *Resampler) ResampleToFrame(in []float32, outLen int) []float32 {
	resampled := r.Process(in)
	out := make([]float32, outLen)
	n := copy(out, resampled)
	if n < outLen && n > 0 {
		last := resampled[n-1]
		for i := n; i < outLen; i++ {
			out[i] = last
		}
	}
	return out
}
