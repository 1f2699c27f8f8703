package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const (
	TargetSampleRate = 48000
	TargetChannels   = 1
	FrameSamples     = 960 // 20ms at 48kHz
	captureChanBuf   = 50  // spec.md §4.8 bounded 50-frame channel
)

// paStream is the narrow surface of a portaudio.Stream this package
// depends on, so capture/playback logic is testable without real audio
// hardware (mirrors the reference client's paStream interface).
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
}

// Capture reads from a device, downmixes to mono, resamples to 48kHz,
// and delivers fixed 960-sample frames on a bounded channel. On
// backpressure the oldest buffered frame is dropped rather than
// blocking the capture callback.
type Capture struct {
	stream     paStream
	nativeRate float64
	nativeChs  int
	buf        []float32 // native-format scratch buffer, reused per callback
	resampler  *Resampler
	frames     chan []float32
	done       chan struct{}
}

// OpenDefaultCapture opens the OS default input device and prepares a
// Capture that emits 48kHz mono 20ms frames.
func OpenDefaultCapture() (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}
	devInfo, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("audio: default input device: %w", err)
	}

	nativeRate := devInfo.DefaultSampleRate
	nativeChs := devInfo.MaxInputChannels
	if nativeChs > 2 {
		nativeChs = 2
	}

	c := &Capture{
		nativeRate: nativeRate,
		nativeChs:  nativeChs,
		resampler:  NewResampler(nativeRate, TargetSampleRate),
		frames:     make(chan []float32, captureChanBuf),
		done:       make(chan struct{}),
	}

	nativeFrameLen := int(float64(FrameSamples) * nativeRate / TargetSampleRate)
	c.buf = make([]float32, nativeFrameLen*nativeChs)

	stream, err := portaudio.OpenDefaultStream(nativeChs, 0, nativeRate, len(c.buf)/nativeChs, c.buf, c.onCallback)
	if err != nil {
		return nil, fmt.Errorf("audio: open stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

func (c *Capture) onCallback(in []float32) {
	mono := downmix(in, c.nativeChs)
	frame := c.resampler.ResampleToFrame(mono, FrameSamples)

	select {
	case c.frames <- frame:
	default:
		// Bounded channel is full: drop the oldest frame, then enqueue.
		select {
		case <-c.frames:
		default:
		}
		select {
		case c.frames <- frame:
		default:
		}
	}
}

// Start begins capture.
func (c *Capture) Start() error { return c.stream.Start() }

// Stop halts capture; the Frames channel is not closed, so callers
// should stop reading once Close completes.
func (c *Capture) Stop() error { return c.stream.Stop() }

// Close releases the underlying device.
func (c *Capture) Close() error {
	close(c.done)
	return c.stream.Close()
}

// Frames returns the channel of captured 48kHz mono frames.
func (c *Capture) Frames() <-chan []float32 { return c.frames }

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += in[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
