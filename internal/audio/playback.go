package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const ringBufferFrames = 25 // ~500ms at 20ms/frame

// sourceRing is one participant's playback ring buffer: the relay/
// jitter-buffer side pushes frames in, the mixer callback pulls the
// oldest unread frame out each tick.
type sourceRing struct {
	mu     sync.Mutex
	frames [][]float32
}

func (s *sourceRing) push(frame []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	if len(s.frames) > ringBufferFrames {
		s.frames = s.frames[1:]
	}
}

func (s *sourceRing) pop() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f
}

// Playback mixes any number of per-source rings into one device output
// stream, applying SoftClip to the summed signal.
type Playback struct {
	mu         sync.Mutex
	sources    map[int64]*sourceRing
	stream     paStream
	nativeRate float64
	nativeChs  int
	resampler  *Resampler
}

// OpenDefaultPlayback opens the OS default output device.
func OpenDefaultPlayback() (*Playback, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}
	devInfo, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("audio: default output device: %w", err)
	}

	nativeChs := devInfo.MaxOutputChannels
	if nativeChs > 2 {
		nativeChs = 2
	}
	p := &Playback{
		sources:    make(map[int64]*sourceRing),
		nativeRate: devInfo.DefaultSampleRate,
		nativeChs:  nativeChs,
		resampler:  NewResampler(TargetSampleRate, devInfo.DefaultSampleRate),
	}

	nativeFrameLen := int(float64(FrameSamples) * p.nativeRate / TargetSampleRate)
	out := make([]float32, nativeFrameLen*nativeChs)
	stream, err := portaudio.OpenDefaultStream(0, nativeChs, p.nativeRate, len(out)/nativeChs, out, p.onCallback)
	if err != nil {
		return nil, fmt.Errorf("audio: open stream: %w", err)
	}
	p.stream = stream
	return p, nil
}

func (p *Playback) onCallback(out []float32) {
	mixed := p.mixTick()
	upsampled := p.resampler.ResampleToFrame(mixed, len(out)/p.nativeChs)
	for i, sample := range upsampled {
		for ch := 0; ch < p.nativeChs; ch++ {
			out[i*p.nativeChs+ch] = sample
		}
	}
}

func (p *Playback) mixTick() []float32 {
	p.mu.Lock()
	rings := make([]*sourceRing, 0, len(p.sources))
	for _, r := range p.sources {
		rings = append(rings, r)
	}
	p.mu.Unlock()

	bufs := make([][]float32, 0, len(rings))
	for _, r := range rings {
		if f := r.pop(); f != nil {
			bufs = append(bufs, f)
		}
	}
	return Mix(bufs, FrameSamples)
}

// AddSource registers userID's ring buffer, creating it if absent.
func (p *Playback) AddSource(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sources[userID]; !ok {
		p.sources[userID] = &sourceRing{}
	}
}

// RemoveSource drops userID's ring buffer. Per spec.md §4.8, "dropping
// the send half removes the source" — removing the ring has the same
// effect since the mixer simply stops finding frames for that user.
func (p *Playback) RemoveSource(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sources, userID)
}

// Push enqueues one decoded 960-sample frame for userID's source.
func (p *Playback) Push(userID int64, frame []float32) {
	p.mu.Lock()
	r, ok := p.sources[userID]
	if !ok {
		r = &sourceRing{}
		p.sources[userID] = r
	}
	p.mu.Unlock()
	r.push(frame)
}

func (p *Playback) Start() error { return p.stream.Start() }
func (p *Playback) Stop() error  { return p.stream.Stop() }
func (p *Playback) Close() error { return p.stream.Close() }
