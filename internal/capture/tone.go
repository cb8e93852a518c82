package capture

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/framerelay/relay/internal/model"
)

const (
	// DefaultSampleRate matches the capture device rate of the audio client.
	DefaultSampleRate = 44100

	// DefaultFramesPerBuffer is the number of samples in one captured buffer.
	DefaultFramesPerBuffer = 256

	// DefaultToneFrequency is concert A.
	DefaultToneFrequency = 440.0

	bytesPerSample = 4
)

// ToneOptions configures a ToneSource.
type ToneOptions struct {
	Frequency       float64
	SampleRate      int
	FramesPerBuffer int

	// Amplitude of the sine wave in (0, 1]; zero selects 0.5.
	Amplitude float64

	// Interval between buffers. Zero paces the source in real time, one
	// buffer per FramesPerBuffer/SampleRate.
	Interval time.Duration
}

// ToneSource synthesises a mono sine wave as little-endian float32 samples,
// standing in for a microphone.
type ToneSource struct {
	opts ToneOptions

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	phase   float64
}

// NewToneSource creates a tone source, filling zero options with defaults.
func NewToneSource(opts ToneOptions) *ToneSource {
	if opts.Frequency <= 0 {
		opts.Frequency = DefaultToneFrequency
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.FramesPerBuffer <= 0 {
		opts.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if opts.Amplitude <= 0 || opts.Amplitude > 1 {
		opts.Amplitude = 0.5
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Duration(opts.FramesPerBuffer) * time.Second / time.Duration(opts.SampleRate)
	}
	return &ToneSource{opts: opts}
}

func (t *ToneSource) Name() string { return "tone" }

// BufferSize returns the size in bytes of each frame.
func (t *ToneSource) BufferSize() int {
	return t.opts.FramesPerBuffer * bytesPerSample
}

func (t *ToneSource) Start(sink Sink) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return model.ErrAlreadyCapturing
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.run(sink, t.stop, t.done)
	return nil
}

func (t *ToneSource) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return model.ErrNotCapturing
	}
	t.running = false
	close(t.stop)
	<-t.done
	return nil
}

func (t *ToneSource) run(sink Sink, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sink(t.next())
		}
	}
}

// next renders one buffer, continuing the phase of the previous one.
func (t *ToneSource) next() []byte {
	step := 2 * math.Pi * t.opts.Frequency / float64(t.opts.SampleRate)
	buf := make([]byte, t.BufferSize())
	for i := 0; i < t.opts.FramesPerBuffer; i++ {
		v := float32(t.opts.Amplitude * math.Sin(t.phase))
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(v))
		t.phase = math.Mod(t.phase+step, 2*math.Pi)
	}
	return buf
}

// DecodeSamples converts a little-endian float32 frame back to samples.
// Trailing bytes that do not form a whole sample are ignored.
func DecodeSamples(frame []byte) []float32 {
	out := make([]float32, len(frame)/bytesPerSample)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(frame[i*bytesPerSample:]))
	}
	return out
}
