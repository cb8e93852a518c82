package capture

import (
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/framerelay/relay/internal/model"
)

type collector struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *collector) sink(f []byte) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *collector) all() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestToneSource_Defaults(t *testing.T) {
	src := NewToneSource(ToneOptions{})
	if src.Name() != "tone" {
		t.Errorf("Name() = %q", src.Name())
	}
	if src.BufferSize() != DefaultFramesPerBuffer*4 {
		t.Errorf("BufferSize() = %d, want %d", src.BufferSize(), DefaultFramesPerBuffer*4)
	}
	want := time.Duration(DefaultFramesPerBuffer) * time.Second / DefaultSampleRate
	if src.opts.Interval != want {
		t.Errorf("Interval = %v, want %v", src.opts.Interval, want)
	}
}

func TestToneSource_ProducesSamples(t *testing.T) {
	src := NewToneSource(ToneOptions{
		Frequency:       1000,
		FramesPerBuffer: 64,
		Interval:        time.Millisecond,
	})

	var c collector
	if err := src.Start(c.sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !waitFor(time.Second, func() bool { return c.count() >= 3 }) {
		t.Fatal("no frames captured")
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	n := c.count()
	time.Sleep(10 * time.Millisecond)
	if c.count() != n {
		t.Error("frames delivered after Stop")
	}

	for _, f := range c.all() {
		if len(f) != 64*4 {
			t.Fatalf("frame size %d, want %d", len(f), 64*4)
		}
		for _, s := range DecodeSamples(f) {
			if math.Abs(float64(s)) > 0.5+1e-6 {
				t.Fatalf("sample %f exceeds amplitude", s)
			}
		}
	}

	// The wave is continuous across buffers.
	frames := c.all()
	a := DecodeSamples(frames[0])
	b := DecodeSamples(frames[1])
	if math.Abs(float64(b[0]-a[len(a)-1])) > 0.1 {
		t.Errorf("discontinuity between buffers: %f -> %f", a[len(a)-1], b[0])
	}
}

func TestToneSource_StartStopErrors(t *testing.T) {
	src := NewToneSource(ToneOptions{Interval: time.Millisecond})

	if err := src.Stop(); !errors.Is(err, model.ErrNotCapturing) {
		t.Errorf("Stop before Start: expected ErrNotCapturing, got %v", err)
	}
	if err := src.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Start(func([]byte) {}); !errors.Is(err, model.ErrAlreadyCapturing) {
		t.Errorf("second Start: expected ErrAlreadyCapturing, got %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Restart after stop
	if err := src.Start(func([]byte) {}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	src.Stop()
}

func TestDecodeSamples(t *testing.T) {
	frame := []byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0xbf, 0xff}
	got := DecodeSamples(frame)
	if len(got) != 2 || got[0] != 1 || got[1] != -0.5 {
		t.Errorf("DecodeSamples = %v, want [1 -0.5]", got)
	}
}

func TestLineSource(t *testing.T) {
	pr, pw := io.Pipe()
	logger, _ := test.NewNullLogger()
	src := NewLineSource(pr, logrus.NewEntry(logger))

	var c collector
	if err := src.Start(c.sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := src.Start(c.sink); !errors.Is(err, model.ErrAlreadyCapturing) {
		t.Errorf("second Start: expected ErrAlreadyCapturing, got %v", err)
	}

	io.WriteString(pw, "hello\n\nworld\n")
	if !waitFor(time.Second, func() bool { return c.count() == 2 }) {
		t.Fatalf("captured %d lines, want 2", c.count())
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	io.WriteString(pw, "ignored\n")
	time.Sleep(20 * time.Millisecond)

	if err := src.Start(c.sink); err != nil {
		t.Fatalf("restart: %v", err)
	}
	io.WriteString(pw, "again\n")
	pw.Close()

	select {
	case <-src.EOF():
	case <-time.After(time.Second):
		t.Fatal("EOF not signalled")
	}

	var got []string
	for _, f := range c.all() {
		got = append(got, string(f))
	}
	if strings.Join(got, ",") != "hello,world,again" {
		t.Errorf("got %v, want [hello world again]", got)
	}
}
