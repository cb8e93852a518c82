package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/framerelay/relay/internal/capture"
	"github.com/framerelay/relay/internal/model"
	"github.com/framerelay/relay/internal/relay"
	"github.com/framerelay/relay/internal/transport"
)

// stubSource is a capture.Source driven by the test.
type stubSource struct {
	mu   sync.Mutex
	sink capture.Sink
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Start(sink capture.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink != nil {
		return model.ErrAlreadyCapturing
	}
	s.sink = sink
	return nil
}

func (s *stubSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return model.ErrNotCapturing
	}
	s.sink = nil
	return nil
}

func (s *stubSource) emit(frame string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return false
	}
	s.sink([]byte(frame))
	return true
}

func newTestLogger() (*logrus.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger), hook
}

func startRelay(t *testing.T, codec transport.Codec) *relay.Server {
	t.Helper()
	log, _ := newTestLogger()

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := relay.NewServer(ctx, relay.ServerOptions{
		Listener: relay.ListenerOptions{Addr: "127.0.0.1:0", Codec: codec},
		Logger:   log,
	})
	if err != nil {
		cancel()
		t.Fatalf("NewServer: %v", err)
	}

	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv
}

func newTestClient(t *testing.T, src capture.Source, opts Options) (*Client, *test.Hook) {
	t.Helper()
	log, hook := newTestLogger()
	opts.Logger = log
	c := New(src, opts)
	t.Cleanup(func() { c.Close() })
	return c, hook
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

func waitMembers(t *testing.T, srv *relay.Server, n int) {
	t.Helper()
	if !waitFor(time.Second, func() bool { return srv.Hub().Count() == n }) {
		t.Fatalf("relay has %d members, want %d", srv.Hub().Count(), n)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c, _ := newTestClient(t, &stubSource{}, Options{})

	if c.IsConnected() {
		t.Error("new client reports connected")
	}
	if err := c.Send([]byte("x")); !errors.Is(err, model.ErrNotConnected) {
		t.Errorf("Send: expected ErrNotConnected, got %v", err)
	}
	if err := c.StartCapture(); !errors.Is(err, model.ErrNotConnected) {
		t.Errorf("StartCapture: expected ErrNotConnected, got %v", err)
	}
	if err := c.StopCapture(); !errors.Is(err, model.ErrNotCapturing) {
		t.Errorf("StopCapture: expected ErrNotCapturing, got %v", err)
	}
	if c.Done() != nil {
		t.Error("Done() should be nil without a connection")
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c, _ := newTestClient(t, &stubSource{}, Options{})
	if err := c.Connect(context.Background(), addr); err == nil {
		t.Fatal("expected connect to a closed port to fail")
	}
	if c.IsConnected() {
		t.Error("client connected after failure")
	}
}

func TestClient_RelaysThroughServer(t *testing.T) {
	srv := startRelay(t, nil)

	src := &stubSource{}
	sender, _ := newTestClient(t, src, Options{})
	receiver, hook := newTestClient(t, &stubSource{}, Options{})

	ctx := context.Background()
	if err := sender.Connect(ctx, srv.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sender.Connect(ctx, srv.Addr().String()); !errors.Is(err, model.ErrAlreadyConnected) {
		t.Errorf("second Connect: expected ErrAlreadyConnected, got %v", err)
	}
	if err := receiver.Connect(ctx, srv.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitMembers(t, srv, 2)

	if err := sender.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if err := sender.StartCapture(); !errors.Is(err, model.ErrAlreadyCapturing) {
		t.Errorf("second StartCapture: expected ErrAlreadyCapturing, got %v", err)
	}
	if !src.emit("hello relay") {
		t.Fatal("capture not running")
	}

	if !waitFor(time.Second, func() bool { return receiver.Playback().Len() == len("hello relay") }) {
		t.Fatalf("playback has %d bytes", receiver.Playback().Len())
	}
	if got := receiver.Playback().ReadAll(); string(got) != "hello relay" {
		t.Errorf("playback = %q, want %q", got, "hello relay")
	}

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "Received 11 bytes" {
			found = true
			if got := e.Data["first_bytes"].([]byte); string(got) != "hello rela" {
				t.Errorf("first_bytes = %q, want first 10 bytes", got)
			}
		}
	}
	if !found {
		t.Error("receive was not logged")
	}

	if err := sender.StopCapture(); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	if src.emit("late") {
		t.Error("source still running after StopCapture")
	}

	st := sender.Stats()
	if st.FramesSent != 1 || st.BytesSent != 11 {
		t.Errorf("sender stats = %+v", st)
	}
}

func TestClient_FlushDeliversQueuedFrames(t *testing.T) {
	srv := startRelay(t, transport.NewLengthPrefixedCodec(0))
	opts := Options{Codec: transport.NewLengthPrefixedCodec(0)}

	sender, _ := newTestClient(t, &stubSource{}, opts)
	receiver, _ := newTestClient(t, &stubSource{}, opts)

	if err := sender.Flush(context.Background()); !errors.Is(err, model.ErrNotConnected) {
		t.Errorf("Flush before Connect: expected ErrNotConnected, got %v", err)
	}

	ctx := context.Background()
	if err := sender.Connect(ctx, srv.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := receiver.Connect(ctx, srv.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitMembers(t, srv, 2)

	for i := 0; i < 50; i++ {
		if err := sender.Send([]byte(fmt.Sprintf("line %d", i))); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sender.Flush(flushCtx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if st := sender.Stats(); st.FramesSent != 50 {
		t.Errorf("FramesSent after Flush = %d, want 50", st.FramesSent)
	}
	sender.Close()

	if !waitFor(time.Second, func() bool { return receiver.Stats().FramesReceived == 50 }) {
		t.Errorf("receiver got %d frames, want 50", receiver.Stats().FramesReceived)
	}
}

func TestClient_ToneCaptureLengthPrefixed(t *testing.T) {
	codec := transport.NewLengthPrefixedCodec(0)
	srv := startRelay(t, codec)

	tone := capture.NewToneSource(capture.ToneOptions{Interval: time.Millisecond})
	sender, _ := newTestClient(t, tone, Options{Codec: codec})

	var mu sync.Mutex
	var sizes []int
	receiver, _ := newTestClient(t, &stubSource{}, Options{
		Codec: codec,
		OnFrame: func(f []byte) {
			mu.Lock()
			sizes = append(sizes, len(f))
			mu.Unlock()
		},
	})

	ctx := context.Background()
	for _, c := range []*Client{sender, receiver} {
		if err := c.Connect(ctx, srv.Addr().String()); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	waitMembers(t, srv, 2)

	if err := sender.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if !waitFor(2*time.Second, func() bool { return receiver.Stats().FramesReceived >= 5 }) {
		t.Fatalf("received %d frames", receiver.Stats().FramesReceived)
	}
	sender.StopCapture()

	mu.Lock()
	defer mu.Unlock()
	for _, n := range sizes {
		if n != tone.BufferSize() {
			t.Fatalf("frame of %d bytes, want %d", n, tone.BufferSize())
		}
	}
}

func TestClient_ServerShutdownDisconnects(t *testing.T) {
	log, _ := newTestLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := relay.NewServer(ctx, relay.ServerOptions{
		Listener: relay.ListenerOptions{Addr: "127.0.0.1:0"},
		Logger:   log,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Run(ctx)

	c, hook := newTestClient(t, &stubSource{}, Options{})
	if err := c.Connect(context.Background(), srv.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitMembers(t, srv, 1)
	done := c.Done()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not notice server shutdown")
	}
	if c.IsConnected() {
		t.Error("client still connected")
	}

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "server closed the connection" {
			found = true
		}
	}
	if !found {
		t.Error("expected server close to be logged")
	}
}

func TestMenu_ScriptedSession(t *testing.T) {
	srv := startRelay(t, nil)
	host, port, _ := net.SplitHostPort(srv.Addr().String())

	c, _ := newTestClient(t, &stubSource{}, Options{})
	script := fmt.Sprintf("2 9 1 %s %s 1 %s %s 2 2 3 3 4 1", host, port, host, port)

	var out bytes.Buffer
	m := &Menu{Client: c, In: strings.NewReader(script), Out: &out}
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"Not connected to server. Please connect first.",
		"Invalid choice. Please try again.",
		"Attempting to connect to " + srv.Addr().String() + "...",
		"Connected to " + srv.Addr().String(),
		"Status: Connected",
		"Attempting to connect to " + srv.Addr().String() + "...",
		"Already connected.",
		"Status: Connected",
		"Capture started.",
		"Capture is already running.",
		"Capture stopped.",
		"Capture is not running.",
		"Exiting...",
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("output:\n%s\nwant:\n%s", out.String(), strings.Join(want, "\n"))
	}

	if c.IsConnected() {
		t.Error("menu exit should close the client")
	}
}

func TestMenu_InteractivePrompts(t *testing.T) {
	c, _ := newTestClient(t, &stubSource{}, Options{})

	var out bytes.Buffer
	m := &Menu{Client: c, In: strings.NewReader("4"), Out: &out, Interactive: true}
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, s := range []string{"--- Menu ---", "1. Connect to server", "4. Exit", "Enter your choice: ", "Exiting..."} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("output missing %q:\n%s", s, out.String())
		}
	}
}

func TestMenu_EndOfInput(t *testing.T) {
	c, _ := newTestClient(t, &stubSource{}, Options{})

	var out bytes.Buffer
	m := &Menu{Client: c, In: strings.NewReader(""), Out: &out}
	if err := m.Run(context.Background()); err != nil {
		t.Errorf("Run at end of input = %v, want nil", err)
	}
}
