package capture

import (
	"bufio"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/model"
)

// LineSource emits every line read from r as one frame, without the line
// terminator. Empty lines are skipped.
//
// The reader is consumed by a single goroutine started on the first Start.
// Lines read while the source is stopped are discarded.
type LineSource struct {
	r   io.Reader
	log *logrus.Entry

	mu      sync.Mutex
	sink    Sink
	started bool
	eof     chan struct{}
}

// NewLineSource creates a line source over r.
func NewLineSource(r io.Reader, log *logrus.Entry) *LineSource {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LineSource{
		r:   r,
		log: log.WithField("component", "capture"),
		eof: make(chan struct{}),
	}
}

func (l *LineSource) Name() string { return "stdin" }

// EOF is closed when the reader is exhausted.
func (l *LineSource) EOF() <-chan struct{} {
	return l.eof
}

func (l *LineSource) Start(sink Sink) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink != nil {
		return model.ErrAlreadyCapturing
	}
	l.sink = sink
	if !l.started {
		l.started = true
		go l.scan()
	}
	return nil
}

func (l *LineSource) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink == nil {
		return model.ErrNotCapturing
	}
	l.sink = nil
	return nil
}

func (l *LineSource) scan() {
	defer close(l.eof)

	sc := bufio.NewScanner(l.r)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := append([]byte(nil), line...)

		l.mu.Lock()
		if l.sink != nil {
			l.sink(frame)
		}
		l.mu.Unlock()
	}
	if err := sc.Err(); err != nil {
		l.log.WithError(err).Warn("input read failed")
	}
}
