// Package history records relay session lifecycles to the history repository.
package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/model"
	"github.com/framerelay/relay/internal/repository"
)

const (
	// DefaultQueueSize is the number of pending records the recorder buffers.
	DefaultQueueSize = 1024

	writeTimeout = 5 * time.Second
)

// Store is the subset of the repository used by the recorder.
type Store interface {
	Create(ctx context.Context, rec *model.SessionRecord) error
	Finish(ctx context.Context, rec *model.SessionRecord) error
}

var _ Store = (*repository.HistoryRepository)(nil)

// Recorder implements relay.Observer. Hub callbacks only enqueue; a single
// writer goroutine stores records in arrival order, so a session's close
// never overtakes its join.
type Recorder struct {
	store   Store
	log     *logrus.Entry
	queue   chan *model.SessionRecord
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewRecorder creates a recorder and starts its writer.
func NewRecorder(store Store, queueSize int, log *logrus.Entry) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r := &Recorder{
		store: store,
		log:   log.WithField("component", "history"),
		queue: make(chan *model.SessionRecord, queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// SessionJoined queues the record of a new session.
func (r *Recorder) SessionJoined(info model.SessionInfo) {
	r.enqueue(&model.SessionRecord{
		ID:         info.ID,
		RemoteAddr: info.RemoteAddr,
		Transport:  info.Transport,
		JoinedAt:   info.JoinedAt,
	})
}

// SessionClosed queues the final record of a session.
func (r *Recorder) SessionClosed(info model.SessionInfo, cause error) {
	now := time.Now()
	reason, detail := Reason(cause)
	r.enqueue(&model.SessionRecord{
		ID:            info.ID,
		RemoteAddr:    info.RemoteAddr,
		Transport:     info.Transport,
		JoinedAt:      info.JoinedAt,
		ClosedAt:      &now,
		Reason:        reason,
		Detail:        detail,
		FramesIn:      info.FramesIn,
		FramesOut:     info.FramesOut,
		BytesIn:       info.BytesIn,
		BytesOut:      info.BytesOut,
		FramesDropped: info.FramesDropped,
	})
}

// Dropped returns how many records were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stores every queued record and stops the writer. Records arriving
// after Close are discarded.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.stop) })
	<-r.done
}

// Reason maps the cause a hub reports for a closed session to a stored reason.
func Reason(cause error) (model.CloseReason, string) {
	switch {
	case cause == nil:
		return model.CloseReasonLeft, ""
	case errors.Is(cause, model.ErrHubClosed):
		return model.CloseReasonShutdown, ""
	case errors.Is(cause, model.ErrDisconnected):
		return model.CloseReasonDisconnected, ""
	default:
		return model.CloseReasonRemoved, cause.Error()
	}
}

func (r *Recorder) enqueue(rec *model.SessionRecord) {
	select {
	case <-r.stop:
		r.dropped.Add(1)
		return
	default:
	}

	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		r.log.WithField("session", rec.ID).Warn("history queue full, record dropped")
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-r.stop:
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *model.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if rec.ClosedAt == nil {
		err = r.store.Create(ctx, rec)
	} else {
		err = r.store.Finish(ctx, rec)
	}
	if err != nil {
		r.log.WithError(err).WithField("session", rec.ID).Error("failed to record session")
	}
}
