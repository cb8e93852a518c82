package relay

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/framerelay/relay/internal/model"
	"github.com/framerelay/relay/internal/transport"
)

// DefaultEventBuffer is the capacity of the hub's event channel.
const DefaultEventBuffer = 256

// abortGracePeriod bounds how long Shutdown waits for aborted sessions to
// release after its context expired.
const abortGracePeriod = time.Second

// HubOptions configures a Hub.
type HubOptions struct {
	// Echo delivers frames back to their origin session as well.
	Echo bool

	// EventBuffer is the capacity of the event channel; zero selects DefaultEventBuffer.
	EventBuffer int

	// Observer, if set, is told about every join and every released session.
	Observer Observer

	Logger *logrus.Entry
}

// Observer is notified of membership changes. It is called from the
// coordinator goroutine and must not block.
type Observer interface {
	SessionJoined(info model.SessionInfo)
	// SessionClosed is called once the session's transport is closed. cause
	// is nil when the peer left on its own.
	SessionClosed(info model.SessionInfo, cause error)
}

type eventKind int

const (
	eventJoin eventKind = iota
	eventLeave
	eventDeliver
	eventSnapshot
	eventShutdown
	eventAbort
	eventRelease
	eventDisconnect
)

type hubEvent struct {
	kind     eventKind
	session  *Session
	id       string
	frame    transport.Frame
	reply    chan error
	snapshot chan hubSnapshot
}

type hubSnapshot struct {
	sessions []model.SessionInfo
	stats    model.HubStats
}

// Hub is the registry and broadcast coordinator for active sessions.
//
// Membership is owned by a single coordinator goroutine. Joins, leaves and
// deliveries travel through one FIFO channel, so a frame read before a
// session joined is never delivered to that session.
type Hub struct {
	echo     bool
	observer Observer
	log      *logrus.Entry
	base     *logrus.Entry

	events chan hubEvent
	done   chan struct{}

	// Owned by the coordinator goroutine.
	members      map[*Session]struct{}
	draining     map[*Session]error
	shuttingDown bool
	stats        model.HubStats
}

// NewHub creates a hub and starts its coordinator.
func NewHub(opts HubOptions) *Hub {
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = DefaultEventBuffer
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	h := &Hub{
		echo:     opts.Echo,
		observer: opts.Observer,
		log:      log.WithField("component", "hub"),
		base:     log,
		events:   make(chan hubEvent, buf),
		done:     make(chan struct{}),
		members:  make(map[*Session]struct{}),
		draining: make(map[*Session]error),
	}
	go h.run()
	return h
}

// Join adds s to the membership set. It returns once the membership change
// is visible to every later delivery.
func (h *Hub) Join(s *Session) error {
	return h.call(hubEvent{kind: eventJoin, session: s})
}

// Leave removes s from the membership set. It is a no-op for non-members.
func (h *Hub) Leave(s *Session) {
	_ = h.call(hubEvent{kind: eventLeave, session: s})
}

// Deliver queues f for every member, skipping origin unless echo is enabled.
// Frames from one caller are delivered in call order.
func (h *Hub) Deliver(f transport.Frame, origin *Session) error {
	return h.send(hubEvent{kind: eventDeliver, session: origin, frame: f})
}

// Disconnect removes the member with the given ID and closes its transport
// without draining. It returns model.ErrSessionNotFound for unknown IDs.
func (h *Hub) Disconnect(id string) error {
	return h.call(hubEvent{kind: eventDisconnect, id: id})
}

// Sessions returns a snapshot of the current members.
func (h *Hub) Sessions() []model.SessionInfo {
	snap, ok := h.snapshot()
	if !ok {
		return nil
	}
	return snap.sessions
}

// Count returns the number of members.
func (h *Hub) Count() int {
	snap, ok := h.snapshot()
	if !ok {
		return 0
	}
	return snap.stats.ActiveSessions
}

// Stats returns the hub counters.
func (h *Hub) Stats() model.HubStats {
	snap, _ := h.snapshot()
	return snap.stats
}

// Done is closed when the coordinator has exited after Shutdown.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Shutdown stops every member's read loop and lets queued writes drain.
// When ctx expires first, the remaining sessions are closed immediately and
// ctx.Err() is returned.
func (h *Hub) Shutdown(ctx context.Context) error {
	if err := h.send(hubEvent{kind: eventShutdown}); err != nil {
		return nil
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
	}

	h.log.Warn("shutdown deadline reached, closing remaining sessions")
	_ = h.send(hubEvent{kind: eventAbort})

	select {
	case <-h.done:
	case <-time.After(abortGracePeriod):
	}
	return ctx.Err()
}

// release tells the coordinator that s has closed its transport.
func (h *Hub) release(s *Session) {
	_ = h.send(hubEvent{kind: eventRelease, session: s})
}

func (h *Hub) send(ev hubEvent) error {
	select {
	case <-h.done:
		return model.ErrHubClosed
	default:
	}

	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return model.ErrHubClosed
	}
}

func (h *Hub) call(ev hubEvent) error {
	ev.reply = make(chan error, 1)
	if err := h.send(ev); err != nil {
		return err
	}
	select {
	case err := <-ev.reply:
		return err
	case <-h.done:
		return model.ErrHubClosed
	}
}

func (h *Hub) snapshot() (hubSnapshot, bool) {
	ch := make(chan hubSnapshot, 1)
	if err := h.send(hubEvent{kind: eventSnapshot, snapshot: ch}); err != nil {
		return hubSnapshot{}, false
	}
	select {
	case snap := <-ch:
		return snap, true
	case <-h.done:
		return hubSnapshot{}, false
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for ev := range h.events {
		switch ev.kind {
		case eventJoin:
			ev.reply <- h.join(ev.session)
		case eventLeave:
			h.remove(ev.session, nil)
			ev.reply <- nil
		case eventDeliver:
			h.deliver(ev.frame, ev.session)
		case eventSnapshot:
			ev.snapshot <- h.takeSnapshot()
		case eventShutdown:
			h.beginShutdown()
		case eventAbort:
			for s := range h.members {
				s.abort()
			}
			for s := range h.draining {
				s.abort()
			}
		case eventRelease:
			h.released(ev.session)
		case eventDisconnect:
			ev.reply <- h.disconnect(ev.id)
		}

		if h.shuttingDown && len(h.members) == 0 && len(h.draining) == 0 {
			h.log.Info("all sessions closed")
			return
		}
	}
}

func (h *Hub) join(s *Session) error {
	if h.shuttingDown {
		return model.ErrHubClosed
	}
	if _, ok := h.members[s]; ok {
		return nil
	}
	if !s.state.CompareAndSwap(int32(model.SessionStatePending), int32(model.SessionStateActive)) {
		return model.ErrSessionClosed
	}

	s.joinedAt = time.Now()
	h.members[s] = struct{}{}
	h.stats.TotalSessions++

	s.log.WithField("total", len(h.members)).Info("client joined")
	if h.observer != nil {
		h.observer.SessionJoined(h.info(s))
	}
	return nil
}

// remove takes s out of the membership set and tracks it until its
// transport is released. cause is nil when the session left on its own.
func (h *Hub) remove(s *Session, cause error) bool {
	if _, ok := h.members[s]; !ok {
		return false
	}

	delete(h.members, s)
	s.state.Store(int32(model.SessionStateGone))
	h.draining[s] = cause

	entry := s.log.WithField("total", len(h.members))
	if cause != nil {
		entry.WithError(cause).Warn("client removed")
	} else {
		entry.Info("client left")
	}
	return true
}

func (h *Hub) released(s *Session) {
	cause, ok := h.draining[s]
	if !ok {
		return
	}
	delete(h.draining, s)
	if cause == nil && h.shuttingDown {
		cause = model.ErrHubClosed
	}
	if h.observer != nil {
		h.observer.SessionClosed(h.info(s), cause)
	}
}

func (h *Hub) info(s *Session) model.SessionInfo {
	info := s.Info()
	info.JoinedAt = s.joinedAt
	return info
}

func (h *Hub) disconnect(id string) error {
	for s := range h.members {
		if s.id == id {
			h.remove(s, model.ErrDisconnected)
			s.abort()
			return nil
		}
	}
	return model.ErrSessionNotFound
}

func (h *Hub) deliver(f transport.Frame, origin *Session) {
	h.stats.FramesReceived++

	for s := range h.members {
		if s == origin && !h.echo {
			continue
		}

		if err := s.Deliver(f); err != nil {
			// The session is leaving; its own Leave event follows.
			if errors.Is(err, model.ErrSessionClosed) {
				continue
			}
			h.stats.FramesRejected++
			h.remove(s, err)
			s.abort()
			continue
		}
		h.stats.FramesFannedOut++
	}
}

func (h *Hub) beginShutdown() {
	if h.shuttingDown {
		return
	}
	h.shuttingDown = true

	h.log.WithField("sessions", len(h.members)).Info("shutting down")
	for s := range h.members {
		s.stop()
	}
}

func (h *Hub) takeSnapshot() hubSnapshot {
	sessions := make([]model.SessionInfo, 0, len(h.members))
	for s := range h.members {
		sessions = append(sessions, h.info(s))
	}

	stats := h.stats
	stats.ActiveSessions = len(h.members)
	stats.DrainingSessions = len(h.draining)
	return hubSnapshot{sessions: sessions, stats: stats}
}
