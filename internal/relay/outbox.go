package relay

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"

	"github.com/framerelay/relay/internal/model"
	"github.com/framerelay/relay/internal/transport"
)

// OverflowPolicy decides what a capped Outbox does when it is full.
type OverflowPolicy string

const (
	// OverflowDisconnect rejects the frame with ErrQueueFull; the hub then
	// disconnects the slow session.
	OverflowDisconnect OverflowPolicy = "disconnect"

	// OverflowDropOldest discards the oldest waiting frame to make room.
	OverflowDropOldest OverflowPolicy = "drop-oldest"

	// OverflowDropNewest discards the incoming frame.
	OverflowDropNewest OverflowPolicy = "drop-newest"
)

// ParseOverflowPolicy validates a policy name. An empty name selects OverflowDisconnect.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case "":
		return OverflowDisconnect, nil
	case OverflowDisconnect, OverflowDropOldest, OverflowDropNewest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Outbox is the FIFO of frames waiting to be written to one peer.
//
// Any number of goroutines may Push; exactly one goroutine, the writer,
// calls Next. Because the writer takes one frame at a time and writes it
// before asking for the next, at most one write is in flight.
type Outbox struct {
	mu      sync.Mutex
	q       *queue.Queue
	limit   int
	policy  OverflowPolicy
	closed  bool
	dropped uint64

	wake chan struct{}
}

// NewOutbox creates an outbox. A limit of zero or less means unbounded.
func NewOutbox(limit int, policy OverflowPolicy) *Outbox {
	if policy == "" {
		policy = OverflowDisconnect
	}
	return &Outbox{
		q:      queue.New(),
		limit:  limit,
		policy: policy,
		wake:   make(chan struct{}, 1),
	}
}

// Push appends f and wakes the writer. It never blocks on I/O.
//
// The limit counts frames waiting behind the one being written.
func (o *Outbox) Push(f transport.Frame) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return model.ErrSessionClosed
	}

	if o.limit > 0 && o.q.Length() >= o.limit {
		switch o.policy {
		case OverflowDropNewest:
			o.dropped++
			o.mu.Unlock()
			return nil
		case OverflowDropOldest:
			o.q.Remove()
			o.dropped++
		default:
			o.mu.Unlock()
			return model.ErrQueueFull
		}
	}

	o.q.Add(f)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Next removes and returns the head of the queue.
func (o *Outbox) Next() (transport.Frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.q.Length() == 0 {
		return nil, false
	}
	return o.q.Remove().(transport.Frame), true
}

// Wake returns a channel that receives after Push on an idle outbox.
func (o *Outbox) Wake() <-chan struct{} {
	return o.wake
}

// Len returns the number of waiting frames.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.q.Length()
}

// Dropped returns how many frames the overflow policy discarded.
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Close rejects further pushes and discards waiting frames.
// It returns the number of frames discarded.
func (o *Outbox) Close() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return 0
	}
	o.closed = true
	n := o.q.Length()
	o.q = queue.New()
	return n
}

// Closed reports whether Close was called.
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
