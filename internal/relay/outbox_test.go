package relay

import (
	"errors"
	"testing"

	"github.com/framerelay/relay/internal/model"
	"github.com/framerelay/relay/internal/transport"
)

func drainOutbox(o *Outbox) []string {
	var out []string
	for {
		f, ok := o.Next()
		if !ok {
			return out
		}
		out = append(out, string(f))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseOverflowPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverflowPolicy
		wantErr bool
	}{
		{"", OverflowDisconnect, false},
		{"disconnect", OverflowDisconnect, false},
		{"drop-oldest", OverflowDropOldest, false},
		{"drop-newest", OverflowDropNewest, false},
		{"block", "", true},
	}

	for _, tt := range tests {
		got, err := ParseOverflowPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOverflowPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOverflowPolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOutbox_FIFO(t *testing.T) {
	o := NewOutbox(0, "")
	for _, f := range []string{"1", "2", "3"} {
		if err := o.Push(transport.Frame(f)); err != nil {
			t.Fatalf("Push(%s): %v", f, err)
		}
	}

	if o.Len() != 3 {
		t.Errorf("Len() = %d, want 3", o.Len())
	}
	if got := drainOutbox(o); !equalStrings(got, []string{"1", "2", "3"}) {
		t.Errorf("got %v, want [1 2 3]", got)
	}
	if _, ok := o.Next(); ok {
		t.Error("Next() on empty outbox returned a frame")
	}
}

func TestOutbox_Wake(t *testing.T) {
	o := NewOutbox(0, "")
	o.Push(transport.Frame("a"))
	o.Push(transport.Frame("b"))

	select {
	case <-o.Wake():
	default:
		t.Fatal("expected wake after push")
	}
	// Wake coalesces; the writer drains everything on one signal.
	select {
	case <-o.Wake():
		t.Error("expected a single pending wake")
	default:
	}
}

func TestOutbox_Overflow(t *testing.T) {
	tests := []struct {
		policy  OverflowPolicy
		want    []string
		dropped uint64
		errAt   int
	}{
		{OverflowDisconnect, []string{"0", "1"}, 0, 2},
		{OverflowDropOldest, []string{"3", "4"}, 3, -1},
		{OverflowDropNewest, []string{"0", "1"}, 3, -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			o := NewOutbox(2, tt.policy)
			for i, f := range []string{"0", "1", "2", "3", "4"} {
				err := o.Push(transport.Frame(f))
				if tt.errAt >= 0 && i >= tt.errAt {
					if !errors.Is(err, model.ErrQueueFull) {
						t.Errorf("Push(%s): expected ErrQueueFull, got %v", f, err)
					}
					continue
				}
				if err != nil {
					t.Errorf("Push(%s): %v", f, err)
				}
			}

			if o.Dropped() != tt.dropped {
				t.Errorf("Dropped() = %d, want %d", o.Dropped(), tt.dropped)
			}
			if got := drainOutbox(o); !equalStrings(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutbox_Close(t *testing.T) {
	o := NewOutbox(0, "")
	o.Push(transport.Frame("a"))
	o.Push(transport.Frame("b"))

	if n := o.Close(); n != 2 {
		t.Errorf("Close() = %d, want 2", n)
	}
	if n := o.Close(); n != 0 {
		t.Errorf("second Close() = %d, want 0", n)
	}
	if !o.Closed() {
		t.Error("Closed() = false after Close")
	}
	if err := o.Push(transport.Frame("c")); !errors.Is(err, model.ErrSessionClosed) {
		t.Errorf("Push after Close: expected ErrSessionClosed, got %v", err)
	}
	if _, ok := o.Next(); ok {
		t.Error("Next() after Close returned a frame")
	}
	if o.Len() != 0 {
		t.Errorf("Len() = %d after Close", o.Len())
	}
}
