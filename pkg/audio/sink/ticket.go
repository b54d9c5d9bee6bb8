package sink

import (
	"context"
	"sync"

	"github.com/MrWong99/talewind/pkg/audio"
)

// Ticket tracks one submitted segment.
type Ticket struct {
	// Seq is the segment's position in submission order, starting at 1.
	// It is zero for segments rejected by Submit.
	Seq uint64

	sink *Sink
	seg  *audio.Segment

	done     chan struct{}
	err      error
	doneOnce sync.Once

	cancel     chan struct{}
	cancelOnce sync.Once
}

// Wait blocks until the segment has finished or failed, or ctx ends. It
// returns nil after a clean playback. Returning because of ctx does not
// cancel the segment.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed once the ticket is resolved.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err returns the outcome once Done is closed, and nil before.
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Cancel withdraws the segment. A queued segment is removed without playing;
// a playing one is cut short. The ticket resolves with [ErrCancelled] unless
// it had already resolved.
func (t *Ticket) Cancel() {
	t.cancelOnce.Do(func() { close(t.cancel) })
	if t.sink != nil && t.sink.remove(t) {
		go audio.Drain(t.seg.Audio)
		t.resolve(ErrCancelled)
	}
}

func (t *Ticket) resolve(err error) {
	t.doneOnce.Do(func() {
		t.err = err
		close(t.done)
	})
}
