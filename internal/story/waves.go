package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/talewind/internal/observe"
	"github.com/MrWong99/talewind/pkg/audio/sink"
)

// wave is the audio one turn handed to the sink.
type wave struct {
	label   string
	tickets []*sink.Ticket
	done    chan struct{}
}

// waves tracks playback still in flight after its turn returned. At most
// limit waves are outstanding; starting another joins the oldest first.
type waves struct {
	limit   int
	metrics *observe.Metrics

	// ctx outlives every turn and is cancelled by the cancel exit policy.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight []*wave
	wg       sync.WaitGroup
}

func newWaves(limit int, m *observe.Metrics) *waves {
	if limit < 1 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &waves{limit: limit, metrics: m, ctx: ctx, cancel: cancel}
}

// context returns the lifetime context for synthesis and playback.
func (w *waves) context() context.Context { return w.ctx }

// start joins the oldest waves until there is room, then calls submit and
// tracks the tickets it returns. submit runs on the caller's goroutine so
// submissions keep the caller's order.
func (w *waves) start(ctx context.Context, label string, submit func(ctx context.Context) []*sink.Ticket) error {
	for {
		w.mu.Lock()
		if len(w.inflight) < w.limit {
			w.mu.Unlock()
			break
		}
		oldest := w.inflight[0]
		w.mu.Unlock()
		select {
		case <-oldest.done:
		case <-ctx.Done():
			return fmt.Errorf("story: join wave %s: %w", oldest.label, ctx.Err())
		}
	}

	tickets := submit(w.ctx)
	if len(tickets) == 0 {
		return nil
	}
	wv := &wave{label: label, tickets: tickets, done: make(chan struct{})}
	w.mu.Lock()
	w.inflight = append(w.inflight, wv)
	w.mu.Unlock()
	w.metrics.ActiveWaves.Add(w.ctx, 1)

	w.wg.Go(func() {
		defer func() {
			w.mu.Lock()
			for i, x := range w.inflight {
				if x == wv {
					w.inflight = append(w.inflight[:i], w.inflight[i+1:]...)
					break
				}
			}
			w.mu.Unlock()
			w.metrics.ActiveWaves.Add(context.Background(), -1)
			close(wv.done)
		}()
		for _, t := range wv.tickets {
			err := t.Wait(w.ctx)
			if w.ctx.Err() != nil {
				t.Cancel()
				continue
			}
			if err != nil && !errors.Is(err, sink.ErrCancelled) && !errors.Is(err, sink.ErrClosed) {
				slog.Warn("playback failed", "wave", wv.label, "seq", t.Seq, "err", err)
			}
		}
	})
	return nil
}

// len returns the number of waves in flight.
func (w *waves) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

// join waits for every wave in flight or until ctx ends.
func (w *waves) join(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("story: join waves: %w", ctx.Err())
	}
}

// close applies the exit policy. With [sink.ExitAwait] it joins until ctx
// ends and then cancels what is left; with [sink.ExitCancel] it cancels
// immediately. Either way it returns once every wave goroutine has exited.
func (w *waves) close(ctx context.Context, policy sink.ExitPolicy) error {
	var err error
	if policy == sink.ExitAwait {
		err = w.join(ctx)
	}
	w.cancel()
	w.wg.Wait()
	return err
}
