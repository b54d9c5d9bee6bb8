package story

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/talewind/internal/observe"
	"github.com/MrWong99/talewind/pkg/audio"
	audiomock "github.com/MrWong99/talewind/pkg/audio/mock"
	"github.com/MrWong99/talewind/pkg/audio/sink"
)

func newTestWaves(t *testing.T, limit int) (*waves, *sink.Sink) {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	s := sink.New(&audiomock.Device{})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return newWaves(limit, m), s
}

// held submits a segment that plays until the returned func is called.
func held(s *sink.Sink, label string) (*sink.Ticket, func()) {
	ch := make(chan []byte)
	t := s.Submit(&audio.Segment{Label: label, Audio: ch, Format: audio.Format{SampleRate: 24000, Channels: 1}})
	return t, func() { close(ch) }
}

func TestWaves_LimitJoinsOldest(t *testing.T) {
	t.Parallel()
	w, s := newTestWaves(t, 1)
	ctx := context.Background()

	first, release := held(s, "first")
	if err := w.start(ctx, "first", func(context.Context) []*sink.Ticket { return []*sink.Ticket{first} }); err != nil {
		t.Fatalf("start first: %v", err)
	}
	if got := w.len(); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}

	started := make(chan struct{})
	go func() {
		_ = w.start(ctx, "second", func(context.Context) []*sink.Ticket {
			close(started)
			return nil
		})
	}()

	select {
	case <-started:
		t.Fatal("second wave started while the first was still playing")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("second wave never started after the first finished")
	}
	if err := w.join(ctx); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := w.len(); got != 0 {
		t.Errorf("len after join = %d, want 0", got)
	}
}

func TestWaves_StartHonoursContext(t *testing.T) {
	t.Parallel()
	w, s := newTestWaves(t, 1)

	tk, release := held(s, "blocking")
	defer release()
	_ = w.start(context.Background(), "blocking", func(context.Context) []*sink.Ticket { return []*sink.Ticket{tk} })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.start(ctx, "late", func(context.Context) []*sink.Ticket {
		t.Error("submit called despite expired context")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("start = %v, want deadline exceeded", err)
	}
}

func TestWaves_CloseCancel(t *testing.T) {
	t.Parallel()
	w, s := newTestWaves(t, 2)

	tk, release := held(s, "endless")
	defer release()
	_ = w.start(context.Background(), "endless", func(context.Context) []*sink.Ticket { return []*sink.Ticket{tk} })

	done := make(chan error, 1)
	go func() { done <- w.close(context.Background(), sink.ExitCancel) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("close = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close with the cancel policy did not return")
	}
	if err := tk.Wait(context.Background()); !errors.Is(err, sink.ErrCancelled) {
		t.Errorf("ticket err = %v, want ErrCancelled", err)
	}
	if w.context().Err() == nil {
		t.Error("lifetime context still alive after close")
	}
}

func TestWaves_CloseAwaitDrains(t *testing.T) {
	t.Parallel()
	w, s := newTestWaves(t, 1)

	tk, release := held(s, "short")
	_ = w.start(context.Background(), "short", func(context.Context) []*sink.Ticket { return []*sink.Ticket{tk} })
	time.AfterFunc(20*time.Millisecond, release)

	if err := w.close(context.Background(), sink.ExitAwait); err != nil {
		t.Fatalf("close = %v", err)
	}
	if err := tk.Err(); err != nil {
		t.Errorf("ticket err = %v, want played", err)
	}
}

func TestWaves_EmptySubmitIsNotTracked(t *testing.T) {
	t.Parallel()
	w, _ := newTestWaves(t, 1)
	if err := w.start(context.Background(), "nothing", func(context.Context) []*sink.Ticket { return nil }); err != nil {
		t.Fatal(err)
	}
	if got := w.len(); got != 0 {
		t.Errorf("len = %d, want 0", got)
	}
}
