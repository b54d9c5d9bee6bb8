// Package sink serialises speech playback onto a single [audio.Device].
//
// Every submitted [audio.Segment] enters a FIFO queue tagged with a monotonic
// sequence number. One dispatch goroutine owns the device and plays segments
// strictly in submission order, one at a time. Producers may synthesise
// concurrently: a segment whose audio is ready early still waits for every
// segment submitted before it.
//
// Every ticket is resolved exactly once, whether the segment played, the
// device failed, the producer reported a stream error, the ticket was
// cancelled or the sink was closed.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/talewind/pkg/audio"
)

var (
	// ErrClosed is returned for segments submitted to, or still queued in, a
	// closed sink.
	ErrClosed = errors.New("sink: closed")

	// ErrCancelled resolves a ticket whose segment was cancelled before it
	// finished playing.
	ErrCancelled = errors.New("sink: segment cancelled")

	// ErrEmptySegment is returned when a nil segment or one without an
	// audio channel is submitted.
	ErrEmptySegment = errors.New("sink: segment has no audio")
)

// Played describes one finished segment. It is passed to the hook set with
// [WithOnPlayed].
type Played struct {
	Seq     uint64
	Label   string
	Speaker audio.Speaker
	Elapsed time.Duration
	Err     error
}

// Option configures a [Sink] during construction.
type Option func(*Sink)

// WithGap sets the base silence inserted between consecutive segments.
// Jitter of ±1/6 of the gap is applied. Zero (the default) plays segments
// back-to-back.
func WithGap(d time.Duration) Option {
	return func(s *Sink) { s.gap = d }
}

// WithExitPolicy sets what [Sink.Close] does with queued audio.
func WithExitPolicy(p ExitPolicy) Option {
	return func(s *Sink) { s.onExit = p }
}

// WithOnPlayed registers fn to be called from the dispatch goroutine after
// every segment is resolved. fn must not block.
func WithOnPlayed(fn func(Played)) Option {
	return func(s *Sink) { s.onPlayed = fn }
}

// Sink is the single-consumer playback queue. All exported methods are safe
// for concurrent use.
type Sink struct {
	device   audio.Device
	gap      time.Duration
	onExit   ExitPolicy
	onPlayed func(Played)

	mu      sync.Mutex
	queue   []*Ticket
	seq     uint64
	playing *Ticket
	closed  bool

	notify    chan struct{} // signalled when a segment is submitted
	draining  chan struct{} // closed by Close: finish the queue, then stop
	hardStop  chan struct{} // closed by Close: abandon everything now
	stopped   chan struct{} // closed when the dispatch goroutine exits
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New creates a Sink that owns device and starts its dispatch goroutine.
// Call [Sink.Close] to stop it; Close also closes the device.
func New(device audio.Device, opts ...Option) *Sink {
	s := &Sink{
		device:   device,
		onExit:   ExitAwait,
		notify:   make(chan struct{}, 1),
		draining: make(chan struct{}),
		hardStop: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.dispatch()
	return s
}

// Submit enqueues seg for playback and returns immediately. The returned
// ticket resolves when the segment has finished or failed.
func (s *Sink) Submit(seg *audio.Segment) *Ticket {
	t := &Ticket{sink: s, seg: seg, done: make(chan struct{}), cancel: make(chan struct{})}
	if seg == nil || seg.Audio == nil {
		t.resolve(ErrEmptySegment)
		return t
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		go audio.Drain(seg.Audio)
		t.resolve(ErrClosed)
		return t
	}
	s.seq++
	t.Seq = s.seq
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return t
}

// Play submits seg and waits for it. If ctx ends first the segment is
// cancelled and ctx's error is returned.
func (s *Sink) Play(ctx context.Context, seg *audio.Segment) error {
	t := s.Submit(seg)
	err := t.Wait(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		t.Cancel()
	}
	return err
}

// Pending returns the number of queued segments, including the one playing.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	if s.playing != nil {
		n++
	}
	return n
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting segments and shuts down according to the exit
// policy. With [ExitAwait] it waits for the queue to play out; if ctx ends
// first the remaining audio is cancelled and ctx's error is returned. With
// [ExitCancel] queued and playing segments are abandoned immediately.
// The device is closed afterwards. Close is idempotent.
func (s *Sink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		var waitErr error
		if s.onExit == ExitAwait {
			close(s.draining)
			select {
			case <-s.stopped:
			case <-ctx.Done():
				waitErr = fmt.Errorf("sink: drain: %w", ctx.Err())
				slog.Warn("sink: drain timed out, cancelling remaining audio", "pending", s.Pending())
			}
		}
		s.stop()
		<-s.stopped

		s.closeErr = errors.Join(waitErr, s.device.Close())
	})
	return s.closeErr
}

// stop abandons all queued segments and interrupts the playing one.
func (s *Sink) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		queued := s.queue
		s.queue = nil
		s.mu.Unlock()

		close(s.hardStop)
		for _, t := range queued {
			go audio.Drain(t.seg.Audio)
			t.resolve(ErrClosed)
		}
	})
}

// remove drops t from the queue if it has not started playing yet.
func (s *Sink) remove(t *Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.queue, t)
	if i < 0 {
		return false
	}
	s.queue = slices.Delete(s.queue, i, i+1)
	return true
}

// dispatch is the only goroutine that touches the device. It runs until the
// queue has drained after Close, or until a hard stop.
func (s *Sink) dispatch() {
	defer close(s.stopped)

	var lastPlayed bool

	gapTimer := time.NewTimer(0)
	if !gapTimer.Stop() {
		<-gapTimer.C
	}
	defer gapTimer.Stop()

	for {
		t, ok := s.dequeue()
		if !ok {
			if isClosed(s.draining) {
				return
			}
			select {
			case <-s.hardStop:
				return
			case <-s.draining:
			case <-s.notify:
			}
			continue
		}

		if lastPlayed {
			if d := s.gapWithJitter(); d > 0 {
				gapTimer.Reset(d)
				select {
				case <-gapTimer.C:
				case <-t.cancel:
					if !gapTimer.Stop() {
						<-gapTimer.C
					}
				case <-s.hardStop:
					if !gapTimer.Stop() {
						<-gapTimer.C
					}
				}
			}
		}

		s.play(t)
		lastPlayed = true

		s.mu.Lock()
		s.playing = nil
		s.mu.Unlock()
	}
}

// dequeue pops the oldest segment and marks it as playing.
func (s *Sink) dequeue() (*Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	t := s.queue[0]
	s.queue = slices.Delete(s.queue, 0, 1)
	s.playing = t
	return t, true
}

// play streams t's audio to the device and resolves t. The segment's audio
// channel is always drained so the producer is never left blocked.
func (s *Sink) play(t *Ticket) {
	seg := t.seg
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-t.cancel:
		case <-s.hardStop:
		case <-ctx.Done():
		}
		cancel()
	}()

	target := s.device.Format()
	src := seg.Format
	if src.SampleRate <= 0 || src.Channels <= 0 {
		src = target
	}
	pcm := audio.ConvertStream(seg.Audio, src, target)

	start := time.Now()
	var err error
	select {
	case <-ctx.Done():
	default:
		err = s.device.Play(ctx, pcm)
	}
	go audio.Drain(pcm)

	switch {
	case isClosed(s.hardStop):
		err = ErrClosed
	case isClosed(t.cancel):
		err = ErrCancelled
	case err != nil:
		err = fmt.Errorf("sink: device: %w", err)
	case seg.Err() != nil:
		err = fmt.Errorf("sink: stream: %w", seg.Err())
	}
	if err != nil && !errors.Is(err, ErrCancelled) && !errors.Is(err, ErrClosed) {
		slog.Warn("sink: segment failed", "seq", t.Seq, "label", seg.Label, "err", err)
	}

	t.resolve(err)
	if s.onPlayed != nil {
		s.onPlayed(Played{Seq: t.Seq, Label: seg.Label, Speaker: seg.Speaker, Elapsed: time.Since(start), Err: err})
	}
}

// gapWithJitter returns the configured gap with ±1/6 jitter applied.
func (s *Sink) gapWithJitter() time.Duration {
	base := s.gap
	if base <= 0 {
		return 0
	}
	jitterRange := base / 6
	if jitterRange <= 0 {
		return base
	}
	jitter := time.Duration(rand.Int64N(int64(2*jitterRange+1))) - jitterRange
	return base + jitter
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
