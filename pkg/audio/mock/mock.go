// Package mock provides an in-memory [audio.Device] for unit tests.
//
// The device records every Play call with its wall-clock interval and the
// bytes it consumed, so tests can assert on ordering and overlap. With
// RealTime set it takes as long to "play" a chunk as the audio lasts.
//
//	dev := &mock.Device{RealTime: true}
//	s := sink.New(dev)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/talewind/pkg/audio"
)

// Play records one invocation of [Device.Play].
type Play struct {
	Start  time.Time
	End    time.Time
	Bytes  int
	Chunks int
	Err    error
}

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// Fmt is returned by Format. Zero means 24 kHz mono.
	Fmt audio.Format

	// RealTime makes Play wait for the duration of each chunk.
	RealTime bool

	// PlayErrs holds per-call errors: the nth Play call returns PlayErrs[n]
	// without reading any audio, when that entry is non-nil.
	PlayErrs []error

	// CloseErr is returned by Close.
	CloseErr error

	plays     []Play
	active    int
	maxActive int
	closed    bool
}

// Format implements [audio.Device].
func (d *Device) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fmt.SampleRate == 0 {
		return audio.Format{SampleRate: 24_000, Channels: 1}
	}
	return d.Fmt
}

// Play implements [audio.Device].
func (d *Device) Play(ctx context.Context, pcm <-chan []byte) error {
	d.mu.Lock()
	n := len(d.plays)
	d.plays = append(d.plays, Play{Start: time.Now()})
	d.active++
	d.maxActive = max(d.maxActive, d.active)
	var err error
	if n < len(d.PlayErrs) {
		err = d.PlayErrs[n]
	}
	realTime := d.RealTime
	d.mu.Unlock()

	format := d.Format()
	var bytes, chunks int
	if err == nil {
	loop:
		for {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				break loop
			case chunk, ok := <-pcm:
				if !ok {
					break loop
				}
				bytes += len(chunk)
				chunks++
				if realTime {
					if err = sleep(ctx, format.Duration(len(chunk))); err != nil {
						break loop
					}
				}
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.active--
	p := &d.plays[n]
	p.End = time.Now()
	p.Bytes = bytes
	p.Chunks = chunks
	p.Err = err
	return err
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.CloseErr
}

// Plays returns a snapshot of the recorded Play calls in call order.
func (d *Device) Plays() []Play {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Play, len(d.plays))
	copy(out, d.plays)
	return out
}

// MaxConcurrent returns the highest number of overlapping Play calls seen.
func (d *Device) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

// IsClosed reports whether Close has been called.
func (d *Device) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ audio.Device = (*Device)(nil)
