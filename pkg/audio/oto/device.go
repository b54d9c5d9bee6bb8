//go:build !nocgo

package oto

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/talewind/pkg/audio"
)

var (
	openMu sync.Mutex
	opened bool
)

// Device is an [audio.Device] backed by an oto context.
type Device struct {
	ctx    *oto.Context
	format audio.Format
}

// New opens the default output device in format f. It waits for the driver
// to report ready.
func New(f audio.Format, opts ...Option) (*Device, error) {
	if err := validate(f); err != nil {
		return nil, err
	}
	o := options{bufferSize: defaultBufferSize, readyTimeout: defaultReadyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	openMu.Lock()
	defer openMu.Unlock()
	if opened {
		return nil, ErrAlreadyOpen
	}

	slog.Debug("oto: initialising audio context",
		"sample_rate", f.SampleRate,
		"channels", f.Channels,
		"buffer_size", o.bufferSize,
	)
	octx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   o.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("oto: create context: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(o.readyTimeout):
		// oto v3 contexts cannot be closed; it is left to the runtime.
		return nil, fmt.Errorf("oto: context not ready after %v", o.readyTimeout)
	}
	opened = true
	return &Device{ctx: octx, format: f}, nil
}

// Format implements [audio.Device].
func (d *Device) Format() audio.Format { return d.format }

// Play implements [audio.Device]. It returns once the player has consumed
// pcm to the end and the driver buffer has run dry.
func (d *Device) Play(ctx context.Context, pcm <-chan []byte) error {
	r := &chanReader{ctx: ctx, ch: pcm}
	player := d.ctx.NewPlayer(r)
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
			if !player.IsPlaying() {
				if err := player.Err(); err != nil {
					return fmt.Errorf("oto: player: %w", err)
				}
				return nil
			}
		}
	}
}

// Close implements [audio.Device]. The oto context itself lives until the
// process exits; Close suspends it.
func (d *Device) Close() error {
	if err := d.ctx.Suspend(); err != nil {
		return fmt.Errorf("oto: suspend: %w", err)
	}
	return nil
}

// chanReader adapts a PCM channel to the io.Reader oto pulls from.
type chanReader struct {
	ctx  context.Context
	ch   <-chan []byte
	rest []byte
}

func (r *chanReader) Read(p []byte) (int, error) {
	if len(r.rest) == 0 {
		select {
		case <-r.ctx.Done():
			return 0, io.EOF
		case chunk, ok := <-r.ch:
			if !ok {
				return 0, io.EOF
			}
			r.rest = chunk
		}
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

var _ audio.Device = (*Device)(nil)
