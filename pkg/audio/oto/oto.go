// Package oto plays PCM audio on the local output device through
// github.com/ebitengine/oto/v3.
//
// oto supports a single context per process, so at most one [Device] can be
// opened. Builds with the nocgo tag get a stub whose New always fails.
package oto

import (
	"errors"
	"time"

	"github.com/MrWong99/talewind/pkg/audio"
)

// ErrUnavailable is returned by New when the binary was built without audio
// output support.
var ErrUnavailable = errors.New("oto: audio output not available in this build")

// ErrAlreadyOpen is returned by New when a Device already exists in this
// process.
var ErrAlreadyOpen = errors.New("oto: an audio device is already open")

const (
	defaultBufferSize   = 100 * time.Millisecond
	defaultReadyTimeout = 5 * time.Second
	pollInterval        = 20 * time.Millisecond
)

// Option configures a Device.
type Option func(*options)

type options struct {
	bufferSize   time.Duration
	readyTimeout time.Duration
}

// WithBufferSize sets the driver buffer length. Larger values trade latency
// for fewer underruns.
func WithBufferSize(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.bufferSize = d
		}
	}
}

// WithReadyTimeout bounds how long New waits for the driver to come up.
func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readyTimeout = d
		}
	}
}

func validate(f audio.Format) error {
	if f.SampleRate <= 0 || f.Channels <= 0 || f.Channels > 2 {
		return errors.New("oto: format needs a positive sample rate and 1 or 2 channels")
	}
	return nil
}
