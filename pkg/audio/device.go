package audio

import (
	"context"
	"time"
)

// Device is a single audio output. Only the sink calls Play, and never
// concurrently.
type Device interface {
	// Format is the PCM format Play expects.
	Format() Format

	// Play writes every chunk read from pcm to the output and blocks until the
	// audio has been heard or ctx is cancelled. pcm is already in Format.
	Play(ctx context.Context, pcm <-chan []byte) error

	// Close releases the output.
	Close() error
}

// Duration returns how long n bytes of PCM16 audio in format f play for.
func (f Format) Duration(n int) time.Duration {
	bps := f.SampleRate * f.Channels * 2
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// String returns a human-readable form such as "24000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}
