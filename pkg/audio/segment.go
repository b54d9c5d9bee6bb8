package audio

import "sync/atomic"

// Segment is the unit of speech submitted to the audio sink.
// Audio is streamed: chunks arrive incrementally on the Audio channel, so the
// sink can begin playback before synthesis is complete.
type Segment struct {
	// Label identifies the segment in logs and metrics (e.g., "turn-3/narrator").
	Label string

	// Speaker is the voice the segment was synthesised with.
	Speaker Speaker

	// Audio is a read-only channel of raw PCM16LE chunks. The producer closes
	// it when the segment ends or when a mid-stream error occurs. After the
	// channel closes, call [Segment.Err] to check whether synthesis completed
	// cleanly.
	Audio <-chan []byte

	// Format describes the PCM on the Audio channel. Both fields must be > 0.
	Format Format

	// streamErr stores the error that caused the Audio channel to close early.
	// Access via Err and SetStreamErr.
	streamErr atomic.Pointer[error]
}

// Err returns the error that caused the Audio channel to close prematurely,
// or nil if the stream completed successfully.
func (s *Segment) Err() error {
	if p := s.streamErr.Load(); p != nil {
		return *p
	}
	return nil
}

// SetStreamErr records a mid-stream error. The producer should call this
// before closing the Audio channel so that the sink can distinguish a clean
// completion from a failure.
func (s *Segment) SetStreamErr(err error) {
	s.streamErr.Store(&err)
}
