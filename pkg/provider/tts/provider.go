// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (OpenAI speech, ElevenLabs)
// and presents a uniform streaming interface. SynthesizeStream accepts a
// channel of text fragments and returns a channel of raw PCM audio as it
// becomes available, so narration can start playing before a turn finishes.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/talewind/pkg/types"
)

// ErrEmptyVoice is returned when a synthesis request carries no voice ID.
var ErrEmptyVoice = errors.New("tts: voice ID must not be empty")

// Format describes the raw PCM produced by a provider. Samples are always
// signed 16-bit little-endian.
type Format struct {
	SampleRate int
	Channels   int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from text and returns a channel
	// that emits raw PCM audio byte slices as they are synthesised.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. Callers must drain it.
	//
	// voice.ID selects the provider voice; voice.Instructions carries the
	// tonality for providers that can steer delivery.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// during synthesis close the audio channel early.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the voice catalogue of this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// OutputFormat reports the PCM format of the audio emitted by
	// SynthesizeStream.
	OutputFormat() Format
}

// Text wraps a single string in a closed channel, the common case of
// synthesising one complete narration chunk.
func Text(s string) <-chan string {
	ch := make(chan string, 1)
	ch <- s
	close(ch)
	return ch
}

type streamErrKey struct{}

// WithStreamErrorFunc returns a context whose synthesis streams report
// failures that close the audio channel early to fn.
func WithStreamErrorFunc(ctx context.Context, fn func(error)) context.Context {
	return context.WithValue(ctx, streamErrKey{}, fn)
}

// ReportStreamError passes err to the function installed with
// [WithStreamErrorFunc], if any. Providers call it before closing the audio
// channel on a mid-stream failure.
func ReportStreamError(ctx context.Context, err error) {
	if fn, ok := ctx.Value(streamErrKey{}).(func(error)); ok && fn != nil {
		fn(err)
	}
}
