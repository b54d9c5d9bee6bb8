package resilience

import (
	"context"

	"github.com/MrWong99/talewind/pkg/provider/tts"
	"github.com/MrWong99/talewind/pkg/types"
)

// TTSFallback implements [tts.Provider] on top of a [FallbackGroup].
//
// Backends may emit different PCM formats. Callers that convert audio should
// use [TTSFallback.SynthesizeStreamFormat] to learn the format of the backend
// that actually served the request.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Group exposes the underlying group for health reporting.
func (f *TTSFallback) Group() *FallbackGroup[tts.Provider] { return f.group }

// SynthesizeStream starts synthesis on the first healthy backend.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	audio, _, err := f.SynthesizeStreamFormat(ctx, text, voice)
	return audio, err
}

// SynthesizeStreamFormat is SynthesizeStream that also reports the output
// format of the serving backend.
//
// Failover only covers starting the stream. A backend that consumed text
// before failing leaves less of it for the next one, so text should be a
// buffered, single-fragment channel such as [tts.Text].
func (f *TTSFallback) SynthesizeStreamFormat(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, tts.Format, error) {
	type started struct {
		audio  <-chan []byte
		format tts.Format
	}
	s, err := ExecuteWithResult(f.group, func(p tts.Provider) (started, error) {
		audio, err := p.SynthesizeStream(ctx, text, voice)
		return started{audio: audio, format: p.OutputFormat()}, err
	})
	return s.audio, s.format, err
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// OutputFormat returns the primary's format.
func (f *TTSFallback) OutputFormat() tts.Format {
	return f.group.Primary().OutputFormat()
}
