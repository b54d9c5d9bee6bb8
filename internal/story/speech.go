package story

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/talewind/internal/observe"
	"github.com/MrWong99/talewind/internal/resilience"
	"github.com/MrWong99/talewind/pkg/audio"
	"github.com/MrWong99/talewind/pkg/audio/sink"
	"github.com/MrWong99/talewind/pkg/provider/tts"
	"github.com/MrWong99/talewind/pkg/types"
)

// Sink accepts synthesised segments for serialized playback. *sink.Sink
// satisfies it.
type Sink interface {
	Submit(seg *audio.Segment) *sink.Ticket
}

var _ Sink = (*sink.Sink)(nil)

// formatStreamer is implemented by providers whose output format depends on
// which backend served the request, such as [resilience.TTSFallback].
type formatStreamer interface {
	SynthesizeStreamFormat(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, tts.Format, error)
}

// speech turns [audio.Request] values into sink segments.
type speech struct {
	tts     tts.Provider
	sink    Sink
	voices  map[audio.Speaker]types.VoiceProfile
	retry   resilience.RetryConfig
	metrics *observe.Metrics
}

// submit synthesises req and hands the stream to the sink. ctx bounds the
// synthesis, so it must outlive playback. Blank requests return (nil, nil).
func (s *speech) submit(ctx context.Context, label string, req audio.Request) (*sink.Ticket, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, nil
	}
	voice, ok := s.voices[req.Voice]
	if !ok {
		return nil, fmt.Errorf("story: no voice configured for %s", req.Voice)
	}
	if req.VoiceID != "" {
		voice.ID = req.VoiceID
	}
	if req.Tonality != "" {
		voice.Instructions = req.Tonality
	}

	seg := &audio.Segment{Label: label, Speaker: req.Voice}
	ctx = tts.WithStreamErrorFunc(ctx, seg.SetStreamErr)
	ctx, span := observe.StartSpan(ctx, "story.synthesize")
	start := time.Now()

	type started struct {
		pcm    <-chan []byte
		format tts.Format
	}
	cfg := s.retry
	cfg.OnRetry = func(attempt int, err error) {
		s.metrics.RecordRetry(ctx, "tts")
		observe.Logger(ctx).Warn("tts request failed, retrying", "attempt", attempt, "label", label, "err", err)
	}
	st, err := resilience.RetryWithResult(ctx, cfg, func(ctx context.Context) (started, error) {
		if fs, ok := s.tts.(formatStreamer); ok {
			pcm, f, err := fs.SynthesizeStreamFormat(ctx, tts.Text(text), voice)
			return started{pcm, f}, err
		}
		pcm, err := s.tts.SynthesizeStream(ctx, tts.Text(text), voice)
		return started{pcm, s.tts.OutputFormat()}, err
	})
	observe.EndSpan(span, err)
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, voice.Provider, "tts", "error")
		s.metrics.RecordProviderError(ctx, voice.Provider, "tts")
		return nil, fmt.Errorf("story: synthesize %s: %w", label, err)
	}
	s.metrics.RecordProviderRequest(ctx, voice.Provider, "tts", "ok")
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())

	seg.Audio = st.pcm
	seg.Format = audio.Format{SampleRate: st.format.SampleRate, Channels: st.format.Channels}
	return s.sink.Submit(seg), nil
}
