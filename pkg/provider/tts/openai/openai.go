// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Every text fragment becomes one speech request. Fragments are synthesised
// in order and the raw PCM response bodies are streamed onto the audio
// channel back to back.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/talewind/pkg/provider/tts"
	"github.com/MrWong99/talewind/pkg/types"
)

const (
	// DefaultModel is the steerable speech model; it honours Instructions.
	DefaultModel = "gpt-4o-mini-tts"

	// The PCM response format is fixed by the API.
	sampleRate = 24_000
	channels   = 1

	// readChunk is 100 ms of 24 kHz mono s16le.
	readChunk = sampleRate * channels * 2 / 10
)

// voices is the built-in voice catalogue. The API has no listing endpoint.
var voices = []string{
	"alloy", "ash", "ballad", "coral", "echo", "fable",
	"nova", "onyx", "sage", "shimmer", "verse",
}

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the speech model (default [DefaultModel]).
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for speech requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New creates a new OpenAI speech Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := &config{model: DefaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// SynthesizeStream implements tts.Provider.
//
// The first fragment is requested before SynthesizeStream returns, so a
// rejected or unreachable speech endpoint surfaces as the start error.
// Failures on later fragments close the channel early and are reported
// through [tts.ReportStreamError].
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, tts.ErrEmptyVoice
	}

	first, ok, err := nextFragment(ctx, text)
	if err != nil {
		return nil, err
	}
	audioCh := make(chan []byte, 64)
	if !ok {
		close(audioCh)
		return audioCh, nil
	}
	body, err := p.request(ctx, first, voice)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(audioCh)
		fail := func(err error) {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("openai tts: synthesis failed", "voice", voice.ID, "err", err)
			tts.ReportStreamError(ctx, err)
		}
		err := copyPCM(ctx, body, audioCh)
		body.Close()
		if err != nil {
			fail(err)
			return
		}
		for {
			fragment, ok, err := nextFragment(ctx, text)
			if err != nil || !ok {
				return
			}
			if err := p.speak(ctx, fragment, voice, audioCh); err != nil {
				fail(err)
				return
			}
		}
	}()
	return audioCh, nil
}

// nextFragment returns the next non-empty fragment from text. ok is false
// once text is closed.
func nextFragment(ctx context.Context, text <-chan string) (string, bool, error) {
	for {
		select {
		case fragment, ok := <-text:
			if !ok {
				return "", false, nil
			}
			if fragment != "" {
				return fragment, true, nil
			}
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

// speak synthesises one fragment and copies the PCM body onto out.
func (p *Provider) speak(ctx context.Context, input string, voice types.VoiceProfile, out chan<- []byte) error {
	body, err := p.request(ctx, input, voice)
	if err != nil {
		return err
	}
	defer body.Close()
	return copyPCM(ctx, body, out)
}

// request issues one speech request and returns the PCM response body.
func (p *Provider) request(ctx context.Context, input string, voice types.VoiceProfile) (io.ReadCloser, error) {
	params := oai.AudioSpeechNewParams{
		Input:          input,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice.ID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.Instructions != "" {
		params.Instructions = oai.String(voice.Instructions)
	}
	if voice.SpeedFactor > 0 {
		params.Speed = oai.Float(voice.SpeedFactor)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	return resp.Body, nil
}

// copyPCM forwards r to out in readChunk sized slices, keeping every slice
// aligned to whole samples.
func copyPCM(ctx context.Context, r io.Reader, out chan<- []byte) error {
	var carry []byte
	for {
		buf := make([]byte, readChunk)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			carry = nil
			if len(data)%2 == 1 {
				carry = []byte{data[len(data)-1]}
				data = data[:len(data)-1]
			}
			if len(data) > 0 {
				select {
				case out <- data:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return fmt.Errorf("openai tts: read body: %w", err)
		}
	}
}

// ListVoices returns the fixed OpenAI voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	out := make([]types.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, types.VoiceProfile{
			ID:       v,
			Name:     v,
			Provider: "openai",
			Metadata: map[string]string{"model": p.model},
		})
	}
	return out, nil
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() tts.Format {
	return tts.Format{SampleRate: sampleRate, Channels: channels}
}

var _ tts.Provider = (*Provider)(nil)
