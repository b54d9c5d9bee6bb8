// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify
// which voice and text reached the TTS backend.
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{make([]byte, 480)},
//	    Format:           tts.Format{SampleRate: 24000, Channels: 1},
//	}
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/talewind/pkg/provider/tts"
	"github.com/MrWong99/talewind/pkg/types"
)

// SynthesizeCall records a single invocation of SynthesizeStream.
type SynthesizeCall struct {
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice types.VoiceProfile
	// Text is every fragment read from the text channel, concatenated. It is
	// complete once the returned audio channel has been closed.
	Text string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is the sequence of audio byte slices emitted on every
	// channel returned by SynthesizeStream, after the text input is drained.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned from SynthesizeStream instead
	// of starting a channel.
	SynthesizeErr error

	// FailVoices makes SynthesizeStream fail for the listed voice IDs only.
	FailVoices map[string]error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// Format is returned by OutputFormat. Zero means 24 kHz mono.
	Format tts.Format

	// --- Call records ---

	calls []*SynthesizeCall

	// ListVoicesCalls counts ListVoices invocations.
	ListVoicesCalls int
}

// SynthesizeStream records the call, drains text and then emits
// SynthesizeChunks before closing the audio channel.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	call := &SynthesizeCall{Voice: voice}
	p.calls = append(p.calls, call)
	err := p.SynthesizeErr
	if e, ok := p.FailVoices[voice.ID]; ok {
		err = e
	}
	chunks := slices.Clone(p.SynthesizeChunks)
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		var sb strings.Builder
	read:
		for {
			select {
			case s, ok := <-text:
				if !ok {
					break read
				}
				sb.WriteString(s)
			case <-ctx.Done():
				return
			}
		}
		p.mu.Lock()
		call.Text = sb.String()
		p.mu.Unlock()

		for _, audio := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- audio:
			}
		}
	}()
	return ch, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// OutputFormat returns Format, defaulting to 24 kHz mono.
func (p *Provider) OutputFormat() tts.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Format.SampleRate == 0 {
		return tts.Format{SampleRate: 24_000, Channels: 1}
	}
	return p.Format
}

// Calls returns a snapshot of the recorded SynthesizeStream invocations.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	for i, c := range p.calls {
		out[i] = *c
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
	p.ListVoicesCalls = 0
}

var _ tts.Provider = (*Provider)(nil)
