package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/talewind/internal/config"
	"github.com/MrWong99/talewind/internal/observe"
	"github.com/MrWong99/talewind/internal/resilience"
)

// BuildProviders instantiates the providers named in cfg through reg. The
// primary and every fallback of a kind share one [resilience] group, each
// entry behind its own circuit breaker whose transitions feed m. The TTS
// slot is left empty when playback is disabled.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	fb := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
				m.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
	ps := &Providers{}

	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLMName = entryLabel(cfg.Providers.LLM)
	group := resilience.NewLLMFallback(primary, ps.LLMName, fb)
	for _, e := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", e.Name, err)
		}
		group.AddFallback(entryLabel(e), p)
	}
	ps.LLM = group
	slog.Info("provider created", "kind", "llm", "chain", group.Group().Names())

	if !cfg.Playback.Enabled {
		return ps, nil
	}
	primaryTTS, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTSName = entryLabel(cfg.Providers.TTS)
	ttsGroup := resilience.NewTTSFallback(primaryTTS, ps.TTSName, fb)
	for _, e := range cfg.Providers.TTSFallbacks {
		p, err := reg.CreateTTS(e)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", e.Name, err)
		}
		ttsGroup.AddFallback(entryLabel(e), p)
	}
	ps.TTS = ttsGroup
	slog.Info("provider created", "kind", "tts", "chain", ttsGroup.Group().Names())
	return ps, nil
}

// entryLabel names a provider entry in logs, metrics and breaker names.
func entryLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}
