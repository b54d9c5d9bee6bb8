package main

import (
	"io"
	"log/slog"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/talewind/internal/config"
	"github.com/MrWong99/talewind/pkg/provider/llm"
	"github.com/MrWong99/talewind/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/talewind/pkg/provider/llm/openai"
	"github.com/MrWong99/talewind/pkg/provider/tts"
	"github.com/MrWong99/talewind/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/talewind/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires every provider implementation that ships
// with talewind into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ollama is addressed by BaseURL and takes no key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := optString(entry.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	slog.Debug("registered providers", "llm", reg.Names("llm"), "tts", reg.Names("tts"))
}

// optString extracts a string option. Missing keys and non-string values
// yield "".
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// printStartupSummary writes a boxed overview of the session setup to w.
func printStartupSummary(w io.Writer, cfg *config.Config) {
	r := lipgloss.NewRenderer(w)
	label := r.NewStyle().Width(14).Foreground(lipgloss.Color("245"))
	row := func(k, v string) string { return label.Render(k) + v }

	speech := "off"
	if cfg.Playback.Enabled {
		speech = providerValue(cfg.Providers.TTS) + ", " + string(cfg.Playback.Policy)
	}
	diag := cfg.Server.DiagAddr
	if diag == "" {
		diag = "(disabled)"
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		r.NewStyle().Bold(true).Render("talewind "+Version),
		"",
		row("LLM", providerValue(cfg.Providers.LLM)),
		row("Speech", speech),
		row("Narrator", cfg.Voices.Narrator.VoiceID),
		row("Language", cfg.Story.Language),
		row("Segmentation", string(cfg.Story.Segmentation)),
		row("MCP servers", strconv.Itoa(len(cfg.MCP.Servers))),
		row("Diagnostics", diag),
	)
	box := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1)
	_, _ = io.WriteString(w, box.Render(body)+"\n")
}

func providerValue(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model == "":
		return e.Name
	default:
		return e.Name + " / " + e.Model
	}
}
