package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/talewind/internal/mcp"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "talewind.yaml"

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "elevenlabs"},
}

// keyless lists providers that run locally and need no API key.
var keyless = []string{"ollama", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path, overlays the process
// environment and returns a validated [Config]. A missing file is not an
// error: defaults plus environment are enough to start a session.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	default:
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// envOverlay holds the variables that override file values. Empty means unset.
type envOverlay struct {
	LogLevel     string `env:"TALEWIND_LOG_LEVEL"`
	DiagAddr     string `env:"TALEWIND_DIAG_ADDR"`
	LLMProvider  string `env:"TALEWIND_LLM_PROVIDER"`
	LLMModel     string `env:"TALEWIND_LLM_MODEL"`
	LLMAPIKey    string `env:"TALEWIND_LLM_API_KEY"`
	TTSProvider  string `env:"TALEWIND_TTS_PROVIDER"`
	TTSAPIKey    string `env:"TALEWIND_TTS_API_KEY"`
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	ElevenLabs   string `env:"ELEVENLABS_API_KEY"`
	InventoryDSN string `env:"TALEWIND_INVENTORY_DSN"`
	Language     string `env:"TALEWIND_LANGUAGE"`
	Audio        string `env:"TALEWIND_AUDIO"`
}

// ApplyEnv overlays environment variables onto cfg. environ replaces the
// process environment when non-nil. Explicit TALEWIND_* keys win over the
// vendor keys (OPENAI_API_KEY, ELEVENLABS_API_KEY), which only fill an
// empty api_key of a provider with the matching name.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	var ov envOverlay
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&ov, opts); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if ov.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(ov.LogLevel)
	}
	set(&cfg.Server.DiagAddr, ov.DiagAddr)
	set(&cfg.Providers.LLM.Name, ov.LLMProvider)
	set(&cfg.Providers.LLM.Model, ov.LLMModel)
	set(&cfg.Providers.LLM.APIKey, ov.LLMAPIKey)
	set(&cfg.Providers.TTS.Name, ov.TTSProvider)
	set(&cfg.Providers.TTS.APIKey, ov.TTSAPIKey)
	set(&cfg.Tools.InventoryDSN, ov.InventoryDSN)
	set(&cfg.Story.Language, ov.Language)

	if ov.Audio != "" {
		on, err := strconv.ParseBool(ov.Audio)
		if err != nil {
			return fmt.Errorf("config: TALEWIND_AUDIO %q: %w", ov.Audio, err)
		}
		cfg.Playback.Enabled = on
	}

	vendor := map[string]string{"openai": ov.OpenAIKey, "elevenlabs": ov.ElevenLabs}
	fill := func(e *ProviderEntry) {
		if e.APIKey == "" {
			e.APIKey = vendor[e.Name]
		}
	}
	fill(&cfg.Providers.LLM)
	fill(&cfg.Providers.TTS)
	for i := range cfg.Providers.LLMFallbacks {
		fill(&cfg.Providers.LLMFallbacks[i])
	}
	for i := range cfg.Providers.TTSFallbacks {
		fill(&cfg.Providers.TTSFallbacks[i])
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	errs = append(errs, validateEntry("providers.llm", "llm", cfg.Providers.LLM)...)
	for i, e := range cfg.Providers.LLMFallbacks {
		errs = append(errs, validateEntry(fmt.Sprintf("providers.llm_fallbacks[%d]", i), "llm", e)...)
	}
	if cfg.Playback.Enabled {
		if cfg.Providers.TTS.Name == "" {
			errs = append(errs, errors.New("providers.tts.name is required when playback is enabled"))
		}
		errs = append(errs, validateEntry("providers.tts", "tts", cfg.Providers.TTS)...)
		for i, e := range cfg.Providers.TTSFallbacks {
			errs = append(errs, validateEntry(fmt.Sprintf("providers.tts_fallbacks[%d]", i), "tts", e)...)
		}
	}

	// Story
	if cfg.Story.MemoryLimit < 1 {
		errs = append(errs, fmt.Errorf("story.memory_limit %d must be at least 1", cfg.Story.MemoryLimit))
	}
	if cfg.Story.Temperature < 0 || cfg.Story.Temperature > 2 {
		errs = append(errs, fmt.Errorf("story.temperature %.2f is out of range [0, 2]", cfg.Story.Temperature))
	}
	if cfg.Story.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("story.max_tokens %d must not be negative", cfg.Story.MaxTokens))
	}
	if !cfg.Story.Segmentation.IsValid() {
		errs = append(errs, fmt.Errorf("story.segmentation %q is invalid; valid values: sentence, immediate", cfg.Story.Segmentation))
	}
	if cfg.Story.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("story.max_tool_rounds %d must not be negative", cfg.Story.MaxToolRounds))
	}

	// Voices
	for name, v := range map[string]VoiceConfig{"narrator": cfg.Voices.Narrator, "player": cfg.Voices.Player} {
		if cfg.Playback.Enabled && v.VoiceID == "" {
			errs = append(errs, fmt.Errorf("voices.%s.voice_id is required when playback is enabled", name))
		}
		if v.SpeedFactor != 0 && (v.SpeedFactor < 0.25 || v.SpeedFactor > 4.0) {
			errs = append(errs, fmt.Errorf("voices.%s.speed_factor %.2f is out of range [0.25, 4.0]", name, v.SpeedFactor))
		}
	}

	// Playback
	if !cfg.Playback.Policy.IsValid() {
		errs = append(errs, fmt.Errorf("playback.policy %q is invalid; valid values: per_turn, per_chunk", cfg.Playback.Policy))
	}
	if !cfg.Playback.OnExit.IsValid() {
		errs = append(errs, fmt.Errorf("playback.on_exit %q is invalid; valid values: await, cancel", cfg.Playback.OnExit))
	}
	if cfg.Playback.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("playback.drain_timeout %s must not be negative", cfg.Playback.DrainTimeout))
	}
	if cfg.Playback.Enabled {
		if cfg.Playback.SampleRate <= 0 {
			errs = append(errs, fmt.Errorf("playback.sample_rate %d must be positive", cfg.Playback.SampleRate))
		}
		if cfg.Playback.Channels != 1 && cfg.Playback.Channels != 2 {
			errs = append(errs, fmt.Errorf("playback.channels %d is invalid; valid values: 1, 2", cfg.Playback.Channels))
		}
	}

	// Retry
	if cfg.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts %d must be at least 1", cfg.Retry.Attempts))
	}
	if cfg.Retry.Backoff < 0 {
		errs = append(errs, fmt.Errorf("retry.backoff %s must not be negative", cfg.Retry.Backoff))
	}

	// Players
	names := make(map[string]int, len(cfg.Players))
	for i, pl := range cfg.Players {
		name := strings.TrimSpace(pl.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("players[%d].name is required", i))
			continue
		}
		key := strings.ToLower(name)
		if prev, ok := names[key]; ok {
			errs = append(errs, fmt.Errorf("players[%d].name %q is a duplicate of players[%d]", i, pl.Name, prev))
		}
		names[key] = i
	}

	// MCP servers
	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateEntry checks one provider entry. Unknown names only warn so that
// third-party providers registered at build time still work.
func validateEntry(prefix, kind string, e ProviderEntry) []error {
	if e.Name == "" {
		return nil
	}
	validateProviderName(kind, e.Name)
	if e.APIKey == "" && !slices.Contains(keyless, e.Name) {
		return []error{fmt.Errorf("%s.api_key is required for provider %q", prefix, e.Name)}
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
