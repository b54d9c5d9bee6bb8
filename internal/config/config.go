// Package config provides the configuration schema, loader, and provider registry
// for the talewind game master.
package config

import (
	"time"

	"github.com/MrWong99/talewind/internal/mcp"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Segmentation selects how streamed narration is cut into speakable chunks.
type Segmentation string

const (
	// SegmentSentence cuts at every full stop.
	SegmentSentence Segmentation = "sentence"

	// SegmentImmediate speaks every streamed fragment as it arrives.
	SegmentImmediate Segmentation = "immediate"
)

// IsValid reports whether s is a recognised segmentation mode.
func (s Segmentation) IsValid() bool {
	return s == SegmentSentence || s == SegmentImmediate
}

// PlaybackPolicy selects when narration audio is handed to the sink.
type PlaybackPolicy string

const (
	// PlaybackPerTurn speaks the whole turn once the stream has completed.
	PlaybackPerTurn PlaybackPolicy = "per_turn"

	// PlaybackPerChunk speaks each chunk as soon as it is segmented.
	PlaybackPerChunk PlaybackPolicy = "per_chunk"
)

// IsValid reports whether p is a recognised playback policy.
func (p PlaybackPolicy) IsValid() bool {
	return p == PlaybackPerTurn || p == PlaybackPerChunk
}

// OnExit selects what happens to pending audio when the session ends.
type OnExit string

const (
	OnExitAwait  OnExit = "await"
	OnExitCancel OnExit = "cancel"
)

// IsValid reports whether o is a recognised exit policy.
func (o OnExit) IsValid() bool {
	return o == OnExitAwait || o == OnExitCancel
}

// Config is the root configuration structure for talewind.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Story     StoryConfig     `yaml:"story"`
	Voices    VoicesConfig    `yaml:"voices"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Retry     RetryConfig     `yaml:"retry"`
	MCP       MCPConfig       `yaml:"mcp"`
	Tools     ToolsConfig     `yaml:"tools"`

	// Players is the table roster; turns rotate through it in order. Empty
	// means a single unnamed player.
	Players []PlayerConfig `yaml:"players"`
}

// PlayerConfig names one player.
type PlayerConfig struct {
	Name string `yaml:"name"`

	// VoiceID echoes this player's lines. Empty takes the next voice from
	// voices.player_pool, or voices.player when the pool is empty.
	VoiceID string `yaml:"voice_id"`
}

// ServerConfig holds logging and diagnostics settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// DiagAddr is the TCP address of the diagnostics HTTP server serving
	// /healthz, /readyz and /metrics (e.g., ":9090"). Empty disables it.
	DiagAddr string `yaml:"diag_addr"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry]. Fallback entries are tried in order when the primary fails.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "o4-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// StoryConfig shapes the game master's narration.
type StoryConfig struct {
	// SystemPrompt is the game master persona. Empty selects the built-in prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// Language is the narration language appended to the system prompt
	// (BCP 47, e.g. "de-DE").
	Language string `yaml:"language"`

	// MemoryLimit bounds the number of non-system messages kept in the transcript.
	MemoryLimit int `yaml:"memory_limit"`

	// Temperature is passed to the model. Zero keeps the provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps each completion. Zero keeps the provider default.
	MaxTokens int `yaml:"max_tokens"`

	Segmentation Segmentation `yaml:"segmentation"`

	// MaxToolRounds bounds how many times one turn may reopen the stream to
	// feed tool results back. Zero selects the default.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// Welcome is narrated when the session starts. Empty skips it.
	Welcome string `yaml:"welcome"`

	// OpeningScene has the game master describe the starting scene before
	// the first turn.
	OpeningScene bool `yaml:"opening_scene"`

	// Epilogue is narrated when the session ends. Empty skips it.
	Epilogue string `yaml:"epilogue"`
}

// VoicesConfig holds the two speaker voices.
type VoicesConfig struct {
	Narrator VoiceConfig `yaml:"narrator"`
	Player   VoiceConfig `yaml:"player"`

	// PlayerPool is handed out in order to players without their own
	// voice_id, cycling when there are more players than voices.
	PlayerPool []string `yaml:"player_pool"`
}

// VoiceConfig specifies one TTS voice.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Tonality is either a preset name ("default", "strong") or a free-text
	// delivery instruction.
	Tonality string `yaml:"tonality"`

	// SpeedFactor adjusts speaking rate in the range [0.25, 4.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// PlaybackConfig controls the audio sink and its shutdown behaviour.
type PlaybackConfig struct {
	// Enabled turns speech output on. When false, narration is text only.
	Enabled bool `yaml:"enabled"`

	Policy PlaybackPolicy `yaml:"policy"`
	OnExit OnExit         `yaml:"on_exit"`

	// DrainTimeout bounds how long the await policy waits for queued audio.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// SampleRate and Channels describe the output device format.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// EchoPlayer voices the player's own line before the narration.
	EchoPlayer bool `yaml:"echo_player"`

	// Gap is the silence inserted between consecutive segments.
	Gap time.Duration `yaml:"gap"`
}

// RetryConfig bounds retries of transient LLM and TTS failures.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// MCPConfig holds the list of external Model Context Protocol servers.
type MCPConfig struct {
	Servers []mcp.ServerConfig `yaml:"servers"`
}

// ToolsConfig toggles the in-process tools.
type ToolsConfig struct {
	Dice      bool `yaml:"dice"`
	Inventory bool `yaml:"inventory"`

	// InventoryDSN selects a PostgreSQL inventory store. Empty keeps
	// inventories in memory for the session.
	InventoryDSN string `yaml:"inventory_dsn"`
}

// Default returns a Config with every field at its default. Decoding YAML
// onto it overrides only the fields present in the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Providers: ProvidersConfig{
			LLM: ProviderEntry{Name: "openai", Model: "o4-mini"},
			TTS: ProviderEntry{Name: "openai", Model: "gpt-4o-mini-tts"},
		},
		Story: StoryConfig{
			Language:      "de-DE",
			MemoryLimit:   20,
			Segmentation:  SegmentSentence,
			MaxToolRounds: 4,
		},
		Voices: VoicesConfig{
			Narrator: VoiceConfig{VoiceID: "ash", Tonality: "default"},
			Player:   VoiceConfig{VoiceID: "echo"},
		},
		Playback: PlaybackConfig{
			Enabled:      true,
			Policy:       PlaybackPerTurn,
			OnExit:       OnExitAwait,
			DrainTimeout: 30 * time.Second,
			SampleRate:   24000,
			Channels:     1,
			Gap:          250 * time.Millisecond,
		},
		Retry: RetryConfig{Attempts: 3, Backoff: 5 * time.Second},
		Tools: ToolsConfig{Dice: true, Inventory: true},
	}
}
