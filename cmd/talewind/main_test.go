package main

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/talewind/internal/config"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for _, name := range config.ValidProviderNames["llm"] {
		if !slices.Contains(reg.Names("llm"), name) {
			t.Errorf("llm provider %q not registered", name)
		}
	}
	for _, name := range config.ValidProviderNames["tts"] {
		if !slices.Contains(reg.Names("tts"), name) {
			t.Errorf("tts provider %q not registered", name)
		}
	}
}

func TestOptString(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"output_format": "pcm_24000", "n": 3}
	tests := []struct {
		opts map[string]any
		key  string
		want string
	}{
		{opts, "output_format", "pcm_24000"},
		{opts, "n", ""},
		{opts, "missing", ""},
		{nil, "output_format", ""},
	}
	for _, tt := range tests {
		if got := optString(tt.opts, tt.key); got != tt.want {
			t.Errorf("optString(%v, %q) = %q, want %q", tt.opts, tt.key, got, tt.want)
		}
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai", Model: "o4-mini"}

	var buf bytes.Buffer
	printStartupSummary(&buf, cfg)
	out := buf.String()
	for _, want := range []string{"openai / o4-mini", "ash", "(disabled)"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}
}

func TestToolsServe_RejectsUnknownSet(t *testing.T) {
	t.Parallel()
	if err := toolsServeCmd.Args(toolsServeCmd, []string{"weather"}); err == nil {
		t.Error("Args(weather) = nil, want error")
	}
	if err := toolsServeCmd.Args(toolsServeCmd, []string{"dice"}); err != nil {
		t.Errorf("Args(dice) = %v, want nil", err)
	}
}
