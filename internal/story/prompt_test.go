package story_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/talewind/internal/story"
)

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		base     string
		lang     string
		contains []string
		wantErr  bool
	}{
		{name: "german", base: "Be brief.", lang: "de-DE", contains: []string{"Be brief.", "German (de-DE)"}},
		{name: "english", base: "Be brief.", lang: "en", contains: []string{"English (en)"}},
		{name: "default persona", lang: "fr-FR", contains: []string{"cynical game master", "French (fr-FR)"}},
		{name: "no language", base: "Only this.", contains: []string{"Only this."}},
		{name: "invalid tag", base: "x", lang: "not a language!", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := story.BuildSystemPrompt(tt.base, tt.lang)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BuildSystemPrompt err = %v, wantErr %v", err, tt.wantErr)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("prompt %q does not contain %q", got, want)
				}
			}
		})
	}
}

func TestBuildSystemPrompt_NoLanguageKeepsBase(t *testing.T) {
	t.Parallel()
	got, err := story.BuildSystemPrompt("Only this.", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Only this." {
		t.Errorf("got %q, want base unchanged", got)
	}
}

func TestResolveTonality(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"default", story.TonalityDefault},
		{" Strong ", story.TonalityStrong},
		{"calm", story.TonalityCalm},
		{"Whispering like a ghost.", "Whispering like a ghost."},
		{"", ""},
	}
	for _, tt := range tests {
		if got := story.ResolveTonality(tt.in); got != tt.want {
			t.Errorf("ResolveTonality(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		k    story.Kind
		want string
	}{
		{story.KindNone, "none"},
		{story.KindTransient, "transient"},
		{story.KindTool, "tool"},
		{story.KindInput, "input"},
		{story.KindFatal, "fatal"},
		{story.KindCancelled, "cancelled"},
		{story.Kind(42), "Kind(42)"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.k), got, tt.want)
		}
	}
}
