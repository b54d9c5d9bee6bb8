package story

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultSystemPrompt is the game master persona used when none is configured.
const DefaultSystemPrompt = `You are a cynical game master for a pen and paper role-playing game.
Dark humour and dry wisdom colour every word you say, yet you take the job seriously.

Lead a group of adventurers through a campaign in the spirit of classic
Dungeons and Dragons, with deliberately simple rules and no attribute sheets.
Be proactive: invent a vivid and surprising world, decide what happens and
resolve dead ends yourself instead of asking the players what comes next.

Flow of play:
1. Ask how many players there are.
2. Propose one campaign and ask whether they want to play it.
3. Create the characters interactively (name, background, people, strength, weakness).
4. Lead the party into the adventure. Roll dice for success and failure.
5. When the adventure ends, tell a short epilogue.

Keep every answer short. Make sure every player gets a turn and call on anyone
who has been quiet for a while. Never let a player step out of their role.
Your answers are read aloud, so write plain prose without lists or markup.`

// Tonality presets for the narrator voice. A configured tonality that is not
// a preset name is used verbatim.
const (
	TonalityDefault = "Strong voice, sarcastic, with a touch of black mockery. A strongly rolling r like a pirate."
	TonalityStrong  = "Aggressive and shouting like a metal singer."
	TonalityCalm    = "Warm and patient, with natural pauses and a steady, reassuring flow."
)

var tonalityPresets = map[string]string{
	"default": TonalityDefault,
	"strong":  TonalityStrong,
	"calm":    TonalityCalm,
}

// ResolveTonality expands a preset name into its instruction. Unknown names
// are returned unchanged so free text works as well.
func ResolveTonality(s string) string {
	if preset, ok := tonalityPresets[strings.ToLower(strings.TrimSpace(s))]; ok {
		return preset
	}
	return s
}

// BuildSystemPrompt combines the persona with the narration language. An
// empty base selects [DefaultSystemPrompt]. The language tag is validated
// and rendered as its English name when known ("de-DE" becomes
// "German (de-DE)").
func BuildSystemPrompt(base, lang string) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = DefaultSystemPrompt
	}
	if lang == "" {
		return base, nil
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", fmt.Errorf("story: language %q: %w", lang, err)
	}
	return fmt.Sprintf("%s\n\nSpeak everything in the following language: %s.", base, languageName(tag)), nil
}

func languageName(tag language.Tag) string {
	base, _ := tag.Base()
	if name := display.English.Languages().Name(base); name != "" {
		return fmt.Sprintf("%s (%s)", name, tag)
	}
	return tag.String()
}
