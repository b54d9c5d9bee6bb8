package audio

import "fmt"

// Speaker selects which configured voice renders a [Request].
type Speaker int

const (
	// SpeakerNarrator is the game master's voice.
	SpeakerNarrator Speaker = iota

	// SpeakerPlayer is used to echo the player's own line back.
	SpeakerPlayer
)

// String returns the lower-case speaker name.
func (s Speaker) String() string {
	switch s {
	case SpeakerNarrator:
		return "narrator"
	case SpeakerPlayer:
		return "player"
	default:
		return fmt.Sprintf("speaker(%d)", int(s))
	}
}

// Request asks for one piece of text to be spoken.
type Request struct {
	// Text is the content to synthesise. Requests with blank text are skipped.
	Text string

	// Voice selects the speaker profile.
	Voice Speaker

	// VoiceID, when set, replaces the voice of the speaker profile while
	// keeping its provider, speed and tonality. Each named player speaks
	// with their own voice this way.
	VoiceID string

	// Tonality is a free-text style instruction passed to the synthesiser
	// (e.g., "Deep, resonant and theatrical."). May be empty.
	Tonality string
}
