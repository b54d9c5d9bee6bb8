package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/talewind/internal/narration"
	"github.com/MrWong99/talewind/internal/story"
	"github.com/MrWong99/talewind/pkg/audio"
)

// FallbackLine is printed and spoken when a turn fails after every retry.
const FallbackLine = "The Game Master seems lost in thought and cannot respond right now. Perhaps try a different action or wait a moment?"

// GameMaster runs turns and voices lines outside of turns.
// *story.Orchestrator satisfies it.
type GameMaster interface {
	HandlePlayerTurn(ctx context.Context, p story.Player, action string) story.Result
	Open(ctx context.Context, instruction string) story.Result
	Speak(ctx context.Context, req audio.Request) error
}

var _ GameMaster = (*story.Orchestrator)(nil)

type shellStyles struct {
	banner   lipgloss.Style
	hint     lipgloss.Style
	prompt   lipgloss.Style
	narrator lipgloss.Style
	fallback lipgloss.Style
	epilogue lipgloss.Style
}

func newShellStyles(r *lipgloss.Renderer) shellStyles {
	return shellStyles{
		banner:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#89F0CB")),
		hint:     r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}),
		prompt:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("226")),
		narrator: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#1C8760")),
		fallback: r.NewStyle().Italic(true).Foreground(lipgloss.Color("#FF0000")),
		epilogue: r.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888")),
	}
}

// Shell is the line-oriented REPL: one line of input per turn, narration
// printed as it streams.
type Shell struct {
	// GM runs the turns. It must be set before Run.
	GM GameMaster

	// Roster decides whose turn it is. Nil means one unnamed player.
	Roster *story.Roster

	// Welcome is narrated before the first turn. Named players are then
	// greeted in their own voices.
	Welcome string

	// Opening asks the game master to set the first scene before the
	// first turn.
	Opening bool

	// Epilogue is narrated when the player quits or input ends.
	Epilogue string

	// Tonality styles the spoken fallback line and epilogue.
	Tonality string

	in     io.Reader
	out    io.Writer
	sep    string
	styles shellStyles

	// midLine is true while narration is being printed. Only the Run
	// goroutine touches it.
	midLine bool
}

// NewShell returns a shell reading from in and writing to out. mode decides
// whether printed chunks need a separator.
func NewShell(in io.Reader, out io.Writer, mode narration.Mode) *Shell {
	sep := ""
	if mode == narration.ModeSentence {
		sep = " "
	}
	return &Shell{
		in:     in,
		out:    out,
		sep:    sep,
		styles: newShellStyles(lipgloss.NewRenderer(out)),
	}
}

// Chunk prints one narration chunk. It is used as the orchestrator's
// OnChunk callback and runs on the Run goroutine.
func (s *Shell) Chunk(c narration.Chunk) {
	if !s.midLine {
		fmt.Fprint(s.out, s.styles.narrator.Render("GM:")+" ")
		s.midLine = true
	}
	fmt.Fprint(s.out, c.Content+s.sep)
}

// Run reads lines until "exit" or "quit" (any case), end of input or ctx
// cancellation. Turns rotate through the roster. Blank lines re-prompt the
// same player. A failed turn prints and speaks [FallbackLine], and the same
// player tries again.
func (s *Shell) Run(ctx context.Context) error {
	if s.GM == nil {
		return errors.New("app: shell has no game master")
	}
	roster := s.Roster
	if roster == nil {
		roster = &story.Roster{}
	}
	lines := s.scan(ctx)
	fmt.Fprintln(s.out, s.styles.banner.Render("talewind")+" "+s.styles.hint.Render("(type exit or quit to leave)"))

	s.welcome(ctx, roster)
	if s.Opening {
		res := s.GM.Open(ctx, story.OpeningInstruction(roster.Names()))
		if err := s.report(ctx, res); err != nil {
			return err
		}
	}

	for {
		fmt.Fprint(s.out, s.prompt(roster)+" ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return s.finish(ctx)
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
			continue
		case isQuit(line):
			return s.finish(ctx)
		}

		res := s.GM.HandlePlayerTurn(ctx, roster.Current(), line)
		if err := s.report(ctx, res); err != nil {
			return err
		}
		if res.OK() {
			roster.Advance()
		}
	}
}

// report ends the printed narration and handles a failed turn. It returns
// an error only when the loop must stop.
func (s *Shell) report(ctx context.Context, res story.Result) error {
	if s.midLine {
		fmt.Fprintln(s.out)
		s.midLine = false
	}
	switch res.Kind() {
	case story.KindNone, story.KindInput:
	case story.KindCancelled:
		if err := ctx.Err(); err != nil {
			return err
		}
	default:
		if errors.Is(res.Err, story.ErrClosed) {
			return res.Err
		}
		slog.Warn("turn failed", "turn_id", res.TurnID, "kind", res.Kind(), "err", res.Err)
		s.say(ctx, s.styles.fallback, FallbackLine)
	}
	return nil
}

// prompt names the current player once the table has names.
func (s *Shell) prompt(r *story.Roster) string {
	p := r.Current()
	if p.Name == "" {
		return s.styles.prompt.Render(">")
	}
	return s.styles.hint.Render(fmt.Sprintf("Turn %d |", r.Turn())) + " " + s.styles.prompt.Render(p.Name+">")
}

// welcome narrates the welcome line and greets every named player in their
// own voice.
func (s *Shell) welcome(ctx context.Context, r *story.Roster) {
	if s.Welcome != "" {
		s.say(ctx, s.styles.banner, s.Welcome)
	}
	for _, p := range r.Players() {
		if p.Name == "" {
			continue
		}
		line := fmt.Sprintf("Welcome, %s!", p.Name)
		fmt.Fprintln(s.out, s.styles.hint.Render(line))
		err := s.GM.Speak(ctx, audio.Request{Text: line, Voice: audio.SpeakerPlayer, VoiceID: p.VoiceID})
		if err != nil {
			slog.Warn("could not greet player", "player", p.Name, "err", err)
		}
	}
}

// finish narrates the epilogue, if any.
func (s *Shell) finish(ctx context.Context) error {
	if s.Epilogue != "" {
		s.say(ctx, s.styles.epilogue, s.Epilogue)
	}
	return nil
}

// say prints text and voices it with the narrator. Speech failures are
// logged only.
func (s *Shell) say(ctx context.Context, style lipgloss.Style, text string) {
	fmt.Fprintln(s.out, style.Render(text))
	err := s.GM.Speak(ctx, audio.Request{Text: text, Voice: audio.SpeakerNarrator, Tonality: s.Tonality})
	if err != nil {
		slog.Warn("could not voice line", "err", err)
	}
}

// scan feeds input lines into a channel that is closed at end of input.
func (s *Shell) scan(ctx context.Context) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			slog.Warn("reading input failed", "err", err)
		}
	}()
	return ch
}

func isQuit(line string) bool {
	return strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit")
}
