package story_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/talewind/internal/story"
	"github.com/MrWong99/talewind/pkg/audio"
	"github.com/MrWong99/talewind/pkg/audio/sink"
	"github.com/MrWong99/talewind/pkg/provider/llm"
	llmmock "github.com/MrWong99/talewind/pkg/provider/llm/mock"
	"github.com/MrWong99/talewind/pkg/types"
)

func TestRoster_AssignsPoolVoicesCyclically(t *testing.T) {
	t.Parallel()
	r := story.NewRoster([]story.Player{
		{Name: "Aria"},
		{Name: "Borin", VoiceID: "onyx"},
		{Name: "Cael"},
		{Name: "Dara"},
	}, []string{"echo", "fable"})

	var got []string
	for _, p := range r.Players() {
		got = append(got, p.VoiceID)
	}
	want := []string{"echo", "onyx", "fable", "echo"}
	if !slices.Equal(got, want) {
		t.Errorf("voices = %q, want %q", got, want)
	}
}

func TestRoster_Advance(t *testing.T) {
	t.Parallel()
	r := story.NewRoster([]story.Player{{Name: "Aria"}, {Name: "Borin"}}, nil)
	var seen []string
	for range 5 {
		seen = append(seen, r.Current().Name)
		r.Advance()
	}
	if want := []string{"Aria", "Borin", "Aria", "Borin", "Aria"}; !slices.Equal(seen, want) {
		t.Errorf("turn order = %q, want %q", seen, want)
	}
	if got := r.Turn(); got != 6 {
		t.Errorf("Turn() = %d, want 6", got)
	}
}

func TestRoster_ZeroValue(t *testing.T) {
	t.Parallel()
	var r story.Roster
	if p := r.Current(); p != (story.Player{}) {
		t.Errorf("Current() = %+v, want unnamed player", p)
	}
	r.Advance()
	if got := r.Turn(); got != 2 {
		t.Errorf("Turn() = %d, want 2", got)
	}
	if names := r.Names(); len(names) != 0 {
		t.Errorf("Names() = %q, want none", names)
	}
}

func TestOpeningInstruction(t *testing.T) {
	t.Parallel()
	got := story.OpeningInstruction([]string{"Aria", "Borin"})
	if !strings.Contains(got, "(Aria, Borin)") {
		t.Errorf("OpeningInstruction = %q, want both names", got)
	}
	if got := story.OpeningInstruction(nil); !strings.HasPrefix(got, "The players are") {
		t.Errorf("OpeningInstruction(nil) = %q", got)
	}
}

func TestHandlePlayerTurn_PrefixesNameAndEchoesVoice(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamChunks: textStream("The torch flickers.")}
	cfg := story.Config{LLM: p, SystemPrompt: "sys", EchoPlayer: true}
	tp, _ := speaking(t, &cfg)
	o := newOrchestrator(t, cfg)

	res := o.HandlePlayerTurn(context.Background(), story.Player{Name: "Aria", VoiceID: "fable"}, " I light a torch. ")
	if !res.OK() {
		t.Fatalf("HandlePlayerTurn err = %v", res.Err)
	}
	if err := o.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	msgs := o.Transcript().Snapshot()
	if len(msgs) != 3 || msgs[1].Content != "Aria: I light a torch." {
		t.Fatalf("transcript = %+v, want the named user message", msgs)
	}
	calls := tp.Calls()
	if len(calls) != 2 {
		t.Fatalf("TTS calls = %d, want 2", len(calls))
	}
	if calls[0].Voice.ID != "fable" || calls[0].Text != "I light a torch." {
		t.Errorf("echo = %+v, want the bare action in Aria's voice", calls[0])
	}
}

func TestHandlePlayerTurn_BlankActionKeepsTranscript(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamChunks: textStream("Hm.")}
	o := newOrchestrator(t, story.Config{LLM: p})

	res := o.HandlePlayerTurn(context.Background(), story.Player{Name: "Aria"}, "  ")
	if res.Kind() != story.KindInput {
		t.Errorf("kind = %v, want %v", res.Kind(), story.KindInput)
	}
	if got := o.Transcript().Len(); got != 0 {
		t.Errorf("transcript len = %d, want 0", got)
	}
}

func TestOpen_KeepsOnlyTheNarration(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamChunks: textStream("You stand at the city gate.")}
	o := newOrchestrator(t, story.Config{LLM: p, SystemPrompt: "sys"})

	res := o.Open(context.Background(), story.OpeningInstruction([]string{"Aria"}))
	if !res.OK() {
		t.Fatalf("Open err = %v", res.Err)
	}
	req := p.LastStreamRequest()
	last := req.Messages[len(req.Messages)-1]
	if last.Role != types.RoleUser || !strings.Contains(last.Content, "Aria") {
		t.Errorf("last request message = %+v, want the opening instruction", last)
	}
	msgs := o.Transcript().Snapshot()
	if len(msgs) != 2 || msgs[1].Role != types.RoleAssistant || msgs[1].Content != "You stand at the city gate." {
		t.Errorf("transcript = %+v, want system prompt and narration only", msgs)
	}
}

// joinCheckSink records, for every submission, how many earlier tickets had
// not finished playing yet.
type joinCheckSink struct {
	inner *sink.Sink

	mu        sync.Mutex
	submitted []*sink.Ticket
	labels    []string
	unplayed  []int
}

func (s *joinCheckSink) Submit(seg *audio.Segment) *sink.Ticket {
	s.mu.Lock()
	n := 0
	for _, t := range s.submitted {
		select {
		case <-t.Done():
		default:
			n++
		}
	}
	s.unplayed = append(s.unplayed, n)
	s.labels = append(s.labels, seg.Label)
	s.mu.Unlock()

	t := s.inner.Submit(seg)
	s.mu.Lock()
	s.submitted = append(s.submitted, t)
	s.mu.Unlock()
	return t
}

func TestHandleTurn_PerTurnEchoWaitsForPreviousWave(t *testing.T) {
	t.Parallel()
	cfg := story.Config{
		LLM: &llmmock.Provider{Streams: [][]llm.Chunk{
			textStream("First scene."),
			textStream("Second scene."),
		}},
		EchoPlayer: true,
	}
	_, dev := speaking(t, &cfg)
	dev.RealTime = true
	js := &joinCheckSink{inner: cfg.Sink.(*sink.Sink)}
	cfg.Sink = js
	o := newOrchestrator(t, cfg)

	for _, in := range []string{"I wake.", "I rise."} {
		if res := o.HandleTurn(context.Background(), in); !res.OK() {
			t.Fatalf("HandleTurn(%q) err = %v", in, res.Err)
		}
	}
	if err := o.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	if len(js.labels) != 4 {
		t.Fatalf("submissions = %q, want echo and narration for two turns", js.labels)
	}
	for i, suffix := range []string{"/player", "/narrator", "/player", "/narrator"} {
		if !strings.HasSuffix(js.labels[i], suffix) {
			t.Errorf("submission %d = %q, want suffix %q", i, js.labels[i], suffix)
		}
	}
	// The second turn's echo starts only after the first wave played out.
	if got := js.unplayed[2]; got != 0 {
		t.Errorf("second echo submitted with %d segments of the first turn still playing", got)
	}
}
