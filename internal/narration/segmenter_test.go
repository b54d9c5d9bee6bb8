package narration

import (
	"context"
	"slices"
	"testing"
	"time"
)

func contents(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

// feedAll runs fragments through a fresh segmenter and returns every chunk,
// including the drained remainder.
func feedAll(mode Mode, fragments []string) []Chunk {
	s := NewSegmenter(mode, "warm")
	var out []Chunk
	for _, f := range fragments {
		out = append(out, s.Feed(f)...)
	}
	return append(out, s.Drain()...)
}

// splits returns every way to cut s into consecutive fragments at up to two
// positions, plus the per-character split.
func splits(s string) [][]string {
	var out [][]string
	out = append(out, []string{s})
	for i := 1; i < len(s); i++ {
		out = append(out, []string{s[:i], s[i:]})
		for j := i + 1; j < len(s); j++ {
			out = append(out, []string{s[:i], s[i:j], s[j:]})
		}
	}
	var chars []string
	for _, r := range s {
		chars = append(chars, string(r))
	}
	return append(out, chars)
}

func TestSegmenter_SentenceModeAnyFragmentation(t *testing.T) {
	t.Parallel()

	want := []string{"A.", "B.", "C"}
	for _, frags := range splits("A. B. C") {
		got := contents(feedAll(ModeSentence, frags))
		if !slices.Equal(got, want) {
			t.Fatalf("fragments %q: got %q, want %q", frags, got, want)
		}
	}
}

func TestSegmenter_SentenceMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fragments []string
		want      []string
	}{
		{name: "terminated text", fragments: []string{"The door opens. ", "A cold wind blows."}, want: []string{"The door opens.", "A cold wind blows."}},
		{name: "empty sentences dropped", fragments: []string{"...Hello.. ."}, want: []string{"Hello."}},
		{name: "no terminator", fragments: []string{"You ", "wait"}, want: []string{"You wait"}},
		{name: "decimal is split", fragments: []string{"It costs 2.5 gold"}, want: []string{"It costs 2.", "5 gold"}},
		{name: "whitespace only", fragments: []string{"  ", "\n\t "}, want: nil},
		{name: "nothing fed", fragments: nil, want: nil},
		{name: "trailing whitespace after sentence", fragments: []string{"Done.", "   "}, want: []string{"Done."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := contents(feedAll(ModeSentence, tt.fragments))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSegmenter_ImmediateMode(t *testing.T) {
	t.Parallel()

	got := contents(feedAll(ModeImmediate, []string{"A. ", "", "B", " C."}))
	want := []string{"A. ", "B", " C."}
	if !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSegmenter_States(t *testing.T) {
	t.Parallel()

	s := NewSegmenter(ModeSentence, "")
	if s.State() != StateAccumulating {
		t.Fatalf("initial State() = %v, want accumulating", s.State())
	}
	s.Feed("One. Two")
	if s.State() != StateAccumulating {
		t.Fatalf("after Feed State() = %v, want accumulating", s.State())
	}
	if got := contents(s.Drain()); !slices.Equal(got, []string{"Two"}) {
		t.Fatalf("Drain() = %q, want [Two]", got)
	}
	if s.State() != StateDrained {
		t.Fatalf("after Drain State() = %v, want drained", s.State())
	}
	if got := s.Feed("Three."); got != nil {
		t.Errorf("Feed after drain = %q, want nil", contents(got))
	}
	if got := s.Drain(); got != nil {
		t.Errorf("second Drain = %q, want nil", contents(got))
	}
}

func TestSegmenter_CarriesStyle(t *testing.T) {
	t.Parallel()

	for _, c := range feedAll(ModeSentence, []string{"Run. Now"}) {
		if c.VoiceStyle != "warm" {
			t.Errorf("VoiceStyle = %q, want warm", c.VoiceStyle)
		}
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeSentence},
		{in: "sentence", want: ModeSentence},
		{in: "Immediate", want: ModeImmediate},
		{in: "word", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if ModeImmediate.String() != "immediate" {
		t.Errorf("ModeImmediate.String() = %q", ModeImmediate.String())
	}
}

func TestSegment_Pipeline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	in := make(chan string)
	out := Segment(ctx, NewSegmenter(ModeSentence, "calm"), in)

	go func() {
		defer close(in)
		for _, f := range []string{"A", ". B", ". ", "C"} {
			in <- f
		}
	}()

	var got []string
	for c := range out {
		got = append(got, c.Content)
	}
	if want := []string{"A.", "B.", "C"}; !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSegment_Cancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan string)
	out := Segment(ctx, NewSegmenter(ModeSentence, ""), in)
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			// A chunk cannot exist; nothing was fed.
			t.Fatal("unexpected chunk after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("output channel not closed after cancel")
	}
}
