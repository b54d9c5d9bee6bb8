// Package narration turns a streamed LLM reply into speakable chunks.
//
// A [Segmenter] is fed text fragments as they arrive and emits [Chunk] values
// either sentence by sentence or fragment by fragment, depending on its
// [Mode]. The mode is fixed at construction.
//
// Sentence detection splits at every literal '.' character. Abbreviations,
// decimals and quoted speech are not recognised.
package narration

import (
	"context"
	"fmt"
	"strings"
)

// Mode selects how fragments are grouped into chunks.
type Mode int

const (
	// ModeSentence buffers fragments and emits one chunk per sentence.
	ModeSentence Mode = iota

	// ModeImmediate emits every non-empty fragment verbatim as its own chunk.
	ModeImmediate
)

// String returns the configuration name of m.
func (m Mode) String() string {
	switch m {
	case ModeSentence:
		return "sentence"
	case ModeImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sentence":
		return ModeSentence, nil
	case "immediate":
		return ModeImmediate, nil
	default:
		return 0, fmt.Errorf("narration: unknown segmentation mode %q (want sentence or immediate)", s)
	}
}

// State is the lifecycle position of a Segmenter.
type State int

const (
	StateAccumulating State = iota
	StateEmitting
	StateDrained
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateEmitting:
		return "emitting"
	case StateDrained:
		return "drained"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Chunk is one speakable unit of narration.
type Chunk struct {
	Content string

	// VoiceStyle is the tonality the chunk should be voiced with.
	VoiceStyle string
}

// Segmenter splits a fragment stream into chunks. It serves a single turn:
// once drained, further input is ignored.
//
// A Segmenter is not safe for concurrent use.
type Segmenter struct {
	mode  Mode
	style string
	state State
	buf   strings.Builder
}

// NewSegmenter returns a Segmenter in mode whose chunks carry style.
func NewSegmenter(mode Mode, style string) *Segmenter {
	return &Segmenter{mode: mode, style: style}
}

// Mode returns the segmentation mode chosen at construction.
func (s *Segmenter) Mode() Mode { return s.mode }

// State returns the current lifecycle state.
func (s *Segmenter) State() State { return s.state }

// Feed consumes one fragment and returns the chunks it completes, in order.
// Feeding a drained Segmenter is a no-op that returns nil.
func (s *Segmenter) Feed(fragment string) []Chunk {
	if s.state == StateDrained {
		return nil
	}
	if s.mode == ModeImmediate {
		if fragment == "" {
			return nil
		}
		return []Chunk{s.chunk(fragment)}
	}

	s.buf.WriteString(fragment)

	var out []Chunk
	pending := s.buf.String()
	for {
		idx := strings.IndexByte(pending, '.')
		if idx < 0 {
			break
		}
		s.state = StateEmitting
		if left := strings.TrimSpace(pending[:idx]); left != "" {
			out = append(out, s.chunk(left+"."))
		}
		pending = pending[idx+1:]
	}
	if s.state == StateEmitting {
		s.buf.Reset()
		s.buf.WriteString(pending)
		s.state = StateAccumulating
	}
	return out
}

// Drain ends the stream. The buffered remainder is emitted as a final chunk
// unless it is blank.
func (s *Segmenter) Drain() []Chunk {
	if s.state == StateDrained {
		return nil
	}
	s.state = StateDrained
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if rest == "" {
		return nil
	}
	return []Chunk{s.chunk(rest)}
}

func (s *Segmenter) chunk(content string) Chunk {
	return Chunk{Content: content, VoiceStyle: s.style}
}

// Segment pipes fragments from in through seg and returns the chunks in
// order. The output channel is closed after in is closed and the remainder
// has been drained, or when ctx is cancelled.
func Segment(ctx context.Context, seg *Segmenter, in <-chan string) <-chan Chunk {
	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		emit := func(chunks []Chunk) bool {
			for _, c := range chunks {
				select {
				case out <- c:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}
		for {
			select {
			case fragment, ok := <-in:
				if !ok {
					emit(seg.Drain())
					return
				}
				if !emit(seg.Feed(fragment)) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
