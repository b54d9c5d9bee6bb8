// Package session holds the per-game conversation state of a talewind session.
package session

import (
	"slices"
	"sync"

	"github.com/MrWong99/talewind/pkg/types"
)

// DefaultLimit is the number of non-system messages retained when no limit
// is configured.
const DefaultLimit = 20

// charsPerToken is the heuristic ratio used for token estimation.
const charsPerToken = 4

// Transcript is a bounded, ordered conversation history.
//
// The optional system message is always first and is never evicted. At most
// Limit non-system messages are retained; every Append drops the oldest
// non-system messages first, preserving the relative order of the rest.
// History beyond the limit is truncated, not summarised.
//
// All methods are safe for concurrent use, although the story orchestrator is
// the only writer.
type Transcript struct {
	limit int

	mu       sync.Mutex
	system   *types.Message
	messages []types.Message
}

// Checkpoint is an opaque copy of a transcript's state, see
// [Transcript.Checkpoint].
type Checkpoint struct {
	system   *types.Message
	messages []types.Message
}

// NewTranscript creates a Transcript seeded with systemPrompt (omitted when
// empty) and retaining at most limit non-system messages. A limit of zero
// or less selects [DefaultLimit].
func NewTranscript(systemPrompt string, limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultLimit
	}
	t := &Transcript{limit: limit}
	if systemPrompt != "" {
		t.system = &types.Message{Role: types.RoleSystem, Content: systemPrompt}
	}
	return t
}

// Append adds msg and trims the history to the limit. A system message
// replaces the leading system prompt instead of joining the history.
func (t *Transcript) Append(msg types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.Role == types.RoleSystem {
		m := msg
		t.system = &m
		return
	}
	t.messages = append(t.messages, msg)
	if over := len(t.messages) - t.limit; over > 0 {
		t.messages = slices.Delete(t.messages, 0, over)
	}
}

// Snapshot returns an ordered copy of the transcript, system message first.
func (t *Transcript) Snapshot() []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.Message, 0, len(t.messages)+1)
	if t.system != nil {
		out = append(out, *t.system)
	}
	return append(out, t.messages...)
}

// Len returns the number of retained non-system messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Limit returns the configured capacity for non-system messages.
func (t *Transcript) Limit() int { return t.limit }

// System returns the system prompt, or "" if none is set.
func (t *Transcript) System() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.system == nil {
		return ""
	}
	return t.system.Content
}

// Reset clears the history but keeps the system message.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
}

// Checkpoint captures the current state so a failed turn can be undone with
// [Transcript.Restore], including messages its appends evicted.
func (t *Transcript) Checkpoint() Checkpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Checkpoint{system: t.system, messages: slices.Clone(t.messages)}
}

// Restore rolls the transcript back to cp.
func (t *Transcript) Restore(cp Checkpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.system = cp.system
	t.messages = slices.Clone(cp.messages)
}

// TokenEstimate returns a rough token count of the whole transcript using
// the 1-token-per-4-characters heuristic.
func (t *Transcript) TokenEstimate() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	if t.system != nil {
		total += estimateTokens(*t.system)
	}
	for _, m := range t.messages {
		total += estimateTokens(m)
	}
	return total
}

// estimateTokens returns a rough token count for a single message.
func estimateTokens(m types.Message) int {
	chars := len(m.Content) + len(m.Role) + len(m.Name)
	for _, tc := range m.ToolCalls {
		chars += len(tc.Name) + len(tc.Arguments) + len(tc.ID)
	}
	tokens := chars / charsPerToken
	if tokens == 0 && chars > 0 {
		tokens = 1
	}
	return tokens
}
