// Package story runs the game master's turns.
//
// An [Orchestrator] owns the conversation transcript. Each call to
// [Orchestrator.HandleTurn] appends the player's utterance, streams the
// model's narration (resolving any tool calls on the way), cuts the text into
// speakable chunks and hands them to the audio sink. A turn either commits
// both the utterance and the narration to the transcript or neither.
//
// Playback outlives the turn that produced it. The orchestrator tracks the
// audio of each turn as a wave and bounds how many waves may be in flight;
// [Orchestrator.Close] then awaits or cancels what is left.
package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/talewind/internal/mcp"
	"github.com/MrWong99/talewind/internal/narration"
	"github.com/MrWong99/talewind/internal/observe"
	"github.com/MrWong99/talewind/internal/resilience"
	"github.com/MrWong99/talewind/internal/session"
	"github.com/MrWong99/talewind/pkg/audio"
	"github.com/MrWong99/talewind/pkg/audio/sink"
	"github.com/MrWong99/talewind/pkg/provider/llm"
	"github.com/MrWong99/talewind/pkg/provider/tts"
	"github.com/MrWong99/talewind/pkg/types"
)

var (
	// ErrClosed is returned for turns started after [Orchestrator.Close].
	ErrClosed = errors.New("story: orchestrator closed")

	// ErrBlankInput rejects an utterance that is empty after trimming.
	ErrBlankInput = errors.New("story: blank input")

	// ErrToolRounds means the model was still calling tools after the last
	// allowed round.
	ErrToolRounds = errors.New("story: tool rounds exhausted")
)

// PlaybackPolicy selects when narration is handed to the sink.
type PlaybackPolicy int

const (
	// PlaybackPerTurn submits one request for the whole turn after the
	// stream has completed. The previous turn's wave is joined first.
	PlaybackPerTurn PlaybackPolicy = iota

	// PlaybackPerChunk submits every chunk as soon as it is segmented.
	PlaybackPerChunk
)

// String returns the config spelling of the policy.
func (p PlaybackPolicy) String() string {
	switch p {
	case PlaybackPerTurn:
		return "per_turn"
	case PlaybackPerChunk:
		return "per_chunk"
	default:
		return fmt.Sprintf("PlaybackPolicy(%d)", int(p))
	}
}

// ParsePlaybackPolicy parses "per_turn" or "per_chunk". An empty string
// selects [PlaybackPerTurn].
func ParsePlaybackPolicy(s string) (PlaybackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per_turn":
		return PlaybackPerTurn, nil
	case "per_chunk":
		return PlaybackPerChunk, nil
	default:
		return PlaybackPerTurn, fmt.Errorf("story: unknown playback policy %q (want per_turn or per_chunk)", s)
	}
}

// Defaults applied by [New] to zero-valued [Config] fields.
const (
	DefaultMemoryLimit   = 20
	DefaultMaxToolRounds = 4
)

// Config holds the dependencies and settings of an [Orchestrator].
//
// LLM is required. TTS and Sink are optional; when either is nil the game
// master narrates in text only. Tools is optional; nil means no tools.
type Config struct {
	LLM   llm.Provider
	TTS   tts.Provider
	Sink  Sink
	Tools mcp.Host

	// LLMName and TTSName label provider metrics. Default "llm" and "tts".
	LLMName string
	TTSName string

	// SystemPrompt is the full system message, language included.
	SystemPrompt string

	// MemoryLimit bounds the retained non-system messages. Default 20.
	MemoryLimit int

	Temperature float64
	MaxTokens   int

	// MaxToolRounds bounds how often a turn reopens the stream with tool
	// results. The last round is offered no tools so the model has to
	// answer in prose. Default 4.
	MaxToolRounds int

	Segmentation narration.Mode
	Playback     PlaybackPolicy
	OnExit       sink.ExitPolicy

	// Narrator and Player are the two voices. Tonality is the narrator's
	// style instruction; it also labels every chunk.
	Narrator types.VoiceProfile
	Player   types.VoiceProfile
	Tonality string

	// EchoPlayer voices the player's line before the narration.
	EchoPlayer bool

	// Retry governs transient LLM and TTS failures.
	Retry resilience.RetryConfig

	// OnChunk, if set, receives every narration chunk as it is produced.
	// It runs on the turn's goroutine and must not block.
	OnChunk func(narration.Chunk)
}

// Option configures optional behaviour of an [Orchestrator].
type Option func(*Orchestrator)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithWaveLimit bounds the playback waves in flight. The default is 1 for
// [PlaybackPerTurn] and 2 for [PlaybackPerChunk].
func WithWaveLimit(n int) Option {
	return func(o *Orchestrator) { o.waveLimit = n }
}

// Orchestrator runs turns one at a time. It is safe for concurrent use;
// concurrent calls to HandleTurn are serialised.
type Orchestrator struct {
	cfg        Config
	transcript *session.Transcript
	speech     *speech // nil in text-only mode
	metrics    *observe.Metrics
	waveLimit  int
	waves      *waves

	mu     sync.Mutex
	closed bool
}

// New validates cfg and returns a ready Orchestrator.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.LLM == nil {
		return nil, errors.New("story: LLM must not be nil")
	}
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = DefaultMemoryLimit
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.LLMName == "" {
		cfg.LLMName = "llm"
	}
	if cfg.TTSName == "" {
		cfg.TTSName = "tts"
	}

	o := &Orchestrator{
		cfg:        cfg,
		transcript: session.NewTranscript(cfg.SystemPrompt, cfg.MemoryLimit),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.waveLimit <= 0 {
		o.waveLimit = 1
		if cfg.Playback == PlaybackPerChunk {
			o.waveLimit = 2
		}
	}
	o.waves = newWaves(o.waveLimit, o.metrics)

	if cfg.TTS != nil && cfg.Sink != nil {
		narrator, player := cfg.Narrator, cfg.Player
		if narrator.Provider == "" {
			narrator.Provider = cfg.TTSName
		}
		if player.Provider == "" {
			player.Provider = cfg.TTSName
		}
		if narrator.ID == "" {
			return nil, errors.New("story: narrator voice ID must not be empty when speech is enabled")
		}
		if player.ID == "" {
			player = narrator
		}
		o.speech = &speech{
			tts:  cfg.TTS,
			sink: cfg.Sink,
			voices: map[audio.Speaker]types.VoiceProfile{
				audio.SpeakerNarrator: narrator,
				audio.SpeakerPlayer:   player,
			},
			retry:   cfg.Retry,
			metrics: o.metrics,
		}
	}
	return o, nil
}

// Transcript returns the conversation owned by the orchestrator. Callers
// must not mutate it while a turn is running.
func (o *Orchestrator) Transcript() *session.Transcript { return o.transcript }

// SpeechEnabled reports whether narration is voiced.
func (o *Orchestrator) SpeechEnabled() bool { return o.speech != nil }

// ToolCall records one tool invocation made during a turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string

	// Result is the text fed back to the model. For failed calls it holds
	// the error message.
	Result   string
	IsError  bool
	Duration time.Duration
}

// Result is the outcome of one turn.
type Result struct {
	TurnID string

	// Text is the full narration of the turn.
	Text string

	// Chunks is Text as it was segmented for speech.
	Chunks []narration.Chunk

	ToolCalls []ToolCall

	// Err is nil when the turn succeeded.
	Err *Error
}

// OK reports whether the turn succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Kind returns the failure kind, or [KindNone].
func (r Result) Kind() Kind {
	if r.Err == nil {
		return KindNone
	}
	return r.Err.Kind
}

// HandleTurn runs one turn for the player's utterance.
//
// Blank input is rejected with [KindInput] without touching the transcript.
// On any other failure the utterance is rolled back, so the transcript holds
// either the whole exchange or none of it.
func (o *Orchestrator) HandleTurn(ctx context.Context, utterance string) Result {
	return o.HandlePlayerTurn(ctx, Player{}, utterance)
}

// HandlePlayerTurn is [Orchestrator.HandleTurn] for a named player. The
// action is recorded as "Name: action" and, with EchoPlayer set, voiced
// with the player's own voice.
func (o *Orchestrator) HandlePlayerTurn(ctx context.Context, p Player, action string) Result {
	text := strings.TrimSpace(action)
	t := turn{input: text, content: p.label(text), keepInput: true}
	if o.cfg.EchoPlayer {
		t.echo = &audio.Request{Text: text, Voice: audio.SpeakerPlayer, VoiceID: p.VoiceID}
	}
	return o.run(ctx, t)
}

// Open narrates the opening scene described by instruction. Only the
// narration is kept in the transcript; the instruction is not part of the
// story.
func (o *Orchestrator) Open(ctx context.Context, instruction string) Result {
	text := strings.TrimSpace(instruction)
	return o.run(ctx, turn{input: text, content: text})
}

// turn is the input of one run.
type turn struct {
	// input is the trimmed text; blank input is rejected.
	input string

	// content is the user message sent to the model.
	content string

	// keepInput commits content to the transcript next to the narration.
	keepInput bool

	// echo, if set, is voiced before the narration.
	echo *audio.Request
}

func (o *Orchestrator) run(ctx context.Context, t turn) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := Result{TurnID: uuid.NewString()}
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "story.turn",
		trace.WithAttributes(attribute.String("turn.id", res.TurnID)),
	)
	log := observe.Logger(ctx).With("turn_id", res.TurnID)
	defer func() {
		outcome := "ok"
		var err error
		if res.Err != nil {
			outcome = res.Err.Kind.String()
			err = res.Err
		}
		o.metrics.RecordTurn(ctx, outcome, time.Since(start))
		observe.EndSpan(span, err)
	}()

	if o.closed {
		res.Err = &Error{Kind: KindFatal, Op: "turn", Err: ErrClosed}
		return res
	}
	if t.input == "" {
		res.Err = &Error{Kind: KindInput, Op: "input", Err: ErrBlankInput}
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = &Error{Kind: KindCancelled, Op: "turn", Err: err}
		return res
	}

	cp := o.transcript.Checkpoint()
	o.transcript.Append(types.Message{Role: types.RoleUser, Content: t.content})

	// Per-turn playback voices the echo inside the turn's wave, after the
	// previous wave has been joined.
	var tickets []*sink.Ticket
	echo := t.echo
	if echo != nil && o.cfg.Playback == PlaybackPerChunk {
		tickets = o.appendSpoken(ctx, tickets, res.TurnID+"/player", *echo)
		echo = nil
	}

	tools := o.fetchTools(ctx)
	log.Debug("turn started", "tools", len(tools), "history", o.transcript.Len())

	seg := narration.NewSegmenter(o.cfg.Segmentation, o.cfg.Tonality)
	onChunk := func(c narration.Chunk) {
		res.Chunks = append(res.Chunks, c)
		if o.cfg.OnChunk != nil {
			o.cfg.OnChunk(c)
		}
		if o.cfg.Playback == PlaybackPerChunk {
			label := fmt.Sprintf("%s/narrator/%d", res.TurnID, len(res.Chunks))
			tickets = o.appendSpoken(ctx, tickets, label, audio.Request{Text: c.Content, Voice: audio.SpeakerNarrator, Tonality: c.VoiceStyle})
		}
	}

	narrated, calls, err := o.narrate(ctx, tools, func(fragment string) {
		for _, c := range seg.Feed(fragment) {
			onChunk(c)
		}
	})
	res.ToolCalls = calls
	if err == nil {
		for _, c := range seg.Drain() {
			onChunk(c)
		}
	}

	if err != nil {
		o.transcript.Restore(cp)
		res.Err = asError("llm", err)
		log.Warn("turn failed, transcript rolled back", "kind", res.Err.Kind, "err", err)
		o.track(ctx, res.TurnID, tickets)
		return res
	}

	res.Text = narrated
	if !t.keepInput {
		o.transcript.Restore(cp)
	}
	o.transcript.Append(types.Message{Role: types.RoleAssistant, Content: narrated})

	if o.cfg.Playback == PlaybackPerTurn {
		var reqs []labelled
		if echo != nil {
			reqs = append(reqs, labelled{res.TurnID + "/player", *echo})
		}
		reqs = append(reqs, labelled{res.TurnID + "/narrator", audio.Request{Text: narrated, Voice: audio.SpeakerNarrator, Tonality: o.cfg.Tonality}})
		o.startWave(ctx, res.TurnID, tickets, reqs...)
	} else {
		o.track(ctx, res.TurnID, tickets)
	}

	log.Info("turn complete",
		"chunks", len(res.Chunks),
		"tool_calls", len(res.ToolCalls),
		"duration", time.Since(start),
	)
	return res
}

// Speak voices req outside a turn (fallback lines, the epilogue). It returns
// once the audio is queued; playback is tracked like a turn's. Without
// speech it is a no-op.
func (o *Orchestrator) Speak(ctx context.Context, req audio.Request) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.speech == nil {
		return nil
	}
	var spokeErr error
	err := o.waves.start(ctx, "speak", func(wctx context.Context) []*sink.Ticket {
		t, err := o.speech.submit(wctx, "speak/"+req.Voice.String(), req)
		if err != nil || t == nil {
			spokeErr = err
			return nil
		}
		return []*sink.Ticket{t}
	})
	return errors.Join(err, spokeErr)
}

// Wait blocks until every playback wave has finished or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	return o.waves.join(ctx)
}

// Close rejects further turns and applies the exit policy to playback still
// in flight: [sink.ExitAwait] waits until ctx ends, [sink.ExitCancel] stops
// at once. It does not close the sink.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()
	return o.waves.close(ctx, o.cfg.OnExit)
}

// appendSpoken submits req and appends its ticket. Speech failures are
// logged and skipped; they never fail the turn.
func (o *Orchestrator) appendSpoken(ctx context.Context, tickets []*sink.Ticket, label string, req audio.Request) []*sink.Ticket {
	if o.speech == nil {
		return tickets
	}
	t, err := o.speech.submit(o.waves.context(), label, req)
	if err != nil {
		observe.Logger(ctx).Warn("skipping unspeakable chunk", "label", label, "err", err)
		return tickets
	}
	if t != nil {
		tickets = append(tickets, t)
	}
	return tickets
}

// labelled is a speech request with its sink label.
type labelled struct {
	label string
	req   audio.Request
}

// startWave joins earlier waves as needed and then voices reqs in order.
func (o *Orchestrator) startWave(ctx context.Context, turnID string, pending []*sink.Ticket, reqs ...labelled) {
	if o.speech == nil {
		return
	}
	err := o.waves.start(ctx, turnID, func(wctx context.Context) []*sink.Ticket {
		tickets := pending
		for _, r := range reqs {
			tickets = o.appendSpoken(ctx, tickets, r.label, r.req)
		}
		return tickets
	})
	if err != nil {
		observe.Logger(ctx).Warn("narration not voiced", "turn_id", turnID, "err", err)
		for _, t := range pending {
			t.Cancel()
		}
	}
}

// track hands already submitted tickets to the wave tracker.
func (o *Orchestrator) track(ctx context.Context, turnID string, tickets []*sink.Ticket) {
	if len(tickets) == 0 {
		return
	}
	err := o.waves.start(ctx, turnID, func(context.Context) []*sink.Ticket { return tickets })
	if err != nil {
		observe.Logger(ctx).Warn("playback not tracked", "turn_id", turnID, "err", err)
	}
}

// fetchTools returns the tool catalogue for this turn. A failing host
// degrades to whatever part of the catalogue it could still list, which may
// be nothing.
func (o *Orchestrator) fetchTools(ctx context.Context) []types.ToolDefinition {
	if o.cfg.Tools == nil {
		return nil
	}
	defs, err := o.cfg.Tools.ListTools(ctx)
	if err != nil {
		o.metrics.RecordToolListFailure(ctx)
		observe.Logger(ctx).Warn("tool catalogue degraded", "available", len(defs), "err", err)
	}
	return defs
}

func asError(op string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return newError(op, err)
}
