// Package app wires the talewind subsystems into a running game session.
//
// The App struct owns the full lifecycle: New builds and connects the tool
// host, the audio sink and the story orchestrator, Run executes the REPL,
// and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithMCPHost,
// WithInventoryStore, WithStdio). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/talewind/internal/config"
	"github.com/MrWong99/talewind/internal/mcp"
	"github.com/MrWong99/talewind/internal/mcp/mcphost"
	"github.com/MrWong99/talewind/internal/mcp/tools"
	"github.com/MrWong99/talewind/internal/mcp/tools/dice"
	"github.com/MrWong99/talewind/internal/mcp/tools/inventory"
	"github.com/MrWong99/talewind/internal/narration"
	"github.com/MrWong99/talewind/internal/observe"
	"github.com/MrWong99/talewind/internal/resilience"
	"github.com/MrWong99/talewind/internal/story"
	"github.com/MrWong99/talewind/pkg/audio"
	"github.com/MrWong99/talewind/pkg/audio/oto"
	"github.com/MrWong99/talewind/pkg/audio/sink"
	"github.com/MrWong99/talewind/pkg/provider/llm"
	"github.com/MrWong99/talewind/pkg/provider/tts"
	"github.com/MrWong99/talewind/pkg/types"
)

// Providers holds the instantiated providers. Nil means not configured.
// Populated by [BuildProviders] or injected by tests.
type Providers struct {
	LLM     llm.Provider
	LLMName string

	TTS     tts.Provider
	TTSName string

	// Device is the playback device. When nil and playback is enabled, New
	// opens the default output through oto.
	Device audio.Device
}

// builtinRegistrar is implemented by hosts that run tools in-process.
type builtinRegistrar interface {
	RegisterBuiltins(ts []tools.Tool) error
}

// App owns all subsystem lifetimes of one game session.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	mcpHost        mcp.Host
	inventory      inventory.Store
	sink           *sink.Sink
	story          *story.Orchestrator
	shell          *Shell
	diag           *http.Server
	metricsHandler http.Handler

	in  io.Reader
	out io.Writer

	// closers run in order at the end of Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMCPHost injects a tool host instead of creating an mcphost from config.
// Built-in tools are registered only on hosts that support them.
func WithMCPHost(h mcp.Host) Option {
	return func(a *App) { a.mcpHost = h }
}

// WithInventoryStore injects the inventory backend instead of opening one
// from tools.inventory_dsn.
func WithInventoryStore(s inventory.Store) Option {
	return func(a *App) { a.inventory = s }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler served at /metrics on the diagnostics
// server. Without it /metrics is not served.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithStdio replaces stdin and stdout for the REPL.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring every subsystem together. Any failure here is
// a startup error: a tool server that cannot be registered, an audio device
// that cannot be opened or an invalid narration language.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Tools ─────────────────────────────────────────────────────────
	if err := a.initTools(ctx); err != nil {
		a.abort()
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 2. Playback ──────────────────────────────────────────────────────
	if err := a.initPlayback(); err != nil {
		a.abort()
		return nil, fmt.Errorf("app: init playback: %w", err)
	}

	// ── 3. Story ─────────────────────────────────────────────────────────
	if err := a.initStory(); err != nil {
		a.abort()
		return nil, fmt.Errorf("app: init story: %w", err)
	}

	// ── 4. Diagnostics ───────────────────────────────────────────────────
	if addr := cfg.Server.DiagAddr; addr != "" {
		if err := a.startDiagnostics(addr); err != nil {
			a.abort()
			return nil, fmt.Errorf("app: start diagnostics: %w", err)
		}
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTools sets up the tool host, its built-in tools and the configured
// MCP servers.
func (a *App) initTools(ctx context.Context) error {
	if a.mcpHost == nil {
		a.mcpHost = mcphost.New()
	}
	a.closers = append(a.closers, a.mcpHost.Close)

	var builtins []tools.Tool
	if a.cfg.Tools.Dice {
		builtins = append(builtins, dice.Tools()...)
	}
	if a.cfg.Tools.Inventory {
		store, err := a.openInventory(ctx)
		if err != nil {
			return err
		}
		builtins = append(builtins, inventory.Tools(store)...)
	}
	if len(builtins) > 0 {
		reg, ok := a.mcpHost.(builtinRegistrar)
		if !ok {
			slog.Warn("tool host does not run built-in tools, skipping", "tools", len(builtins))
		} else if err := reg.RegisterBuiltins(builtins); err != nil {
			return fmt.Errorf("register built-in tools: %w", err)
		}
	}

	for _, srv := range a.cfg.MCP.Servers {
		if err := a.mcpHost.RegisterServer(ctx, srv); err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		slog.Info("registered MCP server", "name", srv.Name, "transport", srv.Transport)
	}
	return nil
}

// openInventory returns the injected store, a PostgreSQL store when a DSN is
// configured, or an in-memory store for this session.
func (a *App) openInventory(ctx context.Context) (inventory.Store, error) {
	if a.inventory != nil {
		return a.inventory, nil
	}
	dsn := a.cfg.Tools.InventoryDSN
	if dsn == "" {
		a.inventory = inventory.NewMemStore()
		return a.inventory, nil
	}
	store, pool, err := inventory.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	slog.Info("inventory store connected", "backend", "postgres")
	a.inventory = store
	return store, nil
}

// initPlayback opens the device and the sink when speech is enabled.
func (a *App) initPlayback() error {
	pc := a.cfg.Playback
	if !pc.Enabled || a.providers.TTS == nil {
		slog.Info("speech disabled, narrating in text only")
		return nil
	}
	exit, err := sink.ParseExitPolicy(string(pc.OnExit))
	if err != nil {
		return err
	}

	dev := a.providers.Device
	if dev == nil {
		dev, err = oto.New(audio.Format{SampleRate: pc.SampleRate, Channels: pc.Channels})
		if err != nil {
			return fmt.Errorf("open audio device: %w", err)
		}
	}

	m := a.metrics
	a.sink = sink.New(dev,
		sink.WithGap(pc.Gap),
		sink.WithExitPolicy(exit),
		sink.WithOnPlayed(func(p sink.Played) {
			status := "ok"
			switch {
			case errors.Is(p.Err, sink.ErrCancelled), errors.Is(p.Err, sink.ErrClosed):
				status = "cancelled"
			case p.Err != nil:
				status = "error"
			}
			ctx := context.Background()
			m.PlaybackQueue.Add(ctx, -1)
			m.RecordPlayback(ctx, p.Speaker.String(), status, p.Elapsed)
		}),
	)
	return nil
}

// initStory builds the orchestrator and the shell that drives it.
func (a *App) initStory() error {
	sc := a.cfg.Story
	prompt, err := story.BuildSystemPrompt(sc.SystemPrompt, sc.Language)
	if err != nil {
		return err
	}
	mode, err := narration.ParseMode(string(sc.Segmentation))
	if err != nil {
		return err
	}
	policy, err := story.ParsePlaybackPolicy(string(a.cfg.Playback.Policy))
	if err != nil {
		return err
	}
	exit, err := sink.ParseExitPolicy(string(a.cfg.Playback.OnExit))
	if err != nil {
		return err
	}

	a.shell = NewShell(a.in, a.out, mode)
	a.shell.Roster = roster(a.cfg)
	a.shell.Welcome = sc.Welcome
	a.shell.Opening = sc.OpeningScene
	a.shell.Epilogue = sc.Epilogue

	tonality := story.ResolveTonality(a.cfg.Voices.Narrator.Tonality)
	cfg := story.Config{
		LLM:           a.providers.LLM,
		Tools:         a.mcpHost,
		LLMName:       a.providers.LLMName,
		TTSName:       a.providers.TTSName,
		SystemPrompt:  prompt,
		MemoryLimit:   sc.MemoryLimit,
		Temperature:   sc.Temperature,
		MaxTokens:     sc.MaxTokens,
		MaxToolRounds: sc.MaxToolRounds,
		Segmentation:  mode,
		Playback:      policy,
		OnExit:        exit,
		Narrator:      voiceProfile(a.cfg.Voices.Narrator, a.providers.TTSName),
		Player:        voiceProfile(a.cfg.Voices.Player, a.providers.TTSName),
		Tonality:      tonality,
		EchoPlayer:    a.cfg.Playback.EchoPlayer,
		Retry:         resilience.RetryConfig{Attempts: a.cfg.Retry.Attempts, Backoff: a.cfg.Retry.Backoff},
		OnChunk:       a.shell.Chunk,
	}
	if a.sink != nil {
		cfg.TTS = a.providers.TTS
		cfg.Sink = &meteredSink{sink: a.sink, metrics: a.metrics}
	}

	a.story, err = story.New(cfg, story.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.shell.GM = a.story
	a.shell.Tonality = tonality
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run plays the session until the player quits, input ends or ctx is
// cancelled. A cancelled context is not an error.
func (a *App) Run(ctx context.Context) error {
	slog.Info("session started",
		"speech", a.story.SpeechEnabled(),
		"mcp_servers", len(a.cfg.MCP.Servers),
	)
	err := a.shell.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Orchestrator exposes the story orchestrator.
func (a *App) Orchestrator() *story.Orchestrator { return a.story }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown applies the playback exit policy and tears down every subsystem.
// With the await policy queued audio may play for up to
// playback.drain_timeout, or until ctx ends if that is sooner.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		drainCtx := ctx
		if d := a.cfg.Playback.DrainTimeout; d > 0 {
			var cancel context.CancelFunc
			drainCtx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		if a.story != nil {
			if err := a.story.Close(drainCtx); err != nil {
				slog.Warn("playback did not finish before shutdown", "err", err)
			}
		}
		if a.sink != nil {
			if err := a.sink.Close(drainCtx); err != nil {
				errs = append(errs, fmt.Errorf("close sink: %w", err))
			}
		}
		if a.diag != nil {
			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := a.diag.Shutdown(sctx); err != nil {
				errs = append(errs, fmt.Errorf("stop diagnostics: %w", err))
			}
			cancel()
		}
		if err := ctx.Err(); err != nil {
			slog.Warn("shutdown deadline exceeded, skipping closers", "remaining", len(a.closers))
			errs = append(errs, err)
			return
		}
		errs = append(errs, a.closeAll()...)
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// abort releases what a failed New had already opened.
func (a *App) abort() {
	if a.sink != nil {
		_ = a.sink.Close(context.Background())
	}
	if a.diag != nil {
		_ = a.diag.Close()
	}
	a.closeAll()
}

// closeAll runs every closer once and returns their errors.
func (a *App) closeAll() []error {
	var errs []error
	for i, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errs
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// roster builds the turn order from the configured players.
func roster(cfg *config.Config) *story.Roster {
	players := make([]story.Player, len(cfg.Players))
	for i, p := range cfg.Players {
		players[i] = story.Player{Name: strings.TrimSpace(p.Name), VoiceID: p.VoiceID}
	}
	return story.NewRoster(players, cfg.Voices.PlayerPool)
}

// voiceProfile converts a config.VoiceConfig to a types.VoiceProfile.
func voiceProfile(vc config.VoiceConfig, provider string) types.VoiceProfile {
	return types.VoiceProfile{
		ID:           vc.VoiceID,
		Provider:     provider,
		Instructions: story.ResolveTonality(vc.Tonality),
		SpeedFactor:  vc.SpeedFactor,
	}
}

// meteredSink tracks the playback queue depth around a [sink.Sink]. The
// decrement happens in the sink's OnPlayed hook.
type meteredSink struct {
	sink    *sink.Sink
	metrics *observe.Metrics
}

var _ story.Sink = (*meteredSink)(nil)

func (s *meteredSink) Submit(seg *audio.Segment) *sink.Ticket {
	t := s.sink.Submit(seg)
	// Rejected segments never reach the hook.
	if t.Seq != 0 {
		s.metrics.PlaybackQueue.Add(context.Background(), 1)
	}
	return t
}
