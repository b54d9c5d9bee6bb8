package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/talewind/internal/health"
	"github.com/MrWong99/talewind/internal/mcp"
	"github.com/MrWong99/talewind/internal/observe"
)

// pinger is implemented by tool hosts that can probe their servers.
type pinger interface {
	Ping(ctx context.Context) error
}

// statser is implemented by tool hosts that keep per-tool statistics.
type statser interface {
	Stats() []mcp.ToolStats
}

// checkers returns the readiness checks for the current session.
func (a *App) checkers() []health.Checker {
	checks := []health.Checker{{
		Name: "llm",
		Check: func(context.Context) error {
			if a.providers.LLM == nil {
				return errors.New("no LLM provider configured")
			}
			return nil
		},
	}}
	if a.sink != nil {
		checks = append(checks, health.Checker{
			Name: "sink",
			Check: func(context.Context) error {
				if a.sink.Closed() {
					return errors.New("audio sink is closed")
				}
				return nil
			},
		})
	}
	if p, ok := a.mcpHost.(pinger); ok {
		checks = append(checks, health.Checker{Name: "mcp", Check: p.Ping})
	}
	return checks
}

// DiagHandler returns the diagnostics routes: /healthz, /readyz, /metrics
// (when a metrics handler was given) and /debug/tools, all wrapped in the
// request middleware.
func (a *App) DiagHandler() http.Handler {
	mux := http.NewServeMux()
	health.New(a.checkers()...).Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	mux.HandleFunc("GET /debug/tools", a.serveToolStats)
	return observe.Middleware(a.metrics)(mux)
}

// serveToolStats reports per-tool call statistics, sorted by name.
func (a *App) serveToolStats(w http.ResponseWriter, _ *http.Request) {
	var stats []mcp.ToolStats
	if s, ok := a.mcpHost.(statser); ok {
		stats = s.Stats()
	}
	slices.SortFunc(stats, func(x, y mcp.ToolStats) int { return strings.Compare(x.Name, y.Name) })
	if stats == nil {
		stats = []mcp.ToolStats{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		slog.Warn("encode tool stats", "err", err)
	}
}

// startDiagnostics binds addr and serves [App.DiagHandler] in the
// background. Binding happens synchronously so a taken port fails startup.
func (a *App) startDiagnostics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.diag = &http.Server{
		Handler:           a.DiagHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.diag.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("diagnostics server failed", "err", err)
		}
	}()
	slog.Info("diagnostics server listening", "addr", ln.Addr().String())
	return nil
}
