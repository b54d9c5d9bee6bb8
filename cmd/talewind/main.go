// Command talewind runs a voiced tabletop game master in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/talewind/internal/app"
	"github.com/MrWong99/talewind/internal/config"
	"github.com/MrWong99/talewind/internal/observe"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "talewind",
	Short:         "A voiced game master for your tabletop adventures",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          play,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start an interactive session (default)",
	Args:  cobra.NoArgs,
	RunE:  play,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML configuration file")
	rootCmd.AddCommand(playCmd, toolsCmd, voicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "talewind: %v\n", err)
		os.Exit(1)
	}
}

func play(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("talewind starting", "version", Version, "config", configPath, "log_level", cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg, metrics)
	if err != nil {
		return err
	}

	printStartupSummary(cmd.ErrOrStderr(), cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.MetricsHandler),
		app.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout()),
	)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	runErr := application.Run(ctx)

	// Give the shutdown its own budget: ctx is already cancelled on Ctrl+C.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Playback.DrainTimeout+5*time.Second)
	defer cancel()
	shutdownErr := application.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		slog.Error("shutdown error", "err", shutdownErr)
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return shutdownErr
}

// newLogger returns a slog logger backed by a charmbracelet/log handler on
// stderr.
func newLogger(level config.LogLevel) *slog.Logger {
	lvl := log.InfoLevel
	switch level {
	case config.LogDebug:
		lvl = log.DebugLevel
	case config.LogWarn:
		lvl = log.WarnLevel
	case config.LogError:
		lvl = log.ErrorLevel
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	return slog.New(handler)
}

// errUsage marks an invalid command line.
var errUsage = errors.New("invalid usage")
