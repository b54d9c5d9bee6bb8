package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/talewind/internal/config"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the voices offered by the configured TTS provider",
	Args:  cobra.NoArgs,
	RunE:  listVoices,
}

func listVoices(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	p, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	voices, err := p.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPROVIDER")
	for _, v := range voices {
		marker := ""
		switch v.ID {
		case cfg.Voices.Narrator.VoiceID:
			marker = " (narrator)"
		case cfg.Voices.Player.VoiceID:
			marker = " (player)"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\n", v.ID, marker, v.Name, v.Provider)
	}
	return w.Flush()
}
