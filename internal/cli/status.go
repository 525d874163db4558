package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/mirror/internal/calendar"
	"github.com/soyeahso/mirror/internal/config"
	"github.com/soyeahso/mirror/internal/llm"
	"github.com/soyeahso/mirror/internal/store"
	"github.com/soyeahso/mirror/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show mirror status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s\n\n", version.Info())

			// Show paths
			fmt.Printf("Config:   %s\n", paths.Config)
			fmt.Printf("Data:     %s\n", paths.Data)
			fmt.Printf("Logs:     %s\n", paths.Logs)
			fmt.Println()

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Println("Config:   not found (using defaults and environment)")
			}
			cfg, err := loadConfig()
			if err != nil {
				fmt.Printf("Config:   error loading: %v\n", err)
				return nil
			}

			auth := "none"
			if cfg.Server.Token != "" {
				auth = "token"
			}
			fmt.Printf("Server:   port=%d bind=%s auth=%s\n", cfg.Server.Port, cfg.Server.Bind, auth)

			// LLM provider
			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			if providers := registry.List(); len(providers) > 0 {
				fmt.Printf("LLM:      %s model=%s\n", strings.Join(providers, ", "), cfg.LLM.Model)
			} else {
				fmt.Printf("LLM:      (none, provider=%s)\n", cfg.LLM.Provider)
			}

			fmt.Printf("Weather:  key=%s default=%q\n", present(cfg.Weather.APIKey), cfg.Weather.DefaultLocation)
			fmt.Printf("Calendar: %s target=%s lookahead=%dd\n",
				calendarState(cfg.Calendar), cfg.Calendar.TargetCalendar, cfg.Calendar.LookaheadDays)
			fmt.Printf("Speech:   key=%s voice=%s\n", present(cfg.Speech.APIKey), present(cfg.Speech.VoiceID))
			fmt.Printf("Journal:  %s\n", journalState(cfg.Journal))

			// Validation
			issues := append(config.Validate(&cfg), config.ValidateSpeech(&cfg)...)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s\n", issue)
				}
			}

			return nil
		},
	}

	return cmd
}

func present(s string) string {
	if s == "" {
		return "missing"
	}
	return "set"
}

func calendarState(cfg config.CalendarConfig) string {
	if _, err := os.Stat(cfg.CredentialsPath); err != nil {
		return "no credentials"
	}
	_, err := calendar.LoadToken(cfg.TokenPath)
	switch {
	case errors.Is(err, calendar.ErrNotAuthenticated):
		return "not authorized"
	case err != nil:
		return "token unreadable"
	default:
		return "authorized"
	}
}

func journalState(cfg config.JournalConfig) string {
	if !cfg.Enabled {
		return "disabled"
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return cfg.Path + " (empty)"
	}
	db, err := store.Open(cfg.Path, log)
	if err != nil {
		return fmt.Sprintf("%s (error: %v)", cfg.Path, err)
	}
	defer db.Close()
	ctx := context.Background()
	schema, _ := db.SchemaVersion(ctx)
	convs, err := db.Conversations(ctx, 1)
	if err != nil || len(convs) == 0 {
		return fmt.Sprintf("%s (schema v%d)", db.Path(), schema)
	}
	return fmt.Sprintf("%s (schema v%d, last conversation %s, %d turns)", db.Path(), schema,
		convs[0].StartedAt.Local().Format("2006-01-02 15:04"), convs[0].Turns)
}
