package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/mirror/internal/calendar"
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to external services",
	}

	cmd.AddCommand(newAuthCalendarCmd())
	return cmd
}

func newAuthCalendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendar",
		Short: "Authorize Google Calendar and cache the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			oauthCfg, err := calendar.OAuthConfig(cfg.Calendar.CredentialsPath)
			if err != nil {
				return fmt.Errorf("%w (set calendar.credentialsPath or GOOGLE_CREDENTIALS_PATH)", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tok, err := calendar.Authorize(ctx, oauthCfg, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := calendar.SaveToken(cfg.Calendar.TokenPath, tok); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", cfg.Calendar.TokenPath)
			return nil
		},
	}
}
