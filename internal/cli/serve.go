package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/soyeahso/mirror/internal/config"
	"github.com/soyeahso/mirror/internal/gateway"
	"github.com/soyeahso/mirror/internal/speech"
	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"
)

func newServeCmd() *cobra.Command {
	var (
		port     int
		bind     string
		noSpeech bool
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket server the mirror display talks to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if !noSpeech {
				issues = append(issues, config.ValidateSpeech(&cfg)...)
			}
			if err := validate(issues); err != nil {
				return err
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating directories: %w", err)
			}
			lock := flock.New(paths.LockFile())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquiring lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another mirror server is running (lock %s)", paths.LockFile())
			}
			defer lock.Unlock()

			if watch {
				// Re-execs in place when the binary is replaced, so a kiosk
				// picks up an upgrade without a supervisor.
				go autorestart.RestartOnChange()
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildAssistant(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []gateway.ServerOption{
				gateway.WithRunner(a.runner),
				gateway.WithWeather(a.weather),
				gateway.WithHooks(a.hooks),
			}
			if a.calendar != nil {
				opts = append(opts, gateway.WithCalendar(a.calendar))
			}
			if !noSpeech {
				opts = append(opts, gateway.WithSpeech(speech.NewClient(speech.Options{
					APIKey:          cfg.Speech.APIKey,
					VoiceID:         cfg.Speech.VoiceID,
					BaseURL:         cfg.Speech.BaseURL,
					Stability:       cfg.Speech.Stability,
					SimilarityBoost: cfg.Speech.SimilarityBoost,
				}, log)))
			} else {
				log.Warn().Msg("speech disabled; POST /chat answers 502 with the reply text")
			}

			if a.journal != nil {
				log.Info().Str("conversationId", a.journal.ID()).Msg("journaling turns")
			}

			return gateway.New(cfg, log, opts...).Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	cmd.Flags().BoolVar(&noSpeech, "no-speech", false, "serve without text-to-speech")
	cmd.Flags().BoolVar(&watch, "restart-on-upgrade", true, "restart when the mirror binary is replaced")

	return cmd
}
