// Package cli wires the mirror subcommands to the config, agent and gateway
// packages.
package cli

import (
	"io"
	"os"

	"github.com/soyeahso/mirror/internal/config"
	"github.com/soyeahso/mirror/internal/logging"
	"github.com/soyeahso/mirror/internal/version"
	"github.com/spf13/cobra"
)

// Process-wide state, set by setup before any subcommand runs.
var (
	cfgFile  string
	logLevel string

	paths     config.Paths
	log       *logging.Logger
	logCloser io.Closer
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Voice assistant backend for a smart mirror",
		Long: `mirror answers spoken requests for a smart mirror display. Each utterance is
classified by an LLM, weather or calendar lookups run when asked, and the reply
comes back as text and synthesized speech.

Settings live in ~/.mirror/config.yaml; set MIRROR_HOME to move the directory.`,
		Version:           version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return setup() },
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.mirror/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent); also MIRROR_LOG_LEVEL")

	cmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newAuthCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return cmd
}

// setup resolves paths and builds a console logger good enough for commands
// that never read the config file.
func setup() error {
	var err error
	if paths, err = config.ResolvePaths(); err != nil {
		return err
	}
	if cfgFile != "" {
		paths.Config = cfgFile
	}
	if logLevel == "" {
		logLevel = os.Getenv("MIRROR_LOG_LEVEL")
	}
	level := logLevel
	if level == "" {
		level = "info"
	}
	log = logging.New(nil, level)
	return nil
}

// loadConfig reads the config file, fills file locations from the base
// directory and rebuilds the logger from the logging section. --log-level
// still wins over the file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyPaths(paths)
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	l, closer, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		return cfg, err
	}
	log, logCloser = l, closer
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
