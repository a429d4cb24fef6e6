package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/user/homehub-voice/internal/config"
)

var rootCmd = &cobra.Command{
	Use:          "homehub-voice",
	Short:        "Always-on voice commands for the home hub",
	SilenceUsage: true,
	Long: `homehub-voice listens to the microphone, transcribes speech, and acts on
commands that follow the wake word, such as "lexicat tomorrow" or
"lexicat switch to weather".

Without a subcommand it runs the voice pipeline until interrupted.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd, parseCmd, transcribeCmd)
}

// loadConfig loads configuration and applies its log level.
func loadConfig() (*config.Config, error) {
	setupLogging("info")
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
