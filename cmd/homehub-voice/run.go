package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/user/homehub-voice/internal/app"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the voice pipeline and status server",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Info().
		Str("wake_word", cfg.WakeWord).
		Str("backend", cfg.STTBackend).
		Str("status_addr", cfg.StatusAddr).
		Msg("Starting home hub voice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start app: %w", err)
	}

	log.Info().Msg("Listening. Press Ctrl+C to exit.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() {
		done <- hub.Stop(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
			return err
		}
		log.Info().Msg("Stopped gracefully")
	case <-shutdownCtx.Done():
		log.Warn().Msg("Shutdown timeout exceeded, forcing exit")
	}
	return nil
}
