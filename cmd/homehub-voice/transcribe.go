package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/user/homehub-voice/internal/app"
	"github.com/user/homehub-voice/internal/audio"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file.wav>",
	Short: "Send a WAV file through the configured STT backend once",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	pcm, rate, err := audio.ReadWAV(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	if rate <= 0 || len(pcm) == 0 {
		return fmt.Errorf("%s has no audio", args[0])
	}

	start := time.Now()
	utterance := &audio.Utterance{
		ID:         uuid.New(),
		Chunks:     [][]byte{audio.Int16ToBytes(pcm)},
		Codec:      audio.PCM16,
		SampleRate: rate,
		Start:      start,
		End:        start.Add(time.Duration(len(pcm)) * time.Second / time.Duration(rate)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.STTTimeout)
	defer cancel()

	transcriber, err := app.NewTranscriber(ctx, cfg)
	if err != nil {
		return err
	}
	defer transcriber.Close()

	began := time.Now()
	result, err := transcriber.Transcribe(ctx, utterance)
	if err != nil {
		return fmt.Errorf("failed to transcribe: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "backend=%s latency=%s\n", transcriber.Name(), time.Since(began).Round(time.Millisecond))
	return nil
}
