// Package whispercli transcribes by running the whisper.cpp command line
// binary on a temporary WAV file.
package whispercli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/user/homehub-voice/internal/audio"
	"github.com/user/homehub-voice/internal/stt"
)

type WhisperCLITranscriber struct {
	binaryPath string
	modelPath  string
	language   string
	fs         afero.Fs
	tempDir    string
}

// NewWhisperCLITranscriber checks both paths exist. fs must be backed by the
// real filesystem since the binary reads the file directly.
func NewWhisperCLITranscriber(fs afero.Fs, binaryPath, modelPath, language string) (*WhisperCLITranscriber, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("whisper.cpp binary path is required")
	}
	if modelPath == "" {
		return nil, fmt.Errorf("whisper model path is required")
	}
	if ok, err := afero.Exists(fs, modelPath); err != nil || !ok {
		return nil, fmt.Errorf("whisper model not found at %s", modelPath)
	}
	if _, err := exec.LookPath(binaryPath); err != nil {
		return nil, fmt.Errorf("whisper.cpp binary not found at %s: %w", binaryPath, err)
	}
	if language == "" {
		language = stt.DefaultLanguage
	}

	return &WhisperCLITranscriber{
		binaryPath: binaryPath,
		modelPath:  modelPath,
		language:   language,
		fs:         fs,
		tempDir:    afero.GetTempDir(fs, "homehub-voice"),
	}, nil
}

func (w *WhisperCLITranscriber) Name() string { return "whisper-cli" }

func (w *WhisperCLITranscriber) Transcribe(ctx context.Context, utterance *audio.Utterance) (*stt.Result, error) {
	wavData, err := stt.UtteranceWAV(utterance)
	if err != nil {
		return nil, fmt.Errorf("failed to convert utterance to WAV: %w", err)
	}

	f, err := afero.TempFile(w.fs, w.tempDir, "utterance-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := w.fs.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove temp file")
		}
	}()

	if _, err := f.Write(wavData); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	args := []string{
		"-m", w.modelPath,
		"-f", path,
		"-l", w.language,
		"-nt",
		"-np",
	}

	log.Debug().
		Str("binary", w.binaryPath).
		Strs("args", args).
		Int("audio_size_bytes", len(wavData)).
		Msg("Running whisper.cpp")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.binaryPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("whisper.cpp timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("whisper.cpp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return &stt.Result{Text: parseOutput(stdout.String())}, nil
}

// parseOutput keeps the non-empty lines that are not bracketed log or
// timestamp lines and joins them with a space.
func parseOutput(out string) string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, " ")
}

func (w *WhisperCLITranscriber) Close() error {
	return nil
}
