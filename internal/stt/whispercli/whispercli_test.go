package whispercli

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/homehub-voice/internal/audio"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{name: "plain", out: " Lexicat tomorrow.\n", want: "Lexicat tomorrow."},
		{name: "timestamps", out: "[00:00:00.000 --> 00:00:02.000]  lexicat\n[00:00:02.000 --> 00:00:03.000]  today\n", want: ""},
		{name: "multi line", out: "\n lexicat\n\n next week \n", want: "lexicat next week"},
		{name: "blank audio", out: "[BLANK_AUDIO]\n", want: ""},
		{name: "empty", out: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOutput(tt.out))
		})
	}
}

func testUtterance() *audio.Utterance {
	return &audio.Utterance{
		ID:         uuid.New(),
		Chunks:     [][]byte{audio.Int16ToBytes(make([]int16, 1600))},
		Codec:      audio.PCM16,
		SampleRate: 16000,
	}
}

// fakeWhisper writes a shell script standing in for whisper-cli plus an
// empty model file.
func fakeWhisper(t *testing.T, body string) (binary, model string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}

	dir := t.TempDir()
	binary = filepath.Join(dir, "whisper-cli")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"+body), 0755))
	model = filepath.Join(dir, "ggml-tiny.bin")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0644))
	return binary, model
}

func TestNewRequiresModelAndBinary(t *testing.T) {
	fs := afero.NewOsFs()
	binary, model := fakeWhisper(t, "exit 0\n")

	_, err := NewWhisperCLITranscriber(fs, binary, filepath.Join(t.TempDir(), "missing.bin"), "en")
	assert.Error(t, err)

	_, err = NewWhisperCLITranscriber(fs, filepath.Join(t.TempDir(), "missing-binary"), model, "en")
	assert.Error(t, err)

	_, err = NewWhisperCLITranscriber(fs, "", model, "en")
	assert.Error(t, err)

	w, err := NewWhisperCLITranscriber(fs, binary, model, "")
	require.NoError(t, err)
	assert.Equal(t, "en", w.language)
	assert.Equal(t, "whisper-cli", w.Name())
}

func TestTranscribeRunsBinary(t *testing.T) {
	binary, model := fakeWhisper(t, `
[ "$1" = "-m" ] || exit 2
[ -f "$4" ] || exit 3
[ "$6" = "de" ] || exit 4
echo "$4" > "$(dirname "$2")/last-input"
echo ""
echo " Lexicat tomorrow."
`)

	w, err := NewWhisperCLITranscriber(afero.NewOsFs(), binary, model, "de")
	require.NoError(t, err)

	result, err := w.Transcribe(context.Background(), testUtterance())
	require.NoError(t, err)
	assert.Equal(t, "Lexicat tomorrow.", result.Text)

	// The temporary WAV is removed afterwards.
	last, err := os.ReadFile(filepath.Join(filepath.Dir(model), "last-input"))
	require.NoError(t, err)
	_, err = os.Stat(string(last[:len(last)-1]))
	assert.True(t, os.IsNotExist(err))
}

func TestTranscribeReportsFailure(t *testing.T) {
	binary, model := fakeWhisper(t, "echo 'model load failed' >&2\nexit 1\n")

	w, err := NewWhisperCLITranscriber(afero.NewOsFs(), binary, model, "en")
	require.NoError(t, err)

	_, err = w.Transcribe(context.Background(), testUtterance())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model load failed")
}

func TestTranscribeHonoursDeadline(t *testing.T) {
	binary, model := fakeWhisper(t, "exec sleep 5\n")

	w, err := NewWhisperCLITranscriber(afero.NewOsFs(), binary, model, "en")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = w.Transcribe(ctx, testUtterance())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}
