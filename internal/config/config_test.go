package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "lexicat", cfg.WakeWord)
	assert.False(t, cfg.WakeFuzzy)
	assert.Equal(t, 3*time.Second, cfg.AwakeWindow)
	assert.Equal(t, CaptureDefault, cfg.CaptureDevice)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Tick)
	assert.True(t, cfg.EchoCancellation)
	assert.True(t, cfg.NoiseSuppression)
	assert.Equal(t, 0.1, cfg.VADThreshold)
	assert.Equal(t, time.Second, cfg.VADQuietWindow)
	assert.Equal(t, "rms", cfg.VADClassifier)
	assert.Equal(t, "pcm16", cfg.AudioCodec)
	assert.Equal(t, 15*time.Second, cfg.MaxUtterance)
	assert.Equal(t, "whisper-cli", cfg.STTBackend)
	assert.Equal(t, 15*time.Second, cfg.STTTimeout)
	assert.Equal(t, "en", cfg.STTLanguage)
	assert.Equal(t, ":8090", cfg.StatusAddr)
	assert.Equal(t, "./data", cfg.DataDir)

	_, ok := cfg.CaptureFile()
	assert.False(t, ok)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("WAKE_WORD", "computer")
	t.Setenv("AWAKE_WINDOW_MS", "5000")
	t.Setenv("CAPTURE_DEVICE", "file:/tmp/in.wav")
	t.Setenv("VAD_THRESHOLD", "0.25")
	t.Setenv("VAD_CLASSIFIER", "webrtc")
	t.Setenv("STT_BACKEND", "whisper-server")
	t.Setenv("STT_TIMEOUT_MS", "8000")
	t.Setenv("ECHO_CANCELLATION", "false")
	t.Setenv("STATUS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "computer", cfg.WakeWord)
	assert.Equal(t, 5*time.Second, cfg.AwakeWindow)
	assert.Equal(t, 0.25, cfg.VADThreshold)
	assert.Equal(t, "webrtc", cfg.VADClassifier)
	assert.Equal(t, "whisper-server", cfg.STTBackend)
	assert.Equal(t, 8*time.Second, cfg.STTTimeout)
	assert.False(t, cfg.EchoCancellation)
	assert.Empty(t, cfg.StatusAddr)

	path, ok := cfg.CaptureFile()
	assert.True(t, ok)
	assert.Equal(t, "/tmp/in.wav", path)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SAMPLE_RATE", "sixteen thousand")
	t.Setenv("WAKE_FUZZY", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.False(t, cfg.WakeFuzzy)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"STT_BACKEND", "cloud-magic"},
		{"VAD_THRESHOLD", "1.5"},
		{"VAD_CLASSIFIER", "neural"},
		{"AUDIO_CODEC", "mp3"},
		{"CAPTURE_DEVICE", "hw:1,0"},
		{"STT_TIMEOUT_MS", "-1"},
		{"AWAKE_WINDOW_MS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadBackendCredentials(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STT_BACKEND", "deepgram")
	t.Setenv("DEEPGRAM_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEEPGRAM_API_KEY")

	t.Setenv("DEEPGRAM_API_KEY", "key")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "nova-2", cfg.DeepgramTier)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
wake_word: jarvis
vad_quiet_window_ms: 1500
wake_fuzzy: true
stt_language: de
status_addr: ""
`), 0644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STT_LANGUAGE", "fr")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "jarvis", cfg.WakeWord)
	assert.Equal(t, 1500*time.Millisecond, cfg.VADQuietWindow)
	assert.True(t, cfg.WakeFuzzy)
	// The environment wins over the file.
	assert.Equal(t, "fr", cfg.STTLanguage)
	assert.Empty(t, cfg.StatusAddr)
}

func TestLoadConfigFileErrors(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wake_word: [unterminated"), 0644))
	t.Setenv("CONFIG_FILE", path)
	_, err = Load()
	assert.Error(t, err)
}
