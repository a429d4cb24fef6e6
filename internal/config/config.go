package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Wake word
	WakeWord           string
	WakeFuzzy          bool
	WakeFuzzyThreshold float64
	AwakeWindow        time.Duration

	// Capture
	CaptureDevice    string // "default" or "file:<path>"
	SampleRate       int
	Tick             time.Duration
	EchoCancellation bool
	NoiseSuppression bool

	// VAD
	VADThreshold   float64
	VADQuietWindow time.Duration
	VADClassifier  string // "rms" or "webrtc"
	VADWebRTCMode  int

	// Recording
	AudioCodec   string // "pcm16" or "opus"
	MaxUtterance time.Duration

	// STT Backend
	STTBackend  string // "whisper-cli", "whisper-server", "deepgram", "gemini" or "vosk"
	STTTimeout  time.Duration
	STTLanguage string

	// whisper.cpp settings
	WhisperCPPPath   string
	WhisperModelPath string
	WhisperServerURL string

	// Deepgram settings
	DeepgramAPIKey string
	DeepgramTier   string
	DeepgramURL    string

	// Gemini settings
	GenAIAPIKey string
	GenAIModel  string

	// Vosk settings
	VoskModelPath string

	// Status server; empty disables it.
	StatusAddr string

	// Command log
	DataDir string

	// Logging
	LogLevel string
}

const (
	CaptureDefault    = "default"
	captureFilePrefix = "file:"
)

// CaptureFile returns the WAV path when the capture device replays a file.
func (c *Config) CaptureFile() (string, bool) {
	if strings.HasPrefix(c.CaptureDevice, captureFilePrefix) {
		return strings.TrimPrefix(c.CaptureDevice, captureFilePrefix), true
	}
	return "", false
}

// Load reads .env, then the optional YAML file named by CONFIG_FILE, then
// the environment. Environment variables win over the YAML file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file found, using environment variables only")
	}

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		overlay, err := readOverlay(path)
		if err != nil {
			return nil, err
		}
		src.overlay = overlay
		log.Info().Str("file", path).Int("keys", len(overlay)).Msg("Loaded config file")
	}

	cfg := &Config{
		// Wake word
		WakeWord:           src.getEnvOrDefault("WAKE_WORD", "lexicat"),
		WakeFuzzy:          src.getBoolEnvOrDefault("WAKE_FUZZY", false),
		WakeFuzzyThreshold: src.getFloatEnvOrDefault("WAKE_FUZZY_THRESHOLD", 0.88),
		AwakeWindow:        src.getMillisEnvOrDefault("AWAKE_WINDOW_MS", 3000),

		// Capture
		CaptureDevice:    src.getEnvOrDefault("CAPTURE_DEVICE", CaptureDefault),
		SampleRate:       src.getIntEnvOrDefault("SAMPLE_RATE", 16000),
		Tick:             src.getMillisEnvOrDefault("TICK_MS", 100),
		EchoCancellation: src.getBoolEnvOrDefault("ECHO_CANCELLATION", true),
		NoiseSuppression: src.getBoolEnvOrDefault("NOISE_SUPPRESSION", true),

		// VAD
		VADThreshold:   src.getFloatEnvOrDefault("VAD_THRESHOLD", 0.1),
		VADQuietWindow: src.getMillisEnvOrDefault("VAD_QUIET_WINDOW_MS", 1000),
		VADClassifier:  src.getEnvOrDefault("VAD_CLASSIFIER", "rms"),
		VADWebRTCMode:  src.getIntEnvOrDefault("VAD_WEBRTC_MODE", 2),

		// Recording
		AudioCodec:   src.getEnvOrDefault("AUDIO_CODEC", "pcm16"),
		MaxUtterance: src.getMillisEnvOrDefault("MAX_UTTERANCE_MS", 15000),

		// STT Backend
		STTBackend:  src.getEnvOrDefault("STT_BACKEND", "whisper-cli"),
		STTTimeout:  src.getMillisEnvOrDefault("STT_TIMEOUT_MS", 15000),
		STTLanguage: src.getEnvOrDefault("STT_LANGUAGE", "en"),

		// whisper.cpp
		WhisperCPPPath:   src.getEnvOrDefault("WHISPER_CPP_PATH", "whisper-cli"),
		WhisperModelPath: src.getEnvOrDefault("WHISPER_MODEL_PATH", "./models/ggml-base.en.bin"),
		WhisperServerURL: src.getEnvOrDefault("WHISPER_SERVER_URL", "http://127.0.0.1:8080"),

		// Deepgram
		DeepgramAPIKey: src.get("DEEPGRAM_API_KEY"),
		DeepgramTier:   src.getEnvOrDefault("DEEPGRAM_TIER", "nova-2"),
		DeepgramURL:    src.getEnvOrDefault("DEEPGRAM_URL", "https://api.deepgram.com/v1/listen"),

		// Gemini
		GenAIAPIKey: src.get("GENAI_API_KEY"),
		GenAIModel:  src.getEnvOrDefault("GENAI_MODEL", "gemini-1.5-flash"),

		// Vosk
		VoskModelPath: src.getEnvOrDefault("VOSK_MODEL_PATH", "./models/vosk/en"),

		StatusAddr: src.getOptionalEnv("STATUS_ADDR", ":8090"),
		DataDir:    src.getEnvOrDefault("DATA_DIR", "./data"),

		// Logging
		LogLevel: src.getEnvOrDefault("LOG_LEVEL", "info"),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.WakeWord) == "" {
		return fmt.Errorf("WAKE_WORD must not be empty")
	}
	if c.WakeFuzzy && (c.WakeFuzzyThreshold <= 0 || c.WakeFuzzyThreshold > 1) {
		return fmt.Errorf("WAKE_FUZZY_THRESHOLD must be in (0, 1]")
	}
	if c.AwakeWindow <= 0 {
		return fmt.Errorf("AWAKE_WINDOW_MS must be positive")
	}

	if c.CaptureDevice != CaptureDefault {
		if path, ok := c.CaptureFile(); !ok || path == "" {
			return fmt.Errorf("CAPTURE_DEVICE must be 'default' or 'file:<path>'")
		}
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive")
	}
	if c.Tick <= 0 {
		return fmt.Errorf("TICK_MS must be positive")
	}

	if c.VADThreshold <= 0 || c.VADThreshold >= 1 {
		return fmt.Errorf("VAD_THRESHOLD must be in (0, 1)")
	}
	if c.VADQuietWindow <= 0 {
		return fmt.Errorf("VAD_QUIET_WINDOW_MS must be positive")
	}
	switch c.VADClassifier {
	case "rms":
	case "webrtc":
		if c.VADWebRTCMode < 0 || c.VADWebRTCMode > 3 {
			return fmt.Errorf("VAD_WEBRTC_MODE must be 0-3")
		}
	default:
		return fmt.Errorf("VAD_CLASSIFIER must be 'rms' or 'webrtc'")
	}

	if c.AudioCodec != "pcm16" && c.AudioCodec != "opus" {
		return fmt.Errorf("AUDIO_CODEC must be 'pcm16' or 'opus'")
	}
	if c.MaxUtterance < 0 {
		return fmt.Errorf("MAX_UTTERANCE_MS must not be negative")
	}

	if c.STTTimeout <= 0 {
		return fmt.Errorf("STT_TIMEOUT_MS must be positive")
	}
	switch c.STTBackend {
	case "whisper-cli":
		if c.WhisperCPPPath == "" || c.WhisperModelPath == "" {
			return fmt.Errorf("WHISPER_CPP_PATH and WHISPER_MODEL_PATH are required when using whisper-cli backend")
		}
	case "whisper-server":
		if c.WhisperServerURL == "" {
			return fmt.Errorf("WHISPER_SERVER_URL is required when using whisper-server backend")
		}
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when using deepgram backend")
		}
	case "gemini":
		if c.GenAIAPIKey == "" {
			return fmt.Errorf("GENAI_API_KEY is required when using gemini backend")
		}
	case "vosk":
		if c.VoskModelPath == "" {
			return fmt.Errorf("VOSK_MODEL_PATH is required when using vosk backend")
		}
	default:
		return fmt.Errorf("STT_BACKEND must be one of 'whisper-cli', 'whisper-server', 'deepgram', 'gemini', 'vosk'")
	}

	return nil
}

func readOverlay(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	overlay := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			overlay[strings.ToUpper(k)] = ""
			continue
		}
		overlay[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return overlay, nil
}

// source resolves a key from the environment first, then the YAML overlay.
type source struct {
	overlay map[string]string
}

func (s source) lookup(key string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok {
		return value, true
	}
	value, ok := s.overlay[key]
	return value, ok
}

func (s source) get(key string) string {
	value, _ := s.lookup(key)
	return value
}

func (s source) getEnvOrDefault(key, defaultValue string) string {
	if value := s.get(key); value != "" {
		return value
	}
	return defaultValue
}

// getOptionalEnv distinguishes an explicitly empty value from an unset one.
func (s source) getOptionalEnv(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (s source) getIntEnvOrDefault(key string, defaultValue int) int {
	if value := s.get(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
	}
	return defaultValue
}

func (s source) getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := s.get(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid number, using default")
	}
	return defaultValue
}

func (s source) getBoolEnvOrDefault(key string, defaultValue bool) bool {
	if value := s.get(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid boolean, using default")
	}
	return defaultValue
}

func (s source) getMillisEnvOrDefault(key string, defaultMS int) time.Duration {
	return time.Duration(s.getIntEnvOrDefault(key, defaultMS)) * time.Millisecond
}
