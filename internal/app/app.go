// Package app builds the voice pipeline and its servers from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/user/homehub-voice/internal/audio"
	"github.com/user/homehub-voice/internal/audio/opus"
	"github.com/user/homehub-voice/internal/command"
	"github.com/user/homehub-voice/internal/config"
	"github.com/user/homehub-voice/internal/dispatch"
	"github.com/user/homehub-voice/internal/homehub"
	"github.com/user/homehub-voice/internal/observe"
	"github.com/user/homehub-voice/internal/pipeline"
	"github.com/user/homehub-voice/internal/session"
	"github.com/user/homehub-voice/internal/status"
	"github.com/user/homehub-voice/internal/store"
	"github.com/user/homehub-voice/internal/stt"
	"github.com/user/homehub-voice/internal/stt/deepgram"
	"github.com/user/homehub-voice/internal/stt/gemini"
	"github.com/user/homehub-voice/internal/stt/vosk"
	"github.com/user/homehub-voice/internal/stt/whispercli"
	"github.com/user/homehub-voice/internal/stt/whisperserver"
	"github.com/user/homehub-voice/internal/vad"
	"github.com/user/homehub-voice/internal/vad/webrtc"
)

type App struct {
	config      *config.Config
	fs          afero.Fs
	hub         *homehub.Hub
	metrics     *observe.Metrics
	store       *store.FileStore
	transcriber stt.Transcriber
	pipeline    *pipeline.Pipeline
	status      *status.Server

	statusDone chan error
	watchStop  func()
	mutex      sync.Mutex
}

type options struct {
	fs          afero.Fs
	device      audio.Device
	transcriber stt.Transcriber
}

type Option func(*options)

// WithFs replaces the filesystem used for the command log and replayed
// capture files.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithDevice replaces the configured capture device.
func WithDevice(d audio.Device) Option {
	return func(o *options) { o.device = d }
}

// WithTranscriber replaces the configured STT backend.
func WithTranscriber(t stt.Transcriber) Option {
	return func(o *options) { o.transcriber = t }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	fileStore, err := store.NewFileStore(o.fs, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	transcriber := o.transcriber
	if transcriber == nil {
		transcriber, err = NewTranscriber(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	a := &App{
		config:      cfg,
		fs:          o.fs,
		hub:         homehub.New(time.Now()),
		metrics:     observe.NewMetrics(),
		store:       fileStore,
		transcriber: transcriber,
	}

	device := o.device
	if device == nil {
		device = newDevice(cfg, o.fs)
	}

	p, err := a.buildPipeline(device)
	if err != nil {
		transcriber.Close()
		return nil, err
	}
	a.pipeline = p

	if cfg.StatusAddr != "" {
		a.status = status.New(cfg.StatusAddr, a.Report, a.metrics.Handler())
	}

	return a, nil
}

func newDevice(cfg *config.Config, fs afero.Fs) audio.Device {
	if path, ok := cfg.CaptureFile(); ok {
		log.Info().Str("file", path).Msg("Replaying capture file instead of microphone")
		return audio.NewFileDevice(fs, path, true)
	}
	return audio.NewDefaultDevice()
}

// NewTranscriber builds the STT backend selected by STT_BACKEND.
func NewTranscriber(ctx context.Context, cfg *config.Config) (stt.Transcriber, error) {
	var (
		transcriber stt.Transcriber
		err         error
	)

	switch cfg.STTBackend {
	case "whisper-cli":
		transcriber, err = whispercli.NewWhisperCLITranscriber(afero.NewOsFs(), cfg.WhisperCPPPath, cfg.WhisperModelPath, cfg.STTLanguage)
	case "whisper-server":
		transcriber, err = whisperserver.NewWhisperServerTranscriber(cfg.WhisperServerURL, cfg.STTLanguage)
	case "deepgram":
		transcriber, err = deepgram.NewDeepgramTranscriber(cfg.DeepgramAPIKey, cfg.DeepgramTier, cfg.STTLanguage, cfg.DeepgramURL)
	case "gemini":
		transcriber, err = gemini.NewGeminiTranscriber(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, cfg.STTLanguage)
	case "vosk":
		transcriber, err = vosk.NewVoskTranscriber(cfg.VoskModelPath, cfg.SampleRate)
	default:
		return nil, fmt.Errorf("unsupported STT backend: %s", cfg.STTBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s transcriber: %w", cfg.STTBackend, err)
	}

	log.Info().Str("backend", transcriber.Name()).Msg("Transcriber ready")
	return transcriber, nil
}

// NewInterpreter builds the command interpreter for the configured wake word.
func NewInterpreter(cfg *config.Config) (*command.Interpreter, error) {
	var opts []command.Option
	if cfg.WakeFuzzy {
		opts = append(opts, command.WithFuzzyWake(cfg.WakeFuzzyThreshold))
	}
	interpreter, err := command.NewInterpreter(cfg.WakeWord, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter: %w", err)
	}
	return interpreter, nil
}

func newCodec(name string) (audio.Codec, error) {
	switch name {
	case "pcm16":
		return audio.PCM16, nil
	case "opus":
		return opus.Codec, nil
	default:
		return nil, fmt.Errorf("unsupported audio codec: %s", name)
	}
}

func newClassifier(cfg *config.Config) (vad.Classifier, error) {
	switch cfg.VADClassifier {
	case "rms":
		return nil, nil
	case "webrtc":
		c, err := webrtc.New(cfg.VADWebRTCMode, cfg.VADThreshold)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported VAD classifier: %s", cfg.VADClassifier)
	}
}

func (a *App) buildPipeline(device audio.Device) (*pipeline.Pipeline, error) {
	cfg := a.config

	capture, err := audio.NewCapture(audio.CaptureConfig{
		SampleRate:       cfg.SampleRate,
		Channels:         audio.DefaultChannels,
		EchoCancellation: cfg.EchoCancellation,
		NoiseSuppression: cfg.NoiseSuppression,
		Tick:             cfg.Tick,
	}, device)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture: %w", err)
	}

	classifier, err := newClassifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create VAD classifier: %w", err)
	}
	detector, err := vad.New(vad.Config{
		Threshold:   cfg.VADThreshold,
		QuietWindow: cfg.VADQuietWindow,
	}, classifier)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice activity detector: %w", err)
	}

	codec, err := newCodec(cfg.AudioCodec)
	if err != nil {
		return nil, err
	}
	recorder, err := audio.NewRecorder(codec, cfg.SampleRate, cfg.MaxUtterance)
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}

	client, err := stt.NewClient(a.transcriber, cfg.STTTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription client: %w", err)
	}

	interpreter, err := NewInterpreter(cfg)
	if err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.New(a.hub.Date(), a.hub.View(), a.hub, interpreter.WakeWord())
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	return pipeline.New(pipeline.Options{
		ID:          store.GenerateSessionID(),
		Capture:     capture,
		Detector:    detector,
		Recorder:    recorder,
		Client:      client,
		Interpreter: interpreter,
		Session:     session.New(cfg.AwakeWindow),
		Dispatcher:  dispatcher,
		Log:         a.store,
		Metrics:     a.metrics,
	})
}

// Report combines the session state with the hub's date and view.
func (a *App) Report() status.Report {
	return status.Report{
		Snapshot: a.pipeline.Status(),
		Date:     a.hub.Date().Get().Format("2006-01-02"),
		View:     string(a.hub.View().Get()),
	}
}

// Hub returns the in-memory hub state.
func (a *App) Hub() *homehub.Hub {
	return a.hub
}

// Pipeline returns the voice pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Start launches the status server and the pipeline. An unavailable
// microphone is logged and leaves the app running with listening=false.
func (a *App) Start(ctx context.Context) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.status != nil {
		changes, stop := a.pipeline.Session().Subscribe()
		a.watchStop = stop
		go func() {
			for range changes {
				a.status.Notify()
			}
		}()
		a.hub.OnChange(a.status.Notify)

		a.statusDone = make(chan error, 1)
		go func() {
			err := a.status.Start()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status server failed")
			}
			a.statusDone <- err
		}()
	}

	if err := a.pipeline.Start(ctx); err != nil {
		if errors.Is(err, audio.ErrCaptureUnavailable) {
			log.Warn().Msg("Continuing without voice input")
			return nil
		}
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	log.Info().Msg("Home hub voice started")
	return nil
}

// Stop shuts everything down, bounded by ctx for the HTTP server.
func (a *App) Stop(ctx context.Context) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	var errs []error

	if err := a.pipeline.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop pipeline: %w", err))
	}
	if a.watchStop != nil {
		a.watchStop()
	}

	if a.status != nil {
		if err := a.status.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop status server: %w", err))
		}
		if a.statusDone != nil {
			select {
			case <-a.statusDone:
			case <-ctx.Done():
			}
		}
	}

	if a.transcriber != nil {
		if err := a.transcriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transcriber: %w", err))
		}
	}

	log.Info().Msg("Home hub voice stopped")
	return errors.Join(errs...)
}
