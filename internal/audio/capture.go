package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCaptureUnavailable is returned when the microphone cannot be opened,
// e.g. permission denied or no input device.
var ErrCaptureUnavailable = errors.New("audio capture unavailable")

// ErrCaptureLost is reported by Capture.Err when an open device kept failing
// reads for longer than ReadErrorTimeout.
var ErrCaptureLost = errors.New("audio capture lost")

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultTick       = 100 * time.Millisecond

	DefaultReadErrorTimeout = 2 * time.Second

	frameBuffer = 16
)

// CaptureConfig describes the microphone stream.
type CaptureConfig struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
	Tick             time.Duration

	// ReadErrorTimeout bounds how long reads may fail back to back before
	// capture gives up and closes the frame channel. Zero means
	// DefaultReadErrorTimeout.
	ReadErrorTimeout time.Duration
}

// DefaultCaptureConfig returns 16kHz mono with 100ms frames.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:       DefaultSampleRate,
		Channels:         DefaultChannels,
		EchoCancellation: true,
		NoiseSuppression: true,
		Tick:             DefaultTick,
		ReadErrorTimeout: DefaultReadErrorTimeout,
	}
}

// FrameSamples is the number of samples in one tick.
func (c CaptureConfig) FrameSamples() int {
	return int(int64(c.SampleRate) * int64(c.Channels) * int64(c.Tick) / int64(time.Second))
}

func (c CaptureConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 {
		return fmt.Errorf("only mono capture is supported, got %d channels", c.Channels)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	if c.FrameSamples() == 0 {
		return fmt.Errorf("tick %s is shorter than one sample", c.Tick)
	}
	if c.ReadErrorTimeout < 0 {
		return fmt.Errorf("read error timeout must not be negative, got %s", c.ReadErrorTimeout)
	}
	return nil
}

// Capture owns a Device for its whole lifetime and turns it into a stream of
// Frames. A Capture can be started once.
type Capture struct {
	cfg    CaptureConfig
	device Device

	frames   chan Frame
	stopChan chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	mutex    sync.Mutex

	framesSent    uint64
	framesDropped uint64

	err   error
	errMu sync.Mutex
}

// NewCapture validates cfg and binds it to device.
func NewCapture(cfg CaptureConfig, device Device) (*Capture, error) {
	if device == nil {
		return nil, fmt.Errorf("capture device is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	if cfg.ReadErrorTimeout == 0 {
		cfg.ReadErrorTimeout = DefaultReadErrorTimeout
	}

	return &Capture{
		cfg:      cfg,
		device:   device,
		frames:   make(chan Frame, frameBuffer),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Config returns the capture configuration.
func (c *Capture) Config() CaptureConfig {
	return c.cfg
}

// Start opens the device and begins delivering frames. The returned channel
// is closed when capture ends for any reason. Failing to open the device
// yields an error wrapping ErrCaptureUnavailable.
func (c *Capture) Start(ctx context.Context) (<-chan Frame, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.started {
		return nil, fmt.Errorf("capture already started")
	}
	c.started = true

	if err := c.device.Open(c.cfg); err != nil {
		close(c.frames)
		close(c.done)
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	log.Info().
		Int("sample_rate", c.cfg.SampleRate).
		Int("channels", c.cfg.Channels).
		Dur("tick", c.cfg.Tick).
		Bool("echo_cancellation", c.cfg.EchoCancellation).
		Bool("noise_suppression", c.cfg.NoiseSuppression).
		Msg("Microphone opened")

	go c.captureLoop(ctx)

	return c.frames, nil
}

// Stop ends capture and waits until the device has been closed. It is safe
// to call Stop more than once, and before or after Start.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})

	c.mutex.Lock()
	started := c.started
	c.mutex.Unlock()

	if started {
		<-c.done
	}
}

// Err returns why capture ended on its own, or nil when it is still running,
// reached the end of stream or was stopped.
func (c *Capture) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Capture) captureLoop(ctx context.Context) {
	defer close(c.done)
	defer close(c.frames)
	defer func() {
		if err := c.device.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close capture device")
		}
		log.Info().
			Uint64("frames_sent", c.framesSent).
			Uint64("frames_dropped", c.framesDropped).
			Msg("Microphone closed")
	}()

	samples := c.cfg.FrameSamples()

	var (
		failingSince time.Time
		readErrors   int
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		default:
		}

		buf := make([]int16, samples)
		if err := c.device.Read(buf); err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("Capture device reached end of stream")
				return
			}

			now := time.Now()
			if failingSince.IsZero() {
				failingSince = now
				log.Warn().Err(err).Msg("Failed to read capture frame")
			} else {
				readErrors++
			}
			if now.Sub(failingSince) >= c.cfg.ReadErrorTimeout {
				c.errMu.Lock()
				c.err = fmt.Errorf("%w: %v", ErrCaptureLost, err)
				c.errMu.Unlock()
				log.Error().
					Err(err).
					Int("repeated_errors", readErrors).
					Dur("failing_for", now.Sub(failingSince)).
					Msg("Capture device keeps failing, giving up")
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case <-time.After(c.cfg.Tick / 10):
			}
			continue
		}
		if !failingSince.IsZero() {
			log.Info().Int("repeated_errors", readErrors).Msg("Capture device recovered")
			failingSince = time.Time{}
			readErrors = 0
		}

		frame := Frame{
			PCM:        buf,
			SampleRate: c.cfg.SampleRate,
			Timestamp:  time.Now(),
		}

		select {
		case c.frames <- frame:
			c.framesSent++
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		default:
			c.framesDropped++
			log.Warn().Uint64("dropped", c.framesDropped).Msg("Frame channel full, dropping frame")
		}
	}
}
