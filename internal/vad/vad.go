// Package vad turns a stream of PCM frames into speech start and end edges.
package vad

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is the edge reported for a processed frame.
type Event int

const (
	None Event = iota
	SpeechStart
	SpeechEnd
)

func (e Event) String() string {
	switch e {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	default:
		return "none"
	}
}

const (
	DefaultThreshold   = 0.1
	DefaultQuietWindow = time.Second
)

// Classifier decides whether a single frame contains speech. The returned
// level is informational and is exposed by Detector.Level.
type Classifier interface {
	IsSpeech(pcm []int16, sampleRate int) (bool, float64)
}

// RMS returns the root mean square of the frame after normalizing samples to
// [-1, 1) and removing the frame's DC offset.
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}

	var mean float64
	for _, s := range pcm {
		mean += float64(s) / 32768.0
	}
	mean /= float64(len(pcm))

	var sum float64
	for _, s := range pcm {
		v := float64(s)/32768.0 - mean
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

// RMSClassifier treats any frame whose RMS exceeds Threshold as speech.
type RMSClassifier struct {
	Threshold float64
}

func (c RMSClassifier) IsSpeech(pcm []int16, _ int) (bool, float64) {
	rms := RMS(pcm)
	return rms > c.Threshold, rms
}

type Config struct {
	Threshold   float64
	QuietWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		QuietWindow: DefaultQuietWindow,
	}
}

func (c Config) validate() error {
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1), got %g", c.Threshold)
	}
	if c.QuietWindow <= 0 {
		return fmt.Errorf("quiet window must be positive, got %s", c.QuietWindow)
	}
	return nil
}

// Detector applies hysteresis to per-frame classifications. Speech starts on
// the first speech frame and ends only after QuietWindow worth of
// consecutive non-speech frames.
type Detector struct {
	cfg        Config
	classifier Classifier

	speaking bool
	quiet    time.Duration
	level    float64
	mutex    sync.Mutex
}

// New creates a detector. A nil classifier selects RMSClassifier with the
// configured threshold.
func New(cfg Config, classifier Classifier) (*Detector, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid vad config: %w", err)
	}
	if classifier == nil {
		classifier = RMSClassifier{Threshold: cfg.Threshold}
	}
	return &Detector{
		cfg:        cfg,
		classifier: classifier,
	}, nil
}

// Process classifies one frame and returns the resulting edge, if any.
func (d *Detector) Process(pcm []int16, sampleRate int) Event {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	speech, level := d.classifier.IsSpeech(pcm, sampleRate)
	d.level = level

	if speech {
		d.quiet = 0
		if !d.speaking {
			d.speaking = true
			log.Debug().Float64("level", level).Msg("Speech started")
			return SpeechStart
		}
		return None
	}

	if !d.speaking {
		return None
	}

	if sampleRate > 0 {
		d.quiet += time.Duration(len(pcm)) * time.Second / time.Duration(sampleRate)
	}
	if d.quiet >= d.cfg.QuietWindow {
		d.speaking = false
		d.quiet = 0
		log.Debug().Dur("quiet_window", d.cfg.QuietWindow).Msg("Speech ended")
		return SpeechEnd
	}
	return None
}

// Speaking reports whether the detector is inside a speech segment.
func (d *Detector) Speaking() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.speaking
}

// Level returns the classifier level of the last processed frame.
func (d *Detector) Level() float64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.level
}

// Reset returns the detector to silence without emitting an edge and drops
// any pending quiet time.
func (d *Detector) Reset() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.speaking = false
	d.quiet = 0
	d.level = 0
}
