// Package webrtc classifies frames with the WebRTC voice activity detector.
package webrtc

import (
	"fmt"
	"sync"

	"github.com/maxhawkins/go-webrtcvad"
	"github.com/user/homehub-voice/internal/audio"
	"github.com/user/homehub-voice/internal/vad"
)

const (
	DefaultMode = 2

	subframeMS = 20
)

// Classifier splits each capture frame into 20ms subframes, runs WebRTC VAD
// on each and calls the frame speech when at least half of them are voiced.
// Frames WebRTC cannot take fall back to the RMS rule.
type Classifier struct {
	vad      *webrtcvad.VAD
	fallback vad.RMSClassifier
	mutex    sync.Mutex
}

// New creates a classifier. mode is the WebRTC aggressiveness, 0 to 3.
func New(mode int, rmsThreshold float64) (*Classifier, error) {
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("webrtc vad mode must be 0-3, got %d", mode)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create webrtc vad: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set webrtc vad mode: %w", err)
	}

	return &Classifier{
		vad:      v,
		fallback: vad.RMSClassifier{Threshold: rmsThreshold},
	}, nil
}

func (c *Classifier) IsSpeech(pcm []int16, sampleRate int) (bool, float64) {
	rms := vad.RMS(pcm)

	if !supportedRate(sampleRate) {
		return c.fallback.IsSpeech(pcm, sampleRate)
	}
	sub := sampleRate * subframeMS / 1000
	if len(pcm) < sub {
		return c.fallback.IsSpeech(pcm, sampleRate)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	var voiced, total int
	for off := 0; off+sub <= len(pcm); off += sub {
		active, err := c.vad.Process(sampleRate, audio.Int16ToBytes(pcm[off:off+sub]))
		if err != nil {
			return c.fallback.IsSpeech(pcm, sampleRate)
		}
		total++
		if active {
			voiced++
		}
	}

	return voiced*2 >= total, rms
}

func supportedRate(rate int) bool {
	switch rate {
	case 8000, 16000, 32000, 48000:
		return true
	}
	return false
}
