//go:build !vosk

package vosk

import (
	"context"
	"fmt"

	"github.com/user/homehub-voice/internal/audio"
	"github.com/user/homehub-voice/internal/stt"
)

// VoskTranscriber is unavailable in this build; rebuild with -tags vosk and
// libvosk installed.
type VoskTranscriber struct{}

func NewVoskTranscriber(modelPath string, sampleRate int) (*VoskTranscriber, error) {
	return nil, fmt.Errorf("vosk backend not compiled in, rebuild with -tags vosk")
}

func (v *VoskTranscriber) Name() string { return "vosk" }

func (v *VoskTranscriber) Transcribe(context.Context, *audio.Utterance) (*stt.Result, error) {
	return nil, fmt.Errorf("vosk backend not compiled in")
}

func (v *VoskTranscriber) Close() error { return nil }
