package stt

import (
	"context"
	"errors"
	"time"

	"github.com/user/homehub-voice/internal/audio"
)

var (
	// ErrTranscriptionFailure covers a failed, timed out or empty recognition.
	ErrTranscriptionFailure = errors.New("transcription failed")
	// ErrQueueClosed is returned by Submit after the client has stopped.
	ErrQueueClosed = errors.New("transcription queue closed")
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultLanguage = "en"
)

// Transcriber is a speech recognition backend. Implementations are called
// from a single goroutine and need not be safe for concurrent use.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, utterance *audio.Utterance) (*Result, error)
	Close() error
}

// Result is the outcome of transcribing one utterance. On failure Text is
// empty and Err wraps ErrTranscriptionFailure.
type Result struct {
	Utterance  *audio.Utterance
	Text       string
	Confidence float64
	Backend    string
	Latency    time.Duration
	Err        error
}

// OK reports whether the result carries usable text.
func (r *Result) OK() bool {
	return r.Err == nil && r.Text != ""
}

// UtteranceWAV decodes u and wraps it in a WAV container.
func UtteranceWAV(u *audio.Utterance) ([]byte, error) {
	pcm, err := u.PCM()
	if err != nil {
		return nil, err
	}
	return audio.EncodeWAV(pcm, u.SampleRate)
}
