package audio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frame is one capture tick of mono PCM audio.
type Frame struct {
	PCM        []int16
	SampleRate int
	Timestamp  time.Time
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.PCM)) * time.Second / time.Duration(f.SampleRate)
}

// Utterance is the encoded audio captured between a speech start and its
// matching speech end.
type Utterance struct {
	ID         uuid.UUID
	Chunks     [][]byte
	Codec      Codec
	SampleRate int
	Start      time.Time
	End        time.Time
}

// Duration returns the wall-clock span of the utterance.
func (u *Utterance) Duration() time.Duration {
	return u.End.Sub(u.Start)
}

// Bytes returns the total encoded payload size.
func (u *Utterance) Bytes() int {
	n := 0
	for _, c := range u.Chunks {
		n += len(c)
	}
	return n
}

// PCM decodes all chunks back into mono 16-bit samples.
func (u *Utterance) PCM() ([]int16, error) {
	if u.Codec == nil {
		return nil, fmt.Errorf("utterance %s has no codec", u.ID)
	}

	decoder, err := u.Codec.NewDecoder(u.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s decoder: %w", u.Codec.Name(), err)
	}

	var pcm []int16
	for i, chunk := range u.Chunks {
		samples, err := decoder.Decode(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to decode chunk %d: %w", i, err)
		}
		pcm = append(pcm, samples...)
	}
	return pcm, nil
}

// Codec produces per-utterance encoders and decoders. Encoders and decoders
// may keep state between calls, so one is created per utterance.
type Codec interface {
	Name() string
	NewEncoder(sampleRate int) (Encoder, error)
	NewDecoder(sampleRate int) (Decoder, error)
}

// Encoder turns PCM into zero or more encoded chunks. On error Encode still
// returns the chunks it produced before the failure.
type Encoder interface {
	Encode(pcm []int16) ([][]byte, error)
	// Flush emits whatever partial data is still buffered.
	Flush() ([][]byte, error)
}

// Decoder turns one encoded chunk back into PCM.
type Decoder interface {
	Decode(chunk []byte) ([]int16, error)
}

// Device is a source of raw microphone samples. Read blocks until buf is
// filled with one tick of audio.
type Device interface {
	Open(cfg CaptureConfig) error
	Read(buf []int16) error
	Close() error
}
