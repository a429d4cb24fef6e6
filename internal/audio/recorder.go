package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxUtterance = 15 * time.Second

	utteranceBuffer = 4
)

// Drop reasons reported to the drop handler.
const (
	DropEmpty       = "empty"
	DropChannelFull = "channel_full"
	DropStopped     = "stopped"
)

// Recorder buffers encoded audio between a speech start and speech end and
// emits the result as an Utterance. At most one recording is open at a time.
type Recorder struct {
	codec       Codec
	sampleRate  int
	maxDuration time.Duration

	encoder   Encoder
	chunks    [][]byte
	start     time.Time
	recorded  time.Duration
	recording bool

	onDrop func(reason string)

	utteranceChan chan *Utterance
	stopChan      chan struct{}
	stopped       bool
	mutex         sync.Mutex
}

// NewRecorder creates a recorder. A maxDuration of zero disables the
// runaway-recording guard.
func NewRecorder(codec Codec, sampleRate int, maxDuration time.Duration) (*Recorder, error) {
	if codec == nil {
		return nil, fmt.Errorf("codec is nil")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if maxDuration < 0 {
		return nil, fmt.Errorf("max utterance duration must not be negative, got %s", maxDuration)
	}

	return &Recorder{
		codec:         codec,
		sampleRate:    sampleRate,
		maxDuration:   maxDuration,
		utteranceChan: make(chan *Utterance, utteranceBuffer),
		stopChan:      make(chan struct{}),
	}, nil
}

// OnDrop registers fn to be called whenever an utterance is discarded
// instead of being emitted.
func (r *Recorder) OnDrop(fn func(reason string)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.onDrop = fn
}

// SpeechStart opens a recording. It does nothing if one is already open.
func (r *Recorder) SpeechStart(ts time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped || r.recording {
		return
	}

	encoder, err := r.codec.NewEncoder(r.sampleRate)
	if err != nil {
		log.Error().Err(err).Str("codec", r.codec.Name()).Msg("Failed to create encoder, ignoring speech")
		return
	}

	r.encoder = encoder
	r.chunks = nil
	r.start = ts
	r.recorded = 0
	r.recording = true

	log.Debug().Time("start", ts).Msg("Recording started")
}

// AddFrame encodes f into the open recording, if any. It reports true when
// the frame pushed the recording past the maximum length and the recorder
// ended it on its own.
func (r *Recorder) AddFrame(f Frame) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped || !r.recording {
		return false
	}

	chunks, err := r.encoder.Encode(f.PCM)
	r.chunks = append(r.chunks, chunks...)
	if err != nil {
		log.Warn().
			Err(err).
			Str("codec", r.codec.Name()).
			Int("kept_chunks", len(chunks)).
			Msg("Failed to encode part of frame")
	}
	r.recorded += f.Duration()

	if r.maxDuration > 0 && r.recorded >= r.maxDuration {
		log.Warn().
			Dur("recorded", r.recorded).
			Dur("max", r.maxDuration).
			Msg("Utterance reached maximum length, ending recording")
		r.finish(f.Timestamp.Add(f.Duration()))
		return true
	}
	return false
}

// SpeechEnd closes the open recording and emits it. Recordings without any
// audio are dropped.
func (r *Recorder) SpeechEnd(ts time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped || !r.recording {
		return
	}
	r.finish(ts)
}

// Recording reports whether a recording is open.
func (r *Recorder) Recording() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.recording
}

func (r *Recorder) finish(end time.Time) {
	if tail, err := r.encoder.Flush(); err != nil {
		log.Warn().Err(err).Str("codec", r.codec.Name()).Msg("Failed to flush encoder")
	} else {
		r.chunks = append(r.chunks, tail...)
	}

	chunks := r.chunks
	start := r.start
	r.reset()

	if len(chunks) == 0 {
		log.Debug().Msg("Dropping empty utterance")
		r.drop(DropEmpty)
		return
	}

	utterance := &Utterance{
		ID:         uuid.New(),
		Chunks:     chunks,
		Codec:      r.codec,
		SampleRate: r.sampleRate,
		Start:      start,
		End:        end,
	}

	select {
	case r.utteranceChan <- utterance:
		log.Debug().
			Str("utterance_id", utterance.ID.String()).
			Time("start", utterance.Start).
			Time("end", utterance.End).
			Int("chunks", len(utterance.Chunks)).
			Int("bytes", utterance.Bytes()).
			Msg("Recorded utterance")
	case <-r.stopChan:
		r.drop(DropStopped)
	default:
		log.Warn().Str("utterance_id", utterance.ID.String()).Msg("Utterance channel full, dropping utterance")
		r.drop(DropChannelFull)
	}
}

func (r *Recorder) reset() {
	r.encoder = nil
	r.chunks = nil
	r.start = time.Time{}
	r.recorded = 0
	r.recording = false
}

func (r *Recorder) drop(reason string) {
	if r.onDrop != nil {
		r.onDrop(reason)
	}
}

// Utterances returns the channel of finished utterances. It is closed by Stop.
func (r *Recorder) Utterances() <-chan *Utterance {
	return r.utteranceChan
}

// Stop discards any open recording and closes the output channel.
func (r *Recorder) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped {
		return
	}

	if r.recording {
		log.Debug().Int("chunks", len(r.chunks)).Msg("Discarding open recording")
		r.reset()
		r.drop(DropStopped)
	}

	r.stopped = true
	close(r.stopChan)
	close(r.utteranceChan)
}
