// Package pipeline joins capture, voice activity detection, recording,
// transcription and command handling into one running voice session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/homehub-voice/internal/audio"
	"github.com/user/homehub-voice/internal/command"
	"github.com/user/homehub-voice/internal/dispatch"
	"github.com/user/homehub-voice/internal/observe"
	"github.com/user/homehub-voice/internal/session"
	"github.com/user/homehub-voice/internal/store"
	"github.com/user/homehub-voice/internal/stt"
	"github.com/user/homehub-voice/internal/vad"
	"golang.org/x/sync/errgroup"
)

// CommandLog receives one record per transcription outcome.
type CommandLog interface {
	Append(sessionID string, rec store.Record) error
}

type Options struct {
	ID          string
	Capture     *audio.Capture
	Detector    *vad.Detector
	Recorder    *audio.Recorder
	Client      *stt.Client
	Interpreter *command.Interpreter
	Session     *session.Session
	Dispatcher  *dispatch.Dispatcher

	// Optional.
	Log     CommandLog
	Metrics *observe.Metrics
}

// Pipeline runs the sampling, forwarding and result stages on their own
// goroutines. The sampling stage never waits on transcription.
type Pipeline struct {
	ID string

	capture     *audio.Capture
	detector    *vad.Detector
	recorder    *audio.Recorder
	client      *stt.Client
	interpreter *command.Interpreter
	session     *session.Session
	dispatcher  *dispatch.Dispatcher
	commandLog  CommandLog
	metrics     *observe.Metrics

	// Owned by the sample loop.
	lastFrameEnd time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	stopped bool
	mutex   sync.Mutex
}

func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Capture == nil:
		return nil, fmt.Errorf("pipeline needs a capture")
	case opts.Detector == nil:
		return nil, fmt.Errorf("pipeline needs a detector")
	case opts.Recorder == nil:
		return nil, fmt.Errorf("pipeline needs a recorder")
	case opts.Client == nil:
		return nil, fmt.Errorf("pipeline needs a transcription client")
	case opts.Interpreter == nil:
		return nil, fmt.Errorf("pipeline needs an interpreter")
	case opts.Session == nil:
		return nil, fmt.Errorf("pipeline needs a session")
	case opts.Dispatcher == nil:
		return nil, fmt.Errorf("pipeline needs a dispatcher")
	}

	id := opts.ID
	if id == "" {
		id = store.GenerateSessionID()
	}

	p := &Pipeline{
		ID:          id,
		capture:     opts.Capture,
		detector:    opts.Detector,
		recorder:    opts.Recorder,
		client:      opts.Client,
		interpreter: opts.Interpreter,
		session:     opts.Session,
		dispatcher:  opts.Dispatcher,
		commandLog:  opts.Log,
		metrics:     opts.Metrics,
	}

	p.client.OnQueueChange(func(pending int) {
		p.session.SetProcessing(pending > 0)
		if p.metrics != nil {
			p.metrics.TranscriptionQueue.Set(float64(pending))
		}
	})
	if p.metrics != nil {
		p.recorder.OnDrop(func(reason string) {
			p.metrics.UtterancesDropped.WithLabelValues(reason).Inc()
		})
	}

	return p, nil
}

// Start opens the microphone and launches the stages. When the microphone
// is unavailable the returned error wraps audio.ErrCaptureUnavailable and
// the session reports listening=false; the caller may keep running.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopped {
		return fmt.Errorf("pipeline already stopped")
	}
	if p.started {
		return fmt.Errorf("pipeline already started")
	}
	p.started = true

	p.ctx, p.cancel = context.WithCancel(ctx)

	frames, err := p.capture.Start(p.ctx)
	if err != nil {
		p.setListening(false)
		if errors.Is(err, audio.ErrCaptureUnavailable) {
			log.Error().Err(err).Str("session_id", p.ID).Msg("Microphone unavailable, voice commands disabled")
		}
		return fmt.Errorf("failed to start capture: %w", err)
	}

	if err := p.client.Start(p.ctx); err != nil {
		p.capture.Stop()
		p.setListening(false)
		return fmt.Errorf("failed to start transcription client: %w", err)
	}

	p.setListening(true)

	group, gctx := errgroup.WithContext(p.ctx)
	group.Go(func() error { return p.sampleLoop(gctx, frames) })
	group.Go(func() error { return p.forwardLoop(gctx) })
	group.Go(func() error { return p.resultLoop(gctx) })
	p.group = group

	log.Info().
		Str("session_id", p.ID).
		Str("backend", p.client.Backend()).
		Str("wake_word", p.interpreter.WakeWord()).
		Msg("Voice pipeline started")

	return nil
}

func (p *Pipeline) setListening(v bool) {
	p.session.SetListening(v)
	if p.metrics != nil {
		p.metrics.SetListening(v)
	}
}

// sampleLoop feeds every frame through the detector and recorder.
func (p *Pipeline) sampleLoop(ctx context.Context, frames <-chan audio.Frame) error {
	defer log.Debug().Str("session_id", p.ID).Msg("Sample loop stopped")

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				p.endOfStream(ctx)
				return nil
			}
			p.processFrame(frame)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Pipeline) processFrame(frame audio.Frame) {
	p.lastFrameEnd = frame.Timestamp.Add(frame.Duration())
	event := p.detector.Process(frame.PCM, frame.SampleRate)

	if event == vad.SpeechStart {
		p.recorder.SpeechStart(frame.Timestamp)
	}

	if p.recorder.AddFrame(frame) {
		// The recorder cut a runaway utterance; speech still in progress
		// starts a fresh one on the next loud frame.
		p.detector.Reset()
		return
	}

	if event == vad.SpeechEnd {
		p.recorder.SpeechEnd(p.lastFrameEnd)
	}
}

// endOfStream handles the capture channel closing on its own, as when a
// replayed file runs out or the device stops delivering. Speech still open
// at that point is finalized at the end of the last frame.
func (p *Pipeline) endOfStream(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if p.recorder.Recording() {
		p.recorder.SpeechEnd(p.lastFrameEnd)
	}
	p.detector.Reset()
	p.setListening(false)

	if err := p.capture.Err(); err != nil {
		log.Error().Err(err).Str("session_id", p.ID).Msg("Capture failed, voice commands disabled")
		return
	}
	log.Info().Str("session_id", p.ID).Msg("Capture ended")
}

// forwardLoop hands recorded utterances to the transcription queue.
func (p *Pipeline) forwardLoop(ctx context.Context) error {
	defer log.Debug().Str("session_id", p.ID).Msg("Forward loop stopped")

	for {
		select {
		case u, ok := <-p.recorder.Utterances():
			if !ok {
				return nil
			}
			if err := p.client.Submit(u); err != nil {
				log.Warn().
					Err(err).
					Str("session_id", p.ID).
					Str("utterance_id", u.ID.String()).
					Msg("Failed to queue utterance")
				if p.metrics != nil {
					p.metrics.UtterancesDropped.WithLabelValues("rejected").Inc()
				}
				continue
			}
			if p.metrics != nil {
				p.metrics.UtterancesTotal.Inc()
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// resultLoop interprets and dispatches transcription results in order.
func (p *Pipeline) resultLoop(ctx context.Context) error {
	defer log.Debug().Str("session_id", p.ID).Msg("Result loop stopped")

	for {
		select {
		case result, ok := <-p.client.Results():
			if !ok {
				return nil
			}
			p.handleResult(result)
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Pipeline) handleResult(result *stt.Result) {
	if p.session.Closed() {
		log.Debug().
			Str("session_id", p.ID).
			Str("utterance_id", result.Utterance.ID.String()).
			Msg("Session closed, discarding transcription")
		return
	}

	if p.metrics != nil {
		p.metrics.ObserveTranscription(result.Backend, result.Latency, result.Err)
	}

	rec := store.Record{
		ID:         result.Utterance.ID.String(),
		TSStart:    result.Utterance.Start,
		TSEnd:      result.Utterance.End,
		Text:       result.Text,
		Backend:    result.Backend,
		Confidence: result.Confidence,
		LatencyMS:  result.Latency.Milliseconds(),
	}

	if result.Err != nil {
		rec.Error = result.Err.Error()
		p.appendRecord(rec)
		return
	}

	interp := p.interpreter.Interpret(result.Text)
	rec.Wake = interp.Wake
	if !interp.Wake {
		log.Debug().
			Str("session_id", p.ID).
			Str("text", result.Text).
			Msg("No wake word, ignoring")
		p.appendRecord(rec)
		return
	}

	rec.Command = interp.Command.String()
	p.session.Wake(result.Text)
	if p.metrics != nil {
		p.metrics.WakeDetectionsTotal.Inc()
		p.metrics.CommandsTotal.WithLabelValues(interp.Command.Kind.String()).Inc()
	}

	log.Info().
		Str("session_id", p.ID).
		Str("utterance_id", rec.ID).
		Str("text", result.Text).
		Stringer("command", interp.Command).
		Msg("Voice command")

	if _, err := p.dispatcher.Dispatch(interp.Command); err != nil {
		log.Error().
			Err(err).
			Str("session_id", p.ID).
			Stringer("command", interp.Command).
			Msg("Failed to dispatch command")
		rec.Error = err.Error()
	}

	p.appendRecord(rec)
}

func (p *Pipeline) appendRecord(rec store.Record) {
	if p.commandLog == nil {
		return
	}
	if err := p.commandLog.Append(p.ID, rec); err != nil {
		log.Warn().Err(err).Str("session_id", p.ID).Msg("Failed to write command log")
	}
}

// Status returns the current session fields.
func (p *Pipeline) Status() session.Snapshot {
	return p.session.Snapshot()
}

// Session returns the pipeline's session.
func (p *Pipeline) Session() *session.Session {
	return p.session
}

// Stop releases the microphone, discards any open recording, cancels the
// timers and waits for the stages to exit. A transcription already running
// is allowed to finish but its result is dropped.
func (p *Pipeline) Stop() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true

	if p.cancel != nil {
		p.cancel()
	}

	p.capture.Stop()
	p.recorder.Stop()
	p.detector.Reset()

	p.setListening(false)
	p.session.SetProcessing(false)
	p.session.Close()

	p.client.Stop()

	var err error
	if p.group != nil {
		err = p.group.Wait()
	}

	log.Info().Str("session_id", p.ID).Msg("Voice pipeline stopped")
	return err
}
