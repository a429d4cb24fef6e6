package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/homehub-voice/internal/audio"
)

const resultBuffer = 8

// Client feeds utterances to a Transcriber strictly one at a time, in
// submission order. Submit never blocks; the queue is unbounded.
type Client struct {
	transcriber Transcriber
	timeout     time.Duration

	queue      []*audio.Utterance
	inFlight   bool
	onQueue    func(pending int)
	notify     chan struct{}
	resultChan chan *Result
	stopChan   chan struct{}
	wg         sync.WaitGroup
	started    bool
	stopped    bool
	mutex      sync.Mutex
}

// NewClient wraps transcriber. Each call is bounded by timeout.
func NewClient(transcriber Transcriber, timeout time.Duration) (*Client, error) {
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber is nil")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", timeout)
	}

	return &Client{
		transcriber: transcriber,
		timeout:     timeout,
		notify:      make(chan struct{}, 1),
		resultChan:  make(chan *Result, resultBuffer),
		stopChan:    make(chan struct{}),
	}, nil
}

// Backend returns the wrapped transcriber's name.
func (c *Client) Backend() string {
	return c.transcriber.Name()
}

// OnQueueChange registers fn to receive the number of pending utterances,
// including the one in flight, whenever it changes. fn must not block.
func (c *Client) OnQueueChange(fn func(pending int)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onQueue = fn
}

func (c *Client) Start(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.started {
		return fmt.Errorf("client already started")
	}
	if c.stopped {
		return ErrQueueClosed
	}
	c.started = true

	c.wg.Add(1)
	go c.worker(ctx)

	log.Info().
		Str("backend", c.transcriber.Name()).
		Dur("timeout", c.timeout).
		Msg("Started transcription worker")
	return nil
}

// Submit enqueues u for transcription. Utterances without audio are
// rejected.
func (c *Client) Submit(u *audio.Utterance) error {
	if u == nil || len(u.Chunks) == 0 {
		return fmt.Errorf("refusing to transcribe empty utterance")
	}

	c.mutex.Lock()
	if c.stopped {
		c.mutex.Unlock()
		return ErrQueueClosed
	}
	c.queue = append(c.queue, u)
	c.queueChangedLocked()
	c.mutex.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}

	log.Debug().
		Str("utterance_id", u.ID.String()).
		Msg("Queued utterance for transcription")
	return nil
}

// Pending returns the number of queued utterances plus the one in flight.
func (c *Client) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pendingLocked()
}

func (c *Client) pendingLocked() int {
	n := len(c.queue)
	if c.inFlight {
		n++
	}
	return n
}

func (c *Client) queueChangedLocked() {
	if c.onQueue != nil {
		c.onQueue(c.pendingLocked())
	}
}

// Results delivers one Result per transcribed utterance. It is closed by
// Stop.
func (c *Client) Results() <-chan *Result {
	return c.resultChan
}

func (c *Client) next() (*audio.Utterance, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stopped || len(c.queue) == 0 {
		return nil, false
	}
	u := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.inFlight = true
	c.queueChangedLocked()
	return u, true
}

func (c *Client) done() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.inFlight = false
	c.queueChangedLocked()
}

func (c *Client) worker(ctx context.Context) {
	defer c.wg.Done()

	log.Debug().Msg("Transcription worker started")
	defer log.Debug().Msg("Transcription worker stopped")

	for {
		u, ok := c.next()
		if !ok {
			select {
			case <-c.notify:
				continue
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			}
		}

		result := c.transcribe(u)
		c.done()

		select {
		case c.resultChan <- result:
		case <-c.stopChan:
			log.Debug().Str("utterance_id", u.ID.String()).Msg("Discarding result after stop")
			return
		}
	}
}

// transcribe runs one bounded call. The call is not tied to the worker's
// context so shutdown lets it finish instead of killing the engine midway.
func (c *Client) transcribe(u *audio.Utterance) *Result {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	result, err := c.transcriber.Transcribe(ctx, u)
	latency := time.Since(start)

	if err == nil && (result == nil || strings.TrimSpace(result.Text) == "") {
		err = fmt.Errorf("no text recognized")
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("utterance_id", u.ID.String()).
			Str("backend", c.transcriber.Name()).
			Dur("latency", latency).
			Msg("Failed to transcribe utterance")
		return &Result{
			Utterance: u,
			Backend:   c.transcriber.Name(),
			Latency:   latency,
			Err:       fmt.Errorf("%w: %w", ErrTranscriptionFailure, err),
		}
	}

	result.Utterance = u
	result.Text = strings.TrimSpace(result.Text)
	result.Backend = c.transcriber.Name()
	result.Latency = latency

	log.Info().
		Str("utterance_id", u.ID.String()).
		Str("backend", result.Backend).
		Str("text", result.Text).
		Dur("latency", latency).
		Msg("Transcribed utterance")
	return result
}

// Stop drops queued utterances, waits for the call in flight to return and
// closes Results. Calling Stop more than once is safe.
func (c *Client) Stop() {
	c.mutex.Lock()
	if c.stopped {
		c.mutex.Unlock()
		return
	}
	c.stopped = true
	dropped := len(c.queue)
	c.queue = nil
	c.queueChangedLocked()
	close(c.stopChan)
	c.mutex.Unlock()

	c.wg.Wait()
	close(c.resultChan)

	log.Info().Int("dropped", dropped).Msg("Stopped transcription worker")
}
