// Package session tracks the listening, awake and processing state of the
// voice pipeline.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultAwakeWindow = 3 * time.Second

// Snapshot is a point-in-time copy of the session fields.
type Snapshot struct {
	Listening       bool       `json:"listening"`
	Processing      bool       `json:"processing"`
	Awake           bool       `json:"awake"`
	AwakeSince      *time.Time `json:"awakeSince,omitempty"`
	LastCommandText string     `json:"lastCommandText"`
}

// Session is the single mutable state object of a pipeline. Each field is
// updated atomically on its own; readers may observe a mix of old and new
// fields across a concurrent update. Once closed nothing changes.
type Session struct {
	awakeFor time.Duration

	listening   atomic.Bool
	processing  atomic.Bool
	awake       atomic.Bool
	awakeSince  atomic.Int64
	lastCommand atomic.Pointer[string]

	// closeMu is held for reading by every writer so Close can wait for them.
	closeMu sync.RWMutex
	closed  bool

	timerMu    sync.Mutex
	stopTimer  func() bool
	generation uint64

	subsMu sync.Mutex
	subs   map[uint64]chan struct{}
	nextID uint64

	afterFunc func(d time.Duration, f func()) func() bool
	now       func() time.Time
}

func New(awakeFor time.Duration) *Session {
	if awakeFor <= 0 {
		awakeFor = DefaultAwakeWindow
	}
	s := &Session{
		awakeFor: awakeFor,
		subs:     make(map[uint64]chan struct{}),
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		now: time.Now,
	}
	empty := ""
	s.lastCommand.Store(&empty)
	return s
}

// AwakeWindow returns how long the session stays awake after a detection.
func (s *Session) AwakeWindow() time.Duration {
	return s.awakeFor
}

// update runs fn unless the session is closed and notifies subscribers.
func (s *Session) update(fn func()) bool {
	return s.updateIf(func() bool {
		fn()
		return true
	})
}

// updateIf is update for changes that may turn out to be no-ops. Subscribers
// are notified only when fn reports a change.
func (s *Session) updateIf(fn func() bool) bool {
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return false
	}
	changed := fn()
	s.closeMu.RUnlock()

	if changed {
		s.notify()
	}
	return changed
}

func (s *Session) SetListening(v bool) {
	s.update(func() { s.listening.Store(v) })
}

func (s *Session) SetProcessing(v bool) {
	s.update(func() { s.processing.Store(v) })
}

// Wake marks the session awake, records text as the last command and
// restarts the awake timer.
func (s *Session) Wake(text string) {
	s.update(func() {
		now := s.now()
		s.awake.Store(true)
		s.awakeSince.Store(now.UnixNano())
		s.lastCommand.Store(&text)
		s.restartTimer()
	})
	log.Debug().Str("text", text).Dur("awake_for", s.awakeFor).Msg("Session awake")
}

func (s *Session) restartTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.stopTimer != nil {
		s.stopTimer()
	}
	s.generation++
	gen := s.generation
	s.stopTimer = s.afterFunc(s.awakeFor, func() { s.expire(gen) })
}

// expire puts the session back to idle if no newer detection happened. The
// generation is checked while the awake fields are written so a Wake cannot
// slip in between.
func (s *Session) expire(gen uint64) {
	if s.updateIf(func() bool {
		s.timerMu.Lock()
		defer s.timerMu.Unlock()

		if gen != s.generation {
			return false
		}
		s.stopTimer = nil
		s.awake.Store(false)
		s.awakeSince.Store(0)
		return true
	}) {
		log.Debug().Msg("Session idle")
	}
}

func (s *Session) Listening() bool  { return s.listening.Load() }
func (s *Session) Processing() bool { return s.processing.Load() }
func (s *Session) Awake() bool      { return s.awake.Load() }

// LastCommandText returns the full transcription of the latest wake.
func (s *Session) LastCommandText() string {
	return *s.lastCommand.Load()
}

// Snapshot reads every field.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Listening:       s.listening.Load(),
		Processing:      s.processing.Load(),
		Awake:           s.awake.Load(),
		LastCommandText: s.LastCommandText(),
	}
	if ns := s.awakeSince.Load(); ns != 0 && snap.Awake {
		t := time.Unix(0, ns)
		snap.AwakeSince = &t
	}
	return snap
}

// Subscribe returns a channel that receives a signal after state changes.
// Signals coalesce: a slow reader sees at most one pending signal. The
// channel is closed by Close or by the returned cancel func.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	ch := make(chan struct{}, 1)
	if s.isClosed() {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Session) notify() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) isClosed() bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	return s.closed
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.isClosed()
}

// Close cancels the awake timer, freezes every field and closes subscriber
// channels. It is safe to call more than once.
func (s *Session) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	s.closeMu.Unlock()

	s.timerMu.Lock()
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	s.generation++
	s.timerMu.Unlock()

	s.subsMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}
