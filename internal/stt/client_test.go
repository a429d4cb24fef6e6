package stt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/homehub-voice/internal/audio"
)

// fakeTranscriber answers from a map of utterance ID to text. With gate
// set, every call waits for a value on it.
type fakeTranscriber struct {
	texts map[uuid.UUID]string
	errs  map[uuid.UUID]error
	gate  chan struct{}
	wait  bool

	mu        sync.Mutex
	order     []uuid.UUID
	active    int
	maxActive int
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{
		texts: make(map[uuid.UUID]string),
		errs:  make(map[uuid.UUID]error),
	}
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(ctx context.Context, u *audio.Utterance) (*Result, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.order = append(f.order, u.ID)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if err := f.errs[u.ID]; err != nil {
		return nil, err
	}
	return &Result{Text: f.texts[u.ID], Confidence: 0.9}, nil
}

func (f *fakeTranscriber) Close() error { return nil }

func (f *fakeTranscriber) stats() ([]uuid.UUID, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.order...), f.maxActive
}

func testUtterance() *audio.Utterance {
	now := time.Now()
	return &audio.Utterance{
		ID:         uuid.New(),
		Chunks:     [][]byte{audio.Int16ToBytes(make([]int16, 1600))},
		Codec:      audio.PCM16,
		SampleRate: 16000,
		Start:      now,
		End:        now.Add(100 * time.Millisecond),
	}
}

func nextResult(t *testing.T, c *Client) *Result {
	t.Helper()
	select {
	case r, ok := <-c.Results():
		require.True(t, ok, "results closed")
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return nil
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil, time.Second)
	assert.Error(t, err)
	_, err = NewClient(newFakeTranscriber(), 0)
	assert.Error(t, err)
}

func TestClientTranscribesInOrderOneAtATime(t *testing.T) {
	ft := newFakeTranscriber()
	ft.gate = make(chan struct{})

	client, err := NewClient(ft, time.Second)
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	u1, u2, u3 := testUtterance(), testUtterance(), testUtterance()
	ft.texts[u1.ID] = "one"
	ft.texts[u2.ID] = "  two  "
	ft.texts[u3.ID] = "three"

	require.NoError(t, client.Submit(u1))
	require.NoError(t, client.Submit(u2))
	require.NoError(t, client.Submit(u3))
	assert.Equal(t, 3, client.Pending())

	for i := 0; i < 3; i++ {
		ft.gate <- struct{}{}
	}

	r1, r2, r3 := nextResult(t, client), nextResult(t, client), nextResult(t, client)
	assert.Equal(t, "one", r1.Text)
	assert.Equal(t, "two", r2.Text)
	assert.Equal(t, "three", r3.Text)
	assert.Same(t, u2, r2.Utterance)
	assert.Equal(t, "fake", r2.Backend)
	assert.True(t, r3.OK())

	order, maxActive := ft.stats()
	assert.Equal(t, []uuid.UUID{u1.ID, u2.ID, u3.ID}, order)
	assert.Equal(t, 1, maxActive)
	assert.Eventually(t, func() bool { return client.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClientReportsFailures(t *testing.T) {
	ft := newFakeTranscriber()
	client, err := NewClient(ft, time.Second)
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	failed, empty, ok := testUtterance(), testUtterance(), testUtterance()
	ft.errs[failed.ID] = errors.New("engine crashed")
	ft.texts[empty.ID] = "   "
	ft.texts[ok.ID] = "lexicat today"

	require.NoError(t, client.Submit(failed))
	require.NoError(t, client.Submit(empty))
	require.NoError(t, client.Submit(ok))

	r := nextResult(t, client)
	assert.ErrorIs(t, r.Err, ErrTranscriptionFailure)
	assert.Contains(t, r.Err.Error(), "engine crashed")
	assert.Empty(t, r.Text)
	assert.False(t, r.OK())

	r = nextResult(t, client)
	assert.ErrorIs(t, r.Err, ErrTranscriptionFailure)
	assert.False(t, r.OK())

	// Failures do not stop later utterances.
	r = nextResult(t, client)
	require.NoError(t, r.Err)
	assert.Equal(t, "lexicat today", r.Text)
}

func TestClientTimeout(t *testing.T) {
	ft := newFakeTranscriber()
	ft.wait = true

	client, err := NewClient(ft, 30*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	require.NoError(t, client.Submit(testUtterance()))

	r := nextResult(t, client)
	assert.ErrorIs(t, r.Err, ErrTranscriptionFailure)
	assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
}

func TestClientRejectsEmptyUtterance(t *testing.T) {
	client, err := NewClient(newFakeTranscriber(), time.Second)
	require.NoError(t, err)
	defer client.Stop()

	assert.Error(t, client.Submit(nil))
	u := testUtterance()
	u.Chunks = nil
	assert.Error(t, client.Submit(u))
	assert.Equal(t, 0, client.Pending())
}

func TestClientQueueChangeCallback(t *testing.T) {
	ft := newFakeTranscriber()
	ft.gate = make(chan struct{})

	client, err := NewClient(ft, time.Second)
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		pending []int
	)
	client.OnQueueChange(func(n int) {
		mu.Lock()
		pending = append(pending, n)
		mu.Unlock()
	})

	require.NoError(t, client.Start(context.Background()))
	defer client.Stop()

	u := testUtterance()
	ft.texts[u.ID] = "hello"
	require.NoError(t, client.Submit(u))
	ft.gate <- struct{}{}
	nextResult(t, client)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(pending) > 0 && pending[len(pending)-1] == 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, pending[0])
	mu.Unlock()
}

func TestClientStop(t *testing.T) {
	ft := newFakeTranscriber()
	ft.gate = make(chan struct{})

	client, err := NewClient(ft, time.Second)
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))

	first := testUtterance()
	ft.texts[first.ID] = "in flight"
	require.NoError(t, client.Submit(first))
	require.NoError(t, client.Submit(testUtterance()))

	// Wait until the first call is running.
	require.Eventually(t, func() bool {
		order, _ := ft.stats()
		return len(order) == 1
	}, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		client.Stop()
		close(stopped)
	}()

	// Stop waits for the call in flight.
	select {
	case <-stopped:
		t.Fatal("stop returned while a call was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	ft.gate <- struct{}{}
	<-stopped

	order, _ := ft.stats()
	assert.Len(t, order, 1, "queued utterances are dropped on stop")
	assert.ErrorIs(t, client.Submit(testUtterance()), ErrQueueClosed)
	assert.ErrorIs(t, client.Start(context.Background()), ErrQueueClosed)

	for range client.Results() {
	}
	client.Stop()
}

func TestUtteranceWAV(t *testing.T) {
	data, err := UtteranceWAV(testUtterance())
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))
}
