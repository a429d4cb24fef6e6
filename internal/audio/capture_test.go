package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCaptureConfig() CaptureConfig {
	return DefaultCaptureConfig()
}

func TestDefaultCaptureConfig(t *testing.T) {
	cfg := DefaultCaptureConfig()

	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 1, cfg.Channels)
	assert.True(t, cfg.EchoCancellation)
	assert.True(t, cfg.NoiseSuppression)
	assert.Equal(t, 100*time.Millisecond, cfg.Tick)
	assert.Equal(t, 1600, cfg.FrameSamples())
}

func TestNewCaptureValidation(t *testing.T) {
	_, err := NewCapture(testCaptureConfig(), nil)
	require.Error(t, err)

	cfg := testCaptureConfig()
	cfg.Channels = 2
	_, err = NewCapture(cfg, &scriptedDevice{})
	require.Error(t, err)

	cfg = testCaptureConfig()
	cfg.Tick = 0
	_, err = NewCapture(cfg, &scriptedDevice{})
	require.Error(t, err)
}

func TestCaptureOpenFailure(t *testing.T) {
	device := &scriptedDevice{openErr: errors.New("permission denied")}
	capture, err := NewCapture(testCaptureConfig(), device)
	require.NoError(t, err)

	frames, err := capture.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Nil(t, frames)

	capture.Stop()
	capture.Stop()
}

func TestCaptureDeliversFramesUntilEOF(t *testing.T) {
	device := &scriptedDevice{
		frames: [][]int16{
			constFrame(1600, 1),
			constFrame(1600, 2),
			constFrame(1600, 3),
		},
	}
	capture, err := NewCapture(testCaptureConfig(), device)
	require.NoError(t, err)

	frames, err := capture.Start(context.Background())
	require.NoError(t, err)

	var got []Frame
	for f := range frames {
		got = append(got, f)
	}

	require.Len(t, got, 3)
	for i, f := range got {
		assert.Len(t, f.PCM, 1600)
		assert.Equal(t, int16(i+1), f.PCM[0])
		assert.Equal(t, 16000, f.SampleRate)
		assert.Equal(t, 100*time.Millisecond, f.Duration())
		assert.False(t, f.Timestamp.IsZero())
	}

	capture.Stop()
	opened, closed := device.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestCaptureSecondStartFails(t *testing.T) {
	device := &scriptedDevice{endless: true}
	capture, err := NewCapture(testCaptureConfig(), device)
	require.NoError(t, err)

	_, err = capture.Start(context.Background())
	require.NoError(t, err)
	defer capture.Stop()

	_, err = capture.Start(context.Background())
	require.Error(t, err)
}

func TestCaptureStopReleasesDevice(t *testing.T) {
	device := &scriptedDevice{endless: true}
	capture, err := NewCapture(testCaptureConfig(), device)
	require.NoError(t, err)

	frames, err := capture.Start(context.Background())
	require.NoError(t, err)

	<-frames
	capture.Stop()
	capture.Stop()

	_, closed := device.counts()
	assert.Equal(t, 1, closed)

	// The channel is closed once the loop exits; drain whatever was buffered.
	for range frames {
	}
}

func TestCaptureGivesUpOnPersistentReadErrors(t *testing.T) {
	cfg := testCaptureConfig()
	cfg.ReadErrorTimeout = 100 * time.Millisecond
	device := &scriptedDevice{
		frames:  [][]int16{constFrame(1600, 7)},
		readErr: errors.New("device unplugged"),
	}
	capture, err := NewCapture(cfg, device)
	require.NoError(t, err)

	frames, err := capture.Start(context.Background())
	require.NoError(t, err)
	assert.NoError(t, capture.Err())

	var got int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range frames {
			got++
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("frame channel was not closed")
	}
	assert.Equal(t, 1, got)
	assert.ErrorIs(t, capture.Err(), ErrCaptureLost)
	_, closed := device.counts()
	assert.Equal(t, 1, closed)

	capture.Stop()
}

func TestCaptureEndOfStreamHasNoError(t *testing.T) {
	device := &scriptedDevice{frames: [][]int16{constFrame(1600, 1)}}
	capture, err := NewCapture(testCaptureConfig(), device)
	require.NoError(t, err)

	frames, err := capture.Start(context.Background())
	require.NoError(t, err)
	for range frames {
	}
	assert.NoError(t, capture.Err())
}

func TestCaptureContextCancelReleasesDevice(t *testing.T) {
	device := &scriptedDevice{endless: true}
	capture, err := NewCapture(testCaptureConfig(), device)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := capture.Start(ctx)
	require.NoError(t, err)

	cancel()
	for range frames {
	}

	_, closed := device.counts()
	assert.Equal(t, 1, closed)
	capture.Stop()
}

func TestCaptureStopBeforeStart(t *testing.T) {
	capture, err := NewCapture(testCaptureConfig(), &scriptedDevice{})
	require.NoError(t, err)
	capture.Stop()
}
