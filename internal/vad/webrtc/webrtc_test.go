package webrtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadMode(t *testing.T) {
	_, err := New(4, 0.1)
	assert.Error(t, err)
	_, err = New(-1, 0.1)
	assert.Error(t, err)
}

func TestSilenceIsNotSpeech(t *testing.T) {
	c, err := New(DefaultMode, 0.1)
	require.NoError(t, err)

	speech, level := c.IsSpeech(make([]int16, 1600), 16000)
	assert.False(t, speech)
	assert.Equal(t, 0.0, level)
}

func TestUnsupportedRateFallsBackToRMS(t *testing.T) {
	c, err := New(DefaultMode, 0.1)
	require.NoError(t, err)

	pcm := make([]int16, 2205)
	for i := range pcm {
		if i%2 == 0 {
			pcm[i] = 16384
		} else {
			pcm[i] = -16384
		}
	}

	speech, level := c.IsSpeech(pcm, 22050)
	assert.True(t, speech)
	assert.InDelta(t, 0.5, level, 1e-6)

	speech, _ = c.IsSpeech(make([]int16, 2205), 22050)
	assert.False(t, speech)
}

func TestShortFrameFallsBackToRMS(t *testing.T) {
	c, err := New(DefaultMode, 0.1)
	require.NoError(t, err)

	speech, _ := c.IsSpeech(make([]int16, 100), 16000)
	assert.False(t, speech)
}
