package store

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewFileStore(fs, "/data")
	require.NoError(t, err)

	exists, err := afero.DirExists(fs, "/data/commands")
	require.NoError(t, err)
	assert.True(t, exists)

	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	first := Record{
		ID:         "a",
		TSStart:    start,
		TSEnd:      start.Add(1500 * time.Millisecond),
		Text:       "lexicat tomorrow",
		Backend:    "whisper-cli",
		Confidence: 0.8,
		LatencyMS:  420,
		Wake:       true,
		Command:    "navigate(tomorrow)",
	}
	second := Record{
		ID:      "b",
		TSStart: start.Add(time.Minute),
		TSEnd:   start.Add(time.Minute + time.Second),
		Backend: "whisper-cli",
		Error:   "transcription failed: no text recognized",
	}

	require.NoError(t, s.Append("session_1", first))
	require.NoError(t, s.Append("session_1", second))
	require.NoError(t, s.Append("session_2", first))

	records, err := s.Load("session_1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first, records[0])
	assert.Equal(t, second, records[1])

	data, err := afero.ReadFile(fs, "/data/commands/session_1.jsonl")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"ts_start":"2024-05-01T08:00:00Z"`)
	assert.NotContains(t, lines[1], `"command"`)
}

func TestLoadMissingSession(t *testing.T) {
	s, err := NewFileStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)

	_, err = s.Load("nope")
	assert.Error(t, err)
}

func TestGenerateSessionID(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateSessionID(), "session_"))
}
