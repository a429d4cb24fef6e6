package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestParseCommand(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("WAKE_WORD", "lexicat")

	out := runCommand(t, "parse", "Lexicat,", "switch", "to", "weather")
	assert.Contains(t, out, "normalized: lexicat switch to weather")
	assert.Contains(t, out, "wake:       true")
	assert.Contains(t, out, "command:    switch_view(weather)")
}

func TestParseCommandWithoutWakeWord(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("WAKE_WORD", "lexicat")

	out := runCommand(t, "parse", "show", "tomorrow")
	assert.Contains(t, out, "wake:       false")
	assert.NotContains(t, out, "command:")
}
