//go:build unix

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	capturer "github.com/joeycumines/go-capturer"
)

func TestRelayDisabled(t *testing.T) {
	// An explicit -quiet value overrides terminal detection in both
	// directions; without one, relay requires a real terminal.
	assert.False(t, relayDisabled(true, false, false))
	assert.False(t, relayDisabled(true, false, true))
	assert.True(t, relayDisabled(true, true, true))
	assert.True(t, relayDisabled(false, false, false))
	assert.False(t, relayDisabled(false, false, true))
}

func TestEmitMergedToPath(t *testing.T) {
	c := capturer.New(capturer.Options{NoRelay: true})
	defer func() { require.NoError(t, c.FinishCapture()) }()
	require.NoError(t, c.StartCapture())
	fmt.Println("merged emit test line")

	path := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, emit(c, false, false, path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "merged emit test line")
}

func TestEmitSplitToPaths(t *testing.T) {
	c := capturer.New(capturer.Options{Split: true, NoRelay: true})
	defer func() { require.NoError(t, c.FinishCapture()) }()
	require.NoError(t, c.StartCapture())
	fmt.Println("split stdout line")
	_, _ = fmt.Fprintln(os.Stderr, "split stderr line")

	base := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, emit(c, true, false, base, false))

	stdout, err := os.ReadFile(base + ".stdout")
	require.NoError(t, err)
	stderr, err := os.ReadFile(base + ".stderr")
	require.NoError(t, err)
	assert.Contains(t, string(stdout), "split stdout line")
	assert.NotContains(t, string(stdout), "split stderr line")
	assert.Contains(t, string(stderr), "split stderr line")
	assert.NotContains(t, string(stderr), "split stdout line")
}
