//go:build unix

package capturer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputBufferHoldsPartialLine(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	b := NewOutputBuffer(int(w.Fd()))
	require.NoError(t, b.Add([]byte("partial")))
	require.Equal(t, "partial", string(b.pending))

	require.NoError(t, b.Add([]byte(" line\nnext")))
	require.Equal(t, "partial line\n", readExactly(t, r, len("partial line\n")))
	require.Equal(t, "next", string(b.pending))

	require.NoError(t, b.Flush())
	require.Equal(t, "next", readExactly(t, r, len("next")))
	require.Empty(t, b.pending)

	// Flushing an empty buffer is a no-op.
	require.NoError(t, b.Flush())
}

func TestOutputBufferWritesAllCompleteLines(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	b := NewOutputBuffer(int(w.Fd()))
	require.NoError(t, b.Add([]byte("a\nb\nc\nd")))
	require.Equal(t, "a\nb\nc\n", readExactly(t, r, len("a\nb\nc\n")))
	require.Equal(t, "d", string(b.pending))

	// A terminator-only chunk releases the held line.
	require.NoError(t, b.Add([]byte("\n")))
	require.Equal(t, "d\n", readExactly(t, r, len("d\n")))
	require.Empty(t, b.pending)
}
