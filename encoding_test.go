package capturer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	t.Run("default utf-8", func(t *testing.T) {
		text, err := decodeText([]byte("héllo"), "")
		require.NoError(t, err)
		assert.Equal(t, "héllo", text)
	})

	t.Run("explicit utf-8", func(t *testing.T) {
		text, err := decodeText([]byte("héllo"), "UTF-8")
		require.NoError(t, err)
		assert.Equal(t, "héllo", text)
	})

	t.Run("latin-1", func(t *testing.T) {
		text, err := decodeText([]byte{0xE9}, "ISO-8859-1")
		require.NoError(t, err)
		assert.Equal(t, "é", text)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		_, err := decodeText([]byte("x"), "no-such-charset")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no-such-charset")
	})
}
