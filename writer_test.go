package rtmp

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterNil(t *testing.T) {
	w, err := NewWriter(nil)
	assert.Nil(t, w)
	assert.Equal(t, ErrNilWriter, err)
}

func TestWriterCoalescesUntilFlush(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(bufio.NewWriter(&buf))
	require.NoError(t, err)

	n, err := w.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = w.Write([]byte{4, 5})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, buf.Len(), "nothing reaches the transport before Flush")

	require.NoError(t, w.Flush())
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf.Bytes())
}
