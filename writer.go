package rtmp

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

var ErrNilWriter = errors.New("expected *bufio.Writer to be non-nil")

// Flusher drains buffered writes to the transport.
type Flusher interface {
	Flush() error
}

// WriteFlusher groups the write-side framer surface.
type WriteFlusher interface {
	io.Writer
	Flusher
}

// Writer is the write half of the framer. Writes coalesce in the
// underlying bufio.Writer until Flush.
type Writer struct {
	writer *bufio.Writer
}

func NewWriter(writer *bufio.Writer) (*Writer, error) {
	if writer == nil {
		return nil, ErrNilWriter
	}
	return &Writer{writer: writer}, nil
}

// Write appends p to the outgoing buffer. If n < len(p) the error
// explains why the write came up short.
func (w *Writer) Write(p []byte) (n int, err error) {
	return w.writer.Write(p)
}

// Flush writes any buffered data to the transport.
func (w *Writer) Flush() error {
	return w.writer.Flush()
}
