package rtmp

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

var ErrNilReader = errors.New("expected *bufio.Reader to be non-nil")

// ByteCounter reports how many bytes have been consumed from the
// underlying stream. The session uses it for acknowledgement bookkeeping.
type ByteCounter interface {
	ReadBytes() uint64
}

// ByteReader reads a single byte.
type ByteReader interface {
	ReadByte() (byte, error)
}

// ReadByteReaderCounter groups the read-side framer surface.
type ReadByteReaderCounter interface {
	io.Reader
	ByteReader
	ByteCounter
}

// Reader is the read half of the framer. Read has read-exact semantics:
// it blocks until len(p) bytes arrive or the peer goes away.
type Reader struct {
	reader *bufio.Reader
	n      uint64
}

func NewReader(reader *bufio.Reader) (*Reader, error) {
	if reader == nil {
		return nil, ErrNilReader
	}
	return &Reader{reader: reader}, nil
}

// Read fills p completely from the underlying bufio.Reader.
// The error is io.EOF only if no bytes were read; an EOF after reading
// some but not all bytes surfaces as io.ErrUnexpectedEOF.
// On return, n == len(p) if and only if err == nil.
func (r *Reader) Read(p []byte) (n int, err error) {
	n, err = io.ReadFull(r.reader, p)
	r.n += uint64(n)
	return n, err
}

// ReadByte reads and returns a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.reader.ReadByte()
	if err == nil {
		r.n++
	}
	return b, err
}

// Peek returns the next n bytes without advancing the reader. The slice
// is only valid until the next read.
func (r *Reader) Peek(n int) ([]byte, error) {
	return r.reader.Peek(n)
}

// ReadBytes returns the number of bytes consumed since the Reader was
// created. Peeked bytes do not count until they are read.
func (r *Reader) ReadBytes() uint64 {
	return r.n
}
