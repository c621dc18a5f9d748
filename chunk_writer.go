package rtmp

import (
	"encoding/binary"

	"github.com/chipsTM/rtmp/internal/binary24"
	"github.com/pkg/errors"
)

// ChunkWriter serializes messages onto the wire. Every message goes out
// as one Type 0 chunk followed by Type 3 continuations, each carrying at
// most the outbound chunk size of payload. Compressed headers are never
// produced; for the command-plane traffic a server writes, the bytes
// saved would not pay for a per-csid write cache.
type ChunkWriter struct {
	writer    *Writer
	chunkSize uint32
}

// NewChunkWriter returns a ChunkWriter producing chunks of at most
// chunkSize payload bytes.
func NewChunkWriter(writer *Writer, chunkSize uint32) *ChunkWriter {
	return &ChunkWriter{writer: writer, chunkSize: chunkSize}
}

// SetChunkSize changes the outbound chunk size. The caller must announce
// the change to the peer with a Set Chunk Size message no later than the
// next message written.
func (w *ChunkWriter) SetChunkSize(size uint32) error {
	if size == 0 || size&0x80000000 != 0 {
		return errorf(KindInvalidChunkSize, "outbound chunk size %d", size)
	}
	w.chunkSize = size
	return nil
}

// ChunkSize returns the current outbound chunk size.
func (w *ChunkWriter) ChunkSize() uint32 {
	return w.chunkSize
}

// WriteMessage chunks message onto csid and flushes. Timestamps at or
// above the 24-bit sentinel move into a 4-byte extended field that is
// re-sent on every continuation chunk.
func (w *ChunkWriter) WriteMessage(csid uint32, message *Message) error {
	if csid < minChunkStreamID || csid > maxChunkStreamID {
		return errorf(KindChunkMalformed, "chunk stream id %d out of encodable range", csid)
	}

	extended := message.Timestamp >= max24BitTimestamp

	header := make([]byte, 0, 3+chunkType0HeaderLength+extendedTimestampLength)
	header = appendBasicHeader(header, ChunkType0, csid)
	if extended {
		header = binary24.BigEndian.AppendUint24(header, max24BitTimestamp)
	} else {
		header = binary24.BigEndian.AppendUint24(header, message.Timestamp)
	}
	header = binary24.BigEndian.AppendUint24(header, uint32(len(message.Payload)))
	header = append(header, byte(message.Type))
	header = binary.LittleEndian.AppendUint32(header, message.StreamID)
	if extended {
		header = binary.BigEndian.AppendUint32(header, message.Timestamp)
	}
	if _, err := w.writer.Write(header); err != nil {
		return errors.Wrap(err, "writing type 0 chunk")
	}

	continuation := make([]byte, 0, 3+extendedTimestampLength)
	continuation = appendBasicHeader(continuation, ChunkType3, csid)
	if extended {
		continuation = binary.BigEndian.AppendUint32(continuation, message.Timestamp)
	}

	payload := message.Payload
	for {
		fragment := uint32(len(payload))
		if fragment > w.chunkSize {
			fragment = w.chunkSize
		}
		if _, err := w.writer.Write(payload[:fragment]); err != nil {
			return errors.Wrap(err, "writing chunk payload")
		}
		payload = payload[fragment:]
		if len(payload) == 0 {
			break
		}
		if _, err := w.writer.Write(continuation); err != nil {
			return errors.Wrap(err, "writing type 3 chunk")
		}
	}
	return errors.Wrap(w.writer.Flush(), "flushing message")
}

// appendBasicHeader appends the 1- to 3-byte basic header encoding of
// csid with the given format.
func appendBasicHeader(b []byte, format ChunkType, csid uint32) []byte {
	switch {
	case csid < 64:
		return append(b, byte(format)<<6|byte(csid))
	case csid < 320:
		return append(b, byte(format)<<6, byte(csid-64))
	default:
		rem := csid - 64
		return append(b, byte(format)<<6|1, byte(rem&0xFF), byte(rem>>8))
	}
}
