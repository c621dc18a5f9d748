package rtmp

import (
	"encoding/binary"

	"github.com/chipsTM/rtmp/internal/binary24"
	"github.com/pkg/errors"
)

// chunkStream is the decoder state for one chunk stream id: the header
// cache that Fmt 1/2/3 chunks inherit from, and the assembly buffer of
// the in-progress message. Entries are created on the first chunk for a
// csid and live until the connection ends.
type chunkStream struct {
	header chunkHeader
	// payload is nil between messages; a non-nil (possibly empty) slice
	// marks a message mid-assembly.
	payload []byte
}

// ChunkReader turns the chunk-interleaved byte stream into whole
// messages. It owns the per-csid header caches and the inbound chunk
// size; the session routes Set Chunk Size and Abort back into it.
type ChunkReader struct {
	reader          *Reader
	chunkSize       uint32
	maxChunkStreams int
	streams         map[uint32]*chunkStream
}

// NewChunkReader returns a ChunkReader reading from reader. chunkSize is
// the starting inbound chunk size (the protocol fixes 128 until the peer
// raises it); maxChunkStreams caps how many distinct csids may hold
// state at once.
func NewChunkReader(reader *Reader, chunkSize uint32, maxChunkStreams int) *ChunkReader {
	return &ChunkReader{
		reader:          reader,
		chunkSize:       chunkSize,
		maxChunkStreams: maxChunkStreams,
		streams:         make(map[uint32]*chunkStream),
	}
}

// SetChunkSize applies a Set Chunk Size announced by the peer. Zero and
// values with the high bit set are protocol violations.
func (r *ChunkReader) SetChunkSize(size uint32) error {
	if size == 0 || size&0x80000000 != 0 {
		return errorf(KindInvalidChunkSize, "peer announced chunk size %d", size)
	}
	r.chunkSize = size
	return nil
}

// ChunkSize returns the current inbound chunk size.
func (r *ChunkReader) ChunkSize() uint32 {
	return r.chunkSize
}

// Abort discards the partially assembled message on csid, if any. The
// header cache survives so the peer can keep sending compressed headers.
func (r *ChunkReader) Abort(csid uint32) {
	if stream, ok := r.streams[csid]; ok {
		stream.payload = nil
	}
}

// ReadMessage reads chunks until one message completes and returns it.
// Chunks of other, interleaved messages may be consumed along the way;
// their partial payloads stay parked on their own chunk streams.
func (r *ChunkReader) ReadMessage() (*Message, error) {
	for {
		message, err := r.readChunk()
		if err != nil {
			return nil, err
		}
		if message != nil {
			return message, nil
		}
	}
}

// readChunk consumes exactly one chunk and returns a non-nil message if
// that chunk completed one.
func (r *ChunkReader) readChunk() (*Message, error) {
	format, csid, err := r.readBasicHeader()
	if err != nil {
		return nil, err
	}

	stream, ok := r.streams[csid]
	if !ok {
		if len(r.streams) >= r.maxChunkStreams {
			return nil, errorf(KindTooManyChunkStreams,
				"%d chunk streams already in use, not opening csid %d", r.maxChunkStreams, csid)
		}
		if format != ChunkType0 {
			return nil, errorf(KindChunkMalformed,
				"chunk stream %d opened with format %d, want 0", csid, format)
		}
		stream = &chunkStream{header: chunkHeader{csid: csid}}
		r.streams[csid] = stream
	}

	if err := r.readMessageHeader(stream, format); err != nil {
		return nil, err
	}
	return r.readPayload(stream)
}

// readBasicHeader reads the 1- to 3-byte basic header. csid values 0 and
// 1 in the low bits escape into the wider encodings.
func (r *ChunkReader) readBasicHeader() (ChunkType, uint32, error) {
	b, err := r.reader.ReadByte()
	if err != nil {
		return 0, 0, errors.Wrap(err, "reading basic header")
	}
	format := ChunkType(b >> 6)
	csid := uint32(b & 0x3F)
	switch csid {
	case 0: // csid 64..319
		b, err := r.reader.ReadByte()
		if err != nil {
			return 0, 0, errors.Wrap(err, "reading 2-byte basic header")
		}
		csid = 64 + uint32(b)
	case 1: // csid 64..65599
		var buf [2]byte
		if _, err := r.reader.Read(buf[:]); err != nil {
			return 0, 0, errors.Wrap(err, "reading 3-byte basic header")
		}
		csid = 64 + uint32(buf[0]) + 256*uint32(buf[1])
	}
	return format, csid, nil
}

// readMessageHeader reads the message header for format and folds it into
// the csid's cached header, inheriting whatever the format omits.
func (r *ChunkReader) readMessageHeader(stream *chunkStream, format ChunkType) error {
	header := &stream.header
	if format != ChunkType3 && stream.payload != nil {
		return errorf(KindChunkMalformed,
			"format %d chunk interrupts a message mid-assembly on chunk stream %d", format, header.csid)
	}
	header.format = format

	var buf [chunkType0HeaderLength]byte
	switch format {
	case ChunkType0:
		if _, err := r.reader.Read(buf[:chunkType0HeaderLength]); err != nil {
			return errors.Wrap(err, "reading type 0 message header")
		}
		header.timestamp = binary24.BigEndian.Uint24(buf[0:3])
		header.messageLength = binary24.BigEndian.Uint24(buf[3:6])
		header.messageType = MessageType(buf[6])
		header.messageStreamID = binary.LittleEndian.Uint32(buf[7:11])
		header.hasExtendedTimestamp = header.timestamp == max24BitTimestamp
		if header.hasExtendedTimestamp {
			ext, err := r.readExtendedTimestamp()
			if err != nil {
				return err
			}
			header.timestamp = ext
		}
		// An absolute timestamp resets the delta baseline: a Type 3 chunk
		// that starts the next message advances by this full value.
		header.timestampDelta = header.timestamp

	case ChunkType1:
		if _, err := r.reader.Read(buf[:chunkType1HeaderLength]); err != nil {
			return errors.Wrap(err, "reading type 1 message header")
		}
		delta := binary24.BigEndian.Uint24(buf[0:3])
		header.messageLength = binary24.BigEndian.Uint24(buf[3:6])
		header.messageType = MessageType(buf[6])
		header.hasExtendedTimestamp = delta == max24BitTimestamp
		if header.hasExtendedTimestamp {
			ext, err := r.readExtendedTimestamp()
			if err != nil {
				return err
			}
			delta = ext
		}
		header.timestampDelta = delta
		header.timestamp += delta

	case ChunkType2:
		if _, err := r.reader.Read(buf[:chunkType2HeaderLength]); err != nil {
			return errors.Wrap(err, "reading type 2 message header")
		}
		delta := binary24.BigEndian.Uint24(buf[0:3])
		header.hasExtendedTimestamp = delta == max24BitTimestamp
		if header.hasExtendedTimestamp {
			ext, err := r.readExtendedTimestamp()
			if err != nil {
				return err
			}
			delta = ext
		}
		header.timestampDelta = delta
		header.timestamp += delta

	case ChunkType3:
		// No header bytes, but the extended timestamp is re-sent on every
		// chunk of a message that carries one. Mid-message the value
		// duplicates what the cache already holds; at the start of a new
		// message it replaces the inherited delta.
		if header.hasExtendedTimestamp {
			ext, err := r.readExtendedTimestamp()
			if err != nil {
				return err
			}
			if stream.payload == nil {
				header.timestampDelta = ext
			}
		}
		if stream.payload == nil {
			// This chunk starts a new message rather than continuing
			// one; the cached delta advances the timestamp.
			header.timestamp += header.timestampDelta
		}
	}
	return nil
}

func (r *ChunkReader) readExtendedTimestamp() (uint32, error) {
	var buf [extendedTimestampLength]byte
	if _, err := r.reader.Read(buf[:]); err != nil {
		return 0, errors.Wrap(err, "reading extended timestamp")
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// readPayload reads one chunk's worth of payload and returns the message
// once the assembly buffer holds all of it. Zero-length messages complete
// without reading anything.
func (r *ChunkReader) readPayload(stream *chunkStream) (*Message, error) {
	header := &stream.header
	if stream.payload == nil {
		stream.payload = make([]byte, 0, header.messageLength)
	}

	fragment := header.messageLength - uint32(len(stream.payload))
	if fragment > r.chunkSize {
		fragment = r.chunkSize
	}
	if fragment > 0 {
		start := len(stream.payload)
		stream.payload = stream.payload[:start+int(fragment)]
		if _, err := r.reader.Read(stream.payload[start:]); err != nil {
			return nil, errors.Wrap(err, "reading chunk payload")
		}
	}
	if uint32(len(stream.payload)) < header.messageLength {
		return nil, nil
	}

	message := &Message{
		Type:      header.messageType,
		StreamID:  header.messageStreamID,
		Timestamp: header.timestamp,
		Payload:   stream.payload,
	}
	stream.payload = nil
	return message, nil
}
