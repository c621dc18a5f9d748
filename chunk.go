package rtmp

// ChunkType is the 2-bit format selector carried in a chunk's basic
// header. It determines which message-header fields the chunk delivers
// and which are inherited from the previous chunk on the same chunk
// stream.
type ChunkType uint8

const (
	// ChunkType0 delivers absolute timestamp, length, type id and msid.
	ChunkType0 ChunkType = iota
	// ChunkType1 delivers timestamp delta, length and type id.
	ChunkType1
	// ChunkType2 delivers only a timestamp delta.
	ChunkType2
	// ChunkType3 delivers nothing; everything is inherited.
	ChunkType3
)

const (
	chunkType0HeaderLength = 11
	chunkType1HeaderLength = 7
	chunkType2HeaderLength = 3

	extendedTimestampLength = 4

	// max24BitTimestamp is the sentinel that moves the timestamp into the
	// 4-byte extended field.
	max24BitTimestamp = 0xFFFFFF
)

// Chunk stream IDs 0 and 1 escape into the 2- and 3-byte basic header
// forms; 2 is reserved for protocol control. Commands conventionally ride
// csid 3 and media csid 4 and up.
const (
	protocolChunkStreamID = 2
	commandChunkStreamID  = 3

	minChunkStreamID = 2
	maxChunkStreamID = 65599
)

// chunkHeader is the decoded header of a single chunk. For Fmt 1/2/3
// chunks the inherited fields have already been filled in from the
// previous header on the same csid; timestamp is always absolute.
type chunkHeader struct {
	format          ChunkType
	csid            uint32
	timestamp       uint32
	timestampDelta  uint32
	messageLength   uint32
	messageType     MessageType
	messageStreamID uint32
	// hasExtendedTimestamp records whether the chunk that most recently
	// began a message on this csid used the 0xFFFFFF sentinel. Fmt 3
	// chunks that follow must then re-read the 4-byte extended field.
	hasExtendedTimestamp bool
}
