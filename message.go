package rtmp

// MessageType identifies what a message's payload carries, per the RTMP
// message type id byte.
type MessageType uint8

const (
	SetChunkSize MessageType = 1 + iota
	AbortMessage
	Acknowledgement
	UserControlMessage
	WindowAckSize
	SetPeerBandwidth
)

const (
	AudioMessage MessageType = 8
	VideoMessage MessageType = 9

	DataMessageAMF3         MessageType = 15
	SharedObjectMessageAMF3 MessageType = 16
	CommandMessageAMF3      MessageType = 17

	DataMessageAMF0         MessageType = 18
	SharedObjectMessageAMF0 MessageType = 19
	CommandMessageAMF0      MessageType = 20

	AggregateMessage MessageType = 22
)

// Message is a complete RTMP message, reassembled from however many
// chunks carried it. Timestamp is the absolute 32-bit value after delta
// and extended-timestamp handling; the chunk codec hides both.
type Message struct {
	Type      MessageType
	StreamID  uint32
	Timestamp uint32
	Payload   []byte
}
