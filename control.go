package rtmp

import "encoding/binary"

// User Control Event types (message type 4). Only Stream Begin is sent
// and only PingRequest is acted on; the rest are named for logging.
const (
	eventStreamBegin      uint16 = 0
	eventStreamEOF        uint16 = 1
	eventStreamDry        uint16 = 2
	eventSetBufferLength  uint16 = 3
	eventStreamIsRecorded uint16 = 4
	eventPingRequest      uint16 = 6
	eventPingResponse     uint16 = 7
)

// Protocol control messages always travel on chunk stream 2, message
// stream 0, timestamp 0; the builders below leave those fields zero and
// the session writes them to protocolChunkStreamID.

// newSetChunkSizeMessage announces the outbound chunk size. The high bit
// is reserved and always sent clear.
func newSetChunkSizeMessage(size uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, size&0x7FFFFFFF)
	return &Message{Type: SetChunkSize, Payload: payload}
}

// newAcknowledgementMessage reports the total bytes received so far,
// truncated to 32 bits as the wire format requires.
func newAcknowledgementMessage(sequence uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, sequence)
	return &Message{Type: Acknowledgement, Payload: payload}
}

// newWindowAckSizeMessage announces how many bytes the peer may send
// between acknowledgements.
func newWindowAckSizeMessage(window uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, window)
	return &Message{Type: WindowAckSize, Payload: payload}
}

// newSetPeerBandwidthMessage limits the peer's outgoing bandwidth.
func newSetPeerBandwidthMessage(bandwidth uint32, limit LimitType) *Message {
	payload := make([]byte, 5)
	binary.BigEndian.PutUint32(payload, bandwidth)
	payload[4] = byte(limit)
	return &Message{Type: SetPeerBandwidth, Payload: payload}
}

// newStreamBeginMessage tells the peer the message stream is live. Sent
// right before the NetStream.Publish.Start status.
func newStreamBeginMessage(msid uint32) *Message {
	payload := make([]byte, 6)
	binary.BigEndian.PutUint16(payload, eventStreamBegin)
	binary.BigEndian.PutUint32(payload[2:], msid)
	return &Message{Type: UserControlMessage, Payload: payload}
}

// newPingResponseMessage answers a PingRequest, echoing its event data.
func newPingResponseMessage(echo []byte) *Message {
	payload := make([]byte, 2+len(echo))
	binary.BigEndian.PutUint16(payload, eventPingResponse)
	copy(payload[2:], echo)
	return &Message{Type: UserControlMessage, Payload: payload}
}

// parseUint32Payload reads the single big-endian word carried by Set
// Chunk Size, Abort, Acknowledgement and Window Ack Size messages.
func parseUint32Payload(message *Message) (uint32, error) {
	if len(message.Payload) < 4 {
		return 0, errorf(KindChunkMalformed,
			"%d-byte payload in control message type %d, want 4", len(message.Payload), message.Type)
	}
	return binary.BigEndian.Uint32(message.Payload[:4]), nil
}

// parseSetPeerBandwidth splits an inbound Set Peer Bandwidth message into
// its window and limit type.
func parseSetPeerBandwidth(message *Message) (uint32, LimitType, error) {
	if len(message.Payload) < 5 {
		return 0, 0, errorf(KindChunkMalformed,
			"%d-byte payload in Set Peer Bandwidth, want 5", len(message.Payload))
	}
	return binary.BigEndian.Uint32(message.Payload[:4]), LimitType(message.Payload[4]), nil
}

// parseUserControl splits a User Control Event into event type and event
// data.
func parseUserControl(message *Message) (uint16, []byte, error) {
	if len(message.Payload) < 2 {
		return 0, nil, errorf(KindChunkMalformed,
			"%d-byte payload in user control message, want at least 2", len(message.Payload))
	}
	return binary.BigEndian.Uint16(message.Payload[:2]), message.Payload[2:], nil
}
