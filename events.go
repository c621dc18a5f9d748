package rtmp

// MediaKind distinguishes the two media message types a publisher sends.
type MediaKind uint8

const (
	MediaAudio MediaKind = iota
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	default:
		return "unknown"
	}
}

// PublishType is the second argument of the publish command.
type PublishType string

const (
	// PublishTypeLive is a plain live feed, the only mode most encoders
	// ever send.
	PublishTypeLive PublishType = "live"
	// PublishTypeRecord and PublishTypeAppend ask the server to persist
	// the feed. The engine accepts them and leaves persistence to the
	// consumer of the event channel.
	PublishTypeRecord PublishType = "record"
	PublishTypeAppend PublishType = "append"
)

// ParsePublishType validates a publish type argument.
func ParsePublishType(s string) (PublishType, bool) {
	switch t := PublishType(s); t {
	case PublishTypeLive, PublishTypeRecord, PublishTypeAppend:
		return t, true
	}
	return "", false
}

// Event is what a session delivers on its outbound channel. The set of
// implementations is closed; consumers switch on the concrete types. The
// channel is bounded, so a consumer that stops draining eventually stalls
// the session's read loop and, through TCP, the publisher.
type Event interface {
	isEvent()
}

// SessionOpened is emitted once the connect command is accepted.
type SessionOpened struct {
	App string
	// TCURL is the tcUrl connect argument, empty when the encoder did
	// not send one.
	TCURL string
}

// PublishStarted is emitted when a publish command is accepted.
type PublishStarted struct {
	StreamID   uint32
	StreamName string
	Kind       PublishType
}

// Meta carries an AMF0 data message, typically onMetaData with the
// encoder settings. Payload is the raw AMF0 body.
type Meta struct {
	StreamID uint32
	// Timestamp is in milliseconds, as carried on the chunk stream.
	Timestamp uint32
	Payload   []byte
}

// Media carries one audio or video message. Payload is the FLV tag body;
// the audio and video packages decode its leading byte.
type Media struct {
	StreamID  uint32
	Kind      MediaKind
	Timestamp uint32
	Payload   []byte
}

// PublishStopped is emitted on deleteStream and when a publishing
// session ends any other way.
type PublishStopped struct {
	StreamID uint32
}

// SessionClosed is always the final event before the channel closes.
// Reason is nil when the session ended cleanly.
type SessionClosed struct {
	Reason error
}

func (SessionOpened) isEvent()  {}
func (PublishStarted) isEvent() {}
func (Meta) isEvent()           {}
func (Media) isEvent()          {}
func (PublishStopped) isEvent() {}
func (SessionClosed) isEvent()  {}
