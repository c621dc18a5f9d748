package rtmp

import "time"

// DefaultPort is the IANA-registered RTMP port.
const DefaultPort = "1935"

// Defaults applied by Config.withDefaults. Exported so callers and tests
// can reference the same values the engine falls back to.
const (
	// DefaultReadChunkSize is the inbound chunk size every RTMP
	// connection starts at, fixed by the protocol.
	DefaultReadChunkSize uint32 = 128
	// DefaultWriteChunkSize is announced to the peer with Set Chunk Size
	// during the connect reply burst.
	DefaultWriteChunkSize uint32 = 4096
	DefaultWindowAckSize  uint32 = 2500000
	DefaultPeerBandwidth  uint32 = 2500000
	// DefaultMaxChunkStreams caps how many distinct chunk stream IDs one
	// connection may hold assembly state for.
	DefaultMaxChunkStreams  = 1024
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultIdleTimeout      = 30 * time.Second
	// DefaultChannelCapacity bounds the outbound event channel; a full
	// channel back-pressures the decode loop and, through TCP, the
	// publisher.
	DefaultChannelCapacity = 256
)

// LimitType is the Set Peer Bandwidth limit byte.
type LimitType uint8

const (
	LimitHard LimitType = iota
	LimitSoft
	LimitDynamic
)

// ConnectHook is consulted when a publisher sends connect. A non-nil
// error rejects the connection; the error text is echoed to the peer in
// the `_error` description.
type ConnectHook func(app string) error

// PublishHook is consulted when a publisher sends publish. A non-nil
// error rejects the publish with NetStream.Publish.BadName; the error
// text is echoed in the onStatus description.
type PublishHook func(app, name string, kind PublishType) error

// Config carries the per-connection tunables. The zero value is usable:
// NewSession fills every unset field with the default above.
type Config struct {
	// ReadChunkSize is the initial inbound chunk size. Peers change it at
	// runtime with Set Chunk Size.
	ReadChunkSize uint32
	// WriteChunkSize is the outbound chunk size, announced to the peer
	// right after connect is accepted.
	WriteChunkSize uint32
	// WindowAckSize is advertised in the connect reply burst.
	WindowAckSize uint32
	// PeerBandwidth and PeerBandwidthLimit form the Set Peer Bandwidth
	// message of the connect reply burst. The zero limit value is
	// LimitHard; when both fields are unset the default pair
	// (DefaultPeerBandwidth, LimitDynamic) is used.
	PeerBandwidth      uint32
	PeerBandwidthLimit LimitType
	// MaxChunkStreams caps live per-csid assembly state.
	MaxChunkStreams int
	// HandshakeTimeout bounds the whole handshake; IdleTimeout bounds the
	// gap between completed inbound messages afterwards. Media flow
	// refreshes the idle deadline, so an active publisher is never cut.
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	// ChannelCapacity bounds the outbound event channel.
	ChannelCapacity int

	// OnConnect and OnPublish are the accept/reject hooks. A nil hook
	// accepts everything.
	OnConnect ConnectHook
	OnPublish PublishHook
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	return Config{
		ReadChunkSize:      DefaultReadChunkSize,
		WriteChunkSize:     DefaultWriteChunkSize,
		WindowAckSize:      DefaultWindowAckSize,
		PeerBandwidth:      DefaultPeerBandwidth,
		PeerBandwidthLimit: LimitDynamic,
		MaxChunkStreams:    DefaultMaxChunkStreams,
		HandshakeTimeout:   DefaultHandshakeTimeout,
		IdleTimeout:        DefaultIdleTimeout,
		ChannelCapacity:    DefaultChannelCapacity,
	}
}

func (c Config) withDefaults() Config {
	if c.ReadChunkSize == 0 {
		c.ReadChunkSize = DefaultReadChunkSize
	}
	if c.WriteChunkSize == 0 {
		c.WriteChunkSize = DefaultWriteChunkSize
	}
	if c.WindowAckSize == 0 {
		c.WindowAckSize = DefaultWindowAckSize
	}
	if c.PeerBandwidth == 0 {
		if c.PeerBandwidthLimit == LimitHard {
			c.PeerBandwidthLimit = LimitDynamic
		}
		c.PeerBandwidth = DefaultPeerBandwidth
	}
	if c.MaxChunkStreams == 0 {
		c.MaxChunkStreams = DefaultMaxChunkStreams
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ChannelCapacity == 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	}
	return c
}
