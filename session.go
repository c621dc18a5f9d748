package rtmp

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/chipsTM/rtmp/rand"
)

const (
	readBufferSize  = 64 * 1024
	writeBufferSize = 64 * 1024
)

type sessionState uint8

const (
	stateHandshaking sessionState = iota
	stateAwaitingConnect
	stateConnected
	statePublishing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateHandshaking:
		return "handshaking"
	case stateAwaitingConnect:
		return "awaiting connect"
	case stateConnected:
		return "connected"
	case statePublishing:
		return "publishing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one publisher connection from handshake to teardown.
// It is single-goroutine: Run owns all session state, and the only
// externally visible surface is the bounded event channel plus Close.
type Session struct {
	id     string
	conn   net.Conn
	config Config
	logger *zap.Logger

	reader      *Reader
	writer      *Writer
	chunkReader *ChunkReader
	chunkWriter *ChunkWriter
	handshaker  Handshaker

	state sessionState
	app   string
	tcURL string

	// nextStreamID backs createStream; ids are handed out from 1 and
	// never reused within a connection.
	nextStreamID    uint32
	publishStreamID uint32
	publishName     string

	// ackWindow is the peer's announced window size; zero means the peer
	// never asked for acknowledgements. lastAck is the reader byte count
	// at the previous Acknowledgement.
	ackWindow uint32
	lastAck   uint64

	// registry is attached by Server to deduplicate stream keys; nil for
	// sessions constructed directly.
	registry *Registry

	events chan Event
	closed atomic.Bool
}

// NewSession wraps an accepted connection. Transport acquisition stays
// outside the engine: any net.Conn works, including a net.Pipe end in
// tests. The caller must call Run and drain Events until it closes.
func NewSession(conn net.Conn, config Config, logger *zap.Logger) *Session {
	config = config.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	id := rand.GenerateSessionID()

	reader := &Reader{reader: bufio.NewReaderSize(conn, readBufferSize)}
	writer := &Writer{writer: bufio.NewWriterSize(conn, writeBufferSize)}

	session := &Session{
		id:          id,
		conn:        conn,
		config:      config,
		logger:      logger.With(zap.String("sessionId", id)),
		reader:      reader,
		writer:      writer,
		chunkReader: NewChunkReader(reader, config.ReadChunkSize, config.MaxChunkStreams),
		// Outbound also starts at the protocol's 128 bytes until the
		// connect burst announces the configured size.
		chunkWriter: NewChunkWriter(writer, DefaultReadChunkSize),
		state:       stateHandshaking,
		events:      make(chan Event, config.ChannelCapacity),
	}
	session.handshaker = NewHandshaker(session.logger)
	return session
}

// ID returns the session's correlation id, present on all its log lines.
func (s *Session) ID() string {
	return s.id
}

// Events returns the outbound channel. It is closed after the final
// SessionClosed event; the consumer must drain it until then.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Run drives the session until the connection ends, the peer violates
// the protocol, or Close is called. It returns the fatal error that
// ended the session, or nil when it ended cleanly (Close was called or
// the peer simply hung up).
func (s *Session) Run() error {
	s.logger.Info("session started", zap.String("remoteAddr", s.conn.RemoteAddr().String()))
	return s.teardown(s.run())
}

// Close tears the session down from outside. The blocked read unwinds on
// the closed connection and the usual teardown events follow.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}

func (s *Session) run() error {
	if err := s.handshake(); err != nil {
		return err
	}
	s.state = stateAwaitingConnect

	for {
		if s.closed.Load() {
			return nil
		}
		message, err := s.readMessage()
		if err != nil {
			return err
		}
		if err := s.handleMessage(message); err != nil {
			return err
		}
	}
}

func (s *Session) handshake() error {
	if err := s.conn.SetDeadline(time.Now().Add(s.config.HandshakeTimeout)); err != nil {
		return errors.Wrap(err, "setting handshake deadline")
	}
	if err := s.handshaker.Handshake(s.reader, s.writer); err != nil {
		return err
	}
	if err := s.conn.SetDeadline(time.Time{}); err != nil {
		return errors.Wrap(err, "clearing handshake deadline")
	}
	s.logger.Debug("handshake complete")
	return nil
}

// readMessage reads the next complete message under the idle deadline
// and keeps the acknowledgement bookkeeping current.
func (s *Session) readMessage() (*Message, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout)); err != nil {
		return nil, errors.Wrap(err, "setting idle deadline")
	}
	message, err := s.chunkReader.ReadMessage()
	if err != nil {
		return nil, err
	}
	if err := s.maybeAcknowledge(); err != nil {
		return nil, err
	}
	return message, nil
}

// maybeAcknowledge sends an Acknowledgement when the bytes read since
// the last one reach the peer's announced window.
func (s *Session) maybeAcknowledge() error {
	if s.ackWindow == 0 {
		return nil
	}
	read := s.reader.ReadBytes()
	if read-s.lastAck < uint64(s.ackWindow) {
		return nil
	}
	s.lastAck = read
	return s.writeProtocolControl(newAcknowledgementMessage(uint32(read)))
}

// handleMessage routes one assembled message. A nil return keeps the
// session going; recoverable trouble is answered on the wire or logged
// inside the handlers, so every returned error is fatal.
func (s *Session) handleMessage(message *Message) error {
	switch message.Type {
	case SetChunkSize:
		size, err := parseUint32Payload(message)
		if err != nil {
			return err
		}
		if err := s.chunkReader.SetChunkSize(size); err != nil {
			return err
		}
		s.logger.Debug("peer set chunk size", zap.Uint32("chunkSize", size))

	case AbortMessage:
		csid, err := parseUint32Payload(message)
		if err != nil {
			return err
		}
		s.chunkReader.Abort(csid)
		s.logger.Debug("peer aborted chunk stream", zap.Uint32("csid", csid))

	case Acknowledgement:
		// Publishers rarely send these; nothing to act on.

	case UserControlMessage:
		return s.handleUserControl(message)

	case WindowAckSize:
		window, err := parseUint32Payload(message)
		if err != nil {
			return err
		}
		s.ackWindow = window
		s.logger.Debug("peer announced ack window", zap.Uint32("window", window))

	case SetPeerBandwidth:
		bandwidth, _, err := parseSetPeerBandwidth(message)
		if err != nil {
			return err
		}
		return s.writeProtocolControl(newWindowAckSizeMessage(bandwidth))

	case AudioMessage:
		return s.handleMedia(MediaAudio, message)

	case VideoMessage:
		return s.handleMedia(MediaVideo, message)

	case DataMessageAMF0:
		return s.handleData(message)

	case CommandMessageAMF0:
		return s.handleCommand(message)

	case DataMessageAMF3, SharedObjectMessageAMF0, SharedObjectMessageAMF3,
		CommandMessageAMF3, AggregateMessage:
		s.logger.Debug("ignoring message", zap.Uint8("type", uint8(message.Type)))

	default:
		s.logger.Debug("ignoring unknown message type", zap.Uint8("type", uint8(message.Type)))
	}
	return nil
}

func (s *Session) handleUserControl(message *Message) error {
	event, data, err := parseUserControl(message)
	if err != nil {
		return err
	}
	if event == eventPingRequest {
		return s.writeProtocolControl(newPingResponseMessage(data))
	}
	s.logger.Debug("ignoring user control event", zap.Uint16("event", event))
	return nil
}

func (s *Session) handleMedia(kind MediaKind, message *Message) error {
	if s.state != statePublishing {
		s.logger.Debug("dropping media before publish", zap.String("kind", kind.String()))
		return nil
	}
	s.emit(Media{
		StreamID:  message.StreamID,
		Kind:      kind,
		Timestamp: message.Timestamp,
		Payload:   message.Payload,
	})
	return nil
}

func (s *Session) handleData(message *Message) error {
	if s.state != statePublishing {
		s.logger.Debug("dropping data message before publish")
		return nil
	}
	s.emit(Meta{
		StreamID:  message.StreamID,
		Timestamp: message.Timestamp,
		Payload:   message.Payload,
	})
	return nil
}

func (s *Session) handleCommand(message *Message) error {
	cmd, err := parseCommand(message.Payload)
	if err != nil {
		// Malformed AMF0 never kills the connection.
		s.logger.Warn("dropping undecodable command", zap.Error(err))
		return nil
	}
	s.logger.Debug("command received",
		zap.String("command", cmd.name),
		zap.Float64("transactionId", cmd.transactionID))

	switch cmd.name {
	case commandConnect:
		return s.handleConnect(cmd)
	case commandCreateStream:
		return s.handleCreateStream(cmd)
	case commandReleaseStream, commandFCPublish, commandFCUnpublish, commandGetStreamLength:
		reply, err := newResultMessage(cmd.transactionID)
		if err != nil {
			return err
		}
		return s.writeCommand(reply)
	case commandPublish:
		return s.handlePublish(cmd, message.StreamID)
	case commandDeleteStream:
		return s.handleDeleteStream(cmd)
	case commandPlay:
		s.logger.Warn("play rejected, this server ingests only")
		reply, err := newErrorMessage(cmd.transactionID, codePlayFailed, "publishers only")
		if err != nil {
			return err
		}
		return s.writeCommand(reply)
	case commandCloseStream, commandPause, commandReceiveAudio, commandReceiveVideo:
		s.logger.Debug("command accepted without action", zap.String("command", cmd.name))
		return nil
	default:
		s.logger.Debug("unknown command", zap.String("command", cmd.name))
		reply, err := newErrorMessage(cmd.transactionID, codeCallFailed, "unknown command "+cmd.name)
		if err != nil {
			return err
		}
		return s.writeCommand(reply)
	}
}

func (s *Session) handleConnect(cmd *command) error {
	if s.state != stateAwaitingConnect {
		s.logger.Warn("connect out of order", zap.String("state", s.state.String()))
		reply, err := newErrorMessage(cmd.transactionID, codeCallFailed, "already connected")
		if err != nil {
			return err
		}
		return s.writeCommand(reply)
	}

	app := cmd.objectString("app")
	tcURL := cmd.objectString("tcUrl")
	if hook := s.config.OnConnect; hook != nil {
		if hookErr := hook(app); hookErr != nil {
			s.logger.Info("connect rejected", zap.String("app", app), zap.Error(hookErr))
			reply, err := newErrorMessage(cmd.transactionID, codeConnectRejected, hookErr.Error())
			if err != nil {
				return err
			}
			if err := s.writeCommand(reply); err != nil {
				return err
			}
			// A denied peer has nothing further to do here.
			return newError(KindHookRejected, errors.Wrapf(hookErr, "connect to %q rejected", app))
		}
	}

	if err := s.writeProtocolControl(newWindowAckSizeMessage(s.config.WindowAckSize)); err != nil {
		return err
	}
	if err := s.writeProtocolControl(newSetPeerBandwidthMessage(s.config.PeerBandwidth, s.config.PeerBandwidthLimit)); err != nil {
		return err
	}
	if err := s.writeProtocolControl(newSetChunkSizeMessage(s.config.WriteChunkSize)); err != nil {
		return err
	}
	// The announcement itself still went out at the old size; everything
	// after it uses the new one.
	if err := s.chunkWriter.SetChunkSize(s.config.WriteChunkSize); err != nil {
		return err
	}
	reply, err := newConnectResultMessage(cmd.transactionID)
	if err != nil {
		return err
	}
	if err := s.writeCommand(reply); err != nil {
		return err
	}

	s.app = app
	s.tcURL = tcURL
	s.state = stateConnected
	s.logger.Info("connected", zap.String("app", app), zap.String("tcUrl", tcURL))
	s.emit(SessionOpened{App: app, TCURL: tcURL})
	return nil
}

func (s *Session) handleCreateStream(cmd *command) error {
	if s.state != stateConnected && s.state != statePublishing {
		s.logger.Warn("createStream before connect")
		reply, err := newErrorMessage(cmd.transactionID, codeCallFailed, "connect first")
		if err != nil {
			return err
		}
		return s.writeCommand(reply)
	}

	s.nextStreamID++
	msid := s.nextStreamID
	reply, err := newCreateStreamResultMessage(cmd.transactionID, msid)
	if err != nil {
		return err
	}
	if err := s.writeCommand(reply); err != nil {
		return err
	}
	s.logger.Debug("stream created", zap.Uint32("msid", msid))
	return nil
}

func (s *Session) handlePublish(cmd *command, msid uint32) error {
	if s.state != stateConnected {
		s.logger.Warn("publish out of order", zap.String("state", s.state.String()))
		reply, err := newErrorMessage(cmd.transactionID, codePublishFailed, "publish requires connect")
		if err != nil {
			return err
		}
		return s.writeCommand(reply)
	}

	name, ok := cmd.stringArg(0)
	if !ok || name == "" {
		return s.rejectPublish(msid, codePublishBadName, "missing stream name")
	}
	kindArg, _ := cmd.stringArg(1)
	kind, ok := ParsePublishType(kindArg)
	if !ok {
		return s.rejectPublish(msid, codePublishFailed, fmt.Sprintf("unsupported publish type %q", kindArg))
	}
	if msid == 0 || msid > s.nextStreamID {
		return s.rejectPublish(msid, codePublishFailed, fmt.Sprintf("publish on unknown stream id %d", msid))
	}

	if s.registry != nil {
		if regErr := s.registry.Register(s.app, name, s.id); regErr != nil {
			s.logger.Info("publish rejected, stream key taken",
				zap.String("app", s.app), zap.String("name", name))
			return s.rejectPublish(msid, codePublishBadName, regErr.Error())
		}
	}
	if hook := s.config.OnPublish; hook != nil {
		if hookErr := hook(s.app, name, kind); hookErr != nil {
			if s.registry != nil {
				s.registry.Unregister(s.app, name, s.id)
			}
			s.logger.Info("publish rejected", zap.String("name", name), zap.Error(hookErr))
			return s.rejectPublish(msid, codePublishBadName, hookErr.Error())
		}
	}

	if err := s.writeProtocolControl(newStreamBeginMessage(msid)); err != nil {
		return err
	}
	status, err := newOnStatusMessage(msid, levelStatus, codePublishStart, fmt.Sprintf("%s is now published.", name))
	if err != nil {
		return err
	}
	if err := s.writeCommand(status); err != nil {
		return err
	}

	s.state = statePublishing
	s.publishStreamID = msid
	s.publishName = name
	s.logger.Info("publish started",
		zap.String("app", s.app),
		zap.String("name", name),
		zap.String("type", string(kind)),
		zap.Uint32("msid", msid))
	s.emit(PublishStarted{StreamID: msid, StreamName: name, Kind: kind})
	return nil
}

// rejectPublish answers a refused publish with an onStatus error and
// leaves the state untouched.
func (s *Session) rejectPublish(msid uint32, code, description string) error {
	status, err := newOnStatusMessage(msid, levelError, code, description)
	if err != nil {
		return err
	}
	return s.writeCommand(status)
}

func (s *Session) handleDeleteStream(cmd *command) error {
	msid, ok := cmd.numberArg(0)
	if !ok {
		s.logger.Warn("deleteStream without a stream id")
		return nil
	}
	if s.state != statePublishing || uint32(msid) != s.publishStreamID {
		s.logger.Debug("deleteStream for inactive stream", zap.Float64("msid", msid))
		return nil
	}

	name := s.publishName
	s.unpublish()
	status, err := newOnStatusMessage(uint32(msid), levelStatus, codeUnpublishSuccess, name+" is now unpublished.")
	if err != nil {
		return err
	}
	return s.writeCommand(status)
}

// unpublish releases the stream key and tells the consumer. Shared by
// deleteStream and by teardown when a publisher drops mid-stream.
func (s *Session) unpublish() {
	if s.registry != nil {
		s.registry.Unregister(s.app, s.publishName, s.id)
	}
	s.logger.Info("publish stopped",
		zap.String("name", s.publishName), zap.Uint32("msid", s.publishStreamID))
	s.emit(PublishStopped{StreamID: s.publishStreamID})
	s.state = stateConnected
	s.publishStreamID = 0
	s.publishName = ""
}

// teardown emits the trailing events, closes the channel and the
// connection, and returns the reason the consumer saw: nil when the
// session was closed on purpose or the peer simply went away.
func (s *Session) teardown(err error) error {
	if s.state == statePublishing {
		s.unpublish()
	}
	s.state = stateClosed

	reason := err
	if s.closed.Load() || (err != nil && IsClientClosed(err)) {
		reason = nil
	}
	s.emit(SessionClosed{Reason: reason})
	close(s.events)
	s.closed.Store(true)
	_ = s.conn.Close()

	switch {
	case reason == nil:
		s.logger.Info("session closed")
	case IsRecoverable(reason):
		s.logger.Warn("session closed", zap.Error(reason))
	default:
		s.logger.Error("session closed", zap.Error(reason))
	}
	return reason
}

// emit delivers event in order, blocking while the channel is full; a
// slow consumer stalls the read loop and, through TCP, the publisher.
func (s *Session) emit(event Event) {
	s.events <- event
}

func (s *Session) writeCommand(message *Message) error {
	return s.chunkWriter.WriteMessage(commandChunkStreamID, message)
}

func (s *Session) writeProtocolControl(message *Message) error {
	return s.chunkWriter.WriteMessage(protocolChunkStreamID, message)
}
