package rtmp

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chipsTM/rtmp/amf0"
)

const testWait = 2 * time.Second

// testClient drives the publisher side of a connection: raw handshake
// bytes first, then commands and media through the same chunk codec the
// server uses.
type testClient struct {
	t    *testing.T
	conn net.Conn
	cr   *ChunkReader
	cw   *ChunkWriter
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	t.Helper()
	return &testClient{
		t:    t,
		conn: conn,
		cr:   NewChunkReader(&Reader{reader: bufio.NewReader(conn)}, DefaultReadChunkSize, DefaultMaxChunkStreams),
		cw:   NewChunkWriter(&Writer{writer: bufio.NewWriter(conn)}, DefaultReadChunkSize),
	}
}

// handshake performs the plain client handshake: C0+C1, read S0+S1+S2,
// echo S1 back as C2.
func (c *testClient) handshake() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetDeadline(time.Now().Add(testWait)))

	c0c1 := make([]byte, 1+handshakePacketSize)
	c0c1[0] = supportedProtocolVersion
	_, err := c.conn.Write(c0c1)
	require.NoError(c.t, err)

	s0s1s2 := make([]byte, 1+2*handshakePacketSize)
	_, err = io.ReadFull(c.conn, s0s1s2)
	require.NoError(c.t, err)
	require.EqualValues(c.t, supportedProtocolVersion, s0s1s2[0])

	_, err = c.conn.Write(s0s1s2[1 : 1+handshakePacketSize])
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.SetDeadline(time.Time{}))
}

func (c *testClient) send(csid uint32, message *Message) {
	c.t.Helper()
	require.NoError(c.t, c.cw.WriteMessage(csid, message))
}

func (c *testClient) sendCommand(msid uint32, values ...interface{}) {
	c.t.Helper()
	payload, err := amf0.EncodeAll(values...)
	require.NoError(c.t, err)
	c.send(commandChunkStreamID, &Message{
		Type:     CommandMessageAMF0,
		StreamID: msid,
		Payload:  payload,
	})
}

// readMessage returns the server's next message, tracking Set Chunk Size
// announcements so later replies still decode.
func (c *testClient) readMessage() *Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(testWait)))
	message, err := c.cr.ReadMessage()
	require.NoError(c.t, err)
	if message.Type == SetChunkSize {
		size, err := parseUint32Payload(message)
		require.NoError(c.t, err)
		require.NoError(c.t, c.cr.SetChunkSize(size))
	}
	return message
}

// readCommand decodes the server's next message as an AMF0 command.
func (c *testClient) readCommand() (string, float64, []interface{}) {
	c.t.Helper()
	message := c.readMessage()
	require.Equal(c.t, CommandMessageAMF0, message.Type)
	values, err := amf0.DecodeAll(message.Payload)
	require.NoError(c.t, err)
	require.GreaterOrEqual(c.t, len(values), 2)
	name, ok := values[0].(string)
	require.True(c.t, ok, "command name")
	txn, ok := values[1].(float64)
	require.True(c.t, ok, "transaction id")
	return name, txn, values[2:]
}

// infoCode digs the status code out of a reply's info object.
func infoCode(t *testing.T, values []interface{}) string {
	t.Helper()
	for _, v := range values {
		if object, ok := v.(map[string]interface{}); ok {
			if code, ok := object["code"].(string); ok {
				return code
			}
		}
	}
	t.Fatal("no info object with a code in command reply")
	return ""
}

// connect sends connect and consumes the full reply burst, asserting the
// order the protocol fixes: Window Ack Size, Set Peer Bandwidth, Set
// Chunk Size, then the _result.
func (c *testClient) connect(app string) {
	c.t.Helper()
	c.sendCommand(0, commandConnect, 1.0, map[string]interface{}{
		"app":   app,
		"tcUrl": "rtmp://localhost/" + app,
	})

	window := c.readMessage()
	require.Equal(c.t, WindowAckSize, window.Type)
	value, err := parseUint32Payload(window)
	require.NoError(c.t, err)
	require.Equal(c.t, DefaultWindowAckSize, value)

	bandwidth := c.readMessage()
	require.Equal(c.t, SetPeerBandwidth, bandwidth.Type)
	peer, limit, err := parseSetPeerBandwidth(bandwidth)
	require.NoError(c.t, err)
	require.Equal(c.t, DefaultPeerBandwidth, peer)
	require.Equal(c.t, LimitDynamic, limit)

	chunkSize := c.readMessage()
	require.Equal(c.t, SetChunkSize, chunkSize.Type)
	require.EqualValues(c.t, DefaultWriteChunkSize, c.cr.ChunkSize())

	name, txn, values := c.readCommand()
	require.Equal(c.t, commandResult, name)
	require.Equal(c.t, 1.0, txn)
	require.Equal(c.t, codeConnectSuccess, infoCode(c.t, values))
}

// createStream returns the message stream id the server allocated.
func (c *testClient) createStream(txn float64) uint32 {
	c.t.Helper()
	c.sendCommand(0, commandCreateStream, txn)
	name, gotTxn, values := c.readCommand()
	require.Equal(c.t, commandResult, name)
	require.Equal(c.t, txn, gotTxn)
	require.Len(c.t, values, 2)
	msid, ok := values[1].(float64)
	require.True(c.t, ok, "allocated stream id")
	return uint32(msid)
}

// publish sends publish and consumes Stream Begin plus the Publish.Start
// status.
func (c *testClient) publish(msid uint32, name, kind string) {
	c.t.Helper()
	c.sendCommand(msid, commandPublish, 5.0, nil, name, kind)

	begin := c.readMessage()
	require.Equal(c.t, UserControlMessage, begin.Type)
	event, data, err := parseUserControl(begin)
	require.NoError(c.t, err)
	require.Equal(c.t, eventStreamBegin, event)
	require.Len(c.t, data, 4)

	status, _, values := c.readCommand()
	require.Equal(c.t, commandOnStatus, status)
	require.Equal(c.t, codePublishStart, infoCode(c.t, values))
}

// sessionHarness pairs a running Session with a testClient on the other
// end of a net.Pipe.
type sessionHarness struct {
	session *Session
	client  *testClient
	done    chan error
}

func newSessionHarness(t *testing.T, config Config) *sessionHarness {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	session := NewSession(serverConn, config, zap.NewNop())
	h := &sessionHarness{
		session: session,
		client:  newTestClient(t, clientConn),
		done:    make(chan error, 1),
	}
	go func() { h.done <- session.Run() }()
	t.Cleanup(func() {
		_ = session.Close()
		_ = clientConn.Close()
	})
	return h
}

func (h *sessionHarness) nextEvent(t *testing.T) Event {
	t.Helper()
	select {
	case event, ok := <-h.session.Events():
		require.True(t, ok, "event channel closed early")
		return event
	case <-time.After(testWait):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// waitClosed drains the event channel and returns the final SessionClosed
// along with Run's error.
func (h *sessionHarness) waitClosed(t *testing.T) (SessionClosed, error) {
	t.Helper()
	var last Event
	timeout := time.After(testWait)
	for {
		select {
		case event, ok := <-h.session.Events():
			if !ok {
				closed, isClosed := last.(SessionClosed)
				require.True(t, isClosed, "channel closed without SessionClosed, last event %T", last)
				select {
				case err := <-h.done:
					return closed, err
				case <-time.After(testWait):
					t.Fatal("Run did not return")
				}
			}
			last = event
		case <-timeout:
			t.Fatal("timed out waiting for session close")
		}
	}
}

func TestSessionConnect(t *testing.T) {
	var hookApp string
	h := newSessionHarness(t, Config{
		OnConnect: func(app string) error {
			hookApp = app
			return nil
		},
	})
	h.client.handshake()
	h.client.connect("live")

	opened, ok := h.nextEvent(t).(SessionOpened)
	require.True(t, ok)
	assert.Equal(t, "live", opened.App)
	assert.Equal(t, "rtmp://localhost/live", opened.TCURL)
	assert.Equal(t, "live", hookApp)
}

func TestSessionConnectRejected(t *testing.T) {
	h := newSessionHarness(t, Config{
		OnConnect: func(app string) error {
			return errors.New("not on the list")
		},
	})
	h.client.handshake()
	h.client.sendCommand(0, commandConnect, 1.0, map[string]interface{}{"app": "private"})

	name, txn, values := h.client.readCommand()
	assert.Equal(t, commandError, name)
	assert.Equal(t, 1.0, txn)
	assert.Equal(t, codeConnectRejected, infoCode(t, values))

	closed, err := h.waitClosed(t)
	require.Error(t, err)
	assert.Equal(t, KindHookRejected, KindOf(err))
	assert.Equal(t, KindHookRejected, KindOf(closed.Reason))
}

func TestSessionPublishFlow(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	msid := h.client.createStream(4.0)
	assert.EqualValues(t, 1, msid)

	h.client.publish(msid, "stream", "live")
	started, ok := h.nextEvent(t).(PublishStarted)
	require.True(t, ok)
	assert.Equal(t, msid, started.StreamID)
	assert.Equal(t, "stream", started.StreamName)
	assert.Equal(t, PublishTypeLive, started.Kind)

	// A 300-byte video message crosses three 128-byte chunks and must
	// come out as a single event.
	payload := bytes.Repeat([]byte{0x27}, 300)
	h.client.send(6, &Message{
		Type:      VideoMessage,
		StreamID:  msid,
		Timestamp: 40,
		Payload:   payload,
	})
	media, ok := h.nextEvent(t).(Media)
	require.True(t, ok)
	assert.Equal(t, MediaVideo, media.Kind)
	assert.Equal(t, msid, media.StreamID)
	assert.EqualValues(t, 40, media.Timestamp)
	assert.Equal(t, payload, media.Payload)

	// Metadata rides the same path as a Meta event.
	meta, err := amf0.EncodeAll("onMetaData", amf0.ECMAArray{"width": 1920.0})
	require.NoError(t, err)
	h.client.send(6, &Message{Type: DataMessageAMF0, StreamID: msid, Payload: meta})
	metaEvent, ok := h.nextEvent(t).(Meta)
	require.True(t, ok)
	assert.Equal(t, msid, metaEvent.StreamID)
	assert.Equal(t, meta, metaEvent.Payload)
}

func TestSessionCreateStreamAllocatesFreshIDs(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	seen := make(map[uint32]bool)
	for txn := 2.0; txn < 7.0; txn++ {
		msid := h.client.createStream(txn)
		assert.False(t, seen[msid], "stream id %d handed out twice", msid)
		seen[msid] = true
	}
}

func TestSessionPublishBeforeConnect(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.sendCommand(1, commandPublish, 2.0, nil, "stream", "live")

	name, txn, values := h.client.readCommand()
	assert.Equal(t, commandError, name)
	assert.Equal(t, 2.0, txn)
	assert.Equal(t, codePublishFailed, infoCode(t, values))

	// The connection survives: a proper connect still succeeds.
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))
}

func TestSessionPublishRejectedByHook(t *testing.T) {
	h := newSessionHarness(t, Config{
		OnPublish: func(app, name string, kind PublishType) error {
			return errors.New("bad key")
		},
	})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))
	msid := h.client.createStream(2.0)

	h.client.sendCommand(msid, commandPublish, 3.0, nil, "stream", "live")
	name, _, values := h.client.readCommand()
	assert.Equal(t, commandOnStatus, name)
	assert.Equal(t, codePublishBadName, infoCode(t, values))

	// No transition happened; publishing is still possible once allowed.
	h.client.sendCommand(0, commandFCPublish, 4.0, nil, "stream")
	reply, _, _ := h.client.readCommand()
	assert.Equal(t, commandResult, reply)
}

func TestSessionPublishOnUnknownStreamID(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	h.client.sendCommand(9, commandPublish, 2.0, nil, "stream", "live")
	name, _, values := h.client.readCommand()
	assert.Equal(t, commandOnStatus, name)
	assert.Equal(t, codePublishFailed, infoCode(t, values))
}

func TestSessionDeleteStream(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))
	msid := h.client.createStream(2.0)
	h.client.publish(msid, "stream", "live")
	require.IsType(t, PublishStarted{}, h.nextEvent(t))

	h.client.sendCommand(msid, commandDeleteStream, 6.0, nil, float64(msid))
	name, _, values := h.client.readCommand()
	assert.Equal(t, commandOnStatus, name)
	assert.Equal(t, codeUnpublishSuccess, infoCode(t, values))

	stopped, ok := h.nextEvent(t).(PublishStopped)
	require.True(t, ok)
	assert.Equal(t, msid, stopped.StreamID)
}

func TestSessionTeardownMidPublish(t *testing.T) {
	// A publisher that vanishes mid-stream still produces PublishStopped
	// before the final SessionClosed, and the close counts as clean.
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))
	msid := h.client.createStream(2.0)
	h.client.publish(msid, "stream", "live")
	require.IsType(t, PublishStarted{}, h.nextEvent(t))

	require.NoError(t, h.client.conn.Close())

	stopped, ok := h.nextEvent(t).(PublishStopped)
	require.True(t, ok)
	assert.Equal(t, msid, stopped.StreamID)

	closed, err := h.waitClosed(t)
	assert.NoError(t, err)
	assert.Nil(t, closed.Reason)
}

func TestSessionInvalidChunkSizeIsFatal(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	// Bit 31 set: the session must die without answering. The outbound
	// builder masks the reserved bit, so the payload is spelled out raw.
	h.client.send(protocolChunkStreamID, &Message{
		Type:    SetChunkSize,
		Payload: []byte{0x80, 0x00, 0x00, 0x01},
	})

	closed, err := h.waitClosed(t)
	require.Error(t, err)
	assert.Equal(t, KindInvalidChunkSize, KindOf(err))
	assert.Equal(t, KindInvalidChunkSize, KindOf(closed.Reason))
}

func TestSessionAcknowledgesWindow(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	// A tiny window: the handshake alone already exceeds it, so the first
	// message completed after the announcement triggers an
	// Acknowledgement carrying the total byte count.
	h.client.send(protocolChunkStreamID, newWindowAckSizeMessage(50))
	h.client.sendCommand(0, commandCreateStream, 2.0)

	ack := h.client.readMessage()
	require.Equal(t, Acknowledgement, ack.Type)
	sequence, err := parseUint32Payload(ack)
	require.NoError(t, err)
	assert.Greater(t, sequence, uint32(1+2*handshakePacketSize), "sequence counts from the session start")

	name, _, _ := h.client.readCommand()
	assert.Equal(t, commandResult, name)
}

func TestSessionPingRequestIsAnswered(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	ping := make([]byte, 6)
	ping[1] = byte(eventPingRequest)
	copy(ping[2:], []byte{0xDE, 0xAD, 0xBE, 0xEF})
	h.client.send(protocolChunkStreamID, &Message{Type: UserControlMessage, Payload: ping})

	pong := h.client.readMessage()
	require.Equal(t, UserControlMessage, pong.Type)
	event, data, err := parseUserControl(pong)
	require.NoError(t, err)
	assert.Equal(t, eventPingResponse, event)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, data)
}

func TestSessionUnknownCommand(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	h.client.sendCommand(0, "whoAreYou", 7.0, nil)
	name, txn, values := h.client.readCommand()
	assert.Equal(t, commandError, name)
	assert.Equal(t, 7.0, txn)
	assert.Equal(t, codeCallFailed, infoCode(t, values))
}

func TestSessionMalformedCommandIsDropped(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	// Truncated AMF0: a string marker promising more bytes than exist.
	h.client.send(commandChunkStreamID, &Message{
		Type:    CommandMessageAMF0,
		Payload: []byte{amf0.TypeString, 0x00, 0x40},
	})

	// The session shrugged it off; command handling still works.
	msid := h.client.createStream(2.0)
	assert.EqualValues(t, 1, msid)
}

func TestSessionPlayIsRefused(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))
	msid := h.client.createStream(2.0)

	h.client.sendCommand(msid, commandPlay, 3.0, nil, "stream")
	name, _, values := h.client.readCommand()
	assert.Equal(t, commandError, name)
	assert.Equal(t, codePlayFailed, infoCode(t, values))

	// Still alive afterwards.
	h.client.publish(msid, "stream", "live")
	require.IsType(t, PublishStarted{}, h.nextEvent(t))
}

func TestSessionIdleTimeoutClosesCleanly(t *testing.T) {
	h := newSessionHarness(t, Config{IdleTimeout: 50 * time.Millisecond})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	// Send nothing; the idle deadline fires and the session winds down as
	// an ordinary client departure.
	closed, err := h.waitClosed(t)
	assert.NoError(t, err)
	assert.Nil(t, closed.Reason)
}

func TestSessionCloseFromOutside(t *testing.T) {
	h := newSessionHarness(t, Config{})
	h.client.handshake()
	h.client.connect("live")
	require.IsType(t, SessionOpened{}, h.nextEvent(t))

	require.NoError(t, h.session.Close())
	closed, err := h.waitClosed(t)
	assert.NoError(t, err)
	assert.Nil(t, closed.Reason)
}
