package rtmp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, server *Server) net.Addr {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- server.Serve(listener) }()
	t.Cleanup(func() {
		require.NoError(t, server.Close())
		select {
		case err := <-done:
			assert.NoError(t, err, "Serve must return nil after Close")
		case <-time.After(testWait):
			t.Fatal("Serve did not return after Close")
		}
	})
	return listener.Addr()
}

func dialTestClient(t *testing.T, addr net.Addr) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return newTestClient(t, conn)
}

func TestServerAcceptsPublisher(t *testing.T) {
	events := make(chan Event, DefaultChannelCapacity)
	server := &Server{
		OnSession: func(session *Session) {
			for event := range session.Events() {
				events <- event
			}
		},
	}
	addr := startTestServer(t, server)

	client := dialTestClient(t, addr)
	client.handshake()
	client.connect("live")
	msid := client.createStream(2.0)
	client.publish(msid, "stream", "live")

	require.IsType(t, SessionOpened{}, <-events)
	started := (<-events).(PublishStarted)
	assert.Equal(t, "stream", started.StreamName)

	owner, live := server.Registry().Publisher("live", "stream")
	assert.True(t, live)
	assert.NotEmpty(t, owner)
	assert.EqualValues(t, 1, server.LiveSessions())
}

func TestServerRejectsDuplicateStreamKey(t *testing.T) {
	server := &Server{OnSession: func(session *Session) {
		for range session.Events() {
		}
	}}
	addr := startTestServer(t, server)

	first := dialTestClient(t, addr)
	first.handshake()
	first.connect("live")
	firstMsid := first.createStream(2.0)
	first.publish(firstMsid, "stream", "live")

	// A second publisher on the same app/name key is turned away.
	second := dialTestClient(t, addr)
	second.handshake()
	second.connect("live")
	secondMsid := second.createStream(2.0)
	second.sendCommand(secondMsid, commandPublish, 3.0, nil, "stream", "live")
	name, _, values := second.readCommand()
	assert.Equal(t, commandOnStatus, name)
	assert.Equal(t, codePublishBadName, infoCode(t, values))

	// A different name on the same app is fine.
	second.publish(secondMsid, "other", "live")
	assert.Equal(t, 2, server.Registry().Len())
}

func TestServerReleasesStreamKeyOnDisconnect(t *testing.T) {
	server := &Server{OnSession: func(session *Session) {
		for range session.Events() {
		}
	}}
	addr := startTestServer(t, server)

	client := dialTestClient(t, addr)
	client.handshake()
	client.connect("live")
	msid := client.createStream(2.0)
	client.publish(msid, "stream", "live")
	require.Equal(t, 1, server.Registry().Len())

	require.NoError(t, client.conn.Close())
	require.Eventually(t, func() bool {
		return server.Registry().Len() == 0
	}, testWait, 10*time.Millisecond, "stream key must be released on disconnect")
	require.Eventually(t, func() bool {
		return server.LiveSessions() == 0
	}, testWait, 10*time.Millisecond)
}

func TestServerCloseTearsDownSessions(t *testing.T) {
	closed := make(chan SessionClosed, 1)
	server := &Server{OnSession: func(session *Session) {
		for event := range session.Events() {
			if c, ok := event.(SessionClosed); ok {
				closed <- c
			}
		}
	}}
	addr := startTestServer(t, server)

	client := dialTestClient(t, addr)
	client.handshake()
	client.connect("live")

	require.NoError(t, server.Close())
	select {
	case c := <-closed:
		assert.Nil(t, c.Reason, "server-initiated close is a clean close")
	case <-time.After(testWait):
		t.Fatal("session did not close")
	}
}
