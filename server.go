// Package rtmp implements the ingest side of RTMP 1.0: the server
// handshake (plain and digest variants), the chunk stream codec, the
// AMF0 command plane and the publisher session state machine.
//
// A Session turns one accepted connection into an ordered stream of
// events (session lifecycle, stream metadata, audio, video) on a bounded
// channel. Server adds a TCP accept loop and stream-key deduplication on
// top; it is a convenience, and a Session works over any net.Conn. The
// play side of the protocol is not implemented: players are refused and
// the engine never reads media back out.
package rtmp

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Server accepts publisher connections and runs a Session per
// connection. The zero value is usable; exported fields must not be
// changed after the first call to Serve or ListenAndServe.
type Server struct {
	// Addr is the listen address for ListenAndServe, ":1935" when empty.
	Addr string
	// Config applies to every accepted session.
	Config Config
	// Logger defaults to a no-op logger. Sessions derive per-connection
	// child loggers from it.
	Logger *zap.Logger
	// OnSession, when set, receives every accepted session on its own
	// goroutine before the session starts, and must drain
	// session.Events() until the channel closes. When nil the server
	// discards events itself.
	OnSession func(*Session)

	initOnce sync.Once
	registry *Registry

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	closed   bool

	live atomic.Int64
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		s.registry = NewRegistry()
		s.sessions = make(map[*Session]struct{})
	})
}

func (s *Server) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// Registry exposes the server's stream-key registry.
func (s *Server) Registry() *Registry {
	s.init()
	return s.registry
}

// LiveSessions returns how many sessions are currently running.
func (s *Server) LiveSessions() int64 {
	return s.live.Load()
}

// ListenAndServe listens on Addr and serves until Close is called.
func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":" + DefaultPort
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Close is called or the
// listener fails.
func (s *Server) Serve(listener net.Listener) error {
	s.init()
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logger := s.logger()
	logger.Info("listening", zap.String("addr", listener.Addr().String()))
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return errors.Wrap(err, "accepting connection")
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	session := NewSession(conn, s.Config, s.logger())
	session.registry = s.registry

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[session] = struct{}{}
	s.mu.Unlock()

	s.live.Inc()
	defer func() {
		s.live.Dec()
		s.mu.Lock()
		delete(s.sessions, session)
		s.mu.Unlock()
	}()

	if handler := s.OnSession; handler != nil {
		go handler(session)
	} else {
		go func() {
			for range session.Events() {
			}
		}()
	}
	// The session logs its own outcome; the error only matters to
	// callers driving a Session by hand.
	_ = session.Run()
}

// Close stops accepting and tears down every live session. Each
// session's event channel still delivers its final SessionClosed before
// closing.
func (s *Server) Close() error {
	s.init()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	sessions := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	for _, session := range sessions {
		_ = session.Close()
	}
	return err
}
