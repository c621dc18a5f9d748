package rtmp

import (
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"
)

// ErrorKind classifies every failure the engine produces. Kinds marked
// recoverable are answered on the wire with `_error` or `onStatus` and the
// session continues; all others unwind the session loop and close the
// connection.
type ErrorKind uint8

const (
	// KindIO is an underlying transport failure.
	KindIO ErrorKind = iota
	// KindUnexpectedEOF means the peer closed mid-frame.
	KindUnexpectedEOF
	// KindHandshakeMalformed means neither handshake variant accepted C1.
	KindHandshakeMalformed
	// KindChunkMalformed is an impossible chunk field combination, such as
	// a Fmt 3 chunk on a chunk stream that never saw a Fmt 0/1/2.
	KindChunkMalformed
	// KindTooManyChunkStreams means the per-connection chunk stream cap
	// was exceeded.
	KindTooManyChunkStreams
	// KindInvalidChunkSize is a Set Chunk Size with bit 31 set or a value
	// below 1.
	KindInvalidChunkSize
	// KindAMF0Decode is a malformed AMF0 body inside a single message.
	KindAMF0Decode
	// KindUnexpectedMessage is a command that is out of order for the
	// current session state.
	KindUnexpectedMessage
	// KindHookRejected means an OnConnect or OnPublish hook denied the
	// request.
	KindHookRejected
	// KindTimeout is an elapsed handshake or idle deadline.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindUnexpectedEOF:
		return "unexpected eof"
	case KindHandshakeMalformed:
		return "handshake malformed"
	case KindChunkMalformed:
		return "chunk malformed"
	case KindTooManyChunkStreams:
		return "too many chunk streams"
	case KindInvalidChunkSize:
		return "invalid chunk size"
	case KindAMF0Decode:
		return "amf0 decode"
	case KindUnexpectedMessage:
		return "unexpected message"
	case KindHookRejected:
		return "hook rejected"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Recoverable reports whether a session survives an error of this kind.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindAMF0Decode, KindUnexpectedMessage, KindHookRejected:
		return true
	default:
		return false
	}
}

// Error ties a cause to its protocol classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether the session survives this error.
func (e *Error) Recoverable() bool { return e.Kind.Recoverable() }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// KindOf classifies err, unwrapping as needed. Errors that did not
// originate in this package map onto KindTimeout (net timeouts),
// KindUnexpectedEOF (peer gone mid-frame) or KindIO (everything else).
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindUnexpectedEOF
	}
	return KindIO
}

// IsRecoverable reports whether the session continues after err.
func IsRecoverable(err error) bool {
	return KindOf(err).Recoverable()
}

// IsClientClosed reports whether err is an ordinary peer disconnect or
// idle timeout rather than a protocol violation. Servers log these at a
// lower level; every publisher eventually hangs up.
func IsClientClosed(err error) bool {
	switch KindOf(err) {
	case KindUnexpectedEOF, KindTimeout:
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed)
}
