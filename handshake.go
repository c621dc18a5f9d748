package rtmp

import (
	"encoding/binary"
	"time"

	"github.com/chipsTM/rtmp/rand"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// handshakePacketSize is the length of C1, C2, S1 and S2.
	handshakePacketSize = 1536

	// supportedProtocolVersion is the only RTMP version the server
	// speaks. Other C0 values are still answered with 3 and the peer
	// decides whether to continue.
	supportedProtocolVersion = 3

	// serverVersion is the FMS-style version quad advertised in S1
	// during a digest handshake (4.5.0.1).
	serverVersion uint32 = 0x04050001

	// s2RandomSize is the portion of S2 filled with random bytes before
	// the 32-byte digest trailer.
	s2RandomSize = handshakePacketSize - sha256DigestSize

	sha256DigestSize = 32
)

// Handshaker negotiates the RTMP handshake on a fresh connection, before
// any chunk data is exchanged.
type Handshaker interface {
	Handshake(reader *Reader, writer *Writer) error
}

// serverHandshaker performs the server side of the handshake. It first
// attempts the digest variant used by Flash-family encoders; when C1
// carries no valid digest under either schema it answers the same C1
// bytes with the plain echo variant instead.
type serverHandshaker struct {
	logger *zap.Logger
}

// NewHandshaker returns the default server-side Handshaker.
func NewHandshaker(logger *zap.Logger) Handshaker {
	return &serverHandshaker{logger: logger}
}

func (h *serverHandshaker) Handshake(reader *Reader, writer *Writer) error {
	c0c1 := make([]byte, 1+handshakePacketSize)
	if _, err := reader.Read(c0c1); err != nil {
		return errors.Wrap(err, "handshake: reading C0+C1")
	}
	if version := c0c1[0]; version != supportedProtocolVersion {
		h.logger.Warn("client requested unsupported RTMP version, answering version 3",
			zap.Uint8("requestedVersion", version))
	}
	c1 := c0c1[1:]

	s1 := make([]byte, handshakePacketSize)
	s2 := make([]byte, handshakePacketSize)
	if c1Digest, schema, ok := findClientDigest(c1); ok {
		if err := h.generateDigestS1S2(s1, s2, c1Digest, schema); err != nil {
			return err
		}
		h.logger.Debug("handshake: C1 digest verified", zap.Int("schema", int(schema)))
	} else {
		if err := h.generateEchoS1S2(s1, s2, c1); err != nil {
			return err
		}
		h.logger.Debug("handshake: no C1 digest, echoing C1 as S2")
	}

	if _, err := writer.Write([]byte{supportedProtocolVersion}); err != nil {
		return errors.Wrap(err, "handshake: writing S0")
	}
	if _, err := writer.Write(s1); err != nil {
		return errors.Wrap(err, "handshake: writing S1")
	}
	if _, err := writer.Write(s2); err != nil {
		return errors.Wrap(err, "handshake: writing S2")
	}
	if err := writer.Flush(); err != nil {
		return errors.Wrap(err, "handshake: flushing S0+S1+S2")
	}

	// C2 is read to keep the stream aligned but its contents are not
	// validated; real-world encoders echo S1 imperfectly often enough
	// that rejecting it breaks interop.
	c2 := make([]byte, handshakePacketSize)
	if _, err := reader.Read(c2); err != nil {
		return errors.Wrap(err, "handshake: reading C2")
	}
	return nil
}

// generateDigestS1S2 fills s1 and s2 for the digest handshake. S1 carries
// its own digest under the schema the client chose; S2 is random with a
// trailer keyed through the C1 digest.
func (h *serverHandshaker) generateDigestS1S2(s1, s2, c1Digest []byte, schema digestSchema) error {
	binary.BigEndian.PutUint32(s1[:4], uint32(time.Now().UnixNano()))
	binary.BigEndian.PutUint32(s1[4:8], serverVersion)
	if err := rand.Fill(s1[8:]); err != nil {
		return errors.Wrap(err, "handshake: generating S1")
	}
	injectDigest(s1, serverPartialKey, schema)

	if err := rand.Fill(s2); err != nil {
		return errors.Wrap(err, "handshake: generating S2")
	}
	trailerKey := makeDigest(serverKey, c1Digest, -1)
	copy(s2[s2RandomSize:], makeDigest(trailerKey, s2[:s2RandomSize], -1))
	return nil
}

// generateEchoS1S2 fills s1 and s2 for the plain handshake: S1 is
// timestamp, zeroes and random padding, S2 echoes C1 verbatim.
func (h *serverHandshaker) generateEchoS1S2(s1, s2, c1 []byte) error {
	binary.BigEndian.PutUint32(s1[:4], uint32(time.Now().UnixNano()))
	binary.BigEndian.PutUint32(s1[4:8], 0)
	if err := rand.Fill(s1[8:]); err != nil {
		return errors.Wrap(err, "handshake: generating S1")
	}
	copy(s2, c1)
	return nil
}
