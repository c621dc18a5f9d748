// Package rand wraps the randomness sources the engine needs: handshake
// payload filler and session identifiers.
package rand

import (
	cryptoRand "crypto/rand"

	"github.com/google/uuid"
)

// Fill overwrites b with cryptographically-safe random data.
func Fill(b []byte) error {
	_, err := cryptoRand.Read(b)
	return err
}

// Bytes returns a slice of n cryptographically-safe random bytes.
func Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := Fill(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateSessionID returns a fresh UUID in string form (with hyphens),
// used to correlate every log line of a connection.
func GenerateSessionID() string {
	return uuid.NewString()
}
