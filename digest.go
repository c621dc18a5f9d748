package rtmp

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Well-known Adobe handshake keys. C1 digests are verified with the
// leading ASCII portion of the client key; S1 digests are produced with
// the leading portion of the server key; the S2 trailer is keyed through
// the full 68-byte server key.
var (
	clientKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'P', 'l', 'a', 'y', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}
	serverKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'M', 'e', 'd', 'i', 'a', ' ',
		'S', 'e', 'r', 'v', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}

	clientPartialKey = clientKey[:30]
	serverPartialKey = serverKey[:36]
)

// digestSchema selects where the digest block lives inside a 1536-byte
// C1/S1 packet. Schema 0 derives the digest position from the four bytes
// at offset 8, schema 1 from the four bytes at offset 772. Clients pick
// one; the server probes both.
type digestSchema int

const (
	schema0 digestSchema = iota
	schema1
)

func (s digestSchema) base() int {
	if s == schema0 {
		return 8
	}
	return 772
}

// digestPos derives the digest-data position from the four offset bytes
// at base. The digest always fits: base 772 yields at most 1503, leaving
// exactly 32 bytes of digest before the end of the packet.
func digestPos(p []byte, base int) int {
	pos := 0
	for i := 0; i < 4; i++ {
		pos += int(p[base+i])
	}
	return pos%728 + base + 4
}

// makeDigest computes HMAC-SHA256 over src with the 32 digest bytes at
// pos elided. A negative pos digests all of src.
func makeDigest(key, src []byte, pos int) []byte {
	h := hmac.New(sha256.New, key)
	if pos < 0 {
		h.Write(src)
	} else {
		h.Write(src[:pos])
		h.Write(src[pos+32:])
	}
	return h.Sum(nil)
}

// findDigest checks whether packet carries a valid digest under schema,
// returning the 32 digest bytes when it does.
func findDigest(packet, key []byte, schema digestSchema) ([]byte, bool) {
	pos := digestPos(packet, schema.base())
	if !hmac.Equal(packet[pos:pos+32], makeDigest(key, packet, pos)) {
		return nil, false
	}
	return packet[pos : pos+32], true
}

// findClientDigest probes both schemas for a C1 digest.
func findClientDigest(c1 []byte) ([]byte, digestSchema, bool) {
	for _, schema := range []digestSchema{schema0, schema1} {
		if digest, ok := findDigest(c1, clientPartialKey, schema); ok {
			return digest, schema, true
		}
	}
	return nil, schema0, false
}

// injectDigest computes the digest for packet under schema and writes it
// in place.
func injectDigest(packet, key []byte, schema digestSchema) {
	pos := digestPos(packet, schema.base())
	copy(packet[pos:pos+32], makeDigest(key, packet, pos))
}
