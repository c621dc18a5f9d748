package binary24

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBigEndian(t *testing.T) {
	tests := []struct {
		name  string
		value uint32
		bytes []byte
	}{
		{"zero", 0x000000, []byte{0x00, 0x00, 0x00}},
		{"one", 0x000001, []byte{0x00, 0x00, 0x01}},
		{"mid", 0x0102FF, []byte{0x01, 0x02, 0xFF}},
		{"max", 0xFFFFFF, []byte{0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, 3)
			BigEndian.PutUint24(b, tt.value)
			assert.Equal(t, tt.bytes, b)
			assert.Equal(t, tt.value, BigEndian.Uint24(tt.bytes))
			assert.Equal(t, tt.bytes, BigEndian.AppendUint24(nil, tt.value))
		})
	}
}

func TestBigEndianTruncatesHighByte(t *testing.T) {
	b := make([]byte, 3)
	BigEndian.PutUint24(b, 0xAA123456)
	assert.Equal(t, []byte{0x12, 0x34, 0x56}, b)
}

func TestLittleEndian(t *testing.T) {
	tests := []struct {
		name  string
		value uint32
		bytes []byte
	}{
		{"zero", 0x000000, []byte{0x00, 0x00, 0x00}},
		{"one", 0x000001, []byte{0x01, 0x00, 0x00}},
		{"mid", 0x0102FF, []byte{0xFF, 0x02, 0x01}},
		{"max", 0xFFFFFF, []byte{0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, 3)
			LittleEndian.PutUint24(b, tt.value)
			assert.Equal(t, tt.bytes, b)
			assert.Equal(t, tt.value, LittleEndian.Uint24(tt.bytes))
			assert.Equal(t, tt.bytes, LittleEndian.AppendUint24(nil, tt.value))
		})
	}
}
