package amf0

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
)

// ErrReference is returned when a payload contains a reference value
// (marker 0x07). References require a decode-time object table that RTMP
// publishers never exercise, so they are rejected instead.
var ErrReference = errors.New("amf0: references are not supported")

// Decoder reads a sequence of AMF0 values from a byte slice.
// It is not safe for concurrent use.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder positioned at the start of b.
// The Decoder reads from b directly and never modifies it.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining reports how many undecoded bytes are left.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Decode returns the next value in the payload.
// See the package documentation for the value-to-Go-type mapping.
func (d *Decoder) Decode() (interface{}, error) {
	marker, err := d.takeByte()
	if err != nil {
		return nil, err
	}
	switch marker {
	case TypeNumber:
		return d.decodeNumber()
	case TypeBoolean:
		b, err := d.takeByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case TypeString:
		return d.decodeShortString()
	case TypeLongString:
		return d.decodeLongString()
	case TypeObject:
		return d.decodeObject()
	case TypeNull:
		return nil, nil
	case TypeUndefined:
		return Undefined{}, nil
	case TypeECMAArray:
		return d.decodeECMAArray()
	case TypeStrictArray:
		return d.decodeStrictArray()
	case TypeDate:
		return d.decodeDate()
	case TypeReference:
		return nil, ErrReference
	default:
		return nil, errors.Errorf("amf0: cannot decode marker 0x%02x", marker)
	}
}

// All decodes values until the payload is exhausted and returns them in
// order. On error the values decoded so far are returned with it.
func (d *Decoder) All() ([]interface{}, error) {
	var values []interface{}
	for d.Remaining() > 0 {
		v, err := d.Decode()
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Decode returns the first value encoded in b.
func Decode(b []byte) (interface{}, error) {
	return NewDecoder(b).Decode()
}

// DecodeAll returns every value encoded in b, in order.
func DecodeAll(b []byte) ([]interface{}, error) {
	return NewDecoder(b).All()
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, errors.Errorf("amf0: need %d more bytes, have %d", n, d.Remaining())
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) takeByte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) decodeNumber() (float64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (d *Decoder) decodeShortString() (string, error) {
	b, err := d.take(2)
	if err != nil {
		return "", err
	}
	s, err := d.take(int(binary.BigEndian.Uint16(b)))
	return string(s), err
}

func (d *Decoder) decodeLongString() (string, error) {
	b, err := d.take(4)
	if err != nil {
		return "", err
	}
	s, err := d.take(int(binary.BigEndian.Uint32(b)))
	return string(s), err
}

// atObjectEnd reports whether the cursor sits on the 0x00 0x00 0x09
// sentinel, consuming it when so.
func (d *Decoder) atObjectEnd() bool {
	if d.Remaining() >= 3 && d.buf[d.pos] == 0x00 && d.buf[d.pos+1] == 0x00 && d.buf[d.pos+2] == TypeObjectEnd {
		d.pos += 3
		return true
	}
	return false
}

func (d *Decoder) decodeProperties() (map[string]interface{}, error) {
	m := make(map[string]interface{})
	for {
		if d.atObjectEnd() {
			return m, nil
		}
		key, err := d.decodeShortString()
		if err != nil {
			return nil, err
		}
		val, err := d.Decode()
		if err != nil {
			return nil, err
		}
		m[key] = val
	}
}

func (d *Decoder) decodeObject() (map[string]interface{}, error) {
	return d.decodeProperties()
}

// decodeECMAArray reads an associative array. The leading 32-bit entry
// count is advisory only; encoders in the wild disagree on whether it is
// exact, so decoding walks to the end-of-object sentinel just like Object.
func (d *Decoder) decodeECMAArray() (ECMAArray, error) {
	if _, err := d.take(4); err != nil {
		return nil, err
	}
	m, err := d.decodeProperties()
	if err != nil {
		return nil, err
	}
	return ECMAArray(m), nil
}

func (d *Decoder) decodeStrictArray() ([]interface{}, error) {
	b, err := d.take(4)
	if err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(b)
	values := make([]interface{}, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// decodeDate reads a Date: a double of milliseconds since the Unix epoch
// followed by a 16-bit time zone offset that the format reserves as zero.
func (d *Decoder) decodeDate() (time.Time, error) {
	millis, err := d.decodeNumber()
	if err != nil {
		return time.Time{}, err
	}
	if _, err := d.take(2); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(millis)).UTC(), nil
}
