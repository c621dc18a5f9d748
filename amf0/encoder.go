package amf0

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Encode returns the AMF0 representation of v.
// Numeric Go types other than float64 are widened to Number.
func Encode(v interface{}) ([]byte, error) {
	return appendValue(nil, v)
}

// EncodeAll encodes each value in turn into one contiguous payload, the
// form command messages are built from.
func EncodeAll(values ...interface{}) ([]byte, error) {
	var b []byte
	var err error
	for _, v := range values {
		if b, err = appendValue(b, v); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func appendValue(b []byte, v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return append(b, TypeNull), nil
	case float64:
		return appendNumber(b, v), nil
	case float32:
		return appendNumber(b, float64(v)), nil
	case int:
		return appendNumber(b, float64(v)), nil
	case int64:
		return appendNumber(b, float64(v)), nil
	case uint32:
		return appendNumber(b, float64(v)), nil
	case bool:
		if v {
			return append(b, TypeBoolean, 1), nil
		}
		return append(b, TypeBoolean, 0), nil
	case string:
		return appendString(b, v), nil
	case map[string]interface{}:
		return appendObject(b, v)
	case ECMAArray:
		return appendECMAArray(b, v)
	case []interface{}:
		return appendStrictArray(b, v)
	case time.Time:
		return appendDate(b, v), nil
	case Undefined:
		return append(b, TypeUndefined), nil
	case ObjectEnd:
		return append(b, 0x00, 0x00, TypeObjectEnd), nil
	default:
		return nil, errors.Errorf("amf0: cannot encode value of type %T", v)
	}
}

func appendNumber(b []byte, f float64) []byte {
	b = append(b, TypeNumber)
	return binary.BigEndian.AppendUint64(b, math.Float64bits(f))
}

// appendShortString writes the headerless length-prefixed form used for
// object keys.
func appendShortString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func appendString(b []byte, s string) []byte {
	if len(s) > longStringThreshold {
		b = append(b, TypeLongString)
		b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
		return append(b, s...)
	}
	b = append(b, TypeString)
	return appendShortString(b, s)
}

func appendProperties(b []byte, m map[string]interface{}) ([]byte, error) {
	var err error
	for k, v := range m {
		b = appendShortString(b, k)
		if b, err = appendValue(b, v); err != nil {
			return nil, err
		}
	}
	return append(b, 0x00, 0x00, TypeObjectEnd), nil
}

func appendObject(b []byte, m map[string]interface{}) ([]byte, error) {
	return appendProperties(append(b, TypeObject), m)
}

func appendECMAArray(b []byte, m ECMAArray) ([]byte, error) {
	b = append(b, TypeECMAArray)
	b = binary.BigEndian.AppendUint32(b, uint32(len(m)))
	return appendProperties(b, m)
}

func appendStrictArray(b []byte, values []interface{}) ([]byte, error) {
	b = append(b, TypeStrictArray)
	b = binary.BigEndian.AppendUint32(b, uint32(len(values)))
	var err error
	for _, v := range values {
		if b, err = appendValue(b, v); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func appendDate(b []byte, t time.Time) []byte {
	b = append(b, TypeDate)
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(float64(t.UnixMilli())))
	return append(b, 0x00, 0x00) // time zone, reserved as zero
}
