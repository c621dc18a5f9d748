// Package amf0 implements the subset of Action Message Format 0 that RTMP
// command and data messages use. Values map to Go types as follows:
//
//	Number       float64
//	Boolean      bool
//	String       string (long strings decode to string as well)
//	Object       map[string]interface{}
//	Null         nil
//	Undefined    amf0.Undefined
//	ECMA array   amf0.ECMAArray
//	Strict array []interface{}
//	Date         time.Time
//
// References (marker 0x07) and AMF3 (marker 0x11) are not supported;
// decoding either fails with a recoverable error.
package amf0

// Type markers, one byte each, as defined by the AMF0 specification.
const (
	TypeNumber        = 0x00
	TypeBoolean       = 0x01
	TypeString        = 0x02
	TypeObject        = 0x03
	TypeMovieClip     = 0x04 // reserved, not supported
	TypeNull          = 0x05
	TypeUndefined     = 0x06
	TypeReference     = 0x07 // not supported
	TypeECMAArray     = 0x08
	TypeObjectEnd     = 0x09
	TypeStrictArray   = 0x0A
	TypeDate          = 0x0B
	TypeLongString    = 0x0C
	TypeUnsupported   = 0x0D
	TypeRecordSet     = 0x0E // reserved, not supported
	TypeXMLDocument   = 0x0F
	TypeTypedObject   = 0x10
	TypeAVMPlusObject = 0x11 // AMF3 escape, not supported
)

// Strings longer than this are encoded as long strings (marker 0x0C).
const longStringThreshold = 0xFFFF

// ECMAArray is an associative array. The wire form carries an entry count
// that a plain Object lacks, but decoding otherwise treats both the same.
type ECMAArray map[string]interface{}

// ObjectEnd is the 0x00 0x00 0x09 sentinel that terminates an Object or
// ECMAArray. It only appears as a standalone value when decoding a
// truncated or hand-rolled payload.
type ObjectEnd struct{}

// Undefined is the AMF0 undefined value (marker 0x06).
type Undefined struct{}
