// Package audio decodes the FLV audio tag header that leads every RTMP
// audio message payload.
package audio

import "github.com/pkg/errors"

// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf

type Format uint8

const (
	LinearPCMPlatformEndian Format = 0
	ADPCM                   Format = 1
	MP3                     Format = 2
	LinearPCMLittleEndian   Format = 3
	Nellymoser16KHzMono     Format = 4
	Nellymoser8KHzMono      Format = 5
	Nellymoser              Format = 6
	G711AlawLogPCM          Format = 7
	G711MulawLogPCM         Format = 8
	AAC                     Format = 10
	Speex                   Format = 11
	MP38KHz                 Format = 14
	DeviceSpecificSound     Format = 15
)

func (f Format) String() string {
	switch f {
	case LinearPCMPlatformEndian:
		return "Linear PCM (platform endian)"
	case ADPCM:
		return "ADPCM"
	case MP3:
		return "MP3"
	case LinearPCMLittleEndian:
		return "Linear PCM (little endian)"
	case Nellymoser16KHzMono:
		return "Nellymoser 16 kHz mono"
	case Nellymoser8KHzMono:
		return "Nellymoser 8 kHz mono"
	case Nellymoser:
		return "Nellymoser"
	case G711AlawLogPCM:
		return "G.711 A-law"
	case G711MulawLogPCM:
		return "G.711 mu-law"
	case AAC:
		return "AAC"
	case Speex:
		return "Speex"
	case MP38KHz:
		return "MP3 8 kHz"
	case DeviceSpecificSound:
		return "device-specific"
	default:
		return "unknown"
	}
}

type SampleRate uint8

const (
	Rate5p5KHz SampleRate = 0
	Rate11KHz  SampleRate = 1
	Rate22KHz  SampleRate = 2
	Rate44KHz  SampleRate = 3
)

// KHz returns the nominal sampling rate. AAC always signals Rate44KHz
// regardless of the true rate carried in its sequence header.
func (r SampleRate) KHz() float64 {
	switch r {
	case Rate5p5KHz:
		return 5.5
	case Rate11KHz:
		return 11
	case Rate22KHz:
		return 22
	default:
		return 44
	}
}

type SampleSize uint8

const (
	Size8Bit  SampleSize = 0
	Size16Bit SampleSize = 1
)

type Channel uint8

const (
	Mono   Channel = 0
	Stereo Channel = 1
)

type AACPacketType uint8

const (
	AACSequenceHeader AACPacketType = 0
	AACRaw            AACPacketType = 1
)

// TagHeader is the decoded leading byte of an audio payload.
type TagHeader struct {
	Format     Format
	SampleRate SampleRate
	SampleSize SampleSize
	Channel    Channel
}

// ParseTagHeader decodes the first byte of an RTMP audio message
// payload.
func ParseTagHeader(payload []byte) (TagHeader, error) {
	if len(payload) == 0 {
		return TagHeader{}, errors.New("empty audio payload")
	}
	b := payload[0]
	return TagHeader{
		Format:     Format(b >> 4),
		SampleRate: SampleRate(b >> 2 & 0x3),
		SampleSize: SampleSize(b >> 1 & 0x1),
		Channel:    Channel(b & 0x1),
	}, nil
}

// IsSequenceHeader reports whether payload is an AAC sequence header,
// the AudioSpecificConfig every AAC stream opens with. Consumers must
// hand it to late joiners before any raw frames.
func IsSequenceHeader(payload []byte) bool {
	return len(payload) >= 2 &&
		Format(payload[0]>>4) == AAC &&
		AACPacketType(payload[1]) == AACSequenceHeader
}
