// Package video decodes the FLV video tag header that leads every RTMP
// video message payload.
package video

import "github.com/pkg/errors"

// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf

type FrameType uint8

const (
	KeyFrame             FrameType = 1
	InterFrame           FrameType = 2
	DisposableInterFrame FrameType = 3
	GeneratedKeyFrame    FrameType = 4
	// Video info/command frame
	CommandFrame FrameType = 5
)

func (t FrameType) String() string {
	switch t {
	case KeyFrame:
		return "key frame"
	case InterFrame:
		return "inter frame"
	case DisposableInterFrame:
		return "disposable inter frame"
	case GeneratedKeyFrame:
		return "generated key frame"
	case CommandFrame:
		return "command frame"
	default:
		return "unknown"
	}
}

type Codec uint8

const (
	SorensonH263    Codec = 2
	ScreenVideo     Codec = 3
	VP6             Codec = 4
	VP6AlphaChannel Codec = 5
	ScreenVideoV2   Codec = 6
	H264            Codec = 7
)

func (c Codec) String() string {
	switch c {
	case SorensonH263:
		return "Sorenson H.263"
	case ScreenVideo:
		return "Screen Video"
	case VP6:
		return "VP6"
	case VP6AlphaChannel:
		return "VP6 with alpha"
	case ScreenVideoV2:
		return "Screen Video v2"
	case H264:
		return "H.264"
	default:
		return "unknown"
	}
}

type AVCPacketType uint8

const (
	AVCSequenceHeader AVCPacketType = 0
	AVCNALU           AVCPacketType = 1
	AVCEndOfSequence  AVCPacketType = 2
)

// TagHeader is the decoded leading byte of a video payload.
type TagHeader struct {
	FrameType FrameType
	Codec     Codec
}

// ParseTagHeader decodes the first byte of an RTMP video message
// payload.
func ParseTagHeader(payload []byte) (TagHeader, error) {
	if len(payload) == 0 {
		return TagHeader{}, errors.New("empty video payload")
	}
	return TagHeader{
		FrameType: FrameType(payload[0] >> 4),
		Codec:     Codec(payload[0] & 0xF),
	}, nil
}

// IsKeyFrame reports whether payload starts a seekable frame.
func IsKeyFrame(payload []byte) bool {
	return len(payload) >= 1 && FrameType(payload[0]>>4) == KeyFrame
}

// IsSequenceHeader reports whether payload is an H.264 sequence header
// (the AVCDecoderConfigurationRecord with SPS/PPS). Consumers must hand
// it to late joiners before any NAL units.
func IsSequenceHeader(payload []byte) bool {
	return len(payload) >= 2 &&
		Codec(payload[0]&0xF) == H264 &&
		AVCPacketType(payload[1]) == AVCSequenceHeader
}
