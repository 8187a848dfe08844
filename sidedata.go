package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SideDataType keys out-of-band metadata attached to packets and frames.
type SideDataType int

const (
	// SideDataParamChange carries a mid-stream parameter change (see
	// parseParamChange for the wire format). Packet-only.
	SideDataParamChange SideDataType = iota
	SideDataReplayGain
	SideDataDisplayMatrix
	SideDataSpherical
	SideDataStereo3D
	SideDataAudioServiceType
)

func (t SideDataType) String() string {
	switch t {
	case SideDataParamChange:
		return "ParamChange"
	case SideDataReplayGain:
		return "ReplayGain"
	case SideDataDisplayMatrix:
		return "DisplayMatrix"
	case SideDataSpherical:
		return "Spherical"
	case SideDataStereo3D:
		return "Stereo3D"
	case SideDataAudioServiceType:
		return "AudioServiceType"
	default:
		return "Unknown"
	}
}

// Parameter-change flag bits, little-endian on the wire.
const (
	paramChangeChannelCount  uint32 = 0x0001 // deprecated, 4-byte count follows
	paramChangeChannelLayout uint32 = 0x0002 // deprecated, 8-byte mask follows
	paramChangeSampleRate    uint32 = 0x0004 // 4-byte rate follows
	paramChangeDimensions    uint32 = 0x0008 // 4-byte width + 4-byte height follow
)

type paramChange struct {
	channelCount     int
	hasChannelCount  bool
	channelLayout    uint64
	hasChannelLayout bool
	sampleRate       int
	hasSampleRate    bool
	width, height    int
	hasDimensions    bool
}

// parseParamChange decodes parameter-change side data: a 4-byte little-endian
// flag mask followed by the fields the mask declares, in mask-bit order.
// Unknown trailing bytes are ignored; a field truncated below its declared
// size is a hard format error.
func parseParamChange(data []byte) (paramChange, error) {
	var pc paramChange
	if len(data) < 4 {
		return pc, fmt.Errorf("%w: parameter change side data too small", ErrInvalidData)
	}
	flags := binary.LittleEndian.Uint32(data)
	data = data[4:]

	if flags&paramChangeChannelCount != 0 {
		if len(data) < 4 {
			return pc, fmt.Errorf("%w: truncated channel count", ErrInvalidData)
		}
		pc.channelCount = int(binary.LittleEndian.Uint32(data))
		pc.hasChannelCount = true
		data = data[4:]
	}
	if flags&paramChangeChannelLayout != 0 {
		if len(data) < 8 {
			return pc, fmt.Errorf("%w: truncated channel layout", ErrInvalidData)
		}
		pc.channelLayout = binary.LittleEndian.Uint64(data)
		pc.hasChannelLayout = true
		data = data[8:]
	}
	if flags&paramChangeSampleRate != 0 {
		if len(data) < 4 {
			return pc, fmt.Errorf("%w: truncated sample rate", ErrInvalidData)
		}
		pc.sampleRate = int(binary.LittleEndian.Uint32(data))
		pc.hasSampleRate = true
		data = data[4:]
	}
	if flags&paramChangeDimensions != 0 {
		if len(data) < 8 {
			return pc, fmt.Errorf("%w: truncated dimensions", ErrInvalidData)
		}
		pc.width = int(binary.LittleEndian.Uint32(data))
		pc.height = int(binary.LittleEndian.Uint32(data[4:]))
		pc.hasDimensions = true
	}
	return pc, nil
}

// applyParamChange applies parameter-change side data found on a filtered
// packet to the decoder configuration. Sending such data to a backend that
// does not declare CapParamChange is an error only under StrictErrors;
// otherwise it is logged and ignored. Truncated payloads are always rejected.
func (d *Decoder) applyParamChange(pkt *Packet) error {
	data, ok := pkt.SideData[SideDataParamChange]
	if !ok {
		return nil
	}

	if !d.codec.Capabilities.Has(CapParamChange) {
		logrus.WithFields(logrus.Fields{
			"codec": d.codec.Name,
		}).Error("parameter change side data sent to a decoder that does not support parameter changes")
		if d.config.StrictErrors {
			return fmt.Errorf("%w: %s cannot apply parameter changes", ErrUnsupported, d.codec.Name)
		}
		return nil
	}

	pc, err := parseParamChange(data)
	if err != nil {
		return err
	}

	if pc.hasChannelCount {
		d.config.Channels = pc.channelCount
	}
	if pc.hasChannelLayout {
		d.config.ChannelLayout = pc.channelLayout
	}
	if pc.hasSampleRate {
		d.config.SampleRate = pc.sampleRate
	}
	if pc.hasDimensions {
		if pc.width <= 0 || pc.height <= 0 {
			return fmt.Errorf("%w: parameter change to invalid dimensions %dx%d",
				ErrInvalidData, pc.width, pc.height)
		}
		d.config.Width = pc.width
		d.config.Height = pc.height
	}
	return nil
}

// Packet side-data kinds copied verbatim onto every decoded frame.
var propagatedSideData = [...]SideDataType{
	SideDataReplayGain,
	SideDataDisplayMatrix,
	SideDataSpherical,
	SideDataStereo3D,
	SideDataAudioServiceType,
}

// propagateFrameProps stamps color metadata from the decoder configuration
// and timing plus side data from the most recently filtered packet onto f.
// Side data payloads are independent copies, never shared references.
func (d *Decoder) propagateFrameProps(f *Frame) {
	f.ColorPrimaries = d.config.ColorPrimaries
	f.ColorTransfer = d.config.ColorTransfer
	f.ColorMatrix = d.config.ColorMatrix
	f.ColorRange = d.config.ColorRange
	f.ChromaLocation = d.config.ChromaLocation

	f.PTS = d.lastPktProps.PTS

	for _, t := range propagatedSideData {
		src, ok := d.lastPktProps.SideData[t]
		if !ok {
			continue
		}
		if f.SideData == nil {
			f.SideData = make(map[SideDataType][]byte)
		}
		buf := make([]byte, len(src))
		copy(buf, src)
		f.SideData[t] = buf
	}
}
