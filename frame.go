// Core frame type shared by the decode driver, the buffer pool and the
// post-processing stages.

package codec

// MediaType identifies the kind of stream a codec decodes.
type MediaType int

const (
	MediaTypeVideo MediaType = iota
	MediaTypeAudio
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// ColorPrimaries identifies the chromaticity coordinates of the source.
type ColorPrimaries uint8

const (
	ColorPrimariesUnspecified ColorPrimaries = iota
	ColorPrimariesBT709
	ColorPrimariesBT601
	ColorPrimariesBT2020
)

// ColorTransfer identifies the opto-electronic transfer characteristic.
type ColorTransfer uint8

const (
	ColorTransferUnspecified ColorTransfer = iota
	ColorTransferBT709
	ColorTransferSRGB
	ColorTransferPQ
)

// ColorMatrix identifies the YUV/RGB conversion matrix.
type ColorMatrix uint8

const (
	ColorMatrixUnspecified ColorMatrix = iota
	ColorMatrixBT709
	ColorMatrixBT601
	ColorMatrixBT2020NCL
)

// ColorRange distinguishes limited (MPEG) from full (JPEG) sample range.
type ColorRange uint8

const (
	ColorRangeUnspecified ColorRange = iota
	ColorRangeLimited
	ColorRangeFull
)

// ChromaLocation identifies chroma sample placement relative to luma.
type ChromaLocation uint8

const (
	ChromaLocationUnspecified ChromaLocation = iota
	ChromaLocationLeft
	ChromaLocationCenter
	ChromaLocationTopLeft
)

// Frame is a reference-counted decoded media unit, video or audio depending
// on the owning codec's type.
//
// Invariant: a frame is either fully unset (no buffers, HasBuffer false) or
// fully set (all required plane buffers present with consistent linesizes).
// MoveTo transfers buffer ownership and resets the source to unset.
type Frame struct {
	// Video geometry.
	Width             int
	Height            int
	PixelFormat       PixelFormat
	SampleAspectRatio Rational

	// Cropping margins reported by the backend, in samples, measured
	// before any alignment adjustment. Zeroed once cropping is applied.
	CropLeft   int
	CropRight  int
	CropTop    int
	CropBottom int

	// Audio parameters.
	SampleFormat  SampleFormat
	SampleRate    int
	Channels      int
	ChannelLayout uint64 // canonical channel mask, 0 if unknown
	SampleCount   int

	// Plane data. For video, up to one entry per plane of PixelFormat; for
	// planar audio one entry per channel, for packed audio a single entry.
	// Data[i] is a window into Buf[i].
	Data     [][]byte
	Linesize []int
	Buf      []*BufferRef

	PTS       int64 // presentation timestamp from the producing packet
	PacketDTS int64 // decode timestamp of the packet this frame came from

	ColorPrimaries ColorPrimaries
	ColorTransfer  ColorTransfer
	ColorMatrix    ColorMatrix
	ColorRange     ColorRange
	ChromaLocation ChromaLocation

	SideData map[SideDataType][]byte
}

// NewFrame returns an unset frame with timestamps marked unknown.
func NewFrame() *Frame {
	return &Frame{PTS: NoTimestamp, PacketDTS: NoTimestamp}
}

// HasBuffer returns true if the frame owns at least its first plane buffer.
// Backends must never hand out a frame for which this is false.
func (f *Frame) HasBuffer() bool {
	return f != nil && len(f.Buf) > 0 && f.Buf[0] != nil
}

// Unref releases all plane buffers and resets the frame to unset.
func (f *Frame) Unref() {
	if f == nil {
		return
	}
	for _, b := range f.Buf {
		b.Unref()
	}
	*f = Frame{PTS: NoTimestamp, PacketDTS: NoTimestamp}
}

// MoveTo transfers buffer ownership and all properties to dst, resetting f
// to unset. Any previous content of dst is released.
func (f *Frame) MoveTo(dst *Frame) {
	dst.Unref()
	*dst = *f
	*f = Frame{PTS: NoTimestamp, PacketDTS: NoTimestamp}
}

// CopyProps copies scalar metadata and side data from src by value, leaving
// buffers and geometry untouched.
func (f *Frame) CopyProps(src *Frame) {
	f.SampleAspectRatio = src.SampleAspectRatio
	f.PTS = src.PTS
	f.PacketDTS = src.PacketDTS
	f.ColorPrimaries = src.ColorPrimaries
	f.ColorTransfer = src.ColorTransfer
	f.ColorMatrix = src.ColorMatrix
	f.ColorRange = src.ColorRange
	f.ChromaLocation = src.ChromaLocation
	f.CropLeft = src.CropLeft
	f.CropRight = src.CropRight
	f.CropTop = src.CropTop
	f.CropBottom = src.CropBottom
	f.SideData = nil
	if len(src.SideData) > 0 {
		f.SideData = make(map[SideDataType][]byte, len(src.SideData))
		for k, v := range src.SideData {
			buf := make([]byte, len(v))
			copy(buf, v)
			f.SideData[k] = buf
		}
	}
}

// writable returns true if every plane buffer is exclusively owned.
func (f *Frame) writable() bool {
	if !f.HasBuffer() {
		return false
	}
	for _, b := range f.Buf {
		if b != nil && !b.Writable() {
			return false
		}
	}
	return true
}
