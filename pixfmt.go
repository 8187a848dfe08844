// Pixel and sample format descriptors used by the buffer pool, the cropping
// post-processor and format negotiation.

package codec

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	// PixelFormatNone marks an unset format.
	PixelFormatNone PixelFormat = -1
)

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatI422                      // YUV 4:2:2 planar
	PixelFormatI444                      // YUV 4:4:4 planar
	PixelFormatNV12                      // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24                     // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel
	PixelFormatPAL8                      // 8-bit paletted, palette in second plane
	PixelFormatVAAPI                     // VAAPI hardware surface
	PixelFormatVTB                       // VideoToolbox hardware surface
	PixelFormatCUDA                      // CUDA hardware surface
	pixelFormatCount
)

// pixFmtFlags marks structural properties of a pixel format.
type pixFmtFlags uint8

const (
	pixFmtFlagHWAccel   pixFmtFlags = 1 << iota // data is an opaque hardware surface
	pixFmtFlagBitstream                         // data is a continuous bitstream, not addressable per pixel
	pixFmtFlagPalette                           // second plane is a palette, not image data
)

// pixFmtDesc contains static metadata about a pixel format.
type pixFmtDesc struct {
	name         string
	planes       int
	chromaShiftX int    // log2 horizontal chroma subsampling (planes 1 and 2)
	chromaShiftY int    // log2 vertical chroma subsampling (planes 1 and 2)
	step         [4]int // bytes per pixel within each plane
	flags        pixFmtFlags
}

// Static metadata table - indexed by PixelFormat, zero allocations.
var pixFmtInfo = [pixelFormatCount]pixFmtDesc{
	PixelFormatI420:   {"I420", 3, 1, 1, [4]int{1, 1, 1}, 0},
	PixelFormatI422:   {"I422", 3, 1, 0, [4]int{1, 1, 1}, 0},
	PixelFormatI444:   {"I444", 3, 0, 0, [4]int{1, 1, 1}, 0},
	PixelFormatNV12:   {"NV12", 2, 1, 1, [4]int{1, 2}, 0},
	PixelFormatRGB24:  {"RGB24", 1, 0, 0, [4]int{3}, 0},
	PixelFormatRGBA32: {"RGBA32", 1, 0, 0, [4]int{4}, 0},
	PixelFormatBGRA32: {"BGRA32", 1, 0, 0, [4]int{4}, 0},
	PixelFormatPAL8:   {"PAL8", 2, 0, 0, [4]int{1, 4}, pixFmtFlagPalette},
	PixelFormatVAAPI:  {"VAAPI", 0, 0, 0, [4]int{}, pixFmtFlagHWAccel},
	PixelFormatVTB:    {"VideoToolbox", 0, 0, 0, [4]int{}, pixFmtFlagHWAccel},
	PixelFormatCUDA:   {"CUDA", 0, 0, 0, [4]int{}, pixFmtFlagHWAccel},
}

func (p PixelFormat) desc() *pixFmtDesc {
	if p < 0 || p >= pixelFormatCount {
		return nil
	}
	return &pixFmtInfo[p]
}

func (p PixelFormat) String() string {
	d := p.desc()
	if d == nil {
		return "Unknown"
	}
	return d.name
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	d := p.desc()
	if d == nil {
		return 0
	}
	return d.planes
}

// IsHWAccel returns true if the format is an opaque hardware surface format.
func (p PixelFormat) IsHWAccel() bool {
	d := p.desc()
	return d != nil && d.flags&pixFmtFlagHWAccel != 0
}

// opaque formats cannot be addressed per pixel, so left/top cropping and
// software plane allocation do not apply to them.
func (p PixelFormat) opaque() bool {
	d := p.desc()
	return d != nil && d.flags&(pixFmtFlagHWAccel|pixFmtFlagBitstream) != 0
}

// chromaShift returns the subsampling shift applying to the given plane.
func (d *pixFmtDesc) chromaShift(plane int) (x, y int) {
	if plane == 1 || plane == 2 {
		if d.flags&pixFmtFlagPalette == 0 {
			return d.chromaShiftX, d.chromaShiftY
		}
	}
	return 0, 0
}

// paletteSize is the fixed byte size of a PAL8 palette plane (256 RGBA entries).
const paletteSize = 256 * 4

// fillLinesizes computes per-plane line strides for a row of width w pixels.
func (p PixelFormat) fillLinesizes(w int) ([4]int, bool) {
	var ls [4]int
	d := p.desc()
	if d == nil || d.planes == 0 {
		return ls, false
	}
	for i := 0; i < d.planes; i++ {
		if d.flags&pixFmtFlagPalette != 0 && i == 1 {
			ls[i] = paletteSize
			continue
		}
		sx, _ := d.chromaShift(i)
		ls[i] = ((w + (1 << sx) - 1) >> sx) * d.step[i]
	}
	return ls, true
}

// SampleFormat represents audio sample formats.
type SampleFormat int

const (
	// SampleFormatNone marks an unset format.
	SampleFormatNone SampleFormat = -1
)

const (
	SampleFormatS16  SampleFormat = iota // Signed 16-bit PCM, interleaved
	SampleFormatF32                      // 32-bit float, interleaved
	SampleFormatS16P                     // Signed 16-bit PCM, one plane per channel
	SampleFormatF32P                     // 32-bit float, one plane per channel
)

func (s SampleFormat) String() string {
	switch s {
	case SampleFormatS16:
		return "S16"
	case SampleFormatF32:
		return "F32"
	case SampleFormatS16P:
		return "S16P"
	case SampleFormatF32P:
		return "F32P"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (s SampleFormat) BytesPerSample() int {
	switch s {
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatF32, SampleFormatF32P:
		return 4
	default:
		return 0
	}
}

// IsPlanar returns true if samples are stored one plane per channel.
func (s SampleFormat) IsPlanar() bool {
	return s == SampleFormatS16P || s == SampleFormatF32P
}
