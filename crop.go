package codec

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/sirupsen/logrus"
)

// Crop-left adjustments keep every plane's data offset aligned to at least
// this many low zero bits.
const cropAlignBits = 5

// cropOffsets computes, per plane, the byte offset implied by the frame's
// left/top margins, accounting for chroma subsampling. A palette plane holds
// no image data, so its offset stays zero.
func cropOffsets(f *Frame) []int {
	desc := f.PixelFormat.desc()
	offsets := make([]int, len(f.Data))
	for i := range f.Data {
		if desc.flags&pixFmtFlagPalette != 0 && i == 1 {
			break
		}
		sx, sy := desc.chromaShift(i)
		offsets[i] = (f.CropTop>>sy)*f.Linesize[i] + (f.CropLeft>>sx)*desc.step[i]
	}
	return offsets
}

// applyCropping normalizes and applies the crop margins a backend reported
// on a decoded frame. Invalid margins are never fatal: they are logged and
// zeroed, because downstream consumers must not receive a crop window
// outside the buffer's real geometry. Margins are reset once applied, so
// cropping happens at most once per frame.
func (d *Decoder) applyCropping(f *Frame) error {
	// Be noisy about backends returning invalid cropping data.
	if f.CropLeft < 0 || f.CropRight < 0 || f.CropTop < 0 || f.CropBottom < 0 ||
		f.CropLeft >= math.MaxInt-f.CropRight ||
		f.CropTop >= math.MaxInt-f.CropBottom ||
		f.CropLeft+f.CropRight >= f.Width ||
		f.CropTop+f.CropBottom >= f.Height {
		logrus.WithFields(logrus.Fields{
			"codec":  d.codec.Name,
			"crop":   fmt.Sprintf("%d/%d/%d/%d", f.CropLeft, f.CropRight, f.CropTop, f.CropBottom),
			"width":  f.Width,
			"height": f.Height,
		}).Warn("invalid cropping information set by a decoder, ignoring")
		f.CropLeft = 0
		f.CropRight = 0
		f.CropTop = 0
		f.CropBottom = 0
		return nil
	}

	// When disabled, leave the margins for the caller to interpret.
	if !d.config.ApplyCropping {
		return nil
	}

	desc := f.PixelFormat.desc()
	if desc == nil {
		return fmt.Errorf("%w: frame has unknown pixel format %d", ErrInternal, f.PixelFormat)
	}

	// Opaque surfaces cannot be offset into, so only right/bottom margins
	// apply, by shrinking the declared size.
	if f.PixelFormat.opaque() {
		f.Width -= f.CropRight
		f.Height -= f.CropBottom
		f.CropRight = 0
		f.CropBottom = 0
		return nil
	}

	offsets := cropOffsets(f)

	// Reduce the left margin as needed to keep every plane's offset
	// sufficiently aligned. Chroma subsampling makes a subsampled plane's
	// offset less aligned than the margin itself, so the margin mask is
	// widened by that difference.
	if !d.config.UnalignedOutput && f.CropLeft > 0 {
		cropAlign := bits.TrailingZeros(uint(f.CropLeft))
		minAlign := math.MaxInt
		for i := range f.Data {
			align := math.MaxInt
			if offsets[i] != 0 {
				align = bits.TrailingZeros(uint(offsets[i]))
			}
			if align < minAlign {
				minAlign = align
			}
		}
		if minAlign < cropAlignBits {
			f.CropLeft &^= (1 << (cropAlignBits + cropAlign - minAlign)) - 1
			offsets = cropOffsets(f)
		}
	}

	for i := range f.Data {
		f.Data[i] = f.Data[i][offsets[i]:]
	}
	f.Width -= f.CropLeft + f.CropRight
	f.Height -= f.CropTop + f.CropBottom
	f.CropLeft = 0
	f.CropRight = 0
	f.CropTop = 0
	f.CropBottom = 0
	return nil
}
