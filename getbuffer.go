package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// GetBuffer supplies plane buffers to a frame a backend is about to decode
// into. Unset frame parameters are defaulted from the decoder configuration,
// frame properties are stamped from the most recently consumed packet, and
// the buffers come from the active hardware backend, the attached hardware
// frame pool, a caller-supplied GetBuffer callback or the built-in pool, in
// that order of precedence. Backends call this once per output frame unless
// they declare CapDirectRendering.
func (d *Decoder) GetBuffer(f *Frame) error {
	overrideDimensions := true
	switch d.codec.Type {
	case MediaTypeVideo:
		if f.Width <= 0 || f.Height <= 0 {
			f.Width = d.config.Width
			f.Height = d.config.Height
			overrideDimensions = false
		}
		if f.PixelFormat == PixelFormatNone {
			f.PixelFormat = d.config.PixelFormat
		}
		if f.SampleAspectRatio.IsZero() {
			f.SampleAspectRatio = d.config.SampleAspectRatio
		}
		if !f.SampleAspectRatio.IsZero() && !f.SampleAspectRatio.IsValid() {
			logrus.WithFields(logrus.Fields{
				"codec": d.codec.Name,
				"sar":   f.SampleAspectRatio.String(),
			}).Warn("ignoring invalid sample aspect ratio")
			f.SampleAspectRatio = Rational{}
		}
		if f.Width <= 0 || f.Height <= 0 {
			return fmt.Errorf("%w: video frame with dimensions %dx%d",
				ErrInvalidArgument, f.Width, f.Height)
		}
	case MediaTypeAudio:
		if f.SampleRate == 0 {
			f.SampleRate = d.config.SampleRate
		}
		if f.SampleFormat == SampleFormatNone {
			f.SampleFormat = d.config.SampleFormat
		}
		if f.Channels == 0 {
			f.Channels = d.config.Channels
		}
		if f.ChannelLayout == 0 {
			f.ChannelLayout = d.config.ChannelLayout
		}
	}

	d.propagateFrameProps(f)

	var err error
	if d.hwaccel != nil && d.hwaccel.AllocFrame != nil {
		err = d.hwaccel.AllocFrame(d, f)
	} else {
		if d.codec.Type == MediaTypeVideo && !f.PixelFormat.IsHWAccel() {
			d.swPixelFormat = f.PixelFormat
		}
		getBuffer := d.config.GetBuffer
		if getBuffer == nil {
			getBuffer = defaultGetBuffer
		}
		err = getBuffer(d, f)
	}
	if err != nil {
		f.Unref()
		return err
	}

	// Backends that do not export cropping produce frames at the coded size;
	// the display size from the configuration wins unless the backend set the
	// dimensions itself.
	if d.codec.Type == MediaTypeVideo && !overrideDimensions &&
		!d.codec.Capabilities.Has(CapExportsCropping) {
		f.Width = d.config.Width
		f.Height = d.config.Height
	}
	return nil
}

// defaultGetBuffer is the buffer supplier used when the configuration does
// not install one: an attached hardware frame pool wins, otherwise the
// decoder's own shape-keyed pool.
func defaultGetBuffer(d *Decoder, f *Frame) error {
	if d.hwFramePool != nil {
		return d.hwFramePool.AllocFrame(f)
	}
	return d.pool.acquire(f)
}

// RegetBuffer prepares f for in-place reuse by a backend that decodes into
// the previous output (palette or skipped-block codecs). An unset frame gets
// fresh buffers; a writable frame only has its properties refreshed; a frame
// still shared with downstream consumers is replaced by a private copy of
// its data.
func (d *Decoder) RegetBuffer(f *Frame) error {
	if f.HasBuffer() && (f.Width != d.config.Width || f.Height != d.config.Height ||
		f.PixelFormat != d.config.PixelFormat) {
		logrus.WithFields(logrus.Fields{
			"codec": d.codec.Name,
			"from":  fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.PixelFormat),
			"to":    fmt.Sprintf("%dx%d %s", d.config.Width, d.config.Height, d.config.PixelFormat),
		}).Warn("picture changed between reused frames")
		f.Unref()
	}

	if !f.HasBuffer() {
		return d.GetBuffer(f)
	}
	if f.writable() {
		d.propagateFrameProps(f)
		return nil
	}

	var tmp Frame
	f.MoveTo(&tmp)
	if err := d.GetBuffer(f); err != nil {
		tmp.Unref()
		return err
	}
	for i := range f.Data {
		if i < len(tmp.Data) {
			copy(f.Data[i], tmp.Data[i])
		}
	}
	tmp.Unref()
	return nil
}
