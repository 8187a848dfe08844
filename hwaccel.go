package codec

import (
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

// HWAccel describes a hardware acceleration backend: how to bind it to a
// decoder instance and how it allocates frames into externally managed
// memory. A backend applies to exactly one (codec, pixel format) pair.
type HWAccel struct {
	Name        string
	CodecName   string      // codec this backend accelerates
	PixelFormat PixelFormat // hardware surface format it produces

	// Init binds the backend to a decoder. Optional.
	Init func(d *Decoder) error
	// AllocFrame fills a frame with hardware-backed buffers. Optional; when
	// unset the regular buffer-supply path is used.
	AllocFrame func(d *Decoder, f *Frame) error
	// Uninit releases backend state bound by Init. Optional.
	Uninit func(d *Decoder)
}

// HWAccelRegistry holds the hardware backends available to a session. It is
// passed in explicitly through DecoderConfig rather than kept as process
// state, so tests and embedders control exactly what can bind.
type HWAccelRegistry struct {
	mu     sync.RWMutex
	accels []*HWAccel
}

// NewHWAccelRegistry returns an empty registry.
func NewHWAccelRegistry() *HWAccelRegistry {
	return &HWAccelRegistry{}
}

// Register adds a backend to the registry.
func (r *HWAccelRegistry) Register(h *HWAccel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accels = append(r.accels, h)
}

func (r *HWAccelRegistry) find(codecName string, format PixelFormat) *HWAccel {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.accels {
		if h.CodecName == codecName && h.PixelFormat == format {
			return h
		}
	}
	return nil
}

// HWFramePool is an externally supplied frame allocator tied to a hardware
// surface format. When attached to a decoder it replaces the built-in pool
// entirely.
type HWFramePool interface {
	// PixelFormat returns the surface format the pool produces.
	PixelFormat() PixelFormat
	// AllocFrame fills f with buffers from the pool.
	AllocFrame(f *Frame) error
}

// defaultGetFormat picks the first software format from the candidates.
func defaultGetFormat(_ *Decoder, candidates []PixelFormat) PixelFormat {
	for _, f := range candidates {
		if !f.IsHWAccel() {
			return f
		}
	}
	return PixelFormatNone
}

// SWPixelFormat returns the software pixel format behind the negotiated
// output: the software fallback candidate when a hardware format was chosen,
// or the output format itself. GetFormat callbacks and hardware backends use
// it to size transfer buffers.
func (d *Decoder) SWPixelFormat() PixelFormat { return d.swPixelFormat }

// SetHWFramePool attaches an external hardware frame pool. Backends and
// GetFormat callbacks may call this during format negotiation; the declared
// format must match the format being negotiated.
func (d *Decoder) SetHWFramePool(pool HWFramePool) {
	d.hwFramePool = pool
}

// NegotiateFormat walks a backend-proposed candidate list, most preferred
// first, and returns the chosen output format. Hardware candidates are bound
// as they are chosen; a candidate whose backend fails to bind is removed and
// the walk re-runs. The final candidate must be a software format, which
// guarantees termination. Backends call this when the bitstream announces
// its geometry.
func (d *Decoder) NegotiateFormat(candidates []PixelFormat) (PixelFormat, error) {
	if len(candidates) == 0 {
		return PixelFormatNone, fmt.Errorf("%w: empty format candidate list", ErrInvalidArgument)
	}
	sw := candidates[len(candidates)-1]
	if sw.IsHWAccel() {
		return PixelFormatNone, fmt.Errorf("%w: final format candidate %s is not a software format",
			ErrInvalidArgument, sw)
	}
	d.swPixelFormat = sw

	getFormat := d.config.GetFormat
	if getFormat == nil {
		getFormat = defaultGetFormat
	}

	choices := slices.Clone(candidates)
	for {
		// Undo any previous binding before asking again.
		d.teardownHWAccel()
		d.hwFramePool = nil

		chosen := getFormat(d, choices)
		if chosen.desc() == nil {
			return PixelFormatNone, fmt.Errorf("%w: callback chose unknown format", ErrInvalidArgument)
		}
		if !chosen.IsHWAccel() {
			return chosen, nil
		}

		if d.hwFramePool != nil && d.hwFramePool.PixelFormat() != chosen {
			return PixelFormatNone, fmt.Errorf(
				"%w: negotiated format %s does not match the attached hardware frame pool",
				ErrInvalidArgument, chosen)
		}

		err := d.setupHWAccel(chosen)
		if err == nil {
			return chosen, nil
		}
		logrus.WithFields(logrus.Fields{
			"codec":  d.codec.Name,
			"format": chosen.String(),
		}).WithError(err).Warn("hardware acceleration setup failed, trying next format")

		// Remove exactly the failed candidate and re-run the negotiation.
		i := slices.Index(choices, chosen)
		if i < 0 {
			return PixelFormatNone, fmt.Errorf("%w: callback chose a format outside the candidate list",
				ErrInternal)
		}
		choices = slices.Delete(choices, i, i+1)
	}
}

func (d *Decoder) setupHWAccel(format PixelFormat) error {
	hwa := d.config.HWAccels.find(d.codec.Name, format)
	if hwa == nil {
		return fmt.Errorf("%w: no hardware backend for %s/%s", ErrUnsupported, d.codec.Name, format)
	}
	if hwa.Init != nil {
		if err := hwa.Init(d); err != nil {
			d.HWPriv = nil
			return err
		}
	}
	d.hwaccel = hwa
	return nil
}

func (d *Decoder) teardownHWAccel() {
	if d.hwaccel != nil && d.hwaccel.Uninit != nil {
		d.hwaccel.Uninit(d)
	}
	d.hwaccel = nil
	d.HWPriv = nil
}
