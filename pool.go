package codec

import "fmt"

const (
	maxPlanes = 4

	// Padding added to every pooled plane buffer.
	poolBufferPadding = 16

	// Default per-plane stride alignment.
	defaultStrideAlign = 32

	// Allocated plane heights are padded to this many rows.
	heightAlign = 32
)

func alignUp(v, a int) int { return (v + a - 1) &^ (a - 1) }

// framePool caches reusable plane allocators keyed by the shape of the
// frames being decoded: format plus dimensions for video, format plus
// channel count plus sample count for audio. A shape change tears down all
// pools and rebuilds; a rebuild failure leaves the pool in a defined empty
// state with no stale allocators referenced.
type framePool struct {
	mediaType   MediaType
	strideAlign [maxPlanes]int

	pixelFormat PixelFormat
	width       int
	height      int

	sampleFormat SampleFormat
	channels     int
	planes       int
	samples      int

	linesize [maxPlanes]int
	pools    [maxPlanes]*bufferPool
}

func newFramePool(mediaType MediaType, align int) *framePool {
	if align <= 0 {
		align = defaultStrideAlign
	}
	p := &framePool{
		mediaType:    mediaType,
		pixelFormat:  PixelFormatNone,
		sampleFormat: SampleFormatNone,
	}
	for i := range p.strideAlign {
		p.strideAlign[i] = align
	}
	return p
}

// acquire fills f with pooled plane buffers matching its declared shape.
// On failure the frame is left unset and the pool empty.
func (p *framePool) acquire(f *Frame) error {
	if err := p.update(f); err != nil {
		return err
	}
	switch p.mediaType {
	case MediaTypeVideo:
		return p.videoBuffers(f)
	case MediaTypeAudio:
		return p.audioBuffers(f)
	}
	return fmt.Errorf("%w: unknown media type %d", ErrInvalidArgument, p.mediaType)
}

// update rebuilds the per-plane pools if the cached descriptor no longer
// matches the frame's shape.
func (p *framePool) update(f *Frame) error {
	switch p.mediaType {
	case MediaTypeVideo:
		return p.updateVideo(f)
	case MediaTypeAudio:
		return p.updateAudio(f)
	}
	return fmt.Errorf("%w: unknown media type %d", ErrInvalidArgument, p.mediaType)
}

func (p *framePool) updateVideo(f *Frame) error {
	if p.pixelFormat == f.PixelFormat && p.width == f.Width && p.height == f.Height {
		return nil
	}

	desc := f.PixelFormat.desc()
	if desc == nil || desc.planes == 0 {
		return p.fail(fmt.Errorf("%w: cannot pool %s frames", ErrAllocation, f.PixelFormat))
	}
	if f.Width <= 0 || f.Height <= 0 {
		return p.fail(fmt.Errorf("%w: invalid dimensions %dx%d", ErrAllocation, f.Width, f.Height))
	}

	w := f.Width
	alignedH := alignUp(f.Height, heightAlign)

	// Do not align linesizes individually: consumers may assume a fixed
	// stride ratio between planes (e.g. luma exactly twice chroma for
	// 4:2:0/4:2:2). Instead grow the working width until every plane's
	// linesize lands on its alignment.
	var linesize [maxPlanes]int
	for {
		ls, ok := f.PixelFormat.fillLinesizes(w)
		if !ok {
			return p.fail(fmt.Errorf("%w: no linesizes for %s", ErrAllocation, f.PixelFormat))
		}
		unaligned := false
		for i := 0; i < desc.planes; i++ {
			if desc.flags&pixFmtFlagPalette != 0 && i == 1 {
				continue
			}
			if ls[i]%p.strideAlign[i] != 0 {
				unaligned = true
			}
		}
		if !unaligned {
			linesize = ls
			break
		}
		// Raise the alignment of w for the next try (adds the lowest set bit).
		w += w & -w
	}

	p.clearPools()
	for i := 0; i < desc.planes; i++ {
		size := 0
		if desc.flags&pixFmtFlagPalette != 0 && i == 1 {
			size = paletteSize
		} else {
			_, sy := desc.chromaShift(i)
			rows := (alignedH + (1 << sy) - 1) >> sy
			size = linesize[i] * rows
		}
		p.linesize[i] = linesize[i]
		p.pools[i] = newBufferPool(size + poolBufferPadding)
	}

	p.pixelFormat = f.PixelFormat
	p.width = f.Width
	p.height = f.Height
	return nil
}

func (p *framePool) updateAudio(f *Frame) error {
	planes := 1
	if f.SampleFormat.IsPlanar() {
		planes = f.Channels
	}
	if p.sampleFormat == f.SampleFormat && p.planes == planes &&
		p.channels == f.Channels && p.samples == f.SampleCount {
		return nil
	}

	bps := f.SampleFormat.BytesPerSample()
	if bps == 0 || f.Channels <= 0 || f.SampleCount <= 0 {
		return p.fail(fmt.Errorf("%w: invalid audio shape %s ch=%d samples=%d",
			ErrAllocation, f.SampleFormat, f.Channels, f.SampleCount))
	}

	// Planar formats pool one channel's worth of samples and hand a buffer
	// per channel; packed formats pool a single interleaved buffer.
	size := f.SampleCount * bps
	if planes == 1 {
		size *= f.Channels
	}

	p.clearPools()
	p.linesize[0] = size
	p.pools[0] = newBufferPool(size)

	p.sampleFormat = f.SampleFormat
	p.planes = planes
	p.channels = f.Channels
	p.samples = f.SampleCount
	return nil
}

func (p *framePool) videoBuffers(f *Frame) error {
	if len(f.Data) > 0 {
		return fmt.Errorf("%w: frame already has data planes", ErrInternal)
	}
	n := 0
	for n < maxPlanes && p.pools[n] != nil {
		n++
	}
	f.Data = make([][]byte, n)
	f.Linesize = make([]int, n)
	f.Buf = make([]*BufferRef, n)
	for i := 0; i < n; i++ {
		b := p.pools[i].get()
		f.Linesize[i] = p.linesize[i]
		f.Buf[i] = b
		f.Data[i] = b.Data
	}
	return nil
}

func (p *framePool) audioBuffers(f *Frame) error {
	planes := p.planes
	f.Data = make([][]byte, planes)
	f.Linesize = make([]int, planes)
	f.Buf = make([]*BufferRef, planes)
	f.Linesize[0] = p.linesize[0]
	for i := 0; i < planes; i++ {
		b := p.pools[0].get()
		f.Buf[i] = b
		f.Data[i] = b.Data
	}
	return nil
}

// fail resets the pool to its defined empty state and passes err through.
func (p *framePool) fail(err error) error {
	p.clearPools()
	p.pixelFormat = PixelFormatNone
	p.sampleFormat = SampleFormatNone
	p.width = 0
	p.height = 0
	p.channels = 0
	p.planes = 0
	p.samples = 0
	return err
}

func (p *framePool) clearPools() {
	for i := range p.pools {
		p.pools[i] = nil
		p.linesize[i] = 0
	}
}
