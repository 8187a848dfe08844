package codec

import (
	"errors"
	"fmt"
)

// Capabilities is a bitmask of properties a codec backend declares about
// itself. The driver adjusts its behavior to them; backends never need to
// know which strategy runs them.
type Capabilities uint32

const (
	// CapDelay marks backends that buffer frames internally and must be
	// drained with empty packets at end of stream.
	CapDelay Capabilities = 1 << iota
	// CapParamChange marks backends that can apply mid-stream parameter
	// changes delivered as packet side data.
	CapParamChange
	// CapFrameThreads marks backends safe to run one instance per worker
	// with frames distributed round-robin.
	CapFrameThreads
	// CapExportsCropping marks backends that set crop margins themselves;
	// the driver then leaves the buffer dimensions they report untouched.
	CapExportsCropping
	// CapSetsPacketDTS marks backends that fill Frame.PacketDTS on their
	// own; the driver otherwise stamps it from the consumed packet.
	CapSetsPacketDTS
	// CapDirectRendering marks backends that allocate output frames without
	// going through GetBuffer.
	CapDirectRendering
)

// Has returns true if all given capability bits are set.
func (c Capabilities) Has(bits Capabilities) bool { return c&bits == bits }

// DecodeFunc consumes bytes from pkt and may produce one frame. It returns
// the number of payload bytes consumed and whether frame was produced. An
// empty packet is a drain request.
type DecodeFunc func(d *Decoder, frame *Frame, pkt *Packet) (consumed int, gotFrame bool, err error)

// ReceiveFrameFunc produces the backend's next frame, pulling packets itself
// through NextPacket. It returns ErrWouldBlock when more input is needed and
// ErrEndOfStream when fully drained.
type ReceiveFrameFunc func(d *Decoder, frame *Frame) error

// Codec describes a decoder backend. Exactly one of Decode and ReceiveFrame
// must be set; it determines whether the driver runs the backend
// packet-driven or pull-driven.
type Codec struct {
	Name         string
	Type         MediaType
	Capabilities Capabilities

	// Filters is a comma-separated list of registered bitstream filters
	// applied to packets before they reach the backend. Empty means none.
	Filters string

	// Init prepares per-instance backend state, typically stored in
	// Decoder.Priv. Optional.
	Init func(d *Decoder) error
	// Close releases what Init created. Optional.
	Close func(d *Decoder)
	// Flush discards buffered state after a seek. Optional.
	Flush func(d *Decoder)

	Decode       DecodeFunc
	ReceiveFrame ReceiveFrameFunc
}

// decodeStrategy selects how the driver runs the backend. Chosen once at
// open from the codec shape and configuration, never changed afterwards.
type decodeStrategy int

const (
	strategySimple decodeStrategy = iota
	strategyDirect
	strategyThreaded
)

// GetBufferFunc overrides how frame buffers are supplied; see GetBuffer.
type GetBufferFunc func(d *Decoder, f *Frame) error

// GetFormatFunc picks the output pixel format from a backend-proposed
// candidate list during format negotiation.
type GetFormatFunc func(d *Decoder, candidates []PixelFormat) PixelFormat

// DecoderConfig carries the stream parameters and policy knobs a decoder is
// opened with. Stream parameters may be updated mid-stream by parameter
// change side data.
type DecoderConfig struct {
	// Video stream parameters.
	Width             int
	Height            int
	PixelFormat       PixelFormat
	SampleAspectRatio Rational

	// Audio stream parameters.
	SampleFormat  SampleFormat
	SampleRate    int
	Channels      int
	ChannelLayout uint64

	// Color metadata stamped onto every output frame.
	ColorPrimaries ColorPrimaries
	ColorTransfer  ColorTransfer
	ColorMatrix    ColorMatrix
	ColorRange     ColorRange
	ChromaLocation ChromaLocation

	// ExtraData is out-of-band codec configuration (SPS/PPS and similar).
	ExtraData []byte

	// StrideAlign is the per-plane stride alignment of pooled buffers.
	// Zero selects the default.
	StrideAlign int

	// ApplyCropping makes ReceiveFrame apply backend-reported crop margins
	// before handing frames out. When false the margins are left on the
	// frame for the caller.
	ApplyCropping bool
	// UnalignedOutput allows cropping to produce plane pointers without
	// alignment guarantees.
	UnalignedOutput bool
	// StrictErrors turns recoverable input problems into hard errors.
	StrictErrors bool

	// FrameThreads requests frame-parallel decoding with this many workers
	// when the backend declares CapFrameThreads. Values below 2 disable it.
	FrameThreads int

	// GetBuffer overrides the frame buffer supplier. Nil selects the
	// built-in pool.
	GetBuffer GetBufferFunc
	// GetFormat overrides format negotiation. Nil selects the first
	// software candidate.
	GetFormat GetFormatFunc
	// HWAccels lists the hardware backends format negotiation may bind.
	HWAccels *HWAccelRegistry
	// HWFramePool, when set, replaces the built-in pool with an external
	// hardware surface allocator.
	HWFramePool HWFramePool
}

// DefaultDecoderConfig returns a config with formats unset, default stride
// alignment and cropping applied.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		PixelFormat:   PixelFormatNone,
		SampleFormat:  SampleFormatNone,
		StrideAlign:   defaultStrideAlign,
		ApplyCropping: true,
	}
}

// Decoder drives one codec backend through the send/receive protocol:
// packets in through SendPacket, frames out through ReceiveFrame, with
// bitstream filtering, buffer pooling, format negotiation and cropping
// handled here so backends stay small.
type Decoder struct {
	// Priv is backend instance state, owned by the codec's Init/Close.
	Priv any
	// HWPriv is hardware backend state, owned by the bound HWAccel.
	HWPriv any

	codec    *Codec
	config   DecoderConfig
	strategy decodeStrategy
	open     bool

	draining     bool // end of stream signaled, no more input accepted
	drainingDone bool // backend fully drained, EndOfStream from now on

	chain filterChain
	pool  *framePool

	// bufferPkt stages the caller's packet on its way into the filter
	// chain; bufferFrame holds a frame decoded opportunistically during
	// SendPacket until the caller asks for it.
	bufferPkt   Packet
	bufferFrame Frame

	// inPkt is the partially consumed packet the simple strategy feeds the
	// backend from; lastPktProps carries the properties of the packet most
	// recently handed to the backend, for stamping onto frames.
	inPkt        Packet
	lastPktProps Packet

	hwaccel       *HWAccel
	hwFramePool   HWFramePool
	swPixelFormat PixelFormat

	threads *frameThreads

	frameCount uint64
	compat     compatState
}

// NewDecoder opens a decoder for the given backend. The configuration is
// copied; later changes to cfg have no effect.
func NewDecoder(codec *Codec, cfg DecoderConfig) (*Decoder, error) {
	if codec == nil || codec.Name == "" {
		return nil, fmt.Errorf("%w: nil or unnamed codec", ErrInvalidArgument)
	}
	if (codec.Decode == nil) == (codec.ReceiveFrame == nil) {
		return nil, fmt.Errorf("%w: codec %s must set exactly one of Decode and ReceiveFrame",
			ErrInvalidArgument, codec.Name)
	}
	if codec.Type != MediaTypeVideo && codec.Type != MediaTypeAudio {
		return nil, fmt.Errorf("%w: codec %s has unknown media type", ErrInvalidArgument, codec.Name)
	}

	d := &Decoder{
		codec:         codec,
		config:        cfg,
		swPixelFormat: PixelFormatNone,
		pool:          newFramePool(codec.Type, cfg.StrideAlign),
		hwFramePool:   cfg.HWFramePool,
	}
	d.inPkt.reset()
	d.lastPktProps.reset()
	d.bufferPkt.reset()

	switch {
	case codec.ReceiveFrame != nil:
		d.strategy = strategyDirect
	case codec.Capabilities.Has(CapFrameThreads) && cfg.FrameThreads > 1:
		d.strategy = strategyThreaded
	default:
		d.strategy = strategySimple
	}

	if codec.Init != nil {
		if err := codec.Init(d); err != nil {
			return nil, fmt.Errorf("initializing %s: %w", codec.Name, err)
		}
	}

	if d.strategy == strategyThreaded {
		t, err := newFrameThreads(d, cfg.FrameThreads)
		if err != nil {
			if codec.Close != nil {
				codec.Close(d)
			}
			return nil, err
		}
		d.threads = t
	}

	d.open = true
	return d, nil
}

// Close releases the decoder and everything it holds. The decoder must not
// be used afterwards.
func (d *Decoder) Close() error {
	if !d.open {
		return nil
	}
	d.open = false
	if d.threads != nil {
		d.threads.stop()
		d.threads = nil
	}
	if d.codec.Close != nil {
		d.codec.Close(d)
	}
	d.teardownHWAccel()
	d.chain.uninit()
	d.bufferFrame.Unref()
	d.bufferPkt.Unref()
	d.inPkt.Unref()
	d.lastPktProps.Unref()
	d.compat.reset()
	return nil
}

// Config returns the decoder's current stream parameters. Parameter change
// side data updates them mid-stream.
func (d *Decoder) Config() DecoderConfig { return d.config }

// FrameCount returns the number of frames handed out by ReceiveFrame.
func (d *Decoder) FrameCount() uint64 { return d.frameCount }

// SendPacket feeds one packet into the decoder. A nil packet, or one with
// neither payload nor side data, signals end of stream and switches the
// decoder into draining; any further send returns ErrEndOfStream. Returns
// ErrWouldBlock when the decoder cannot accept input before frames are
// received. The packet itself is not consumed; an additional reference is
// taken.
func (d *Decoder) SendPacket(pkt *Packet) error {
	if !d.open {
		return fmt.Errorf("%w: decoder is not open", ErrInvalidArgument)
	}
	if d.draining {
		return ErrEndOfStream
	}
	if err := d.chain.init(d); err != nil {
		return err
	}

	d.bufferPkt.Unref()
	if pkt.HasData() {
		d.bufferPkt.Ref(pkt)
	}
	if err := d.chain.send(&d.bufferPkt); err != nil {
		d.bufferPkt.Unref()
		return err
	}

	// Decode ahead opportunistically so a following ReceiveFrame can be
	// answered without touching the backend.
	if !d.bufferFrame.HasBuffer() {
		err := d.receiveFrameInternal(&d.bufferFrame)
		if err != nil && !errors.Is(err, ErrWouldBlock) && !errors.Is(err, ErrEndOfStream) {
			return err
		}
	}
	return nil
}

// ReceiveFrame moves the decoder's next output frame into frame, releasing
// any previous content of frame first. Returns ErrWouldBlock when more
// input is needed and ErrEndOfStream exactly when the stream is fully
// drained; once drained it keeps returning ErrEndOfStream.
func (d *Decoder) ReceiveFrame(frame *Frame) error {
	if !d.open {
		return fmt.Errorf("%w: decoder is not open", ErrInvalidArgument)
	}
	frame.Unref()
	if err := d.chain.init(d); err != nil {
		return err
	}

	if d.bufferFrame.HasBuffer() {
		d.bufferFrame.MoveTo(frame)
	} else if err := d.receiveFrameInternal(frame); err != nil {
		return err
	}

	if d.codec.Type == MediaTypeVideo {
		if err := d.applyCropping(frame); err != nil {
			frame.Unref()
			return err
		}
	}
	d.frameCount++
	return nil
}

// receiveFrameInternal produces the next frame from the backend without the
// buffering and post-processing done by ReceiveFrame.
func (d *Decoder) receiveFrameInternal(frame *Frame) error {
	if frame.HasBuffer() {
		return fmt.Errorf("%w: destination frame is not unset", ErrInternal)
	}

	var err error
	if d.strategy == strategyDirect {
		err = d.codec.ReceiveFrame(d, frame)
	} else {
		err = d.decodeSimpleReceive(frame)
	}
	if err != nil {
		frame.Unref()
		if errors.Is(err, ErrEndOfStream) {
			d.drainingDone = true
		}
		return err
	}
	if !frame.HasBuffer() {
		frame.Unref()
		return fmt.Errorf("%w: %s produced a frame without buffers", ErrInternal, d.codec.Name)
	}
	return nil
}

// NextPacket hands the next filtered packet to a pull-driven backend.
// Returns ErrWouldBlock when the caller must send more input and
// ErrEndOfStream once the stream end has passed the filter chain.
func (d *Decoder) NextPacket(pkt *Packet) error {
	return d.nextFilteredPacket(pkt)
}

func (d *Decoder) nextFilteredPacket(pkt *Packet) error {
	if d.draining {
		return ErrEndOfStream
	}
	err := d.chain.poll(pkt)
	if errors.Is(err, ErrEndOfStream) {
		d.draining = true
	}
	if err != nil {
		return err
	}

	d.lastPktProps.Unref()
	d.lastPktProps.CopyProps(pkt)

	if err := d.applyParamChange(pkt); err != nil {
		pkt.Unref()
		return err
	}

	// Pull-driven backends consume whole packets; account for them here
	// since the driver never sees how far they read.
	if d.strategy == strategyDirect {
		d.compat.consumed += len(pkt.Data)
	}
	return nil
}

// decodeSimpleReceive runs decode steps until a frame comes out or the
// backend reports it needs more input.
func (d *Decoder) decodeSimpleReceive(frame *Frame) error {
	for {
		if err := d.decodeSimpleStep(frame); err != nil {
			return err
		}
		if frame.HasBuffer() {
			return nil
		}
	}
}

// decodeSimpleStep feeds the backend one slice of the pending input packet.
// A packet the backend consumes only partially is retained with its
// remaining bytes; its timestamps are invalidated so only the first slice
// carries them.
func (d *Decoder) decodeSimpleStep(frame *Frame) error {
	pkt := &d.inPkt
	if len(pkt.Data) == 0 && !d.draining {
		pkt.Unref()
		if err := d.nextFilteredPacket(pkt); err != nil && !errors.Is(err, ErrEndOfStream) {
			return err
		}
	}

	if d.drainingDone {
		return ErrEndOfStream
	}

	// Without internal delay there is nothing left to drain.
	if len(pkt.Data) == 0 &&
		!(d.codec.Capabilities.Has(CapDelay) || d.strategy == strategyThreaded) {
		return ErrEndOfStream
	}

	var (
		consumed int
		got      bool
		err      error
	)
	if d.strategy == strategyThreaded {
		consumed, got, err = d.threads.decodeFrame(frame, pkt)
	} else {
		consumed, got, err = d.codec.Decode(d, frame, pkt)
		if !d.codec.Capabilities.Has(CapSetsPacketDTS) {
			frame.PacketDTS = pkt.DTS
		}
	}

	if !got {
		frame.Unref()
	}

	// Video backends always consume whole packets.
	if err == nil && d.codec.Type == MediaTypeVideo {
		consumed = len(pkt.Data)
	}

	if d.draining && !got {
		d.drainingDone = true
	}

	if err == nil {
		d.compat.consumed += consumed
	}

	if err != nil || consumed >= len(pkt.Data) {
		pkt.Unref()
	} else {
		pkt.Data = pkt.Data[consumed:]
		pkt.PTS = NoTimestamp
		pkt.DTS = NoTimestamp
		d.lastPktProps.PTS = NoTimestamp
		d.lastPktProps.DTS = NoTimestamp
	}

	if got && !frame.HasBuffer() {
		frame.Unref()
		return fmt.Errorf("%w: %s reported a frame without buffers", ErrInternal, d.codec.Name)
	}
	return err
}

// Flush resets the decoder for reuse after a seek: draining state, staged
// packets and frames, backend state and the filter chain are all discarded.
// The decoder accepts input again afterwards.
func (d *Decoder) Flush() {
	if !d.open {
		return
	}
	d.draining = false
	d.drainingDone = false
	d.bufferFrame.Unref()
	d.bufferPkt.Unref()
	d.inPkt.Unref()
	d.lastPktProps.Unref()
	d.compat.reset()

	if d.threads != nil {
		d.threads.flush()
	} else if d.codec.Flush != nil {
		d.codec.Flush(d)
	}

	// Rebuilt lazily on the next send or receive.
	d.chain.uninit()
}
