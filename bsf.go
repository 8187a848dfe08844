package codec

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// FilterParameters describes the stream entering or leaving a bitstream
// filter. Each filter's output parameters become the next filter's input
// parameters.
type FilterParameters struct {
	CodecName    string
	MediaType    MediaType
	Width        int
	Height       int
	PixelFormat  PixelFormat
	SampleFormat SampleFormat
	SampleRate   int
	Channels     int
	ExtraData    []byte
}

// BitstreamFilter is a packet-to-packet transform applied before decoding.
// Filters may buffer, reorder or split packets; the chain preserves overall
// input order across them.
type BitstreamFilter interface {
	// Init receives the input parameter set and time base and returns the
	// parameter set and time base of the filter's output.
	Init(par FilterParameters, timeBase Rational) (FilterParameters, Rational, error)

	// SendPacket queues an input packet, taking over its reference. A nil
	// packet or one without data and side data marks end of stream.
	// Returns ErrWouldBlock while the filter's input queue is full.
	SendPacket(pkt *Packet) error

	// ReceivePacket moves the next output packet into pkt. Returns
	// ErrWouldBlock when more input is needed and ErrEndOfStream once the
	// filter has delivered everything after end of stream.
	ReceivePacket(pkt *Packet) error

	// Close releases filter state.
	Close()
}

// BitstreamFilterFactory creates a bitstream filter instance.
type BitstreamFilterFactory func() BitstreamFilter

// bsfRegistry holds bitstream filter factories by name.
var bsfRegistry = struct {
	mu        sync.RWMutex
	factories map[string]BitstreamFilterFactory
}{factories: make(map[string]BitstreamFilterFactory)}

// RegisterBitstreamFilter registers a bitstream filter factory under a name
// usable in a Codec's Filters specification.
func RegisterBitstreamFilter(name string, factory BitstreamFilterFactory) {
	bsfRegistry.mu.Lock()
	defer bsfRegistry.mu.Unlock()
	bsfRegistry.factories[name] = factory
}

func newBitstreamFilter(name string) (BitstreamFilter, error) {
	bsfRegistry.mu.RLock()
	factory, ok := bsfRegistry.factories[name]
	bsfRegistry.mu.RUnlock()
	if !ok {
		// A decoder naming a filter that was never registered is a bug in
		// the decoder, not bad input.
		return nil, fmt.Errorf("%w: bitstream filter %q not registered", ErrInternal, name)
	}
	return factory(), nil
}

func init() {
	RegisterBitstreamFilter("null", func() BitstreamFilter { return &passThroughFilter{} })
}

// packetSlot is a one-packet queue with end-of-stream tracking, the minimal
// state a filter needs to satisfy the push/pull protocol.
type packetSlot struct {
	pkt  Packet
	full bool
	eof  bool
}

func (s *packetSlot) send(pkt *Packet) error {
	if s.eof {
		return ErrEndOfStream
	}
	if pkt == nil || !pkt.HasData() {
		s.eof = true
		return nil
	}
	if s.full {
		return ErrWouldBlock
	}
	pkt.MoveTo(&s.pkt)
	s.full = true
	return nil
}

func (s *packetSlot) next(pkt *Packet) error {
	if s.full {
		s.pkt.MoveTo(pkt)
		s.full = false
		return nil
	}
	if s.eof {
		return ErrEndOfStream
	}
	return ErrWouldBlock
}

func (s *packetSlot) reset() {
	s.pkt.Unref()
	s.full = false
	s.eof = false
}

// passThroughFilter forwards packets unchanged. Registered as "null" and used
// for codecs that declare no filters.
type passThroughFilter struct {
	slot packetSlot
}

func (f *passThroughFilter) Init(par FilterParameters, tb Rational) (FilterParameters, Rational, error) {
	return par, tb, nil
}

func (f *passThroughFilter) SendPacket(pkt *Packet) error    { return f.slot.send(pkt) }
func (f *passThroughFilter) ReceivePacket(pkt *Packet) error { return f.slot.next(pkt) }
func (f *passThroughFilter) Close()                          { f.slot.reset() }

type chainEntry struct {
	name   string
	filter BitstreamFilter
	outPar FilterParameters
	outTB  Rational
}

// filterChain is the ordered bitstream filter sequence applied before
// decoding. Invariant: either fully uninitialized (no filters) or fully
// initialized; partial construction failure tears down the whole chain.
type filterChain struct {
	filters []chainEntry
}

func (c *filterChain) initialized() bool { return len(c.filters) > 0 }

// init lazily builds the chain from the codec's comma-separated filter
// specification. An empty specification becomes a single pass-through filter.
func (c *filterChain) init(d *Decoder) error {
	if c.initialized() {
		return nil
	}
	list := d.codec.Filters
	if list == "" {
		list = "null"
	}

	par := d.filterParameters()
	// No input time base is known this early, so assume the conventional
	// 90 kHz clock; none of the filters used here should depend on it.
	tb := TimeBase90kHz

	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		f, err := newBitstreamFilter(name)
		if err != nil {
			c.uninit()
			return err
		}
		outPar, outTB, err := f.Init(par, tb)
		if err != nil {
			f.Close()
			c.uninit()
			return fmt.Errorf("initializing bitstream filter %s: %w", name, err)
		}
		c.filters = append(c.filters, chainEntry{name: name, filter: f, outPar: outPar, outTB: outTB})
		par, tb = outPar, outTB
	}
	return nil
}

// send pushes a new input packet (or end-of-stream marker) into the first
// filter.
func (c *filterChain) send(pkt *Packet) error {
	return c.filters[0].filter.SendPacket(pkt)
}

// poll tries to get one output packet from the chain: start at the last
// filter; while it reports no data, step one filter earlier; once a filter
// yields a packet or end of stream, feed the result forward into the next
// filter (or hand it to the caller from the last one) and resume pulling
// from there. Explicit index walk, no recursion.
func (c *filterChain) poll(pkt *Packet) error {
	idx := len(c.filters) - 1
	for idx >= 0 {
		err := c.filters[idx].filter.ReceivePacket(pkt)
		if errors.Is(err, ErrWouldBlock) {
			idx--
			continue
		}
		if err != nil && !errors.Is(err, ErrEndOfStream) {
			return err
		}
		if idx == len(c.filters)-1 {
			return err
		}
		idx++
		var fwd *Packet
		if err == nil {
			fwd = pkt
		}
		if serr := c.filters[idx].filter.SendPacket(fwd); serr != nil {
			logrus.WithFields(logrus.Fields{
				"filter": c.filters[idx].name,
			}).WithError(serr).Error("error pre-processing a packet before decoding")
			pkt.Unref()
			return serr
		}
	}
	return ErrWouldBlock
}

// uninit releases every filter and resets the chain to empty.
func (c *filterChain) uninit() {
	for i := range c.filters {
		c.filters[i].filter.Close()
	}
	c.filters = nil
}

// filterParameters derives the first filter's input parameter set from the
// decoder's current configuration.
func (d *Decoder) filterParameters() FilterParameters {
	cfg := &d.config
	return FilterParameters{
		CodecName:    d.codec.Name,
		MediaType:    d.codec.Type,
		Width:        cfg.Width,
		Height:       cfg.Height,
		PixelFormat:  cfg.PixelFormat,
		SampleFormat: cfg.SampleFormat,
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		ExtraData:    cfg.ExtraData,
	}
}
