package codec

import "math"

// NoTimestamp marks an unset PTS or DTS.
const NoTimestamp = int64(math.MinInt64)

// Packet holds a reference-counted encoded input unit with timing and
// side data. The zero value is an unset packet ready for use as a
// destination of Ref or MoveTo.
type Packet struct {
	Buf  *BufferRef // backing buffer, nil when unset
	Data []byte     // window into Buf advanced as bytes are consumed

	PTS      int64 // presentation timestamp, NoTimestamp if unknown
	DTS      int64 // decode timestamp, NoTimestamp if unknown
	Duration int64

	SideData map[SideDataType][]byte
}

// NewPacket wraps data in a packet holding one buffer reference.
func NewPacket(data []byte) *Packet {
	return &Packet{
		Buf:  NewBufferRefFromData(data),
		Data: data,
		PTS:  NoTimestamp,
		DTS:  NoTimestamp,
	}
}

// HasData returns true if the packet carries payload or side data. A packet
// without either is a flush/end-of-stream signal.
func (p *Packet) HasData() bool {
	return p != nil && (len(p.Data) > 0 || len(p.SideData) > 0)
}

// Ref makes p a new reference to src's buffer and copies its properties.
// Any previous content of p is released.
func (p *Packet) Ref(src *Packet) {
	p.Unref()
	p.Buf = src.Buf.Ref()
	p.Data = src.Data
	p.copyProps(src)
}

// MoveTo transfers ownership of p's buffer and properties to dst and resets
// p to unset. Any previous content of dst is released.
func (p *Packet) MoveTo(dst *Packet) {
	dst.Unref()
	*dst = *p
	p.reset()
}

// Unref releases the packet's buffer reference and resets it to unset.
func (p *Packet) Unref() {
	if p == nil {
		return
	}
	p.Buf.Unref()
	p.reset()
}

// CopyProps copies timing and side data from src by value, leaving the
// payload untouched. Side data payloads are independent copies.
func (p *Packet) CopyProps(src *Packet) {
	p.copyProps(src)
}

func (p *Packet) copyProps(src *Packet) {
	p.PTS = src.PTS
	p.DTS = src.DTS
	p.Duration = src.Duration
	p.SideData = nil
	if len(src.SideData) > 0 {
		p.SideData = make(map[SideDataType][]byte, len(src.SideData))
		for k, v := range src.SideData {
			buf := make([]byte, len(v))
			copy(buf, v)
			p.SideData[k] = buf
		}
	}
}

func (p *Packet) reset() {
	p.Buf = nil
	p.Data = nil
	p.PTS = NoTimestamp
	p.DTS = NoTimestamp
	p.Duration = 0
	p.SideData = nil
}
