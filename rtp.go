package codec

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// rtpDepayFilter is a bitstream filter that strips RTP framing: each input
// packet is one RTP packet, each output packet is the depacketized codec
// payload with the RTP timestamp as PTS. Packets carrying only fragment
// headers produce no output and more input is requested instead.
type rtpDepayFilter struct {
	slot  packetSlot
	depay rtp.Depacketizer
}

func (f *rtpDepayFilter) Init(par FilterParameters, tb Rational) (FilterParameters, Rational, error) {
	return par, TimeBase90kHz, nil
}

func (f *rtpDepayFilter) SendPacket(pkt *Packet) error {
	return f.slot.send(pkt)
}

func (f *rtpDepayFilter) ReceivePacket(pkt *Packet) error {
	var in Packet
	if err := f.slot.next(&in); err != nil {
		return err
	}
	defer in.Unref()

	var rp rtp.Packet
	if err := rp.Unmarshal(in.Data); err != nil {
		return fmt.Errorf("%w: malformed RTP packet: %v", ErrInvalidData, err)
	}
	payload, err := f.depay.Unmarshal(rp.Payload)
	if err != nil {
		return fmt.Errorf("%w: depacketizing RTP payload: %v", ErrInvalidData, err)
	}
	if len(payload) == 0 {
		return ErrWouldBlock
	}

	out := NewPacket(append([]byte(nil), payload...))
	out.PTS = int64(rp.Timestamp)
	out.DTS = out.PTS
	out.SideData = in.SideData
	in.SideData = nil
	out.MoveTo(pkt)
	return nil
}

func (f *rtpDepayFilter) Close() {
	f.slot.reset()
}

func init() {
	RegisterBitstreamFilter("h264_rtpdepay", func() BitstreamFilter {
		return &rtpDepayFilter{depay: &codecs.H264Packet{}}
	})
	RegisterBitstreamFilter("vp8_rtpdepay", func() BitstreamFilter {
		return &rtpDepayFilter{depay: &codecs.VP8Packet{}}
	})
	RegisterBitstreamFilter("vp9_rtpdepay", func() BitstreamFilter {
		return &rtpDepayFilter{depay: &codecs.VP9Packet{}}
	})
	RegisterBitstreamFilter("opus_rtpdepay", func() BitstreamFilter {
		return &rtpDepayFilter{depay: &codecs.OpusPacket{}}
	})
}
