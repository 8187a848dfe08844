package codec

import (
	"errors"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

func marshalVP8RTP(t *testing.T, seq uint16, ts uint32, payload []byte) []byte {
	t.Helper()
	p := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0x1234,
		},
		// One-byte VP8 payload descriptor, start of partition.
		Payload: append([]byte{0x10}, payload...),
	}
	buf, err := p.Marshal()
	if err != nil {
		t.Fatalf("marshal RTP: %v", err)
	}
	return buf
}

func TestRTPDepayFilter_VP8(t *testing.T) {
	f, err := newBitstreamFilter("vp8_rtpdepay")
	if err != nil {
		t.Fatalf("newBitstreamFilter: %v", err)
	}
	defer f.Close()
	if _, _, err := f.Init(FilterParameters{CodecName: "vp8"}, TimeBase90kHz); err != nil {
		t.Fatalf("Init: %v", err)
	}

	want := []byte{0x9d, 0x01, 0x2a, 0x40, 0x01}
	in := NewPacket(marshalVP8RTP(t, 1, 3000, want))
	if err := f.SendPacket(in); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}

	var out Packet
	if err := f.ReceivePacket(&out); err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}
	if string(out.Data) != string(want) {
		t.Errorf("depayloaded data = %x, want %x", out.Data, want)
	}
	if out.PTS != 3000 {
		t.Errorf("PTS = %d, want the RTP timestamp 3000", out.PTS)
	}
	out.Unref()

	if err := f.ReceivePacket(&out); !errors.Is(err, ErrWouldBlock) {
		t.Errorf("drained filter = %v, want ErrWouldBlock", err)
	}
}

func TestRTPDepayFilter_MalformedPacket(t *testing.T) {
	f, err := newBitstreamFilter("h264_rtpdepay")
	if err != nil {
		t.Fatalf("newBitstreamFilter: %v", err)
	}
	defer f.Close()

	in := NewPacket([]byte{0x00}) // too short for an RTP header
	if err := f.SendPacket(in); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	var out Packet
	if err := f.ReceivePacket(&out); !errors.Is(err, ErrInvalidData) {
		t.Errorf("ReceivePacket = %v, want ErrInvalidData", err)
	}
}

func TestRTPDepayFilter_InDecoderChain(t *testing.T) {
	vc := stubVideoCodec()
	vc.Filters = "vp8_rtpdepay"
	d, err := NewDecoder(vc, videoConfig())
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer d.Close()

	pkt := NewPacket(marshalVP8RTP(t, 7, 6000, []byte{1, 2, 3}))
	if err := d.SendPacket(pkt); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	frame := NewFrame()
	if err := d.ReceiveFrame(frame); err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if frame.PTS != 6000 {
		t.Errorf("frame PTS = %d, want the RTP timestamp 6000", frame.PTS)
	}
	frame.Unref()
}

func TestDepayFilterFor(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{webrtc.MimeTypeH264, "h264_rtpdepay"},
		{webrtc.MimeTypeVP8, "vp8_rtpdepay"},
		{webrtc.MimeTypeVP9, "vp9_rtpdepay"},
		{webrtc.MimeTypeOpus, "opus_rtpdepay"},
		{"video/unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := DepayFilterFor(tt.mime); got != tt.want {
				t.Errorf("DepayFilterFor(%q) = %q, want %q", tt.mime, got, tt.want)
			}
		})
	}
}
