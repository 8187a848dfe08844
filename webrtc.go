package codec

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pion/webrtc/v4"
)

// TrackPacketSource adapts a remote WebRTC track into a stream of packets
// ready for a decoder whose codec declares the matching RTP depayload
// filter. Each packet carries one marshaled RTP packet; the depayload filter
// strips the framing inside the decoder.
type TrackPacketSource struct {
	track *webrtc.TrackRemote
}

// NewTrackPacketSource wraps a remote track. The track stays owned by the
// caller's peer connection.
func NewTrackPacketSource(track *webrtc.TrackRemote) *TrackPacketSource {
	return &TrackPacketSource{track: track}
}

// ReadPacket returns the next RTP packet from the track. Returns
// ErrEndOfStream once the track has ended.
func (s *TrackPacketSource) ReadPacket() (*Packet, error) {
	rp, _, err := s.track.ReadRTP()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("reading RTP from track %s: %w", s.track.ID(), err)
	}
	buf, err := rp.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: remarshaling RTP packet: %v", ErrInternal, err)
	}
	pkt := NewPacket(buf)
	pkt.PTS = int64(rp.Timestamp)
	pkt.DTS = pkt.PTS
	return pkt, nil
}

// DepayFilterFor maps a WebRTC MIME type to the registered RTP depayload
// filter for it, for use in a Codec's Filters specification. Returns "" for
// types without one.
func DepayFilterFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case strings.ToLower(webrtc.MimeTypeH264):
		return "h264_rtpdepay"
	case strings.ToLower(webrtc.MimeTypeVP8):
		return "vp8_rtpdepay"
	case strings.ToLower(webrtc.MimeTypeVP9):
		return "vp9_rtpdepay"
	case strings.ToLower(webrtc.MimeTypeOpus):
		return "opus_rtpdepay"
	default:
		return ""
	}
}
