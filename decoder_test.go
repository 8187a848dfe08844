package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubVideoCodec turns every packet into exactly one frame.
func stubVideoCodec() *Codec {
	return &Codec{
		Name: "stubvideo",
		Type: MediaTypeVideo,
		Decode: func(d *Decoder, f *Frame, pkt *Packet) (int, bool, error) {
			if len(pkt.Data) == 0 {
				return 0, false, nil
			}
			if err := d.GetBuffer(f); err != nil {
				return 0, false, err
			}
			return len(pkt.Data), true, nil
		},
	}
}

// delayState reorders output by one frame to emulate internal buffering.
type delayState struct {
	pendingPTS int64
	has        bool
}

func delayVideoCodec() *Codec {
	return &Codec{
		Name:         "delayvideo",
		Type:         MediaTypeVideo,
		Capabilities: CapDelay,
		Init: func(d *Decoder) error {
			d.Priv = &delayState{}
			return nil
		},
		Close: func(d *Decoder) { d.Priv = nil },
		Flush: func(d *Decoder) { *d.Priv.(*delayState) = delayState{} },
		Decode: func(d *Decoder, f *Frame, pkt *Packet) (int, bool, error) {
			st := d.Priv.(*delayState)
			emit := func(pts int64) error {
				if err := d.GetBuffer(f); err != nil {
					return err
				}
				f.PTS = pts
				return nil
			}
			if len(pkt.Data) == 0 {
				if !st.has {
					return 0, false, nil
				}
				st.has = false
				return 0, true, emit(st.pendingPTS)
			}
			got := st.has
			var err error
			if got {
				err = emit(st.pendingPTS)
			}
			st.pendingPTS = pkt.PTS
			st.has = true
			return len(pkt.Data), got, err
		},
	}
}

// halfAudioCodec consumes at most five bytes per call and produces a frame
// from each slice, to exercise partial packet retention.
func halfAudioCodec() *Codec {
	return &Codec{
		Name: "halfaudio",
		Type: MediaTypeAudio,
		Decode: func(d *Decoder, f *Frame, pkt *Packet) (int, bool, error) {
			if len(pkt.Data) == 0 {
				return 0, false, nil
			}
			f.SampleCount = 4
			if err := d.GetBuffer(f); err != nil {
				return 0, false, err
			}
			return min(5, len(pkt.Data)), true, nil
		},
	}
}

func videoConfig() DecoderConfig {
	cfg := DefaultDecoderConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.PixelFormat = PixelFormatI420
	return cfg
}

func audioConfig() DecoderConfig {
	cfg := DefaultDecoderConfig()
	cfg.SampleFormat = SampleFormatS16
	cfg.SampleRate = 48000
	cfg.Channels = 2
	return cfg
}

func pktWithPTS(data []byte, pts int64) *Packet {
	p := NewPacket(data)
	p.PTS = pts
	p.DTS = pts
	return p
}

func TestNewDecoder_Validation(t *testing.T) {
	if _, err := NewDecoder(nil, videoConfig()); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil codec error = %v, want ErrInvalidArgument", err)
	}
	if _, err := NewDecoder(&Codec{Name: "x", Type: MediaTypeVideo}, videoConfig()); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("codec without entry points error = %v, want ErrInvalidArgument", err)
	}
	both := &Codec{
		Name:         "x",
		Type:         MediaTypeVideo,
		Decode:       func(*Decoder, *Frame, *Packet) (int, bool, error) { return 0, false, nil },
		ReceiveFrame: func(*Decoder, *Frame) error { return ErrWouldBlock },
	}
	if _, err := NewDecoder(both, videoConfig()); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("codec with both entry points error = %v, want ErrInvalidArgument", err)
	}
}

func TestDecoder_SendReceive(t *testing.T) {
	d, err := NewDecoder(stubVideoCodec(), videoConfig())
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.SendPacket(pktWithPTS([]byte{1, 2, 3}, 100)))

	frame := NewFrame()
	require.NoError(t, d.ReceiveFrame(frame))
	require.True(t, frame.HasBuffer(), "received frame must own buffers")
	require.Equal(t, int64(100), frame.PTS)
	require.Equal(t, int64(100), frame.PacketDTS)
	require.Equal(t, 320, frame.Width)
	require.Equal(t, 240, frame.Height)
	frame.Unref()

	require.ErrorIs(t, d.ReceiveFrame(frame), ErrWouldBlock)
	require.Equal(t, uint64(1), d.FrameCount())
}

func TestDecoder_OpportunisticDecodeOnSend(t *testing.T) {
	d, err := NewDecoder(stubVideoCodec(), videoConfig())
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.SendPacket(pktWithPTS([]byte{1}, 1)))
	require.True(t, d.bufferFrame.HasBuffer(),
		"send must decode ahead into the staging frame")

	frame := NewFrame()
	require.NoError(t, d.ReceiveFrame(frame))
	require.Equal(t, int64(1), frame.PTS)
	frame.Unref()
}

func TestDecoder_DrainProtocol(t *testing.T) {
	d, err := NewDecoder(delayVideoCodec(), videoConfig())
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.SendPacket(pktWithPTS([]byte{1}, 100)))
	require.NoError(t, d.SendPacket(pktWithPTS([]byte{2}, 200)))

	frame := NewFrame()
	require.NoError(t, d.ReceiveFrame(frame))
	require.Equal(t, int64(100), frame.PTS)
	frame.Unref()

	// End of stream: the delayed frame must come out before EndOfStream.
	require.NoError(t, d.SendPacket(nil))
	require.NoError(t, d.ReceiveFrame(frame))
	require.Equal(t, int64(200), frame.PTS)
	frame.Unref()

	require.ErrorIs(t, d.ReceiveFrame(frame), ErrEndOfStream)
	// Drained state is sticky on both sides.
	require.ErrorIs(t, d.ReceiveFrame(frame), ErrEndOfStream)
	require.ErrorIs(t, d.SendPacket(pktWithPTS([]byte{3}, 300)), ErrEndOfStream)
	require.Equal(t, uint64(2), d.FrameCount())
}

func TestDecoder_FlushRestartsAfterDrain(t *testing.T) {
	d, err := NewDecoder(delayVideoCodec(), videoConfig())
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.SendPacket(pktWithPTS([]byte{1}, 1)))
	require.NoError(t, d.SendPacket(nil))
	frame := NewFrame()
	require.NoError(t, d.ReceiveFrame(frame))
	frame.Unref()
	require.ErrorIs(t, d.ReceiveFrame(frame), ErrEndOfStream)

	d.Flush()

	// A flushed decoder accepts input again and can drain again.
	require.NoError(t, d.SendPacket(pktWithPTS([]byte{2}, 2)))
	require.NoError(t, d.SendPacket(nil))
	require.NoError(t, d.ReceiveFrame(frame))
	require.Equal(t, int64(2), frame.PTS)
	frame.Unref()
	require.ErrorIs(t, d.ReceiveFrame(frame), ErrEndOfStream)
}

func TestDecoder_PartialPacketRetention(t *testing.T) {
	d, err := NewDecoder(halfAudioCodec(), audioConfig())
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.SendPacket(pktWithPTS(make([]byte, 10), 500)))

	// First slice carries the packet's timestamps.
	frame := NewFrame()
	require.NoError(t, d.ReceiveFrame(frame))
	require.Equal(t, int64(500), frame.PTS)
	frame.Unref()

	// The retained remainder must not repeat them.
	require.NoError(t, d.ReceiveFrame(frame))
	require.Equal(t, NoTimestamp, frame.PTS)
	require.Equal(t, NoTimestamp, frame.PacketDTS)
	frame.Unref()

	require.ErrorIs(t, d.ReceiveFrame(frame), ErrWouldBlock)
}

func TestDecoder_RejectsFrameWithoutBuffers(t *testing.T) {
	bad := &Codec{
		Name: "badvideo",
		Type: MediaTypeVideo,
		Decode: func(d *Decoder, f *Frame, pkt *Packet) (int, bool, error) {
			// Claims a frame without acquiring buffers.
			f.Width = 16
			f.Height = 16
			return len(pkt.Data), true, nil
		},
	}
	d, err := NewDecoder(bad, videoConfig())
	require.NoError(t, err)
	defer d.Close()

	err = d.SendPacket(pktWithPTS([]byte{1}, 1))
	require.ErrorIs(t, err, ErrInternal)
}

func TestDecoder_DirectStrategy(t *testing.T) {
	direct := &Codec{
		Name: "directvideo",
		Type: MediaTypeVideo,
		ReceiveFrame: func(d *Decoder, f *Frame) error {
			var pkt Packet
			if err := d.NextPacket(&pkt); err != nil {
				return err
			}
			defer pkt.Unref()
			return d.GetBuffer(f)
		},
	}
	d, err := NewDecoder(direct, videoConfig())
	require.NoError(t, err)
	defer d.Close()
	require.Equal(t, strategyDirect, d.strategy)

	require.NoError(t, d.SendPacket(pktWithPTS([]byte{1, 2}, 7)))
	frame := NewFrame()
	require.NoError(t, d.ReceiveFrame(frame))
	require.Equal(t, int64(7), frame.PTS)
	frame.Unref()

	require.NoError(t, d.SendPacket(nil))
	require.ErrorIs(t, d.ReceiveFrame(frame), ErrEndOfStream)
}

func TestDecoder_GetBufferDefaultsFromConfig(t *testing.T) {
	cfg := videoConfig()
	cfg.SampleAspectRatio = Rational{4, 3}
	d, err := NewDecoder(stubVideoCodec(), cfg)
	require.NoError(t, err)
	defer d.Close()

	f := NewFrame()
	require.NoError(t, d.GetBuffer(f))
	require.Equal(t, 320, f.Width)
	require.Equal(t, 240, f.Height)
	require.Equal(t, PixelFormatI420, f.PixelFormat)
	require.Equal(t, Rational{4, 3}, f.SampleAspectRatio)
	f.Unref()
}

func TestDecoder_RegetBufferCopiesSharedFrame(t *testing.T) {
	d, err := NewDecoder(stubVideoCodec(), videoConfig())
	require.NoError(t, err)
	defer d.Close()

	f := NewFrame()
	require.NoError(t, d.GetBuffer(f))
	f.Data[0][0] = 0xAB

	// Shared with a downstream holder: reget must produce a private copy.
	extra := f.Buf[0].Ref()
	require.NoError(t, d.RegetBuffer(f))
	require.True(t, f.writable(), "reget must leave an exclusively owned frame")
	require.Equal(t, byte(0xAB), f.Data[0][0], "plane contents must be preserved")
	extra.Unref()
	f.Unref()
}
