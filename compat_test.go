package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_OnePacketOneFrame(t *testing.T) {
	d, err := NewDecoder(stubVideoCodec(), videoConfig())
	require.NoError(t, err)
	defer d.Close()

	frame := NewFrame()
	got, consumed, err := d.Decode(frame, pktWithPTS([]byte{1, 2, 3}, 100))
	require.NoError(t, err)
	require.True(t, got)
	require.Equal(t, 3, consumed, "whole video packet must be reported consumed")
	require.Equal(t, int64(100), frame.PTS)
	frame.Unref()
}

func TestDecode_NoFrameForBufferedPacket(t *testing.T) {
	d, err := NewDecoder(delayVideoCodec(), videoConfig())
	require.NoError(t, err)
	defer d.Close()

	frame := NewFrame()
	got, consumed, err := d.Decode(frame, pktWithPTS([]byte{1}, 1))
	require.NoError(t, err)
	require.False(t, got, "first packet stays buffered in the backend")
	require.Equal(t, 1, consumed)

	got, consumed, err = d.Decode(frame, pktWithPTS([]byte{2}, 2))
	require.NoError(t, err)
	require.True(t, got)
	require.Equal(t, 1, consumed)
	require.Equal(t, int64(1), frame.PTS)
	frame.Unref()
}

func TestDecode_DrainWithEmptyPacket(t *testing.T) {
	d, err := NewDecoder(delayVideoCodec(), videoConfig())
	require.NoError(t, err)
	defer d.Close()

	frame := NewFrame()
	_, _, err = d.Decode(frame, pktWithPTS([]byte{1}, 5))
	require.NoError(t, err)

	got, consumed, err := d.Decode(frame, nil)
	require.NoError(t, err)
	require.True(t, got, "drain must flush the buffered frame")
	require.Equal(t, 0, consumed)
	require.Equal(t, int64(5), frame.PTS)
	frame.Unref()

	got, _, err = d.Decode(frame, nil)
	require.NoError(t, err)
	require.False(t, got, "drained decoder has nothing left")
}

func TestDecode_PartialConsumption(t *testing.T) {
	d, err := NewDecoder(halfAudioCodec(), audioConfig())
	require.NoError(t, err)
	defer d.Close()

	data := make([]byte, 10)
	frame := NewFrame()
	got, consumed, err := d.Decode(frame, pktWithPTS(data, 1))
	require.NoError(t, err)
	require.True(t, got)
	require.Equal(t, 5, consumed, "audio backend consumed half the packet")
	frame.Unref()

	// The caller must resend exactly the remaining bytes.
	rest := pktWithPTS(data[5:], 1)
	_, _, err = d.Decode(frame, pktWithPTS(make([]byte, 3), 1))
	require.ErrorIs(t, err, ErrInvalidArgument,
		"a resend with a different size must be rejected")

	got, consumed, err = d.Decode(frame, rest)
	require.NoError(t, err)
	require.True(t, got)
	require.Equal(t, 5, consumed)
	frame.Unref()
}

func TestDecode_PartialResendFeedsEachByteOnce(t *testing.T) {
	var fed, calls int
	vc := &Codec{
		Name: "countaudio",
		Type: MediaTypeAudio,
		Decode: func(d *Decoder, f *Frame, pkt *Packet) (int, bool, error) {
			if len(pkt.Data) == 0 {
				return 0, false, nil
			}
			calls++
			n := min(5, len(pkt.Data))
			fed += n
			f.SampleCount = 4
			if err := d.GetBuffer(f); err != nil {
				return 0, false, err
			}
			return n, true, nil
		},
	}
	d, err := NewDecoder(vc, audioConfig())
	require.NoError(t, err)
	defer d.Close()

	frame := NewFrame()
	got, consumed, err := d.Decode(frame, pktWithPTS(make([]byte, 10), 1))
	require.NoError(t, err)
	require.True(t, got)
	require.Equal(t, 5, consumed)
	frame.Unref()

	// The resend continues from the retained remainder; the backend must
	// never see the overlapping bytes again.
	got, consumed, err = d.Decode(frame, pktWithPTS(make([]byte, 5), 1))
	require.NoError(t, err)
	require.True(t, got)
	require.Equal(t, 5, consumed)
	frame.Unref()

	require.Equal(t, 10, fed, "every input byte reaches the backend exactly once")
	require.Equal(t, 2, calls)
	require.False(t, d.compat.warned, "a clean resend must not drop frames")
}

func TestDecode_DropsExtraFramesWithWarning(t *testing.T) {
	// A splitting filter turns one input packet into two filtered packets,
	// so one Decode call yields two frames: the shim keeps the first, drops
	// the rest and warns once per decoder.
	burst := stubVideoCodec()
	burst.Filters = "test_split"
	d, err := NewDecoder(burst, videoConfig())
	require.NoError(t, err)
	defer d.Close()

	frame := NewFrame()
	got, consumed, err := d.Decode(frame, pktWithPTS([]byte{1, 2, 3, 4}, 9))
	require.NoError(t, err)
	require.True(t, got)
	require.Equal(t, int64(9), frame.PTS, "the first frame wins")
	require.Equal(t, 4, consumed,
		"with filters in the chain the whole input packet counts as consumed")
	require.True(t, d.compat.warned, "dropping frames must be warned about")
	require.Equal(t, uint64(2), d.FrameCount())
	frame.Unref()
}
