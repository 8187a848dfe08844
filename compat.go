package codec

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// compatState tracks byte accounting across the legacy Decode entry point.
// consumed accumulates what the backend read during one Decode call;
// partialSize remembers the tail of a partially consumed packet so the next
// call can be checked against it.
type compatState struct {
	consumed    int
	partialSize int
	frame       Frame // staging area for dropped extra frames
	warned      bool
}

func (c *compatState) reset() {
	c.consumed = 0
	c.partialSize = 0
	c.frame.Unref()
	c.warned = false
}

// Decode is the legacy one-shot entry point layered on SendPacket and
// ReceiveFrame: one packet in, at most one frame out, with the number of
// consumed payload bytes reported back. When a packet is consumed only
// partially the caller must resend the identical remainder. Backends that
// produce several frames from one packet drop all but the first here; use
// the send/receive calls to get them all. A nil or empty packet drains.
func (d *Decoder) Decode(frame *Frame, pkt *Packet) (gotFrame bool, consumed int, err error) {
	if d.compat.consumed != 0 {
		return false, 0, fmt.Errorf("%w: interleaved use of Decode and SendPacket", ErrInternal)
	}
	size := 0
	if pkt != nil {
		size = len(pkt.Data)
	}
	if d.compat.partialSize > 0 && d.compat.partialSize != size {
		return false, 0, fmt.Errorf("%w: unexpected packet size after a partial decode",
			ErrInvalidArgument)
	}

	// A matching resend continues from the retained remainder; submitting
	// the packet again would feed the same bytes twice.
	if d.compat.partialSize == 0 {
		err = d.SendPacket(pkt)
		switch {
		case errors.Is(err, ErrEndOfStream):
			err = nil
		case errors.Is(err, ErrWouldBlock):
			// Each Decode call fully drains the output below, so the input
			// side can never be full here.
			err = fmt.Errorf("%w: decoder refused input with all output drained", ErrInternal)
		}
	}

	for err == nil {
		dst := frame
		if gotFrame {
			dst = &d.compat.frame
		}
		rerr := d.ReceiveFrame(dst)
		if rerr != nil {
			if !errors.Is(rerr, ErrWouldBlock) && !errors.Is(rerr, ErrEndOfStream) {
				err = rerr
			}
			break
		}
		if dst == frame {
			gotFrame = true
		} else {
			if !d.compat.warned {
				logrus.WithFields(logrus.Fields{
					"codec": d.codec.Name,
				}).Warn("one-shot decoding does not support multiple frames per packet, dropping frames")
				d.compat.warned = true
			}
			dst.Unref()
		}
		if d.draining || (d.codec.Filters == "" && d.compat.consumed < size) {
			break
		}
	}

	if err == nil {
		// With bitstream filters in between, backend byte counts no longer
		// map to input bytes; report the whole packet as consumed.
		if d.codec.Filters != "" {
			consumed = size
		} else {
			consumed = min(d.compat.consumed, size)
		}
		d.compat.partialSize = size - consumed
	} else {
		consumed = 0
		d.compat.partialSize = 0
	}
	d.compat.consumed = 0
	return gotFrame, consumed, err
}
