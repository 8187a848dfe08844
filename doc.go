// Package codec drives media decoder backends through a common send/receive
// pipeline, so backends only turn bytes into pixels or samples while the
// driver handles everything around them.
//
// Key pieces include:
//   - Decoder with SendPacket/ReceiveFrame and the legacy one-shot Decode
//   - A shape-keyed frame buffer pool with stride-aligned planes
//   - Bitstream filter chains (RTP depayloaders, pass-through, custom)
//   - Pixel format negotiation with hardware fallback
//   - Cropping and side-data propagation onto output frames
//
// # Architecture
//
//	Packets -> [bitstream filters] -> backend -> [crop/props] -> Frames
//
// A Codec describes a backend: packet-driven backends implement Decode and
// are fed filtered packets by the driver; pull-driven backends implement
// ReceiveFrame and fetch packets themselves through NextPacket. Backends
// declaring CapFrameThreads can be fanned out over worker instances with
// output order preserved.
//
// # Hardware Acceleration
//
// Backends negotiate their output format through Decoder.NegotiateFormat.
// Hardware surface formats bind an HWAccel from the registry in the decoder
// configuration; binding failures fall back candidate by candidate down to
// software. The bundled libstream_hwdec backend loads via purego
// (CGO_ENABLED=0); set STREAM_SDK_LIB_PATH to the directory containing the
// native libraries.
package codec
