//go:build (darwin || linux) && !novpx

// VP8/VP9 decoder backends via libmedia_vpx using purego.
//
// libmedia_vpx is a thin wrapper around libvpx with a simple primitive-only
// API, loaded dynamically at runtime.
//
// Library locations checked (in order):
//   - MEDIA_VPX_LIB_PATH environment variable
//   - MEDIA_SDK_LIB_PATH environment variable
//   - build/ffi directory (development)
//   - System library paths

package codec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mediaVPXOnce    sync.Once
	mediaVPXHandle  uintptr
	mediaVPXInitErr error
)

// libmedia_vpx function pointers (decoder subset)
var (
	mediaVPXDecoderCreate  func(codec, threads int32) uint64
	mediaVPXDecoderDecode  func(decoder uint64, data uintptr, dataLen int32, resultOut uintptr) int32
	mediaVPXDecoderReset   func(decoder uint64) int32
	mediaVPXDecoderDestroy func(decoder uint64)

	mediaVPXGetError       func() uintptr
	mediaVPXCodecAvailable func(codec int32) int32
)

// mediaVPXDecodeResult matches media_vpx_decode_result_t in C.
// This struct must be heap-allocated for purego to work correctly on arm64.
type mediaVPXDecodeResult struct {
	YPtr     uint64 // Pointer to Y plane
	UPtr     uint64 // Pointer to U plane
	VPtr     uint64 // Pointer to V plane
	YStride  int32  // Y plane stride
	UVStride int32  // UV plane stride
	Width    int32  // Frame width
	Height   int32  // Frame height
	Result   int32  // 1=decoded, 0=buffering, <0=error
	Reserved int32  // Padding for alignment
}

// Constants from media_vpx.h
const (
	mediaVPXCodecVP8 = 0
	mediaVPXCodecVP9 = 1
)

func loadMediaVPX() error {
	mediaVPXOnce.Do(func() {
		mediaVPXInitErr = loadMediaVPXLib()
	})
	return mediaVPXInitErr
}

func loadMediaVPXLib() error {
	var lastErr error
	for _, path := range getMediaVPXLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			mediaVPXHandle = handle
			loadMediaVPXSymbols()
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libmedia_vpx: %w", lastErr)
	}
	return errors.New("libmedia_vpx not found in any standard location")
}

func getMediaVPXLibPaths() []string {
	var paths []string

	libName := "libmedia_vpx.so"
	if runtime.GOOS == "darwin" {
		libName = "libmedia_vpx.dylib"
	}

	if p := os.Getenv("MEDIA_VPX_LIB_PATH"); p != "" {
		paths = append(paths, p)
	}
	if p := os.Getenv("MEDIA_SDK_LIB_PATH"); p != "" {
		paths = append(paths, filepath.Join(p, libName))
	}
	if root := findModuleRoot(); root != "" {
		paths = append(paths,
			filepath.Join(root, "build", libName),
			filepath.Join(root, "build", "ffi", libName),
		)
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/opt/homebrew/lib/"+libName,
		)
	case "linux":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/usr/lib/"+libName,
		)
	}
	return paths
}

func loadMediaVPXSymbols() {
	purego.RegisterLibFunc(&mediaVPXDecoderCreate, mediaVPXHandle, "media_vpx_decoder_create")
	purego.RegisterLibFunc(&mediaVPXDecoderDecode, mediaVPXHandle, "media_vpx_decoder_decode_v2")
	purego.RegisterLibFunc(&mediaVPXDecoderReset, mediaVPXHandle, "media_vpx_decoder_reset")
	purego.RegisterLibFunc(&mediaVPXDecoderDestroy, mediaVPXHandle, "media_vpx_decoder_destroy")
	purego.RegisterLibFunc(&mediaVPXGetError, mediaVPXHandle, "media_vpx_get_error")
	purego.RegisterLibFunc(&mediaVPXCodecAvailable, mediaVPXHandle, "media_vpx_codec_available")
}

func getVPXError() string {
	if mediaVPXGetError == nil {
		return "library not loaded"
	}
	ptr := mediaVPXGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// IsVP8Available reports whether the native VP8 decoder can be loaded.
func IsVP8Available() bool {
	return loadMediaVPX() == nil && mediaVPXCodecAvailable(mediaVPXCodecVP8) != 0
}

// IsVP9Available reports whether the native VP9 decoder can be loaded.
func IsVP9Available() bool {
	return loadMediaVPX() == nil && mediaVPXCodecAvailable(mediaVPXCodecVP9) != 0
}

// vpxState is the per-decoder native handle, kept in Decoder.Priv.
type vpxState struct {
	handle uint64
	// Persistent heap-allocated result struct, purego workaround on arm64.
	result *mediaVPXDecodeResult
}

// VP8Codec returns the libmedia_vpx-backed VP8 decoder backend.
func VP8Codec() *Codec { return vpxCodec("vp8", mediaVPXCodecVP8) }

// VP9Codec returns the libmedia_vpx-backed VP9 decoder backend.
func VP9Codec() *Codec { return vpxCodec("vp9", mediaVPXCodecVP9) }

func vpxCodec(name string, codecType int32) *Codec {
	return &Codec{
		Name: name,
		Type: MediaTypeVideo,
		Init: func(d *Decoder) error {
			if err := loadMediaVPX(); err != nil {
				return fmt.Errorf("%w: %v", ErrUnsupported, err)
			}
			if mediaVPXCodecAvailable(codecType) == 0 {
				return fmt.Errorf("%w: %s not built into libmedia_vpx", ErrUnsupported, name)
			}
			handle := mediaVPXDecoderCreate(codecType, 4)
			if handle == 0 {
				return fmt.Errorf("%w: creating %s decoder: %s", ErrInternal, name, getVPXError())
			}
			d.Priv = &vpxState{handle: handle, result: &mediaVPXDecodeResult{}}
			return nil
		},
		Close: func(d *Decoder) {
			if st, ok := d.Priv.(*vpxState); ok && st.handle != 0 {
				mediaVPXDecoderDestroy(st.handle)
			}
			d.Priv = nil
		},
		Flush: func(d *Decoder) {
			if st, ok := d.Priv.(*vpxState); ok && st.handle != 0 {
				mediaVPXDecoderReset(st.handle)
			}
		},
		Decode: vpxDecode,
	}
}

func vpxDecode(d *Decoder, f *Frame, pkt *Packet) (int, bool, error) {
	st, ok := d.Priv.(*vpxState)
	if !ok || st.handle == 0 {
		return 0, false, fmt.Errorf("%w: decoder not initialized", ErrInternal)
	}
	if len(pkt.Data) == 0 {
		return 0, false, nil
	}

	out := st.result
	res := mediaVPXDecoderDecode(
		st.handle,
		uintptr(unsafe.Pointer(&pkt.Data[0])),
		int32(len(pkt.Data)),
		uintptr(unsafe.Pointer(out)),
	)
	runtime.KeepAlive(pkt.Data)
	runtime.KeepAlive(out)

	if res < 0 {
		return 0, false, fmt.Errorf("%w: %s", ErrInvalidData, getVPXError())
	}
	if res == 0 {
		// Buffering, no frame yet.
		return len(pkt.Data), false, nil
	}

	w, h := int(out.Width), int(out.Height)
	if w <= 0 || h <= 0 || out.YPtr == 0 || out.YStride <= 0 || out.UVStride <= 0 {
		return 0, false, fmt.Errorf("%w: invalid decoder output: stride=%d/%d size=%dx%d",
			ErrInternal, out.YStride, out.UVStride, w, h)
	}

	f.Width = w
	f.Height = h
	f.PixelFormat = PixelFormatI420
	if err := d.GetBuffer(f); err != nil {
		return 0, false, err
	}

	uvW, uvH := (w+1)/2, (h+1)/2
	copyVPXPlane(f.Data[0], f.Linesize[0], out.YPtr, int(out.YStride), w, h)
	copyVPXPlane(f.Data[1], f.Linesize[1], out.UPtr, int(out.UVStride), uvW, uvH)
	copyVPXPlane(f.Data[2], f.Linesize[2], out.VPtr, int(out.UVStride), uvW, uvH)
	runtime.KeepAlive(out)

	return len(pkt.Data), true, nil
}

func copyVPXPlane(dst []byte, dstStride int, src uint64, srcStride, width, height int) {
	for row := 0; row < height; row++ {
		s := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(src)+uintptr(row*srcStride))), width)
		copy(dst[row*dstStride:row*dstStride+width], s)
	}
}
