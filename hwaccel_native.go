//go:build darwin || linux

// Hardware decode surfaces via libstream_hwdec using purego.
//
// libstream_hwdec is a thin wrapper exposing VAAPI (Linux) and VideoToolbox
// (macOS) surface pools through a primitive-only API, loaded dynamically at
// runtime so builds never need the vendor SDKs.
//
// Library locations checked (in order):
//   - STREAM_HWDEC_LIB_PATH environment variable
//   - STREAM_SDK_LIB_PATH environment variable
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
	hwdecOnce    sync.Once
	hwdecHandle  uintptr
	hwdecInitErr error
)

// libstream_hwdec function pointers
var (
	hwdecSessionCreate  func(codecName uintptr, width, height int32) uint64
	hwdecSessionDestroy func(session uint64)
	hwdecSurfaceAlloc   func(session uint64, outPlanes, outStrides, outSize uintptr) uint64
	hwdecSurfaceFree    func(session uint64, surface uint64)
	hwdecGetError       func() uintptr
)

const hwdecMaxPlanes = 4

func loadHWDec() error {
	hwdecOnce.Do(func() {
		hwdecInitErr = loadHWDecLib()
	})
	return hwdecInitErr
}

func loadHWDecLib() error {
	var lastErr error
	for _, path := range getHWDecLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			hwdecHandle = handle
			loadHWDecSymbols()
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libstream_hwdec: %w", lastErr)
	}
	return errors.New("libstream_hwdec not found in any standard location")
}

func loadHWDecSymbols() {
	purego.RegisterLibFunc(&hwdecSessionCreate, hwdecHandle, "stream_hwdec_session_create")
	purego.RegisterLibFunc(&hwdecSessionDestroy, hwdecHandle, "stream_hwdec_session_destroy")
	purego.RegisterLibFunc(&hwdecSurfaceAlloc, hwdecHandle, "stream_hwdec_surface_alloc")
	purego.RegisterLibFunc(&hwdecSurfaceFree, hwdecHandle, "stream_hwdec_surface_free")
	purego.RegisterLibFunc(&hwdecGetError, hwdecHandle, "stream_hwdec_get_error")
}

func getHWDecLibPaths() []string {
	var paths []string

	libName := "libstream_hwdec.so"
	if runtime.GOOS == "darwin" {
		libName = "libstream_hwdec.dylib"
	}

	if p := os.Getenv("STREAM_HWDEC_LIB_PATH"); p != "" {
		paths = append(paths, p)
	}
	if p := os.Getenv("STREAM_SDK_LIB_PATH"); p != "" {
		paths = append(paths, filepath.Join(p, libName))
	}
	if root := findModuleRoot(); root != "" {
		paths = append(paths, filepath.Join(root, "build", "ffi", libName))
	}
	paths = append(paths, libName)
	return paths
}

func hwdecError() string {
	if hwdecGetError == nil {
		return "library not loaded"
	}
	return goStringFromPtr(hwdecGetError())
}

// nativeHWDecFormat is the surface format the wrapper produces on this OS.
func nativeHWDecFormat() PixelFormat {
	if runtime.GOOS == "darwin" {
		return PixelFormatVTB
	}
	return PixelFormatVAAPI
}

// nativeHWDecState is the per-decoder session handle, kept in Decoder.HWPriv.
type nativeHWDecState struct {
	session uint64
}

// RegisterNativeHWAccels registers the libstream_hwdec backend for codecName
// into reg, for the surface format native to this OS. Loading the library is
// deferred to the first decoder that binds the backend, so registration
// itself never fails.
func RegisterNativeHWAccels(reg *HWAccelRegistry, codecName string) {
	reg.Register(&HWAccel{
		Name:        "stream_hwdec",
		CodecName:   codecName,
		PixelFormat: nativeHWDecFormat(),
		Init:        nativeHWDecInit,
		AllocFrame:  nativeHWDecAllocFrame,
		Uninit:      nativeHWDecUninit,
	})
}

func nativeHWDecInit(d *Decoder) error {
	if err := loadHWDec(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	cfg := d.Config()
	name := append([]byte(d.codec.Name), 0)
	session := hwdecSessionCreate(uintptr(unsafe.Pointer(&name[0])), int32(cfg.Width), int32(cfg.Height))
	runtime.KeepAlive(name)
	if session == 0 {
		return fmt.Errorf("%w: creating hwdec session: %s", ErrUnsupported, hwdecError())
	}
	d.HWPriv = &nativeHWDecState{session: session}
	return nil
}

func nativeHWDecAllocFrame(d *Decoder, f *Frame) error {
	st, ok := d.HWPriv.(*nativeHWDecState)
	if !ok {
		return fmt.Errorf("%w: hwdec session not initialized", ErrInternal)
	}

	var planes [hwdecMaxPlanes]uint64
	var strides [hwdecMaxPlanes]int32
	var size int64
	surface := hwdecSurfaceAlloc(st.session,
		uintptr(unsafe.Pointer(&planes[0])),
		uintptr(unsafe.Pointer(&strides[0])),
		uintptr(unsafe.Pointer(&size)))
	if surface == 0 {
		return fmt.Errorf("%w: allocating hwdec surface: %s", ErrAllocation, hwdecError())
	}

	session := st.session
	n := 0
	for n < hwdecMaxPlanes && planes[n] != 0 {
		n++
	}
	f.Data = make([][]byte, n)
	f.Linesize = make([]int, n)
	f.Buf = make([]*BufferRef, n)
	for i := 0; i < n; i++ {
		data := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(planes[i]))), size)
		b := NewBufferRefFromData(data)
		if i == 0 {
			// The surface is released when its first plane buffer dies;
			// the other planes alias the same native allocation.
			b.free = func() { hwdecSurfaceFree(session, surface) }
		}
		f.Buf[i] = b
		f.Data[i] = data
		f.Linesize[i] = int(strides[i])
	}
	f.PixelFormat = nativeHWDecFormat()
	return nil
}

func nativeHWDecUninit(d *Decoder) {
	if st, ok := d.HWPriv.(*nativeHWDecState); ok && st.session != 0 {
		hwdecSessionDestroy(st.session)
	}
	d.HWPriv = nil
}
