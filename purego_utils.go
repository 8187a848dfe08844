//go:build darwin || linux

// Helpers shared by the purego-loaded native backends.

package codec

import (
	"os"
	"path/filepath"
	"unsafe"
)

// cStringCap bounds error-string scans so a missing terminator cannot run away.
const cStringCap = 1024

// goStringFromPtr copies a NUL-terminated C string into a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	n := 0
	for n < cStringCap && *(*byte)(unsafe.Pointer(uintptr(p)+uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// findModuleRoot walks up from the working directory to the nearest go.mod,
// so development builds can pick up freshly built native libraries.
func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
