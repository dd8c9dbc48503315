// Package abi manages the C memory behind string handles passed across the
// shared-library boundary.
//
// Every handle produced by NewString is recorded until Release frees it. The
// record makes Release idempotent and lets the library report how many handles
// the host still holds.
package abi

/*
#cgo CFLAGS: -I${SRCDIR}/../../include
#include <stdlib.h>
#include "vss_interop.h"
*/
import "C"

import (
	"strings"
	"sync"
	"unsafe"
)

// handleTracker records live handles by address. C memory never moves, so the
// address is a stable key.
var handleTracker = struct {
	sync.Mutex
	live       map[uintptr]int // handle address -> payload size
	totalBytes int
}{
	live: make(map[uintptr]int),
}

// CopyView copies size bytes starting at data into a Go-owned string.
// The view's memory belongs to the caller and is not referenced after return.
// A nil data pointer or zero size yields the empty string.
func CopyView(data unsafe.Pointer, size int) string {
	if data == nil || size <= 0 {
		return ""
	}
	//nolint:gosec // G103: the caller guarantees size readable bytes at data
	return strings.Clone(unsafe.String((*byte)(data), size))
}

// NewString allocates a vss_string_handle holding a copy of s and returns it
// as an opaque pointer. Ownership moves to whoever receives the pointer; it must
// be given back to Release exactly once.
func NewString(s string) unsafe.Pointer {
	h := (*C.vss_string_handle)(C.malloc(C.sizeof_vss_string_handle))
	buf := C.malloc(C.size_t(len(s) + 1))

	dest := unsafe.Slice((*byte)(buf), len(s)+1)
	copy(dest, s)
	dest[len(s)] = 0

	h.data = (*C.char)(buf)
	h.size = C.size_t(len(s))

	handleTracker.Lock()
	handleTracker.live[uintptr(unsafe.Pointer(h))] = len(s)
	handleTracker.totalBytes += len(s)
	handleTracker.Unlock()

	return unsafe.Pointer(h)
}

// Read returns a Go copy of the handle's payload. A nil handle reads as "".
func Read(handle unsafe.Pointer) string {
	if handle == nil {
		return ""
	}
	h := (*C.vss_string_handle)(handle)
	return CopyView(unsafe.Pointer(h.data), int(h.size))
}

// Data returns the handle's payload pointer, or nil for a nil handle.
func Data(handle unsafe.Pointer) unsafe.Pointer {
	if handle == nil {
		return nil
	}
	return unsafe.Pointer((*C.vss_string_handle)(handle).data)
}

// Size returns the handle's payload length in bytes, excluding the terminator.
func Size(handle unsafe.Pointer) int {
	if handle == nil {
		return 0
	}
	return int((*C.vss_string_handle)(handle).size)
}

// IsLive reports whether handle was produced by NewString and not yet released.
func IsLive(handle unsafe.Pointer) bool {
	handleTracker.Lock()
	defer handleTracker.Unlock()
	_, ok := handleTracker.live[uintptr(handle)]
	return ok
}

// Release frees a handle produced by NewString. Nil, unknown and already
// released pointers are ignored. It reports whether memory was freed.
func Release(handle unsafe.Pointer) bool {
	if handle == nil {
		return false
	}

	handleTracker.Lock()
	size, ok := handleTracker.live[uintptr(handle)]
	if ok {
		delete(handleTracker.live, uintptr(handle))
		handleTracker.totalBytes -= size
	}
	handleTracker.Unlock()

	if !ok {
		return false
	}

	h := (*C.vss_string_handle)(handle)
	C.free(unsafe.Pointer(h.data))
	C.free(handle)
	return true
}

// Stats returns the number of live handles and the sum of their payload sizes.
func Stats() (count int, totalBytes int) {
	handleTracker.Lock()
	defer handleTracker.Unlock()
	return len(handleTracker.live), handleTracker.totalBytes
}

// ReleaseAll frees every live handle. Any pointer still held elsewhere becomes
// dangling, so this is only for tests and process teardown.
func ReleaseAll() {
	handleTracker.Lock()
	live := handleTracker.live
	handleTracker.live = make(map[uintptr]int)
	handleTracker.totalBytes = 0
	handleTracker.Unlock()

	for addr := range live {
		//nolint:gosec // G103: addresses were produced by C.malloc in NewString
		h := (*C.vss_string_handle)(unsafe.Pointer(addr))
		C.free(unsafe.Pointer(h.data))
		C.free(unsafe.Pointer(h))
	}
}
