package main

/*
#cgo CFLAGS: -I${SRCDIR}/../../include
#define VSS_INTEROP_NO_PROTOTYPES
#include "vss_interop.h"

// Go cannot call a C function pointer directly. These gateways live apart
// from exports.go because a file with //export may only declare C functions.
static void vss_call_string_callback(vss_string_callback cb, vss_string_handle *handle) {
	cb(handle);
}

static void vss_call_log_callback(vss_log_callback cb, int level, const char *data, size_t size) {
	cb(level, data, size);
}
*/
import "C"

import (
	"log/slog"
	"unsafe"
)

func callStringCallback(cb C.vss_string_callback, handle unsafe.Pointer) {
	C.vss_call_string_callback(cb, (*C.vss_string_handle)(handle))
}

func callLogCallback(cb C.vss_log_callback, level slog.Level, payload []byte) {
	C.vss_call_log_callback(cb, C.int(level), (*C.char)(unsafe.Pointer(unsafe.SliceData(payload))), C.size_t(len(payload)))
}
