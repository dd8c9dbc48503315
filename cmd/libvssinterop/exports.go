// Command libvssinterop is built with -buildmode=c-shared and exports the
// vss_go_* entry points declared in include/vss_interop.h.
package main

/*
#cgo CFLAGS: -I${SRCDIR}/../../include
#define VSS_INTEROP_NO_PROTOTYPES
#include "vss_interop.h"
*/
import "C"

import (
	"log/slog"
	"unsafe"

	"github.com/vss-interop/vss-go-interop/bridge"
	"github.com/vss-interop/vss-go-interop/internal/abi"
	"github.com/vss-interop/vss-go-interop/log"
)

func viewOf(s C.vss_slice_str) (unsafe.Pointer, int) {
	return unsafe.Pointer(s.data), int(s.size)
}

func handle(p unsafe.Pointer) *C.vss_string_handle {
	return (*C.vss_string_handle)(p)
}

//export vss_go_http_get_body
func vss_go_http_get_body(url C.vss_slice_str) *C.vss_string_handle {
	return handle(bridge.Default().GetBodyView(viewOf(url)))
}

//export vss_go_http_fetch_async
func vss_go_http_fetch_async(url C.vss_slice_str, cb C.vss_string_callback) {
	if cb == nil {
		slog.Error("vss_go_http_fetch_async called without a callback; request dropped")
		return
	}
	data, size := viewOf(url)
	bridge.Default().FetchAsyncView(data, size, func(h unsafe.Pointer) {
		callStringCallback(cb, h)
	})
}

//export vss_go_inspect_ip
func vss_go_inspect_ip(input C.vss_slice_str) *C.vss_string_handle {
	return handle(bridge.Default().InspectIPView(viewOf(input)))
}

//export vss_go_geoip_country
func vss_go_geoip_country(input C.vss_slice_str) *C.vss_string_handle {
	return handle(bridge.Default().GeoIPCountryView(viewOf(input)))
}

//export vss_go_configure
func vss_go_configure(json C.vss_slice_str) *C.vss_string_handle {
	return handle(bridge.Default().ConfigureView(viewOf(json)))
}

//export vss_go_config_schema
func vss_go_config_schema() *C.vss_string_handle {
	return handle(bridge.Default().ConfigSchemaHandle())
}

//export vss_go_http_request_json
func vss_go_http_request_json(json C.vss_slice_str) *C.vss_string_handle {
	return handle(bridge.Default().HTTPRequestJSONView(viewOf(json)))
}

//export vss_go_invoke
func vss_go_invoke(name, payload C.vss_slice_str) *C.vss_string_handle {
	n, nSize := viewOf(name)
	p, pSize := viewOf(payload)
	return handle(bridge.Default().InvokeView(n, nSize, p, pSize))
}

//export vss_go_string_handle_free
func vss_go_string_handle_free(h *C.vss_string_handle) {
	bridge.Release(unsafe.Pointer(h))
}

//export vss_go_string_handle_data
func vss_go_string_handle_data(h *C.vss_string_handle) *C.char {
	return (*C.char)(abi.Data(unsafe.Pointer(h)))
}

//export vss_go_string_handle_size
func vss_go_string_handle_size(h *C.vss_string_handle) C.size_t {
	return C.size_t(abi.Size(unsafe.Pointer(h)))
}

//export vss_go_set_log_callback
func vss_go_set_log_callback(cb C.vss_log_callback) {
	if cb == nil {
		log.SetSink(nil)
		return
	}
	log.SetSink(func(level slog.Level, payload []byte) {
		callLogCallback(cb, level, payload)
	})
}

//export vss_go_live_handles
func vss_go_live_handles() C.size_t {
	return C.size_t(bridge.LiveHandles())
}

func main() {}
