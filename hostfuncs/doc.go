// Package hostfuncs implements the operations the library exposes: HTTP
// fetching, IP classification, SSRF address validation and GeoIP country
// lookup. It also provides the named handler registry used to dispatch them
// from C callers and WebAssembly guests alike.
//
// Nothing here depends on cgo or a WebAssembly runtime.
package hostfuncs
