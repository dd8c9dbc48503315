// Package wazero exports a hostfuncs.HandlerRegistry to WebAssembly guests
// running under the wazero runtime.
//
// Requests and responses cross the guest boundary as a single i64 holding
// (ptr<<32 | len). The host reads the request out of guest memory, dispatches
// it by export name, and writes the response into a buffer obtained from the
// guest's "allocate" export. Ownership of that buffer passes to the guest.
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithBundle(hostfuncs.InspectBundle()),
//	)
//	if err != nil {
//	    return err
//	}
//
//	runtime := wazero.NewRuntime(ctx)
//	if _, err := wazeroadapter.RegisterWithRuntime(ctx, runtime, registry); err != nil {
//	    return err
//	}
package wazero
