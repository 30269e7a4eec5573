// Package malloc provides the allocators and the scoped allocator registry.
//
// # Allocators
//
// Heap is the process default: Go-heap blocks behind a 32-bit address
// space, safe for concurrent use, with an optional byte limit. Mmap is a
// slab allocator over anonymous mappings for unix platforms. Both answer
// the Allocator, Memory and Reporter capabilities.
//
// # Registry
//
// A Registry owns one default allocator and any number of scopes. A scope
// is created by Bind and travels in a context.Context; it holds the
// allocator that allocation sites reached through that context must use.
//
//	Uninitialized --Init--> Initialized --Teardown--> TornDown
//	                             |
//	               scope: empty <-> installed
//	                  SetCurrent / ClearCurrent / SwapCurrent
//
// SetCurrent takes a stake and requires an empty scope; ClearCurrent
// releases it. SwapCurrent exchanges the scope's value with the caller's
// without touching any count, which is how nested regions install a
// different allocator and put the previous one back:
//
//	prior := reg.SwapCurrent(ctx, arena)
//	defer reg.SwapCurrent(ctx, prior)
//
// Using a scope before Init, after Teardown, or without Bind is a contract
// violation. Builds with the debug tag panic; other builds log a warning
// and return nil or an error matching errors.ErrNotInitialized.
//
// The package-level functions operate on the process registry returned by
// Process.
package malloc
