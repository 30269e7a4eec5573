// Package engine backs allocators with WebAssembly guest memory.
//
// An Engine wraps a wazero runtime. LoadAllocator instantiates a guest that
// exports its linear memory as "memory" and an allocator as
//
//	cabi_realloc(old_ptr, old_size, align, new_size i32) -> i32
//
// and returns a LinearAllocator over it:
//
//	eng, err := engine.NewEngine(ctx)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	a, err := eng.LoadAllocator(ctx, wasm)
//	if err != nil {
//	    return err
//	}
//	r := ref.New[objmodel.Allocator](a)
//	defer r.Release()
//
// # Allocation Protocol
//
//	Operation       cabi_realloc call
//	─────────────────────────────────────────
//	Alloc(n)        (0, 0, 8, n)
//	Free(p)         (p, size, 8, 0)
//	Realloc grow    Alloc, copy, Free
//	Realloc shrink  none; the block keeps its address
//
// A null result from an allocating call is reported as out of memory. The
// allocator tracks every block it hands out, so block sizes never have to
// be stored in guest memory.
//
// # Memory Views
//
// Read returns a slice aliasing guest memory. A later allocation may grow
// the memory and invalidate earlier views; copy what must outlive it.
//
// # Thread Safety
//
// Engine is safe for concurrent use. LinearAllocator serialises its calls
// into the guest and may be shared between scopes like any allocator.
//
// Destroying the LinearAllocator closes its guest instance.
package engine
