// Package objmodel provides a reference-counted, capability-queried object
// model and a scoped allocator registry for sharing objects and buffers
// between independently built modules.
//
// Objects expose capabilities discoverable by identity, are destroyed
// exactly once when their last owner releases them, and every dynamic
// allocation that crosses a module boundary goes through the same
// allocator implementation, selected per execution scope.
//
// # Architecture Overview
//
//	objmodel/        Root package with the Unknown, Allocator and Memory capabilities
//	├── iid/         Capability identities and the type -> identity table
//	├── object/      Reference-count base, typed queries, identity comparison
//	├── ref/         Owning references (Attach/Detach/CopyTo/Release)
//	├── heap/        Exclusive heap buffer owner
//	├── malloc/      Default, mmap and scoped-registry allocators
//	├── engine/      Allocators living in WebAssembly guest memory (wazero)
//	├── metrics/     Prometheus-instrumented allocator decorator
//	├── blob/        Multi-capability buffer object
//	├── config/      Viper configuration for the CLI
//	└── errors/      Structured errors with integer result codes
//
// # Quick Start
//
//	if err := malloc.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer malloc.Teardown()
//
//	ctx := malloc.Bind(context.Background())
//	if err := malloc.SetCurrentOrDefault(ctx, nil); err != nil {
//	    log.Fatal(err)
//	}
//	defer malloc.ClearCurrent(ctx)
//
//	b, err := blob.New(ctx, []byte("hello"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r := ref.New[blob.Blob](b)
//	defer r.Release()
//
// # Ownership Rules
//
// A factory returns an object with a count of zero; the first owner takes
// its stake with ref.New or AddRef. QueryInterface and CopyTo return new
// stakes. Detach hands a stake to the caller and Attach takes one over,
// neither touching the count.
//
// # Thread Safety
//
// Reference counts are atomic, so objects may be shared across goroutines.
// No other object state is safe for concurrent mutation unless a type says
// so. A context returned by malloc.Bind carries one allocator slot and must
// be used by a single goroutine at a time.
package objmodel
