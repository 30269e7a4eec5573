package malloc

import (
	"context"

	"github.com/wippyai/objmodel"
)

var process = NewRegistry(nil)

// Process returns the process registry used by the package-level functions.
func Process() *Registry {
	return process
}

// Init initialises the process registry.
func Init() error { return process.Init() }

// Teardown tears down the process registry.
func Teardown() { process.Teardown() }

// Bind returns a context carrying a fresh scope of the process registry.
func Bind(ctx context.Context) context.Context { return process.Bind(ctx) }

// SetCurrent installs a in the process scope of ctx.
func SetCurrent(ctx context.Context, a objmodel.Allocator) error {
	return process.SetCurrent(ctx, a)
}

// SetCurrentOrDefault installs a, or the default for nil.
func SetCurrentOrDefault(ctx context.Context, a objmodel.Allocator) error {
	return process.SetCurrentOrDefault(ctx, a)
}

// CurrentNoRef returns the current allocator of ctx without a stake.
func CurrentNoRef(ctx context.Context) objmodel.Allocator {
	return process.CurrentNoRef(ctx)
}

// Current returns the current allocator of ctx without a stake, or an error.
func Current(ctx context.Context) (objmodel.Allocator, error) {
	return process.Current(ctx)
}

// ClearCurrent empties the process scope of ctx.
func ClearCurrent(ctx context.Context) { process.ClearCurrent(ctx) }

// SwapCurrent exchanges the current allocator of ctx without count changes.
func SwapCurrent(ctx context.Context, a objmodel.Allocator) objmodel.Allocator {
	return process.SwapCurrent(ctx, a)
}

// SwapCurrentOrDefault is SwapCurrent with nil meaning the default.
func SwapCurrentOrDefault(ctx context.Context, a objmodel.Allocator) objmodel.Allocator {
	return process.SwapCurrentOrDefault(ctx, a)
}

// Use installs a for a nested region and returns the restore function.
func Use(ctx context.Context, a objmodel.Allocator) func() {
	return process.Use(ctx, a)
}

// Alloc allocates from the current allocator of ctx.
func Alloc(ctx context.Context, size uint32) (objmodel.Ptr, error) {
	return process.Alloc(ctx, size)
}

// Realloc resizes through the current allocator of ctx.
func Realloc(ctx context.Context, ptr objmodel.Ptr, size uint32) (objmodel.Ptr, error) {
	return process.Realloc(ctx, ptr, size)
}

// Free releases through the current allocator of ctx.
func Free(ctx context.Context, ptr objmodel.Ptr) error {
	return process.Free(ctx, ptr)
}

// Default returns the process default allocator without a stake.
func Default() objmodel.Allocator { return process.Default() }
