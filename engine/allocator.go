package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/internal/debug"
	"github.com/wippyai/objmodel/malloc"
	"github.com/wippyai/objmodel/object"
)

// reallocAlign is the alignment passed to cabi_realloc for every block.
const reallocAlign = 8

// LinearAllocator allocates inside a guest's linear memory by calling its
// exported cabi_realloc. Addresses are guest offsets, so the host and the
// guest see the same bytes at the same Ptr.
//
// Calls into the guest are serialised; a guest instance is single-threaded.
type LinearAllocator struct {
	object.Base
	ctx      context.Context
	name     string
	mod      api.Module
	compiled wazero.CompiledModule
	mem      api.Memory
	fn       api.Function
	stack    [4]uint64

	mu    sync.Mutex
	sizes map[objmodel.Ptr]uint32
	stats malloc.Stats
}

func newLinearAllocator(ctx context.Context, name string, mod api.Module, compiled wazero.CompiledModule, mem api.Memory, fn api.Function) *LinearAllocator {
	a := &LinearAllocator{
		ctx:      context.WithoutCancel(ctx),
		name:     name,
		mod:      mod,
		compiled: compiled,
		mem:      mem,
		fn:       fn,
		sizes:    make(map[objmodel.Ptr]uint32),
	}
	a.Init(a, a.destroy, objmodel.IIDAllocator, objmodel.IIDMemory, malloc.IIDReporter)
	a.SetLabel("engine.LinearAllocator/" + name)
	return a
}

// Name returns the guest module's instance name.
func (a *LinearAllocator) Name() string {
	return a.name
}

func (a *LinearAllocator) call(old objmodel.Ptr, oldSize, size uint32) (objmodel.Ptr, error) {
	a.stack[0] = uint64(old)
	a.stack[1] = uint64(oldSize)
	a.stack[2] = reallocAlign
	a.stack[3] = uint64(size)
	if err := a.fn.CallWithStack(a.ctx, a.stack[:]); err != nil {
		return objmodel.Null, errors.Wrap(errors.PhaseEngine, errors.KindInstantiation, err, "call "+CabiRealloc)
	}
	return objmodel.Ptr(uint32(a.stack[0])), nil
}

// Alloc asks the guest for size bytes. A null answer is out of memory.
func (a *LinearAllocator) Alloc(size uint32) (objmodel.Ptr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alloc(size)
}

func (a *LinearAllocator) alloc(size uint32) (objmodel.Ptr, error) {
	p, err := a.call(objmodel.Null, 0, max(size, 1))
	if err != nil {
		a.stats.Failures++
		return objmodel.Null, err
	}
	if p == objmodel.Null {
		a.stats.Failures++
		return objmodel.Null, errors.OutOfMemory(errors.PhaseEngine, size)
	}
	a.sizes[p] = size
	a.stats.RecordAlloc(size)
	return p, nil
}

// Realloc resizes ptr. Shrinking keeps the address; growing allocates a new
// block in the guest, copies the contents, and frees the old block.
func (a *LinearAllocator) Realloc(ptr objmodel.Ptr, size uint32) (objmodel.Ptr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ptr == objmodel.Null {
		return a.alloc(size)
	}
	old, ok := a.sizes[ptr]
	if !ok {
		return objmodel.Null, errors.InvalidArgument(errors.PhaseEngine, "realloc of unknown block")
	}
	if size == 0 {
		a.free(ptr, old)
		return objmodel.Null, nil
	}
	if size <= old {
		a.sizes[ptr] = size
		a.stats.RecordRealloc(old, size)
		return ptr, nil
	}

	p, err := a.call(objmodel.Null, 0, size)
	if err != nil {
		a.stats.Failures++
		return objmodel.Null, err
	}
	if p == objmodel.Null {
		a.stats.Failures++
		return objmodel.Null, errors.OutOfMemory(errors.PhaseEngine, size)
	}
	// Fetch the source after the call: the guest may have grown its memory.
	src, ok := a.mem.Read(uint32(ptr), old)
	if !ok || !a.mem.Write(uint32(p), src) {
		a.release(p, size)
		a.stats.Failures++
		return objmodel.Null, errors.InvalidData(errors.PhaseEngine,
			fmt.Sprintf("guest returned block %#x outside its memory", uint32(p)))
	}
	a.release(ptr, old)
	delete(a.sizes, ptr)
	a.sizes[p] = size
	a.stats.RecordRealloc(old, size)
	return p, nil
}

// Free returns ptr to the guest. Freeing an address this allocator did not
// hand out is a contract violation.
func (a *LinearAllocator) Free(ptr objmodel.Ptr) {
	if ptr == objmodel.Null {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	size, ok := a.sizes[ptr]
	if !ok {
		debug.Assert(false, "free of unknown block")
		Logger().Warn("free of unknown block",
			zap.String("module", a.name),
			zap.Uint32("ptr", uint32(ptr)))
		return
	}
	a.free(ptr, size)
}

func (a *LinearAllocator) free(ptr objmodel.Ptr, size uint32) {
	a.release(ptr, size)
	delete(a.sizes, ptr)
	a.stats.RecordFree(size)
}

// release hands ptr back through cabi_realloc with a new size of 0.
func (a *LinearAllocator) release(ptr objmodel.Ptr, size uint32) {
	if _, err := a.call(ptr, max(size, 1), 0); err != nil {
		Logger().Warn("guest free failed",
			zap.String("module", a.name),
			zap.Uint32("ptr", uint32(ptr)),
			zap.Error(err))
	}
}

// Stats returns a snapshot of the allocator's counters.
func (a *LinearAllocator) Stats() malloc.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Read returns a view of guest memory. The view is invalidated when the
// guest grows its memory.
func (a *LinearAllocator) Read(ptr objmodel.Ptr, length uint32) ([]byte, error) {
	data, ok := a.mem.Read(uint32(ptr), length)
	if !ok {
		return nil, outOfBounds(ptr, length, a.mem.Size())
	}
	return data, nil
}

func (a *LinearAllocator) Write(ptr objmodel.Ptr, data []byte) error {
	if !a.mem.Write(uint32(ptr), data) {
		return outOfBounds(ptr, uint32(len(data)), a.mem.Size())
	}
	return nil
}

func (a *LinearAllocator) ReadU32(ptr objmodel.Ptr) (uint32, error) {
	v, ok := a.mem.ReadUint32Le(uint32(ptr))
	if !ok {
		return 0, outOfBounds(ptr, 4, a.mem.Size())
	}
	return v, nil
}

func (a *LinearAllocator) WriteU32(ptr objmodel.Ptr, value uint32) error {
	if !a.mem.WriteUint32Le(uint32(ptr), value) {
		return outOfBounds(ptr, 4, a.mem.Size())
	}
	return nil
}

func outOfBounds(ptr objmodel.Ptr, length, size uint32) error {
	return errors.New(errors.PhaseEngine, errors.KindInvalidArgument).
		Detail("range [%#x, +%d) is outside guest memory of %d bytes", uint32(ptr), length, size).
		Build()
}

func (a *LinearAllocator) destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.sizes); n > 0 {
		Logger().Warn("guest allocator destroyed with live blocks",
			zap.String("module", a.name),
			zap.Int("blocks", n),
			zap.Uint64("bytes", a.stats.LiveBytes))
	}
	if err := a.mod.Close(a.ctx); err != nil {
		Logger().Warn("close guest module", zap.String("module", a.name), zap.Error(err))
	}
	_ = a.compiled.Close(a.ctx)
	a.sizes = nil
}
