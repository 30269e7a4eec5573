package heap

import (
	"context"
	"math/bits"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/internal/debug"
	"github.com/wippyai/objmodel/malloc"
	"github.com/wippyai/objmodel/object"
	"github.com/wippyai/objmodel/ref"
)

// Buffer exclusively owns at most one allocation and the allocator it came
// from. It is not reference counted and must not be shared; TakeFrom and
// Transfer move the allocation without copying bytes.
type Buffer struct {
	alloc ref.Ref[objmodel.Allocator]
	ptr   objmodel.Ptr
	size  uint32
}

// NewBuffer returns an empty buffer that allocates from a. The buffer
// holds a stake in a until Close.
func NewBuffer(a objmodel.Allocator) *Buffer {
	return &Buffer{alloc: ref.New(a)}
}

// CurrentBuffer returns an empty buffer bound to the allocator current in
// the process registry scope of ctx.
func CurrentBuffer(ctx context.Context) (*Buffer, error) {
	a, err := malloc.Current(ctx)
	if err != nil {
		return nil, err
	}
	return NewBuffer(a), nil
}

// Ptr returns the owned address, or Null.
func (b *Buffer) Ptr() objmodel.Ptr { return b.ptr }

// Len returns the size requested by the last allocate or reallocate.
func (b *Buffer) Len() uint32 { return b.size }

// IsNil reports whether the buffer owns nothing.
func (b *Buffer) IsNil() bool { return b.ptr == objmodel.Null }

// Allocator returns the buffer's allocator without a stake.
func (b *Buffer) Allocator() objmodel.Allocator { return b.alloc.Get() }

func (b *Buffer) allocator() (objmodel.Allocator, error) {
	if b.alloc.IsNil() {
		return nil, errors.NilPointer(errors.PhaseAlloc, "allocator")
	}
	return b.alloc.Get(), nil
}

// AllocateBytes allocates exactly n bytes. The buffer must be empty.
func (b *Buffer) AllocateBytes(n uint32) error {
	if b.ptr != objmodel.Null {
		debug.Assert(false, "AllocateBytes on a buffer that already owns memory")
		return errors.ContractViolation(errors.PhaseAlloc, "buffer already owns memory")
	}
	a, err := b.allocator()
	if err != nil {
		return err
	}
	p, err := a.Alloc(n)
	if err != nil {
		return err
	}
	b.ptr, b.size = p, n
	return nil
}

// Allocate allocates count elements of elemSize bytes each.
func (b *Buffer) Allocate(count, elemSize uint32) error {
	n, err := mul(count, elemSize)
	if err != nil {
		return err
	}
	return b.AllocateBytes(n)
}

// ReallocateBytes resizes the allocation to n bytes; an empty buffer
// allocates. On failure the original allocation stays owned and unchanged.
func (b *Buffer) ReallocateBytes(n uint32) error {
	a, err := b.allocator()
	if err != nil {
		return err
	}
	p, err := a.Realloc(b.ptr, n)
	if err != nil {
		return err
	}
	b.ptr = p
	if p == objmodel.Null {
		n = 0
	}
	b.size = n
	return nil
}

// Reallocate resizes the allocation to count elements of elemSize bytes.
func (b *Buffer) Reallocate(count, elemSize uint32) error {
	n, err := mul(count, elemSize)
	if err != nil {
		return err
	}
	return b.ReallocateBytes(n)
}

func mul(a, b uint32) (uint32, error) {
	hi, lo := bits.Mul32(a, b)
	if hi != 0 {
		return 0, errors.Overflow(errors.PhaseAlloc, a, b)
	}
	return lo, nil
}

// Attach frees the current allocation and takes ownership of ptr, which
// must come from the buffer's allocator.
func (b *Buffer) Attach(ptr objmodel.Ptr, size uint32) {
	b.Free()
	b.ptr, b.size = ptr, size
}

// Detach returns the allocation and empties the buffer without freeing.
func (b *Buffer) Detach() (objmodel.Ptr, uint32) {
	p, n := b.ptr, b.size
	b.ptr, b.size = objmodel.Null, 0
	return p, n
}

// Free releases the allocation. Freeing an empty buffer does nothing.
func (b *Buffer) Free() {
	if b.ptr == objmodel.Null {
		return
	}
	p := b.ptr
	b.ptr, b.size = objmodel.Null, 0
	if a := b.alloc.Get(); a != nil {
		a.Free(p)
	}
}

// TakeFrom frees b's allocation and moves src's allocation into b, together
// with a stake in src's allocator. src is left empty.
func (b *Buffer) TakeFrom(src *Buffer) {
	if src == b {
		return
	}
	b.Free()
	b.alloc.Set(&src.alloc)
	b.ptr, b.size = src.Detach()
}

// Transfer moves the allocation into a new buffer and leaves b empty.
func (b *Buffer) Transfer() *Buffer {
	out := &Buffer{alloc: b.alloc.Clone()}
	out.ptr, out.size = b.Detach()
	return out
}

// Bytes returns a view of the allocation through the allocator's Memory
// capability. The view is invalidated by any reallocation or free.
func (b *Buffer) Bytes() ([]byte, error) {
	if b.ptr == objmodel.Null {
		return nil, nil
	}
	mem, err := b.memory()
	if err != nil {
		return nil, err
	}
	defer mem.Release()
	return mem.Read(b.ptr, b.size)
}

// Write copies data into the allocation at offset off.
func (b *Buffer) Write(off uint32, data []byte) error {
	if uint64(off)+uint64(len(data)) > uint64(b.size) {
		return errors.New(errors.PhaseAlloc, errors.KindInvalidArgument).
			Detail("write of %d bytes at %d overruns %d-byte buffer", len(data), off, b.size).
			Build()
	}
	if len(data) == 0 {
		return nil
	}
	mem, err := b.memory()
	if err != nil {
		return err
	}
	defer mem.Release()
	return mem.Write(b.ptr+objmodel.Ptr(off), data)
}

func (b *Buffer) memory() (objmodel.Memory, error) {
	a, err := b.allocator()
	if err != nil {
		return nil, err
	}
	return object.Query[objmodel.Memory](a)
}

// Close frees the allocation and releases the allocator stake.
func (b *Buffer) Close() error {
	b.Free()
	b.alloc.Release()
	return nil
}
