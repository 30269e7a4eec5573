package objmodel

import (
	"github.com/wippyai/objmodel/iid"
)

// Ptr is an address in an allocator's own address space. Addresses from
// different allocators are unrelated; Null is never a valid allocation.
type Ptr uint32

// Null is the null address.
const Null Ptr = 0

// Unknown is the base capability of every shareable object.
type Unknown interface {
	// QueryInterface returns the object with one new stake if it implements
	// the capability id, or an error matching errors.ErrNoInterface.
	QueryInterface(id iid.IID) (Unknown, error)

	// AddRef takes one stake and returns the resulting count.
	AddRef() uint32

	// Release drops one stake and returns the resulting count. The object is
	// destroyed before Release returns when the count reaches zero.
	Release() uint32
}

// Allocator allocates memory in its own address space.
type Allocator interface {
	Unknown

	// Alloc returns a block of exactly size bytes.
	Alloc(size uint32) (Ptr, error)

	// Realloc resizes ptr, which may move. Realloc(Null, n) allocates and
	// Realloc(p, 0) frees p and returns Null. On failure ptr is untouched.
	Realloc(ptr Ptr, size uint32) (Ptr, error)

	// Free releases ptr. Free(Null) is a no-op.
	Free(ptr Ptr)
}

// Memory gives byte access to an allocator's address space.
type Memory interface {
	Unknown
	Read(ptr Ptr, length uint32) ([]byte, error)
	Write(ptr Ptr, data []byte) error
	ReadU32(ptr Ptr) (uint32, error)
	WriteU32(ptr Ptr, value uint32) error
}

// Capability identities of the base contracts.
var (
	IIDUnknown   = iid.Register[Unknown]("IUnknown", iid.MustParse("00000000-0000-0000-C000-000000000046"))
	IIDAllocator = iid.Register[Allocator]("IMalloc", iid.MustParse("00000002-0000-0000-C000-000000000046"))
	IIDMemory    = iid.RegisterName[Memory]("objmodel.Memory")
)
