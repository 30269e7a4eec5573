package blob

import (
	"context"
	"io"
	"math"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/heap"
	"github.com/wippyai/objmodel/iid"
	"github.com/wippyai/objmodel/object"
)

// Blob is read access to a contiguous buffer.
type Blob interface {
	objmodel.Unknown
	BufferPointer() objmodel.Ptr
	BufferSize() uint32
	Bytes() ([]byte, error)
}

// SequentialStream reads from a cursor and appends on write.
type SequentialStream interface {
	objmodel.Unknown
	io.Reader
	io.Writer
}

var (
	IIDBlob             = iid.Register[Blob]("IDxcBlob", iid.MustParse("8BA5FB08-5195-40E2-AC58-0D989C3A0102"))
	IIDSequentialStream = iid.Register[SequentialStream]("ISequentialStream", iid.MustParse("0C733A30-2A1C-11CE-ADE5-00AA0044077D"))
)

// Object is a reference-counted byte buffer answering Blob and
// SequentialStream. Its memory comes from one allocator and goes back to
// that allocator when the last stake is released.
type Object struct {
	object.Base
	buf *heap.Buffer
	pos uint32
}

// New copies data into a blob allocated from the current allocator of the
// process registry scope in ctx. The blob starts with no stakes.
func New(ctx context.Context, data []byte) (*Object, error) {
	buf, err := heap.CurrentBuffer(ctx)
	if err != nil {
		return nil, err
	}
	return fromBuffer(buf, data)
}

// NewWith copies data into a blob allocated from a.
func NewWith(a objmodel.Allocator, data []byte) (*Object, error) {
	if a == nil {
		return nil, errors.NilPointer(errors.PhaseAlloc, "allocator")
	}
	return fromBuffer(heap.NewBuffer(a), data)
}

func fromBuffer(buf *heap.Buffer, data []byte) (*Object, error) {
	if uint64(len(data)) > math.MaxUint32 {
		buf.Close()
		return nil, errors.InvalidArgument(errors.PhaseAlloc, "blob larger than 4GB")
	}
	if len(data) > 0 {
		if err := buf.AllocateBytes(uint32(len(data))); err != nil {
			buf.Close()
			return nil, err
		}
		if err := buf.Write(0, data); err != nil {
			buf.Close()
			return nil, err
		}
	}

	b := &Object{buf: buf}
	b.Init(b, b.destroy, IIDBlob, IIDSequentialStream)
	return b, nil
}

// BufferPointer returns the blob's address in its allocator, or Null when
// empty.
func (b *Object) BufferPointer() objmodel.Ptr {
	return b.buf.Ptr()
}

// BufferSize returns the blob's length.
func (b *Object) BufferSize() uint32 {
	return b.buf.Len()
}

// Bytes returns a view of the blob's contents. Writes invalidate it.
func (b *Object) Bytes() ([]byte, error) {
	return b.buf.Bytes()
}

// Allocator returns the blob's allocator without a stake.
func (b *Object) Allocator() objmodel.Allocator {
	return b.buf.Allocator()
}

// Read copies bytes from the read cursor.
func (b *Object) Read(p []byte) (int, error) {
	if b.pos >= b.buf.Len() {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	data, err := b.buf.Bytes()
	if err != nil {
		return 0, err
	}
	n := copy(p, data[b.pos:])
	b.pos += uint32(n)
	return n, nil
}

// Write appends p, growing the buffer through its allocator. When the
// allocator refuses, the contents are unchanged.
func (b *Object) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	old := b.buf.Len()
	if uint64(old)+uint64(len(p)) > math.MaxUint32 {
		return 0, errors.InvalidArgument(errors.PhaseAlloc, "blob larger than 4GB")
	}
	if err := b.buf.ReallocateBytes(old + uint32(len(p))); err != nil {
		return 0, err
	}
	if err := b.buf.Write(old, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Rewind moves the read cursor back to the start.
func (b *Object) Rewind() {
	b.pos = 0
}

func (b *Object) destroy() {
	b.buf.Close()
}
