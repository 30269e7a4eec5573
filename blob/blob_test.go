package blob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/malloc"
	"github.com/wippyai/objmodel/object"
	"github.com/wippyai/objmodel/ref"
)

func newHeap(t *testing.T, cfg *malloc.HeapConfig) *malloc.Heap {
	t.Helper()
	h := malloc.NewHeapWithConfig(cfg)
	h.AddRef()
	t.Cleanup(func() { h.Release() })
	return h
}

func TestNewWith(t *testing.T) {
	h := newHeap(t, nil)

	b, err := NewWith(h, []byte("hello blob"))
	require.NoError(t, err)
	r := ref.New[Blob](b)

	assert.Equal(t, uint32(10), r.Get().BufferSize())
	assert.NotEqual(t, objmodel.Null, r.Get().BufferPointer())
	data, err := r.Get().Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello blob"), data)
	assert.Equal(t, uint64(1), h.Stats().LiveBlocks)

	r.Release()
	assert.True(t, b.Destroyed())
	assert.Equal(t, uint64(0), h.Stats().LiveBlocks, "destroy frees through the allocator")
	assert.Equal(t, uint32(1), h.Count(), "destroy releases the allocator stake")
}

func TestNewWith_Errors(t *testing.T) {
	_, err := NewWith(nil, []byte("x"))
	assert.ErrorIs(t, err, errors.ErrPointer)

	h := newHeap(t, &malloc.HeapConfig{MaxBytes: 4})
	_, err = NewWith(h, []byte("too large"))
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)
	assert.Equal(t, uint32(1), h.Count(), "failed construction keeps no stake")
}

func TestNew_UsesCurrentAllocator(t *testing.T) {
	require.NoError(t, malloc.Init())
	defer malloc.Teardown()

	a := newHeap(t, nil)
	ctx := malloc.Bind(context.Background())
	require.NoError(t, malloc.SetCurrent(ctx, a))
	defer malloc.ClearCurrent(ctx)

	b, err := New(ctx, []byte("scoped"))
	require.NoError(t, err)
	r := ref.New[Blob](b)
	defer r.Release()

	assert.Same(t, a, b.Allocator())
	assert.Equal(t, uint64(1), a.Stats().Allocs)

	_, err = New(malloc.Bind(context.Background()), nil)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
}

func TestEmptyBlob(t *testing.T) {
	h := newHeap(t, nil)
	b, err := NewWith(h, nil)
	require.NoError(t, err)
	r := ref.New[Blob](b)
	defer r.Release()

	assert.Equal(t, objmodel.Null, b.BufferPointer())
	assert.Equal(t, uint32(0), b.BufferSize())
	n, err := b.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTwoCapabilitiesShareOneCount(t *testing.T) {
	h := newHeap(t, nil)
	b, err := NewWith(h, []byte("shared"))
	require.NoError(t, err)

	br := ref.New[Blob](b)
	sr, err := ref.Query[SequentialStream](&br)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), b.Count())
	assert.True(t, br.IsEqualObject(sr.Get()))

	br.Release()
	assert.Equal(t, uint32(1), b.Count())
	assert.False(t, b.Destroyed())

	got, err := io.ReadAll(sr.Get())
	require.NoError(t, err)
	assert.Equal(t, []byte("shared"), got)

	sr.Release()
	assert.True(t, b.Destroyed())
}

func TestStreamReadWrite(t *testing.T) {
	h := newHeap(t, nil)
	b, err := NewWith(h, []byte("abc"))
	require.NoError(t, err)
	r := ref.New[SequentialStream](b)
	defer r.Release()
	s := r.Get()

	n, err := s.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = io.Copy(s, bytes.NewReader(bytes.Repeat([]byte("g"), 100)))
	require.NoError(t, err)
	assert.Equal(t, uint32(106), b.BufferSize())

	buf := make([]byte, 4)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))

	rest, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Len(t, rest, 102)

	b.Rewind()
	all, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(all[:6]))
	assert.Equal(t, uint64(1), h.Stats().LiveBlocks)
}

func TestStreamWriteOutOfMemory(t *testing.T) {
	h := newHeap(t, &malloc.HeapConfig{MaxBytes: 8})
	b, err := NewWith(h, []byte("1234"))
	require.NoError(t, err)
	r := ref.New[SequentialStream](b)
	defer r.Release()

	n, err := r.Get().Write([]byte("56789"))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)

	data, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("1234"), data)
}

func TestCapabilities(t *testing.T) {
	h := newHeap(t, nil)
	b, err := NewWith(h, []byte("x"))
	require.NoError(t, err)
	r := ref.New[Blob](b)
	defer r.Release()

	assert.True(t, object.Implements(b, IIDBlob))
	assert.True(t, object.Implements(b, IIDSequentialStream))
	assert.False(t, object.Implements(b, objmodel.IIDAllocator))
	assert.Equal(t, "8ba5fb08-5195-40e2-ac58-0d989c3a0102", IIDBlob.String())
}
