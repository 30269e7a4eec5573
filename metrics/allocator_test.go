package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/heap"
	"github.com/wippyai/objmodel/malloc"
	"github.com/wippyai/objmodel/object"
	"github.com/wippyai/objmodel/ref"
)

func newWrapped(t *testing.T, cfg *malloc.HeapConfig) (*Allocator, *Collectors, *malloc.Heap) {
	t.Helper()
	c := NewCollectors("test")
	inner := malloc.NewHeapWithConfig(cfg)
	a := Wrap(inner, c, "heap")
	r := ref.New[objmodel.Allocator](a)
	t.Cleanup(r.Release)
	return a, c, inner
}

func TestAllocator_Counts(t *testing.T) {
	a, c, inner := newWrapped(t, nil)

	p, err := a.Alloc(100)
	require.NoError(t, err)
	q, err := a.Alloc(28)
	require.NoError(t, err)
	p, err = a.Realloc(p, 300)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ops.WithLabelValues("heap", "alloc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ops.WithLabelValues("heap", "realloc")))
	assert.Equal(t, 328.0, testutil.ToFloat64(c.liveBytes.WithLabelValues("heap")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.liveBlocks.WithLabelValues("heap")))

	a.Free(p)
	_, err = a.Realloc(q, 0)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ops.WithLabelValues("heap", "free")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.liveBytes.WithLabelValues("heap")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.liveBlocks.WithLabelValues("heap")))
	assert.Equal(t, uint64(0), inner.Stats().LiveBlocks)
}

func TestAllocator_Failures(t *testing.T) {
	a, c, _ := newWrapped(t, &malloc.HeapConfig{MaxBytes: 64})

	_, err := a.Alloc(65)
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)

	p, err := a.Realloc(objmodel.Null, 32)
	require.NoError(t, err)
	_, err = a.Realloc(p, 1024)
	assert.ErrorIs(t, err, errors.ErrOutOfMemory)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ops.WithLabelValues("heap", "failure")))
	assert.Equal(t, 32.0, testutil.ToFloat64(c.liveBytes.WithLabelValues("heap")))
	a.Free(p)
}

func TestAllocator_AnswersMemory(t *testing.T) {
	a, c, inner := newWrapped(t, nil)

	assert.True(t, object.Implements(a, objmodel.IIDAllocator))
	assert.True(t, object.Implements(a, objmodel.IIDMemory))
	assert.False(t, object.Implements(a, malloc.IIDReporter))

	mem, err := object.Query[objmodel.Memory](a)
	require.NoError(t, err)
	defer mem.Release()
	assert.True(t, object.IsEqualObject(mem, a))
	assert.False(t, object.IsEqualObject(mem, inner))

	// Back to Allocator through Memory still lands on the wrapper.
	back, err := object.Query[objmodel.Allocator](mem)
	require.NoError(t, err)
	defer back.Release()
	assert.True(t, object.IsEqualObject(back, a))
	p, err := back.Alloc(16)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.liveBlocks.WithLabelValues("heap")))

	require.NoError(t, mem.WriteU32(p, 0xC0FFEE))
	v, err := inner.ReadU32(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xC0FFEE), v)
	back.Free(p)

	buf := heap.NewBuffer(a)
	defer buf.Close()
	require.NoError(t, buf.AllocateBytes(8))
	require.NoError(t, buf.Write(0, []byte("metrics!")))
	data, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("metrics!"), data)
}

// bareAllocator answers Allocator only.
type bareAllocator struct {
	object.Base
	heap *malloc.Heap
}

func newBareAllocator() *bareAllocator {
	b := &bareAllocator{heap: malloc.NewHeap()}
	b.heap.AddRef()
	b.Init(b, func() { b.heap.Release() }, objmodel.IIDAllocator)
	return b
}

func (b *bareAllocator) Alloc(size uint32) (objmodel.Ptr, error) { return b.heap.Alloc(size) }
func (b *bareAllocator) Realloc(ptr objmodel.Ptr, size uint32) (objmodel.Ptr, error) {
	return b.heap.Realloc(ptr, size)
}
func (b *bareAllocator) Free(ptr objmodel.Ptr) { b.heap.Free(ptr) }

func TestAllocator_NoMemoryWhenInnerLacksIt(t *testing.T) {
	inner := newBareAllocator()
	a := Wrap(inner, NewCollectors("test"), "bare")
	r := ref.New[objmodel.Allocator](a)
	defer r.Release()

	assert.False(t, object.Implements(a, objmodel.IIDMemory))
	_, err := object.Query[objmodel.Memory](a)
	assert.ErrorIs(t, err, errors.ErrNoInterface)
	_, err = a.Read(objmodel.Null, 4)
	assert.ErrorIs(t, err, errors.ErrNoInterface)

	p, err := a.Alloc(8)
	require.NoError(t, err)
	a.Free(p)
}

func TestAllocator_ReleasesInner(t *testing.T) {
	inner := malloc.NewHeap()
	inner.AddRef()
	a := Wrap(inner, NewCollectors("test"), "x")
	assert.Equal(t, uint32(3), inner.Count(), "allocator and memory stakes")

	a.AddRef()
	a.Release()
	assert.Equal(t, uint32(1), inner.Count())
	inner.Release()
	assert.True(t, inner.Destroyed())
}

func TestCollectors_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := NewCollectors("test")
	require.NoError(t, reg.Register(c))

	a := Wrap(malloc.NewHeap(), c, "registered")
	r := ref.New[objmodel.Allocator](a)
	defer r.Release()
	p, err := a.Alloc(10)
	require.NoError(t, err)
	defer a.Free(p)

	count, err := testutil.GatherAndCount(reg, "test_allocator_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count, "one series per operation kind")
}
