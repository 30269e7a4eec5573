package malloc

import (
	"encoding/binary"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/internal/debug"
	"github.com/wippyai/objmodel/object"
)

// maxBlock is the largest single allocation any allocator here accepts.
const maxBlock = 1 << 31

// HeapConfig holds configuration for the default allocator.
type HeapConfig struct {
	// MaxBytes caps the bytes live at once. 0 means no limit beyond the
	// 4GB address space.
	MaxBytes uint64
}

type heapBlock struct {
	data  []byte
	class uint8
}

// Heap is the default allocator. Blocks live on the Go heap and are
// addressed by a 32-bit address space in which every block occupies a range
// aligned to its power-of-two size class, so an interior address resolves
// to its block without a search. Freed ranges are reused per class.
//
// Heap is safe for concurrent use: it is the one object all scopes share.
type Heap struct {
	object.Base
	blocks   map[objmodel.Ptr]*heapBlock
	free     [32][]objmodel.Ptr
	next     uint64
	maxBytes uint64
	stats    Stats
	mu       sync.Mutex
}

// NewHeap creates a default allocator with no byte limit.
func NewHeap() *Heap {
	return NewHeapWithConfig(nil)
}

// NewHeapWithConfig creates a default allocator with custom configuration.
func NewHeapWithConfig(cfg *HeapConfig) *Heap {
	h := &Heap{
		blocks: make(map[objmodel.Ptr]*heapBlock),
		next:   1 << minClass,
	}
	if cfg != nil {
		h.maxBytes = cfg.MaxBytes
	}
	h.Init(h, h.destroy, objmodel.IIDAllocator, objmodel.IIDMemory, IIDReporter)
	h.SetLabel("malloc.Heap")
	return h
}

// Alloc returns a zeroed block of exactly size bytes. Alloc(0) returns a
// unique non-null address.
func (h *Heap) Alloc(size uint32) (objmodel.Ptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alloc(size)
}

func (h *Heap) alloc(size uint32) (objmodel.Ptr, error) {
	if size > maxBlock || (h.maxBytes > 0 && h.stats.LiveBytes+uint64(size) > h.maxBytes) {
		h.stats.Failures++
		return objmodel.Null, errors.OutOfMemory(errors.PhaseAlloc, size)
	}
	class := classOf(size)
	ptr, ok := h.reserve(class)
	if !ok {
		h.stats.Failures++
		return objmodel.Null, errors.OutOfMemory(errors.PhaseAlloc, size)
	}
	h.blocks[ptr] = &heapBlock{data: make([]byte, size), class: class}
	h.stats.RecordAlloc(size)
	return ptr, nil
}

func (h *Heap) reserve(class uint8) (objmodel.Ptr, bool) {
	if n := len(h.free[class]); n > 0 {
		ptr := h.free[class][n-1]
		h.free[class] = h.free[class][:n-1]
		return ptr, true
	}
	span := uint64(1) << class
	start := (h.next + span - 1) &^ (span - 1)
	if start+span > 1<<32 {
		return objmodel.Null, false
	}
	h.next = start + span
	return objmodel.Ptr(start), true
}

// Realloc resizes ptr. Blocks that still fit their size class keep their
// address; others move and their contents are copied.
func (h *Heap) Realloc(ptr objmodel.Ptr, size uint32) (objmodel.Ptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ptr == objmodel.Null {
		return h.alloc(size)
	}
	b, ok := h.blocks[ptr]
	if !ok {
		return objmodel.Null, errors.InvalidArgument(errors.PhaseAlloc, "realloc of unknown block")
	}
	if size == 0 {
		h.free1(ptr, b)
		return objmodel.Null, nil
	}

	old := uint32(len(b.data))
	if size > old && h.maxBytes > 0 && h.stats.LiveBytes-uint64(old)+uint64(size) > h.maxBytes {
		h.stats.Failures++
		return objmodel.Null, errors.OutOfMemory(errors.PhaseAlloc, size)
	}
	if size <= maxBlock && classOf(size) == b.class {
		b.data = resize(b.data, size)
		h.stats.RecordRealloc(old, size)
		return ptr, nil
	}

	// The limit applies to the resized total, so a move may briefly hold
	// both blocks without counting the old one.
	if size > maxBlock {
		h.stats.Failures++
		return objmodel.Null, errors.OutOfMemory(errors.PhaseAlloc, size)
	}
	class := classOf(size)
	nptr, ok := h.reserve(class)
	if !ok {
		h.stats.Failures++
		return objmodel.Null, errors.OutOfMemory(errors.PhaseAlloc, size)
	}
	nb := &heapBlock{data: make([]byte, size), class: class}
	copy(nb.data, b.data)
	h.blocks[nptr] = nb
	delete(h.blocks, ptr)
	h.free[b.class] = append(h.free[b.class], ptr)
	h.stats.RecordRealloc(old, size)
	return nptr, nil
}

func resize(data []byte, size uint32) []byte {
	if int(size) <= cap(data) {
		old := len(data)
		data = data[:size]
		clear(data[min(old, int(size)):])
		return data
	}
	grown := make([]byte, size)
	copy(grown, data)
	return grown
}

// Free releases ptr. Freeing an address this allocator did not hand out is
// a contract violation.
func (h *Heap) Free(ptr objmodel.Ptr) {
	if ptr == objmodel.Null {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.blocks[ptr]
	if !ok {
		debug.Assert(false, "free of unknown block")
		Logger().Warn("free of unknown block", zap.Uint32("ptr", uint32(ptr)))
		return
	}
	h.free1(ptr, b)
}

func (h *Heap) free1(ptr objmodel.Ptr, b *heapBlock) {
	delete(h.blocks, ptr)
	h.free[b.class] = append(h.free[b.class], ptr)
	h.stats.RecordFree(uint32(len(b.data)))
}

// Stats returns a snapshot of the allocator's counters.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Read returns a view of length bytes at ptr. ptr may point inside a block;
// the range must not run past the block's end. The view stays valid until
// the block is freed or moved.
func (h *Heap) Read(ptr objmodel.Ptr, length uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := h.span(ptr, length)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write copies data to ptr.
func (h *Heap) Write(ptr objmodel.Ptr, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	dst, err := h.span(ptr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// ReadU32 reads a little-endian uint32 at ptr.
func (h *Heap) ReadU32(ptr objmodel.Ptr) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, err := h.span(ptr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteU32 writes a little-endian uint32 at ptr.
func (h *Heap) WriteU32(ptr objmodel.Ptr, value uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, err := h.span(ptr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

// span resolves [ptr, ptr+length) to the bytes of the block containing it.
func (h *Heap) span(ptr objmodel.Ptr, length uint32) ([]byte, error) {
	for class := uint8(minClass); class < 32; class++ {
		start := ptr &^ (objmodel.Ptr(1)<<class - 1)
		b, ok := h.blocks[start]
		if !ok || b.class != class {
			continue
		}
		off := uint64(ptr - start)
		if off+uint64(length) > uint64(len(b.data)) {
			break
		}
		return b.data[off : off+uint64(length)], nil
	}
	return nil, errors.New(errors.PhaseAlloc, errors.KindInvalidArgument).
		Detail("range [%#x, +%d) is outside any live block", uint32(ptr), length).
		Build()
}

func (h *Heap) destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.blocks); n > 0 {
		Logger().Warn("default allocator destroyed with live blocks",
			zap.Int("blocks", n),
			zap.Uint64("bytes", h.stats.LiveBytes))
	}
	h.blocks = nil
	h.free = [32][]objmodel.Ptr{}
}
