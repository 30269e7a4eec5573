//go:build unix

package malloc

import (
	"encoding/binary"
	"math/bits"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/internal/debug"
	"github.com/wippyai/objmodel/object"
)

const (
	// DefaultSlabSize is the size of one mapped region.
	DefaultSlabSize = 1 << 20

	headerSize  = 8
	headerMagic = 0xb10c
	stateLive   = 1
	stateFree   = 2
)

// Mmap is a slab allocator over anonymous memory mappings. Each slab is
// carved into power-of-two blocks preceded by an 8-byte header:
//
//	[0:4] requested size  [4] class  [5] state  [6:8] magic
//
// Freed blocks go to a per-class free list. An address is the slab number
// plus one, shifted, or'ed with the offset of the block's first byte, so
// Null never names a block. Slabs are unmapped when the allocator is
// destroyed.
type Mmap struct {
	object.Base
	slabs    [][]byte
	free     [32][]objmodel.Ptr
	cur      uint32
	shift    uint8
	maxSlabs int
	stats    Stats
	mu       sync.Mutex
}

// MmapConfig holds configuration for the slab allocator.
type MmapConfig struct {
	// SlabSize is the mapping size, a power of two between 64KB and 16MB.
	// 0 means DefaultSlabSize.
	SlabSize uint32

	// MaxSlabs caps the number of mappings. 0 means as many as the 32-bit
	// address space allows.
	MaxSlabs int
}

// NewMmap creates a slab allocator. No memory is mapped until the first
// allocation.
func NewMmap(cfg *MmapConfig) (*Mmap, error) {
	size := uint32(DefaultSlabSize)
	maxSlabs := 0
	if cfg != nil {
		if cfg.SlabSize != 0 {
			size = cfg.SlabSize
		}
		maxSlabs = cfg.MaxSlabs
	}
	if size < 1<<16 || size > 1<<24 || size&(size-1) != 0 {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidArgument).
			Value(size).
			Detail("slab size must be a power of two between 64KB and 16MB").
			Build()
	}

	shift := uint8(bits.TrailingZeros32(size))
	limit := 1<<(32-shift) - 1
	if maxSlabs <= 0 || maxSlabs > limit {
		maxSlabs = limit
	}

	m := &Mmap{shift: shift, maxSlabs: maxSlabs}
	m.Init(m, m.destroy, objmodel.IIDAllocator, objmodel.IIDMemory, IIDReporter)
	m.SetLabel("malloc.Mmap")
	return m, nil
}

// SlabSize returns the size of one mapping.
func (m *Mmap) SlabSize() uint32 {
	return 1 << m.shift
}

// Alloc returns a zeroed block of exactly size bytes.
func (m *Mmap) Alloc(size uint32) (objmodel.Ptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alloc(size)
}

func (m *Mmap) alloc(size uint32) (objmodel.Ptr, error) {
	if uint64(size)+headerSize > uint64(m.SlabSize()) {
		m.stats.Failures++
		return objmodel.Null, errors.New(errors.PhaseAlloc, errors.KindOutOfMemory).
			Value(size).
			Detail("request exceeds slab size %d", m.SlabSize()).
			Build()
	}
	class := classOf(size + headerSize)

	var ptr objmodel.Ptr
	if n := len(m.free[class]); n > 0 {
		ptr = m.free[class][n-1]
		m.free[class] = m.free[class][:n-1]
	} else {
		var err error
		if ptr, err = m.carve(uint32(1) << class); err != nil {
			m.stats.Failures++
			return objmodel.Null, err
		}
	}

	slab, off := m.locate(ptr)
	hdr := m.slabs[slab][off-headerSize : off]
	binary.LittleEndian.PutUint32(hdr[0:4], size)
	hdr[4] = class
	hdr[5] = stateLive
	binary.LittleEndian.PutUint16(hdr[6:8], headerMagic)
	clear(m.slabs[slab][off : off+(uint32(1)<<class)-headerSize])

	m.stats.RecordAlloc(size)
	return ptr, nil
}

// carve takes span bytes from the current slab, mapping a new one when it
// is full.
func (m *Mmap) carve(span uint32) (objmodel.Ptr, error) {
	if len(m.slabs) == 0 || m.cur+span > m.SlabSize() {
		if len(m.slabs) >= m.maxSlabs {
			return objmodel.Null, errors.New(errors.PhaseAlloc, errors.KindOutOfMemory).
				Detail("slab limit %d reached", m.maxSlabs).
				Build()
		}
		slab, err := unix.Mmap(-1, 0, int(m.SlabSize()), unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANON)
		if err != nil {
			return objmodel.Null, errors.Wrap(errors.PhaseAlloc, errors.KindOutOfMemory, err, "mmap slab")
		}
		m.slabs = append(m.slabs, slab)
		m.cur = 0
		Logger().Debug("slab mapped", zap.Int("slabs", len(m.slabs)), zap.Uint32("size", m.SlabSize()))
	}
	start := m.cur
	m.cur += span
	return objmodel.Ptr(uint32(len(m.slabs))<<m.shift | (start + headerSize)), nil
}

func (m *Mmap) locate(ptr objmodel.Ptr) (slab int, off uint32) {
	return int(uint32(ptr)>>m.shift) - 1, uint32(ptr) & (m.SlabSize() - 1)
}

// header returns the live block header for ptr.
func (m *Mmap) header(ptr objmodel.Ptr) ([]byte, bool) {
	slab, off := m.locate(ptr)
	if slab < 0 || slab >= len(m.slabs) || off < headerSize {
		return nil, false
	}
	hdr := m.slabs[slab][off-headerSize : off]
	if binary.LittleEndian.Uint16(hdr[6:8]) != headerMagic || hdr[5] != stateLive {
		return nil, false
	}
	return hdr, true
}

// Realloc resizes ptr in place while it fits its block, otherwise moves it.
func (m *Mmap) Realloc(ptr objmodel.Ptr, size uint32) (objmodel.Ptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ptr == objmodel.Null {
		return m.alloc(size)
	}
	hdr, ok := m.header(ptr)
	if !ok {
		return objmodel.Null, errors.InvalidArgument(errors.PhaseAlloc, "realloc of unknown block")
	}
	if size == 0 {
		m.free1(ptr, hdr)
		return objmodel.Null, nil
	}

	old := binary.LittleEndian.Uint32(hdr[0:4])
	if uint64(size)+headerSize <= uint64(1)<<hdr[4] {
		if size > old {
			slab, off := m.locate(ptr)
			clear(m.slabs[slab][off+old : off+size])
		}
		binary.LittleEndian.PutUint32(hdr[0:4], size)
		m.stats.RecordRealloc(old, size)
		return ptr, nil
	}

	nptr, err := m.alloc(size)
	if err != nil {
		return objmodel.Null, err
	}
	slab, off := m.locate(ptr)
	nslab, noff := m.locate(nptr)
	copy(m.slabs[nslab][noff:noff+min(old, size)], m.slabs[slab][off:off+old])
	m.free1(ptr, hdr)
	m.stats.Allocs--
	m.stats.Frees--
	m.stats.Reallocs++
	return nptr, nil
}

// Free returns ptr's block to its class free list. A double free is caught
// by the block header.
func (m *Mmap) Free(ptr objmodel.Ptr) {
	if ptr == objmodel.Null {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	hdr, ok := m.header(ptr)
	if !ok {
		debug.Assert(false, "free of unknown or freed block")
		Logger().Warn("free of unknown or freed block", zap.Uint32("ptr", uint32(ptr)))
		return
	}
	m.free1(ptr, hdr)
}

func (m *Mmap) free1(ptr objmodel.Ptr, hdr []byte) {
	hdr[5] = stateFree
	class := hdr[4]
	m.free[class] = append(m.free[class], ptr)
	m.stats.RecordFree(binary.LittleEndian.Uint32(hdr[0:4]))
}

// Stats returns a snapshot of the allocator's counters.
func (m *Mmap) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Read returns a view of length bytes at ptr inside its slab.
func (m *Mmap) Read(ptr objmodel.Ptr, length uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.span(ptr, length)
}

// Write copies data to ptr.
func (m *Mmap) Write(ptr objmodel.Ptr, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst, err := m.span(ptr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// ReadU32 reads a little-endian uint32 at ptr.
func (m *Mmap) ReadU32(ptr objmodel.Ptr) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.span(ptr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteU32 writes a little-endian uint32 at ptr.
func (m *Mmap) WriteU32(ptr objmodel.Ptr, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.span(ptr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

func (m *Mmap) span(ptr objmodel.Ptr, length uint32) ([]byte, error) {
	slab, off := m.locate(ptr)
	if slab < 0 || slab >= len(m.slabs) || uint64(off)+uint64(length) > uint64(m.SlabSize()) {
		return nil, errors.New(errors.PhaseAlloc, errors.KindInvalidArgument).
			Detail("range [%#x, +%d) is outside any slab", uint32(ptr), length).
			Build()
	}
	return m.slabs[slab][off : off+length], nil
}

func (m *Mmap) destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stats.LiveBlocks > 0 {
		Logger().Warn("slab allocator destroyed with live blocks",
			zap.Uint64("blocks", m.stats.LiveBlocks),
			zap.Uint64("bytes", m.stats.LiveBytes))
	}
	for _, slab := range m.slabs {
		if err := unix.Munmap(slab); err != nil {
			Logger().Warn("munmap failed", zap.Error(err))
		}
	}
	m.slabs = nil
	m.free = [32][]objmodel.Ptr{}
}
