package malloc

import (
	"math/bits"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/iid"
)

// Stats is a snapshot of an allocator's counters.
type Stats struct {
	Allocs     uint64 `json:"allocs"`
	Reallocs   uint64 `json:"reallocs"`
	Frees      uint64 `json:"frees"`
	Failures   uint64 `json:"failures"`
	LiveBytes  uint64 `json:"live_bytes"`
	PeakBytes  uint64 `json:"peak_bytes"`
	LiveBlocks uint64 `json:"live_blocks"`
}

// Reporter is implemented by allocators that keep Stats.
type Reporter interface {
	objmodel.Unknown
	Stats() Stats
}

// IIDReporter identifies the Reporter capability.
var IIDReporter = iid.RegisterName[Reporter]("objmodel.malloc.Reporter")

// RecordAlloc counts a new block of size bytes.
func (s *Stats) RecordAlloc(size uint32) {
	s.Allocs++
	s.LiveBlocks++
	s.LiveBytes += uint64(size)
	s.PeakBytes = max(s.PeakBytes, s.LiveBytes)
}

// RecordRealloc counts a block resized from oldSize to newSize.
func (s *Stats) RecordRealloc(oldSize, newSize uint32) {
	s.Reallocs++
	s.LiveBytes = s.LiveBytes - uint64(oldSize) + uint64(newSize)
	s.PeakBytes = max(s.PeakBytes, s.LiveBytes)
}

// RecordFree counts a freed block of size bytes.
func (s *Stats) RecordFree(size uint32) {
	s.Frees++
	s.LiveBlocks--
	s.LiveBytes -= uint64(size)
}

// minClass is log2 of the smallest block both allocators hand out.
const minClass = 4

// classOf returns the size class whose blocks hold n bytes.
func classOf(n uint32) uint8 {
	if n <= 1<<minClass {
		return minClass
	}
	return uint8(bits.Len32(n - 1))
}
