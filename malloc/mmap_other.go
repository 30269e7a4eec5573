//go:build !unix

package malloc

import (
	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
)

// DefaultSlabSize is the size of one mapped region.
const DefaultSlabSize = 1 << 20

// MmapConfig holds configuration for the slab allocator.
type MmapConfig struct {
	SlabSize uint32
	MaxSlabs int
}

// Mmap is unavailable on this platform.
type Mmap struct {
	objmodel.Allocator
}

// NewMmap reports that anonymous mappings are unsupported here.
func NewMmap(*MmapConfig) (*Mmap, error) {
	return nil, errors.New(errors.PhaseAlloc, errors.KindInvalidArgument).
		Detail("mmap allocator requires a unix platform").
		Build()
}
