// Package heap provides Buffer, the exclusive owner of one raw allocation.
//
// A Buffer remembers the allocator that produced its memory and frees
// through that allocator, whatever is current when Free runs. Allocation
// failures leave the buffer exactly as it was:
//
//	buf, err := heap.CurrentBuffer(ctx)
//	if err != nil {
//	    return err
//	}
//	defer buf.Close()
//
//	if err := buf.AllocateBytes(64); err != nil {
//	    return err
//	}
//	if err := buf.ReallocateBytes(1 << 20); err != nil {
//	    // still owns the original 64 bytes
//	}
package heap
