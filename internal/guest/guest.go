// Package guest holds small hand-assembled WebAssembly modules used to
// exercise the linear-memory allocator.
package guest

// Bump is a module with one 64KB page of exported memory and a bump
// allocator exported as cabi_realloc:
//
//	(module
//	  (memory (export "memory") 1)
//	  (global $next (mut i32) (i32.const 1024))
//	  (func (export "cabi_realloc")
//	    (param $old i32) (param $old_size i32) (param $align i32) (param $size i32)
//	    (result i32)
//	    (local $p i32)
//	    (if (i32.eqz (local.get $size)) (then (return (i32.const 0))))
//	    (if (i32.gt_u (local.get $size) (i32.const 65536)) (then (return (i32.const 0))))
//	    (if (i32.gt_u
//	          (i32.add
//	            (local.tee $p (i32.and (i32.add (global.get $next) (i32.const 7)) (i32.const -8)))
//	            (local.get $size))
//	          (i32.const 65536))
//	      (then (return (i32.const 0))))
//	    (global.set $next (i32.add (local.get $p) (local.get $size)))
//	    (local.get $p)))
//
// Frees return 0 and reclaim nothing. Allocations past the page fail with 0.
var Bump = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: (i32 i32 i32 i32) -> i32
	0x01, 0x09, 0x01, 0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,
	// function
	0x03, 0x02, 0x01, 0x00,
	// memory: min 1
	0x05, 0x03, 0x01, 0x00, 0x01,
	// global: mut i32 = 1024
	0x06, 0x07, 0x01, 0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b,
	// export: memory, cabi_realloc
	0x07, 0x19, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x0c, 'c', 'a', 'b', 'i', '_', 'r', 'e', 'a', 'l', 'l', 'o', 'c', 0x00, 0x00,
	// code
	0x0a, 0x3d, 0x01, 0x3b, 0x01, 0x01, 0x7f,
	0x20, 0x03, 0x45, 0x04, 0x40, 0x41, 0x00, 0x0f, 0x0b,
	0x20, 0x03, 0x41, 0x80, 0x80, 0x04, 0x4b, 0x04, 0x40, 0x41, 0x00, 0x0f, 0x0b,
	0x23, 0x00, 0x41, 0x07, 0x6a, 0x41, 0x78, 0x71, 0x22, 0x04,
	0x20, 0x03, 0x6a, 0x41, 0x80, 0x80, 0x04, 0x4b, 0x04, 0x40, 0x41, 0x00, 0x0f, 0x0b,
	0x20, 0x04, 0x20, 0x03, 0x6a, 0x24, 0x00,
	0x20, 0x04, 0x0b,
}

// MemoryOnly exports a memory and no allocator.
var MemoryOnly = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x0a, 0x01,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
}
