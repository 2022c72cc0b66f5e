// Package api includes types shared between the congc root package and its
// internal implementation, mirroring the split the collector's host sees
// from the rest of the library.
package api

// Pointer is a managed heap address: a real uintptr into memory congc owns,
// not an index or handle. It is returned by the allocator entry points and
// is the identity of an allocation record.
//
// Zero is never a valid live Pointer; it is congc's analogue of a null
// pointer.
type Pointer uintptr

// Finalizer is invoked on an allocation's Pointer immediately before the
// block is released, either by an explicit Free or by a sweep. A Finalizer
// must not call back into the collector that is invoking it (see spec's
// re-entrancy rule); doing so is undefined.
type Finalizer func(ptr Pointer)

// RawAllocator is the opaque collaborator that actually owns memory pages.
// congc never allocates host memory itself outside of this interface, so a
// host can substitute its own arena (e.g. a pooled allocator, or a fake for
// tests) for congc's default mmap-backed internal/rawmem.Arena.
type RawAllocator interface {
	// Alloc returns size bytes of fresh, unzeroed memory, or 0 if the
	// allocator cannot satisfy the request.
	Alloc(size uintptr) Pointer

	// Realloc resizes the block at ptr to size bytes, possibly moving it.
	// It returns the (possibly new) address, or 0 on failure — ptr is left
	// valid and untouched in that case. Realloc(0, size) behaves as Alloc.
	Realloc(ptr Pointer, size uintptr) Pointer

	// Free releases the block at ptr. Freeing an address the allocator did
	// not hand out, or 0, is a no-op.
	Free(ptr Pointer)
}
