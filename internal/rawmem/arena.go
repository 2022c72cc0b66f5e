//go:build unix

// Package rawmem is congc's default implementation of the "opaque raw
// allocator" collaborator spec.md treats as external (§1): a first-fit
// free-list allocator over pages mapped directly with mmap, so the
// addresses it hands out are real uintptrs usable with ordinary pointer
// arithmetic (spec.md §6), not indices into a Go-GC-managed slice.
package rawmem

import (
	"sort"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tinygc/congc/api"
)

// DefaultRegionSize is the size of each mmap'd region the Arena grows by
// when its free list cannot satisfy a request.
const DefaultRegionSize = 1 << 20 // 1 MiB

const alignment = unsafe.Sizeof(uintptr(0))

type span struct {
	addr uintptr
	size uintptr
}

type region struct {
	data []byte // keeps the mapping reachable for Close/Munmap
	base uintptr
}

// Arena is a mmap-backed api.RawAllocator. Alloc, Realloc, Free and Close
// each hold an internal mutex for their whole duration, so calls on one
// Arena are serialized.
type Arena struct {
	mu         sync.Mutex
	regionSize uintptr
	regions    []region
	free       []span          // sorted by addr, non-overlapping
	allocated  map[uintptr]uintptr // addr -> size
}

// NewArena constructs an empty Arena that grows in regionSize chunks.
// A zero or negative regionSize falls back to DefaultRegionSize.
func NewArena(regionSize int) *Arena {
	if regionSize <= 0 {
		regionSize = DefaultRegionSize
	}
	return &Arena{
		regionSize: uintptr(regionSize),
		allocated:  make(map[uintptr]uintptr),
	}
}

func roundUp(size, align uintptr) uintptr {
	return (size + align - 1) &^ (align - 1)
}

// Alloc implements api.RawAllocator.
func (a *Arena) Alloc(size uintptr) api.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alloc(size)
}

func (a *Arena) alloc(size uintptr) api.Pointer {
	if size == 0 {
		size = 1
	}
	size = roundUp(size, alignment)

	if addr, ok := a.takeFree(size); ok {
		a.allocated[addr] = size
		return api.Pointer(addr)
	}

	need := size
	if need < a.regionSize {
		need = a.regionSize
	}
	if !a.grow(need) {
		return 0
	}
	addr, ok := a.takeFree(size)
	if !ok {
		return 0
	}
	a.allocated[addr] = size
	return api.Pointer(addr)
}

// Realloc implements api.RawAllocator.
func (a *Arena) Realloc(ptr api.Pointer, size uintptr) api.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ptr == 0 {
		return a.alloc(size)
	}
	oldSize, ok := a.allocated[uintptr(ptr)]
	if !ok {
		return 0
	}
	size = roundUp(max1(size), alignment)
	if size == oldSize {
		return ptr
	}
	if size < oldSize {
		a.allocated[uintptr(ptr)] = size
		a.releaseSpan(uintptr(ptr)+size, oldSize-size)
		return ptr
	}

	// Try to extend in place if the next free span is adjacent and large
	// enough; otherwise relocate.
	if a.extendInPlace(uintptr(ptr), oldSize, size) {
		a.allocated[uintptr(ptr)] = size
		return ptr
	}

	newPtr := a.alloc(size)
	if newPtr == 0 {
		return 0
	}
	a.copyRaw(newPtr, ptr, oldSize)
	delete(a.allocated, uintptr(ptr))
	a.releaseSpan(uintptr(ptr), oldSize)
	return newPtr
}

// Free implements api.RawAllocator. Freeing an unknown or zero address is
// a no-op, matching spec.md §7's tolerance for foreign pointers.
func (a *Arena) Free(ptr api.Pointer) {
	if ptr == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	size, ok := a.allocated[uintptr(ptr)]
	if !ok {
		return
	}
	delete(a.allocated, uintptr(ptr))
	a.releaseSpan(uintptr(ptr), size)
}

// Close unmaps every region the Arena has grown. The Arena must not be used
// afterwards.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, r := range a.regions {
		if err := unix.Munmap(r.data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.regions = nil
	a.free = nil
	a.allocated = nil
	return firstErr
}

func max1(n uintptr) uintptr {
	if n == 0 {
		return 1
	}
	return n
}

func (a *Arena) grow(size uintptr) bool {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return false
	}
	base := uintptr(unsafe.Pointer(&data[0]))
	a.regions = append(a.regions, region{data: data, base: base})
	a.releaseSpan(base, size)
	return true
}

// takeFree removes the first free span of at least size bytes (first fit)
// and returns its address, splitting off any remainder back into the free
// list.
func (a *Arena) takeFree(size uintptr) (uintptr, bool) {
	for i, s := range a.free {
		if s.size < size {
			continue
		}
		addr := s.addr
		if s.size > size {
			a.free[i] = span{addr: s.addr + size, size: s.size - size}
		} else {
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
		return addr, true
	}
	return 0, false
}

// extendInPlace consumes a free span immediately following [addr, addr+oldSize)
// if one exists and is large enough to reach newSize.
func (a *Arena) extendInPlace(addr, oldSize, newSize uintptr) bool {
	end := addr + oldSize
	need := newSize - oldSize
	for i, s := range a.free {
		if s.addr != end || s.size < need {
			continue
		}
		if s.size > need {
			a.free[i] = span{addr: s.addr + need, size: s.size - need}
		} else {
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
		return true
	}
	return false
}

// releaseSpan inserts [addr, addr+size) into the free list in address
// order and coalesces it with any immediately adjacent neighbors.
func (a *Arena) releaseSpan(addr, size uintptr) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].addr >= addr })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{addr: addr, size: size}

	// Merge with the following neighbor first so indices stay valid.
	if i+1 < len(a.free) && a.free[i].addr+a.free[i].size == a.free[i+1].addr {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].addr+a.free[i-1].size == a.free[i].addr {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// copyRaw copies n bytes from src to dst, both real addresses owned by this
// Arena. This is the one place congc crosses the unsafe boundary to move
// bytes between two raw addresses it owns exclusively.
func (a *Arena) copyRaw(dst, src api.Pointer, n uintptr) {
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(dst))), n)
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(src))), n)
	copy(dstSlice, srcSlice)
}
