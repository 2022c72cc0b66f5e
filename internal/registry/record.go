// Package registry implements the allocation registry: a chained,
// prime-capacity hash table keyed by managed heap address, and the
// allocation records it owns.
package registry

import "github.com/tinygc/congc/api"

// Tag is the small bitset carried by every Record.
type Tag uint8

const (
	// TagMark marks a record reachable during the current cycle.
	TagMark Tag = 1 << iota
	// TagRoot marks a record as a permanent root; never reclaimed, always
	// a mark source.
	TagRoot
	// TagLeaf marks a record whose payload holds no managed pointers, so
	// mark does not scan its interior.
	TagLeaf
)

// Record is the per-block metadata the registry stores for one managed
// allocation. It is immutable except for its Tag and its chain link.
type Record struct {
	Ptr  api.Pointer
	Size uintptr
	Tag  Tag
	Dtor api.Finalizer

	next *Record
}

// newRecord produces a tag-0, unchained record for ptr.
func newRecord(ptr api.Pointer, size uintptr, dtor api.Finalizer) *Record {
	return &Record{Ptr: ptr, Size: size, Dtor: dtor}
}

// Marked reports whether r's MARK bit is set.
func (r *Record) Marked() bool { return r.Tag&TagMark != 0 }

// Root reports whether r's ROOT bit is set.
func (r *Record) Root() bool { return r.Tag&TagRoot != 0 }

// Leaf reports whether r's LEAF bit is set.
func (r *Record) Leaf() bool { return r.Tag&TagLeaf != 0 }

// SetMark sets or clears the MARK bit.
func (r *Record) SetMark(v bool) { r.setTag(TagMark, v) }

// SetRoot sets or clears the ROOT bit.
func (r *Record) SetRoot(v bool) { r.setTag(TagRoot, v) }

// SetLeaf sets or clears the LEAF bit.
func (r *Record) SetLeaf(v bool) { r.setTag(TagLeaf, v) }

func (r *Record) setTag(bit Tag, v bool) {
	if v {
		r.Tag |= bit
	} else {
		r.Tag &^= bit
	}
}
