// Package scan implements root discovery and the conservative interior
// scan (spec.md §4.4): every aligned machine word in a scanned range is
// read as a candidate address and validated by registry membership.
//
// Every function here crosses the unsafe boundary: it dereferences raw
// addresses that are not known to the Go runtime as pointers. Callers must
// only ever pass ranges that are entirely backed by live, mapped memory —
// normally the mmap'd arena a Collector owns, never a Go-managed slice or
// the goroutine stack (see SPEC_FULL.md §0 for why the latter is unsound).
package scan

import (
	"unsafe"

	"github.com/tinygc/congc/api"
	"github.com/tinygc/congc/internal/registry"
)

const wordSize = unsafe.Sizeof(uintptr(0))

// readWord reads the machine word at addr. addr need not be word-aligned on
// most architectures, but the caller always advances by wordSize so in
// practice it is.
func readWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr)) //nolint:govet
}

// MarkAlloc is the mark helper: if candidate is the address of some
// registry record whose MARK bit is not yet set, the bit is set and, unless
// the record is a LEAF, every word-aligned position in its interior is
// scanned as a further candidate, depth-first.
func MarkAlloc(reg *registry.Registry, candidate api.Pointer) {
	rec, ok := reg.Get(candidate)
	if !ok || rec.Marked() {
		return
	}
	markRecord(reg, rec)
}

func markRecord(reg *registry.Registry, rec *registry.Record) {
	rec.SetMark(true)
	if rec.Leaf() {
		return
	}
	base := uintptr(rec.Ptr)
	end := base + rec.Size
	for addr := base; addr+wordSize <= end; addr += wordSize {
		MarkAlloc(reg, api.Pointer(readWord(addr)))
	}
}

// MarkRoots marks every record carrying the ROOT tag and scans its
// interior (unless it is also a LEAF), unconditionally, every cycle.
func MarkRoots(reg *registry.Registry) {
	reg.ForEach(func(rec *registry.Record) {
		if rec.Root() && !rec.Marked() {
			markRecord(reg, rec)
		}
	})
}

// MarkRootRange conservatively scans every word in the half-open range
// [lo, hi) as a potential managed pointer: a word is read only if it ends
// at or before hi, so hi is one past the last slot. This is congc's
// replacement for the reference collector's mark_stack: instead of
// introspecting the host's own call stack (unsound in Go — see
// SPEC_FULL.md §0), the host registers an explicit address window it
// maintains itself, typically the live extent of its operand stack /
// locals inside the same arena the heap lives in.
//
// lo and hi may be given in either order; the scan always proceeds from
// the lower address to the higher one.
func MarkRootRange(reg *registry.Registry, lo, hi uintptr) {
	if lo == 0 && hi == 0 {
		return
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	for addr := lo; addr+wordSize <= hi; addr += wordSize {
		MarkAlloc(reg, api.Pointer(readWord(addr)))
	}
}

// Mark runs the composite root-then-range scan used at the start of every
// collection cycle. It always runs to completion, independent of the
// collector's paused flag (spec.md §4.4).
func Mark(reg *registry.Registry, rootLow, rootHigh uintptr) {
	MarkRoots(reg)
	MarkRootRange(reg, rootLow, rootHigh)
}
