// Package congc is an embeddable, conservative, stop-the-world
// mark-and-sweep collector for a single-threaded host that manages its own
// memory explicitly (spec.md §1). Hosts call Malloc/Calloc/Realloc/Free
// just as they would the corresponding libc entry points; congc registers
// every block it hands out and reclaims unreachable ones automatically
// whenever the registry's load factor crosses its sweep threshold, or on
// an explicit Run.
package congc

import (
	"io"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/tinygc/congc/api"
	"github.com/tinygc/congc/internal/gclog"
	"github.com/tinygc/congc/internal/gcmetrics"
	"github.com/tinygc/congc/internal/rawmem"
	"github.com/tinygc/congc/internal/registry"
	"github.com/tinygc/congc/internal/scan"
)

// Collector is the public driver: the [DRIVER] module of SPEC_FULL.md §1.
// It owns a registry and a raw allocator and orchestrates the
// trigger policy, mark/sweep cycle, and lifecycle operations.
//
// A Collector is not safe for concurrent use: spec.md's concurrency model
// is single-threaded and cooperative (spec.md §5), and congc does not add
// locking congc's own host does not need.
type Collector struct {
	reg *registry.Registry
	raw api.RawAllocator

	paused  bool
	rootLow uintptr
	rootHi  uintptr

	log *gclog.Logger

	cyclesRun        uint64
	bytesReclaimed   uint64
	lastSweepSeconds float64
}

// New constructs a Collector. With no options it behaves like spec.md's
// start(): a 1024-bucket-floor registry backed by a fresh mmap arena, with
// an empty root range (callers must call SetRootRange, or pass
// Config.WithRootRange, before the first collection that should see their
// roots).
func New(cfg *Config) *Collector {
	if cfg == nil {
		cfg = NewConfig()
	}

	raw := cfg.rawAllocator
	if raw == nil {
		raw = rawmem.NewArena(cfg.rawRegionSize)
	}

	c := &Collector{
		reg:     registry.New(cfg.minCapacity, cfg.initialCapacity, cfg.sweepFactor, cfg.downsizeLoadFactor, cfg.upsizeLoadFactor),
		raw:     raw,
		log:     gclog.New(cfg.logger),
		rootLow: cfg.rootLow,
		rootHi:  cfg.rootHigh,
	}
	c.reg.OnResize(c.log.Resize)
	return c
}

// SetRootRange updates the address window MarkRootRange scans at the start
// of every cycle. Hosts whose operand stack / locals grow and shrink call
// this before relying on automatic collection, or before Run.
func (c *Collector) SetRootRange(lo, hi uintptr) {
	c.rootLow, c.rootHi = lo, hi
}

// Pause suppresses the allocator-driven collection trigger. Run still
// collects explicitly while paused.
func (c *Collector) Pause() { c.paused = true }

// Resume re-enables the allocator-driven collection trigger.
func (c *Collector) Resume() { c.paused = false }

// Run performs an unconditional mark-then-sweep cycle and returns the
// number of bytes reclaimed.
func (c *Collector) Run() (reclaimed uint64, err error) {
	defer c.recoverCorruption(&err)
	return c.runCycle(), nil
}

func (c *Collector) runCycle() uint64 {
	start := time.Now()
	scan.Mark(c.reg, c.rootLow, c.rootHi)
	reclaimed := c.sweep()
	c.cyclesRun++
	c.bytesReclaimed += reclaimed
	c.lastSweepSeconds = time.Since(start).Seconds()
	c.log.Cycle(reclaimed, c.reg.Len(), c.reg.Capacity(), time.Since(start))
	return reclaimed
}

// sweep is the single bucket-walk pass spec.md §4.5 describes: clear MARK
// on marked records, destroy-and-reclaim unmarked non-ROOT records, then
// perform one amortized downsize check. Destructor order is unspecified
// (bucket-walk order) — see DESIGN.md decision 3.
func (c *Collector) sweep() uint64 {
	var reclaimed uint64
	c.reg.ForEach(func(rec *registry.Record) {
		if rec.Marked() {
			rec.SetMark(false)
			return
		}
		if rec.Root() {
			return
		}
		if rec.Dtor != nil {
			rec.Dtor(rec.Ptr)
		}
		c.raw.Free(rec.Ptr)
		reclaimed += uint64(rec.Size)
		c.reg.Remove(rec.Ptr, false)
	})
	c.reg.MaybeShrink()
	return reclaimed
}

// Stop unroots every record, runs one final sweep that therefore reclaims
// everything, closes the raw allocator if it implements io.Closer (this
// includes one supplied through Config.WithRawAllocator), and returns the
// bytes reclaimed during that sweep.
func (c *Collector) Stop() (reclaimed uint64, err error) {
	defer c.recoverCorruption(&err)

	c.reg.ForEach(func(rec *registry.Record) { rec.SetRoot(false) })
	reclaimed = c.sweep()
	c.log.Stopped(reclaimed)

	if closer, ok := c.raw.(io.Closer); ok {
		_ = closer.Close()
	}
	return reclaimed, nil
}

func (c *Collector) recoverCorruption(err *error) {
	if r := recover(); r != nil {
		if wrapped, ok := r.(error); ok && errors.Is(wrapped, registry.ErrCorrupt) {
			*err = errors.Wrap(ErrRegistryCorrupt, wrapped.Error())
			return
		}
		panic(r)
	}
}

// maybeCollect implements spec.md §4.5's trigger rule: after inserting a
// new record, if the registry's live count exceeds its sweep limit and the
// collector is not paused, a full cycle runs before the allocator entry
// returns. See DESIGN.md decision 2 for how the new block stays reachable
// across this call despite congc never reading the Go call stack.
func (c *Collector) maybeCollect() {
	if c.paused {
		return
	}
	if c.reg.Len() > c.reg.SweepLimit() {
		c.runCycle()
	}
}

// allocate is the shared body of Malloc/MallocExt/MallocStatic:
// raw-allocate, register, apply tag, and only then run the trigger check —
// tag must be set before maybeCollect so a MallocStatic block is already a
// root by the time a triggered cycle's mark phase walks the registry.
// callocExt and Strdup have their own bodies that follow the same order.
func (c *Collector) allocate(size uintptr, dtor api.Finalizer, tag registry.Tag) api.Pointer {
	ptr := c.raw.Alloc(size)
	if ptr == 0 {
		return 0
	}
	rec := c.reg.Put(ptr, size, dtor)
	rec.Tag = tag
	c.maybeCollect()
	return ptr
}

// Malloc allocates size bytes with no destructor.
func (c *Collector) Malloc(size uintptr) api.Pointer {
	return c.allocate(size, nil, 0)
}

// MallocExt allocates size bytes with dtor invoked before the block is
// released, by explicit Free or by sweep.
func (c *Collector) MallocExt(size uintptr, dtor api.Finalizer) api.Pointer {
	return c.allocate(size, dtor, 0)
}

// MallocStatic allocates size bytes, registers dtor, and marks the block a
// permanent ROOT: it is never reclaimed and is always a mark source.
func (c *Collector) MallocStatic(size uintptr, dtor api.Finalizer) api.Pointer {
	return c.allocate(size, dtor, registry.TagRoot)
}

// Calloc allocates count*size zero-initialized bytes with no destructor.
func (c *Collector) Calloc(count, size uintptr) api.Pointer {
	return c.callocExt(count, size, nil)
}

// CallocExt allocates count*size zero-initialized bytes with dtor.
func (c *Collector) CallocExt(count, size uintptr, dtor api.Finalizer) api.Pointer {
	return c.callocExt(count, size, dtor)
}

func (c *Collector) callocExt(count, size uintptr, dtor api.Finalizer) api.Pointer {
	total := count * size
	ptr := c.raw.Alloc(total)
	if ptr == 0 {
		return 0
	}
	zero(ptr, total)
	rec := c.reg.Put(ptr, total, dtor)
	rec.Tag = 0
	c.maybeCollect()
	return ptr
}

// Realloc resizes the block at ptr to size bytes. See spec.md §4.5: nil
// ptr behaves as Malloc, a foreign ptr returns nil without mutating the
// registry, and a relocation carries the original destructor and tags
// forward onto a fresh record at the new address.
func (c *Collector) Realloc(ptr api.Pointer, size uintptr) api.Pointer {
	if ptr == 0 {
		return c.Malloc(size)
	}
	old, ok := c.reg.Get(ptr)
	if !ok {
		return 0
	}

	newPtr := c.raw.Realloc(ptr, size)
	if newPtr == 0 {
		return 0
	}
	if newPtr == ptr {
		old.Size = size
		return ptr
	}

	dtor, tag := old.Dtor, old.Tag
	c.reg.Remove(ptr, true)
	rec := c.reg.Put(newPtr, size, dtor)
	rec.Tag = tag
	c.maybeCollect()
	return newPtr
}

// Free invokes ptr's destructor if any, raw-frees it, and deregisters it.
// Freeing an address congc does not manage is silently tolerated.
func (c *Collector) Free(ptr api.Pointer) {
	rec, ok := c.reg.Get(ptr)
	if !ok {
		return
	}
	if rec.Dtor != nil {
		rec.Dtor(ptr)
	}
	c.raw.Free(ptr)
	c.reg.Remove(ptr, true)
}

// Strdup allocates len(s)+1 bytes, copies s plus a NUL terminator, and
// marks the block LEAF: a string body holds no managed pointers, so mark
// will not scan its interior.
func (c *Collector) Strdup(s string) api.Pointer {
	n := uintptr(len(s)) + 1
	ptr := c.raw.Alloc(n)
	if ptr == 0 {
		return 0
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), n)
	copy(buf, s)
	buf[len(s)] = 0

	rec := c.reg.Put(ptr, n, nil)
	rec.Tag = registry.TagLeaf
	c.maybeCollect()
	return ptr
}

// MakeStatic sets the ROOT tag on the record at ptr. It is a no-op if ptr
// is not managed.
func (c *Collector) MakeStatic(ptr api.Pointer) {
	if rec, ok := c.reg.Get(ptr); ok {
		rec.SetRoot(true)
	}
}

// zero clears n bytes at ptr, a managed address this collector's raw
// allocator owns.
func zero(ptr api.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), n)
	for i := range buf {
		buf[i] = 0
	}
}

// RootSlot carves a single word of raw, unmanaged memory out of this
// collector's own raw allocator and returns its address. It is a
// convenience for hosts (and the cmd/congc demo) that want a ready-made
// place to stash root pointers without managing their own arena; the
// returned word is never freed automatically and is never itself a
// registry record — it is scratch space for a root range, not a Malloc'd
// block.
func (c *Collector) RootSlot() uintptr {
	word := c.raw.Alloc(unsafe.Sizeof(uintptr(0)))
	return uintptr(word)
}

// Metrics returns a prometheus.Collector exposing this Collector's running
// counters. Register it with a host's own prometheus.Registerer; congc
// never opens a listener itself.
func (c *Collector) Metrics() *gcmetrics.Collector {
	return gcmetrics.New(c)
}

// Live implements gcmetrics.Source.
func (c *Collector) Live() uint64 { return c.reg.Len() }

// Capacity implements gcmetrics.Source.
func (c *Collector) Capacity() uint64 { return c.reg.Capacity() }

// CyclesRun implements gcmetrics.Source.
func (c *Collector) CyclesRun() uint64 { return c.cyclesRun }

// BytesReclaimed implements gcmetrics.Source.
func (c *Collector) BytesReclaimed() uint64 { return c.bytesReclaimed }

// LastSweepSeconds implements gcmetrics.Source.
func (c *Collector) LastSweepSeconds() float64 { return c.lastSweepSeconds }
