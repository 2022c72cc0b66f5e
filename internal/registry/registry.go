package registry

import (
	"github.com/pkg/errors"

	"github.com/tinygc/congc/api"
	"github.com/tinygc/congc/internal/primeutil"
)

// ErrCorrupt is wrapped and panicked when the registry finds its own
// bucket chains inconsistent with its bookkeeping — a programmer error,
// not a recoverable condition (spec §7).
var ErrCorrupt = errors.New("registry: bucket chain inconsistent with record count")

// Registry is a separately chained hash table keyed by managed address.
// Capacity and MinCapacity are always prime; see spec.md §3 invariants
// I1-I5.
type Registry struct {
	buckets []*Record

	capacity    uint64
	minCapacity uint64
	size        uint64
	sweepLimit  uint64

	sweepFactor    float64
	downsizeFactor float64
	upsizeFactor   float64

	onResize func(oldCapacity, newCapacity uint64)
}

// OnResize installs a callback invoked after every successful Resize, with
// the capacity before and after. Collector uses this to log rehashes
// through gclog without the registry importing logging itself.
func (r *Registry) OnResize(fn func(oldCapacity, newCapacity uint64)) {
	r.onResize = fn
}

// New builds a Registry. minCapacityFloor and capacityFloor are both run
// through NextPrime; the resulting capacity is never below min_capacity.
//
// Argument order matches the reference implementation's
// gc_allocation_map_new(min_capacity, capacity, sweep, down, up), not the
// "initial"/"min" labels spec.md's prose scenario uses for the same call
// (see DESIGN.md decision 6).
func New(minCapacityFloor, capacityFloor uint64, sweepFactor, downsizeFactor, upsizeFactor float64) *Registry {
	minCapacity := primeutil.NextPrime(minCapacityFloor)
	capacity := primeutil.NextPrime(capacityFloor)
	if capacity < minCapacity {
		capacity = minCapacity
	}

	r := &Registry{
		minCapacity:    minCapacity,
		sweepFactor:    sweepFactor,
		downsizeFactor: downsizeFactor,
		upsizeFactor:   upsizeFactor,
	}
	r.setCapacity(capacity)
	return r
}

func (r *Registry) setCapacity(capacity uint64) {
	r.capacity = capacity
	r.buckets = make([]*Record, capacity)
	// Truncating cast, not ceiling: see DESIGN.md decision 5.
	r.sweepLimit = uint64(r.sweepFactor * float64(capacity))
}

// Capacity returns the current bucket count.
func (r *Registry) Capacity() uint64 { return r.capacity }

// MinCapacity returns the floor capacity can never resize below.
func (r *Registry) MinCapacity() uint64 { return r.minCapacity }

// Len returns the number of live records.
func (r *Registry) Len() uint64 { return r.size }

// SweepLimit returns the live-record count at which a collection triggers.
func (r *Registry) SweepLimit() uint64 { return r.sweepLimit }

// Get returns the record for ptr, if any.
func (r *Registry) Get(ptr api.Pointer) (*Record, bool) {
	for rec := r.buckets[bucketIndex(ptr, r.capacity)]; rec != nil; rec = rec.next {
		if rec.Ptr == ptr {
			return rec, true
		}
	}
	return nil, false
}

// Put inserts or updates the record for ptr and returns the authoritative
// record. An existing record has its Size and Dtor overwritten in place;
// a new record is prepended to its bucket. Put may trigger an upsize
// rehash when the load factor crosses upsizeFactor.
func (r *Registry) Put(ptr api.Pointer, size uintptr, dtor api.Finalizer) *Record {
	idx := bucketIndex(ptr, r.capacity)
	for rec := r.buckets[idx]; rec != nil; rec = rec.next {
		if rec.Ptr == ptr {
			rec.Size = size
			rec.Dtor = dtor
			return rec
		}
	}

	rec := newRecord(ptr, size, dtor)
	rec.next = r.buckets[idx]
	r.buckets[idx] = rec
	r.size++

	if float64(r.size)/float64(r.capacity) > r.upsizeFactor {
		r.Resize(primeutil.NextPrime(2 * r.capacity))
	}
	return rec
}

// Remove unlinks the record for ptr, decrements Len, and reports whether a
// record was found. When allowShrink is true and the post-removal load
// factor drops below downsizeFactor, the table is rehashed down to
// NextPrime(capacity/2) provided that does not fall below MinCapacity.
//
// Sweep always passes allowShrink=false for individual removals and
// performs one amortized shrink check after the whole pass (spec.md §4.3,
// §4.5).
func (r *Registry) Remove(ptr api.Pointer, allowShrink bool) bool {
	idx := bucketIndex(ptr, r.capacity)
	var prev *Record
	for rec := r.buckets[idx]; rec != nil; prev, rec = rec, rec.next {
		if rec.Ptr != ptr {
			continue
		}
		if prev == nil {
			r.buckets[idx] = rec.next
		} else {
			prev.next = rec.next
		}
		rec.next = nil
		r.size--

		if allowShrink {
			r.maybeShrink()
		}
		return true
	}
	return false
}

// maybeShrink performs the amortized downsize check shared by Remove and
// the end of a sweep pass.
func (r *Registry) maybeShrink() {
	if r.capacity <= r.minCapacity {
		return
	}
	if float64(r.size)/float64(r.capacity) >= r.downsizeFactor {
		return
	}
	newCapacity := primeutil.NextPrime(r.capacity / 2)
	if newCapacity < r.minCapacity {
		return
	}
	r.Resize(newCapacity)
}

// MaybeShrink runs the same amortized downsize check Remove uses, for
// callers (sweep) that suppressed shrinking on every individual removal.
func (r *Registry) MaybeShrink() { r.maybeShrink() }

// Resize rehashes every live record into a table of NextPrime(max(newCapacity,
// MinCapacity)) buckets and recomputes SweepLimit.
func (r *Registry) Resize(newCapacity uint64) {
	if newCapacity < r.minCapacity {
		newCapacity = r.minCapacity
	}
	newCapacity = primeutil.NextPrime(newCapacity)

	oldCapacity := r.capacity
	old := r.buckets
	r.setCapacity(newCapacity)

	var rehashed uint64
	for _, head := range old {
		for rec := head; rec != nil; {
			next := rec.next
			rec.next = nil
			idx := bucketIndex(rec.Ptr, r.capacity)
			rec.next = r.buckets[idx]
			r.buckets[idx] = rec
			rehashed++
			rec = next
		}
	}
	if rehashed != r.size {
		panic(errors.Wrapf(ErrCorrupt, "resize rehashed %d records, expected %d", rehashed, r.size))
	}
	if r.onResize != nil {
		r.onResize(oldCapacity, newCapacity)
	}
}

// ForEach walks every live record in bucket-walk order. fn may call Remove
// on the record it was just given (sweep relies on this) but must not
// mutate other buckets.
func (r *Registry) ForEach(fn func(rec *Record)) {
	for _, head := range r.buckets {
		for rec := head; rec != nil; {
			next := rec.next
			fn(rec)
			rec = next
		}
	}
}

// AssertConsistent walks every bucket and confirms Len matches the number
// of records reachable from the bucket array (spec.md invariant I4). It is
// used by tests; Remove does not call it.
func (r *Registry) AssertConsistent() error {
	var n uint64
	seen := make(map[api.Pointer]bool, r.size)
	for _, head := range r.buckets {
		for rec := head; rec != nil; rec = rec.next {
			if seen[rec.Ptr] {
				return errors.Wrapf(ErrCorrupt, "duplicate ptr %#x in chain", rec.Ptr)
			}
			seen[rec.Ptr] = true
			n++
		}
	}
	if n != r.size {
		return errors.Wrapf(ErrCorrupt, "walked %d records, Len()=%d", n, r.size)
	}
	return nil
}
