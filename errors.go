package congc

import "github.com/pkg/errors"

// ErrRegistryCorrupt is returned by Run and Stop when the allocation
// registry's own bookkeeping is inconsistent with its bucket chains — a
// programmer error per spec.md §7, not a recoverable one. Malloc-family
// calls never return it: their only failure signal is a nil Pointer on
// raw-allocator exhaustion.
var ErrRegistryCorrupt = errors.New("congc: registry corruption detected")
