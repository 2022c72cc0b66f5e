package registry

import "github.com/tinygc/congc/api"

// mix is a 64-bit multiplicative mix with xor-folds (the finalizer from
// Austin Appleby's MurmurHash3). Allocator alignment concentrates the low
// bits of a pointer value, so a plain identity/modulo hash would pile every
// record into a handful of buckets; this mix spreads aligned addresses
// across the whole bucket range.
func mix(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

func bucketIndex(ptr api.Pointer, capacity uint64) uint64 {
	return mix(uint64(ptr)) % capacity
}
