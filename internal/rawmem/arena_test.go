//go:build unix

package rawmem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinygc/congc/api"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	a := NewArena(64 * 1024)
	defer a.Close()

	p := a.Alloc(32)
	require.NotZero(t, p)
	a.Free(p)

	// The freed span should be reusable by a same-size request.
	p2 := a.Alloc(32)
	require.NotZero(t, p2)
	assert.Equal(t, p, p2)
}

func TestAllocZeroSizeNeverCollides(t *testing.T) {
	a := NewArena(64 * 1024)
	defer a.Close()

	p1 := a.Alloc(0)
	p2 := a.Alloc(0)
	require.NotZero(t, p1)
	require.NotZero(t, p2)
	assert.NotEqual(t, p1, p2)
}

func TestReallocGrowShrinkAndCopy(t *testing.T) {
	a := NewArena(64 * 1024)
	defer a.Close()

	p := a.Alloc(16)
	require.NotZero(t, p)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(p))), 16)
	for i := range buf {
		buf[i] = byte(i + 1)
	}

	grown := a.Realloc(p, 4096)
	require.NotZero(t, grown)
	grownBuf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(grown))), 16)
	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(i+1), grownBuf[i], "realloc must preserve the original bytes")
	}

	shrunk := a.Realloc(grown, 8)
	require.NotZero(t, shrunk)
}

func TestReallocNilIsAlloc(t *testing.T) {
	a := NewArena(64 * 1024)
	defer a.Close()

	p := a.Realloc(0, 64)
	assert.NotZero(t, p)
}

func TestReallocUnknownPointerFails(t *testing.T) {
	a := NewArena(64 * 1024)
	defer a.Close()

	assert.Zero(t, a.Realloc(api.Pointer(0xdeadbeef), 8))
}

func TestFreeUnknownPointerIsNoop(t *testing.T) {
	a := NewArena(64 * 1024)
	defer a.Close()
	assert.NotPanics(t, func() {
		a.Free(api.Pointer(0xdeadbeef))
		a.Free(0)
	})
}

func TestGrowAcrossRegions(t *testing.T) {
	a := NewArena(4096)
	defer a.Close()

	var ptrs []api.Pointer
	for i := 0; i < 64; i++ {
		p := a.Alloc(256)
		require.NotZero(t, p)
		ptrs = append(ptrs, p)
	}
	assert.True(t, len(a.regions) > 1, "64*256 bytes should overflow a single 4096-byte region")
	for _, p := range ptrs {
		a.Free(p)
	}
}
