//go:build unix

package congc

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinygc/congc/api"
	"github.com/tinygc/congc/internal/registry"
)

const ptrSize = unsafe.Sizeof(uintptr(0))

func writeWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v //nolint:govet
}

// newRootWindow carves nwords of raw, unmanaged memory from c's own
// allocator to stand in for the host's operand stack / locals, and points
// the collector's root range at it.
func newRootWindow(t *testing.T, c *Collector, nwords int) uintptr {
	t.Helper()
	base := c.raw.Alloc(uintptr(nwords) * ptrSize)
	require.NotZero(t, base)
	for i := 0; i < nwords; i++ {
		writeWord(uintptr(base)+uintptr(i)*ptrSize, 0)
	}
	c.SetRootRange(uintptr(base), uintptr(base)+uintptr(nwords)*ptrSize)
	return uintptr(base)
}

func fixedFactorConfig() *Config {
	return NewConfig().
		WithMinCapacity(37).
		WithInitialCapacity(37).
		WithUpsizeLoadFactor(math.Inf(1)).
		WithDownsizeLoadFactor(0).
		WithSweepFactor(math.Inf(1))
}

// S4 — Full cycle reclaims unreachable graph.
func TestRunReclaimsUnreachableGraph(t *testing.T) {
	c := New(fixedFactorConfig())
	defer c.Stop()

	stack := newRootWindow(t, c, 1)

	const n = 16
	root := c.Malloc(uintptr(n) * ptrSize)
	require.NotZero(t, root)
	writeWord(stack, uintptr(root))

	var destroyed int
	for i := 0; i < n; i++ {
		leaf := c.MallocExt(uintptr(unsafe.Sizeof(int(0))), func(api.Pointer) { destroyed++ })
		require.NotZero(t, leaf)
		writeWord(uintptr(root)+uintptr(i)*ptrSize, uintptr(leaf))
	}

	assert.Equal(t, uint64(17), c.Live())

	writeWord(stack, 0) // drop the only reference to root
	reclaimed, err := c.Run()
	require.NoError(t, err)

	want := uint64(n*int(unsafe.Sizeof(int(0))) + n*int(ptrSize))
	assert.Equal(t, want, reclaimed)
	assert.Equal(t, n, destroyed)
	assert.Equal(t, uint64(0), c.Live())
}

// S5 — Static roots survive.
func TestMallocStaticSurvivesUntilUnrooted(t *testing.T) {
	c := New(fixedFactorConfig())
	defer c.Stop()

	var destroyed int
	const n = 256
	for i := 0; i < n; i++ {
		ptr := c.MallocStatic(512, func(api.Pointer) { destroyed++ })
		require.NotZero(t, ptr)
	}

	reclaimed, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), reclaimed)
	assert.Equal(t, 0, destroyed)
	assert.Equal(t, uint64(n), c.Live())

	unrootAll(c)

	reclaimed, err = c.Run()
	require.NoError(t, err)
	assert.Equal(t, uint64(n*512), reclaimed)
	assert.Equal(t, n, destroyed)
	assert.Equal(t, uint64(0), c.Live())
}

// S6 — realloc semantics.
func TestReallocSemantics(t *testing.T) {
	c := New(fixedFactorConfig())
	defer c.Stop()

	assert.Zero(t, c.Realloc(api.Pointer(0xdeadbeef), 2))

	fresh := c.Realloc(0, 42)
	require.NotZero(t, fresh)
	rec, ok := c.reg.Get(fresh)
	require.True(t, ok)
	assert.EqualValues(t, 42, rec.Size)

	p := c.Malloc(16 * ptrSize)
	require.NotZero(t, p)
	same := c.Realloc(p, 16*ptrSize)
	require.NotZero(t, same)
	recSame, _ := c.reg.Get(same)
	assert.EqualValues(t, 16*ptrSize, recSame.Size)

	grown := c.Realloc(p, 42*ptrSize)
	require.NotZero(t, grown)
	recGrown, ok := c.reg.Get(grown)
	require.True(t, ok)
	assert.EqualValues(t, 42*ptrSize, recGrown.Size)
}

// S7 — strdup.
func TestStrdupReclaimsExactByteCount(t *testing.T) {
	c := New(fixedFactorConfig())
	defer c.Stop()

	ptr := c.Strdup("sixteen-char-str")
	require.NotZero(t, ptr)
	rec, ok := c.reg.Get(ptr)
	require.True(t, ok)
	assert.True(t, rec.Leaf())

	reclaimed, err := c.Run()
	require.NoError(t, err)
	assert.EqualValues(t, 17, reclaimed)
}

func TestFreeIsIdempotentAndToleratesForeignPointers(t *testing.T) {
	c := New(fixedFactorConfig())
	defer c.Stop()

	var destroyed int
	p := c.MallocExt(8, func(api.Pointer) { destroyed++ })
	require.NotZero(t, p)

	c.Free(p)
	assert.Equal(t, 1, destroyed)
	c.Free(p) // second free of the same (now foreign) pointer: no-op
	assert.Equal(t, 1, destroyed)

	assert.NotPanics(t, func() { c.Free(api.Pointer(0xdeadbeef)) })
}

func TestPauseSuppressesTriggerButNotExplicitRun(t *testing.T) {
	c := New(NewConfig().
		WithMinCapacity(11).
		WithInitialCapacity(11).
		WithSweepFactor(0.01). // trips almost immediately
		WithUpsizeLoadFactor(math.Inf(1)).
		WithDownsizeLoadFactor(0))
	defer c.Stop()

	c.Pause()
	for i := 0; i < 5; i++ {
		require.NotZero(t, c.Malloc(8))
	}
	assert.Equal(t, uint64(0), c.CyclesRun(), "paused collector must not auto-trigger")

	c.Resume()
	_, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.CyclesRun())
}

func TestMakeStaticNoopOnForeignPointer(t *testing.T) {
	c := New(fixedFactorConfig())
	defer c.Stop()
	assert.NotPanics(t, func() { c.MakeStatic(api.Pointer(0xdeadbeef)) })
}

// unrootAll is a small test helper reaching into the registry to clear
// every ROOT tag, standing in for spec.md's unroot_roots.
func unrootAll(c *Collector) {
	c.reg.ForEach(func(rec *registry.Record) { rec.SetRoot(false) })
}
