package congc

import (
	"github.com/sirupsen/logrus"

	"github.com/tinygc/congc/api"
)

// Defaults mirror spec.md §4.5's start() defaults.
const (
	DefaultInitialCapacity    = 1024
	DefaultMinCapacity        = 1024
	DefaultDownsizeLoadFactor = 0.2
	DefaultUpsizeLoadFactor   = 0.8
	DefaultSweepFactor        = 0.5
)

// Config is the collector's construction-time configuration, the Go
// analogue of spec.md §4.5's start_ext options. Build one with NewConfig
// and chain the With* setters, mirroring the teacher's fluent
// RuntimeConfig.
type Config struct {
	initialCapacity    uint64
	minCapacity        uint64
	downsizeLoadFactor float64
	upsizeLoadFactor   float64
	sweepFactor        float64
	rootLow, rootHigh  uintptr
	rawAllocator       api.RawAllocator
	rawRegionSize      int
	logger             *logrus.Logger
}

// NewConfig returns a Config set to spec.md's start() defaults.
func NewConfig() *Config {
	return &Config{
		initialCapacity:    DefaultInitialCapacity,
		minCapacity:        DefaultMinCapacity,
		downsizeLoadFactor: DefaultDownsizeLoadFactor,
		upsizeLoadFactor:   DefaultUpsizeLoadFactor,
		sweepFactor:        DefaultSweepFactor,
	}
}

// WithInitialCapacity sets the registry's starting capacity floor.
func (c *Config) WithInitialCapacity(n uint64) *Config { c.initialCapacity = n; return c }

// WithMinCapacity sets the registry's capacity floor; it is never resized
// below NextPrime(n).
func (c *Config) WithMinCapacity(n uint64) *Config { c.minCapacity = n; return c }

// WithDownsizeLoadFactor sets the load factor below which Remove/sweep may
// shrink the registry.
func (c *Config) WithDownsizeLoadFactor(f float64) *Config { c.downsizeLoadFactor = f; return c }

// WithUpsizeLoadFactor sets the load factor above which Put grows the
// registry.
func (c *Config) WithUpsizeLoadFactor(f float64) *Config { c.upsizeLoadFactor = f; return c }

// WithSweepFactor sets the factor used to compute the registry's sweep
// trigger from its capacity.
func (c *Config) WithSweepFactor(f float64) *Config { c.sweepFactor = f; return c }

// WithRootRange sets the initial root scan window — see SPEC_FULL.md §0 for
// why this replaces spec.md's host-stack-introspecting bos. Hosts whose
// root window moves call (*Collector).SetRootRange after construction.
func (c *Config) WithRootRange(lo, hi uintptr) *Config { c.rootLow, c.rootHigh = lo, hi; return c }

// WithRawAllocator overrides the default mmap-backed arena with a
// caller-supplied api.RawAllocator.
func (c *Config) WithRawAllocator(a api.RawAllocator) *Config { c.rawAllocator = a; return c }

// WithRawRegionSize sets the growth chunk size for the default arena.
// Ignored if WithRawAllocator was also used.
func (c *Config) WithRawRegionSize(n int) *Config { c.rawRegionSize = n; return c }

// WithLogger overrides the collector's logrus.Logger. A nil logger (the
// default) uses logrus.StandardLogger().
func (c *Config) WithLogger(l *logrus.Logger) *Config { c.logger = l; return c }
