// Command congc is a small demonstration host: it builds a singly linked
// list of cons cells directly inside a congc-managed arena, drops a
// prefix of the list, runs a collection, and reports what survived. It
// exercises New, RootSlot, SetRootRange, Malloc, Live, Run and Stop; the
// other Collector methods are not called here — mirroring the teacher's
// own cmd/wazero demo CLI.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tinygc/congc"
	"github.com/tinygc/congc/api"
)

var ptrSize = unsafe.Sizeof(uintptr(0))

// cons is the demo's list handle. Each cell it allocates is two words,
// [car, cdr]: car holds the cell's integer value and cdr the raw address
// of the next cell (0 meaning nil) inside the arena the demo's Collector
// owns.
type cons struct {
	gc   *congc.Collector
	root uintptr // one-word root window holding the head of the list
}

func newCons(gc *congc.Collector) *cons {
	// carve a one-word root window straight out of the collector's own
	// raw allocator; this is the demo's stand-in for a VM operand stack
	// slot (see SPEC_FULL.md §0).
	root := gc.RootSlot()
	gc.SetRootRange(root, root+ptrSize)
	return &cons{gc: gc, root: root}
}

func (c *cons) head() api.Pointer    { return api.Pointer(readWord(c.root)) }
func (c *cons) setHead(p api.Pointer) { writeWord(c.root, uintptr(p)) }

func (c *cons) push(value int) api.Pointer {
	cell := c.gc.Malloc(2 * ptrSize)
	writeWord(uintptr(cell), uintptr(value))
	writeWord(uintptr(cell)+ptrSize, uintptr(c.head()))
	c.setHead(cell)
	return cell
}

func (c *cons) len() int {
	n := 0
	for p := c.head(); p != 0; p = api.Pointer(readWord(uintptr(p) + ptrSize)) {
		n++
	}
	return n
}

// dropPrefix advances the root past the first n cells, making them (and
// anything only reachable through them) eligible for collection.
func (c *cons) dropPrefix(n int) {
	p := c.head()
	for i := 0; i < n && p != 0; i++ {
		p = api.Pointer(readWord(uintptr(p) + ptrSize))
	}
	c.setHead(p)
}

func readWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr)) //nolint:govet
}

func writeWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v //nolint:govet
}

func newRootCommand() *cobra.Command {
	var (
		cellCount  int
		dropCount  int
		verbose    bool
		sweepEvery float64
	)

	cmd := &cobra.Command{
		Use:   "congc",
		Short: "Demonstrate the congc conservative mark-and-sweep collector",
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := logrus.New()
			if verbose {
				logger.SetLevel(logrus.TraceLevel)
			}

			gc := congc.New(congc.NewConfig().
				WithSweepFactor(sweepEvery).
				WithLogger(logger))
			defer func() {
				reclaimed, err := gc.Stop()
				if err != nil {
					fmt.Fprintln(os.Stderr, "stop:", err)
					return
				}
				fmt.Printf("stop: reclaimed %d bytes\n", reclaimed)
			}()

			list := newCons(gc)
			for i := 0; i < cellCount; i++ {
				list.push(i)
			}
			fmt.Printf("built a list of %d cells (%d live allocations)\n", list.len(), gc.Live())

			list.dropPrefix(dropCount)
			fmt.Printf("dropped %d cells from the head; %d remain reachable\n", dropCount, list.len())

			reclaimed, err := gc.Run()
			if err != nil {
				return err
			}
			fmt.Printf("run: reclaimed %d bytes, %d live allocations remain\n", reclaimed, gc.Live())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cellCount, "cells", 64, "number of cons cells to allocate")
	flags.IntVar(&dropCount, "drop", 32, "number of cells to drop from the head before collecting")
	flags.Float64Var(&sweepEvery, "sweep-factor", congc.DefaultSweepFactor, "registry load factor that triggers an automatic collection")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every collection cycle and resize at trace level")

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
