//go:build unix

package congc_test

import (
	"fmt"

	"github.com/tinygc/congc"
	"github.com/tinygc/congc/api"
)

// Example demonstrates allocating a block, dropping every reference to it,
// and reclaiming it with an explicit Run.
func Example() {
	gc := congc.New(nil)
	defer gc.Stop()

	// the returned address is never stored anywhere congc scans as a
	// root, so it is unreachable the moment this call returns.
	gc.MallocExt(64, func(api.Pointer) { fmt.Println("finalized") })

	reclaimed, err := gc.Run()
	if err != nil {
		fmt.Println("run error:", err)
		return
	}
	fmt.Println("reclaimed:", reclaimed)
	// Output:
	// finalized
	// reclaimed: 64
}
