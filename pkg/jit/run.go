//go:build linux && amd64

package jit

import (
	"runtime"

	"vujit/pkg/vu"
)

// callBlock transfers control to compiled code at entry. Implemented in
// assembly: it preserves every callee-owned host register the generated code
// may clobber (the allocator hands out RBX, RBP, R12-R15 freely), calls the
// entry pointer, restores them in reverse order and returns RAX.
func callBlock(entry uintptr) uint64

// Run is the native entry trampoline invoked once per scheduled guest
// execution quantum: it dispatches to obtain an entry pointer, executes the
// block, and returns the cycle count the guest should be advanced by.
func (b *Backend) Run(v *vu.VectorUnit) (uint64, error) {
	entry, err := b.Execute(v)
	if err != nil {
		return 0, err
	}
	cycles := callBlock(entry)
	// The compiled block reads and writes v through baked-in addresses the
	// collector cannot see.
	runtime.KeepAlive(v)
	return cycles, nil
}
