//go:build linux && amd64

package jit

import (
	"fmt"

	"vujit/pkg/vu"
)

// System V AMD64 integer/pointer argument registers, in calling-convention
// order. There is no spill-to-stack fallback; helpers take at most six.
var abiArgRegs = [6]Reg{RDI, RSI, RDX, RCX, R8, R9}

// stageIntArg materializes a literal integer/pointer argument into the next
// argument register for an in-progress host call. If the allocator currently
// has that register bound to a virtual register, the binding is flushed to
// guest state and released first so the call cannot corrupt live guest state.
func (b *Backend) stageIntArg(v *vu.VectorUnit, value uint64) error {
	if b.abiIntCount >= len(abiArgRegs) {
		return fmt.Errorf("jit: abi integer arguments exceeded %d", len(abiArgRegs))
	}

	arg := abiArgRegs[b.abiIntCount]
	if slot := &b.intBank.slots[arg]; slot.inUse {
		b.flushSlot(v, &b.intBank, arg)
		slot.inUse = false
		slot.age = 0
	}

	b.asm.MovRegImm64(arg, value)
	b.abiIntCount++
	return nil
}

// invokeHost emits a call to a helper at a fixed host address and resets the
// staging counters so the next call in the same block starts fresh. The
// target address is materialized through RAX rather than a rel32 call since
// arbitrary host addresses are not guaranteed within ±2 GiB of the cache.
func (b *Backend) invokeHost(addr uintptr) {
	b.asm.MovRegImm64(RAX, uint64(addr))
	b.asm.CallReg(RAX)
	b.abiIntCount = 0
	b.abiXMMCount = 0
}
