//go:build linux && amd64

package jit

import (
	"fmt"

	"vujit/pkg/vu"
)

const numPhysRegs = 16

// regSlot tracks what one physical register currently holds.
type regSlot struct {
	inUse  bool
	locked bool
	vreg   int
	age    uint32
}

type bankKind int

const (
	bankInt bankKind = iota
	bankVec
)

// regBank is one fixed bank of physical register slots. The integer bank
// maps 16 virtual registers onto 16 GPRs (two of them locked); the vector
// bank maps 32 virtual registers onto 16 XMM slots, so eviction is routine.
type regBank struct {
	kind       bankKind
	name       string
	slots      [numPhysRegs]regSlot
	numVirtual int
}

func (bank *regBank) reset() {
	for i := range bank.slots {
		bank.slots[i] = regSlot{}
	}
}

// allocReg returns a physical register bound to the given virtual register.
// Shared by both banks; only the flush/load instruction pair differs.
//
// If a slot already holds vreg it is returned as is. Otherwise every in-use
// slot ages by one, then the victim is the first free non-locked slot, or
// failing that the non-locked slot with the strictly highest age. An in-use
// victim is flushed to guest state before rebinding. When loadState is false
// the register's content is left undefined and the caller must fully
// overwrite it.
func (b *Backend) allocReg(v *vu.VectorUnit, bank *regBank, vreg int, loadState bool) (Reg, error) {
	if vreg < 0 || vreg >= bank.numVirtual {
		return 0, fmt.Errorf("jit: %s register %d out of range (bank holds %d)", bank.name, vreg, bank.numVirtual)
	}

	for i := range bank.slots {
		if bank.slots[i].inUse && bank.slots[i].vreg == vreg {
			return Reg(i), nil
		}
	}

	for i := range bank.slots {
		if bank.slots[i].inUse {
			bank.slots[i].age++
		}
	}

	victim := 0
	oldest := uint32(0)
	for i := range bank.slots {
		if bank.slots[i].locked {
			continue
		}
		if !bank.slots[i].inUse {
			victim = i
			break
		}
		if bank.slots[i].age > oldest {
			victim = i
			oldest = bank.slots[i].age
		}
	}

	if bank.slots[victim].inUse {
		b.flushSlot(v, bank, Reg(victim))
	}

	if loadState {
		b.loadSlot(v, bank, Reg(victim), vreg)
	}

	bank.slots[victim] = regSlot{inUse: true, vreg: vreg}
	return Reg(victim), nil
}

func (b *Backend) allocIntReg(v *vu.VectorUnit, vreg int, loadState bool) (Reg, error) {
	return b.allocReg(v, &b.intBank, vreg, loadState)
}

func (b *Backend) allocVecReg(v *vu.VectorUnit, vreg int, loadState bool) (Reg, error) {
	return b.allocReg(v, &b.vecBank, vreg, loadState)
}

// flushSlot writes the physical register's value back to the guest-state
// location of its currently bound virtual register.
func (b *Backend) flushSlot(v *vu.VectorUnit, bank *regBank, phys Reg) {
	vreg := bank.slots[phys].vreg
	switch bank.kind {
	case bankInt:
		b.asm.LoadAddr(RAX, v.IntRegAddr(vreg))
		b.asm.Mov16MemReg(RAX, 0, phys)
	case bankVec:
		b.asm.LoadAddr(RAX, v.VecRegAddr(vreg))
		b.asm.MovupsMemReg(RAX, 0, phys)
	}
}

// loadSlot loads the guest-state value of vreg into the physical register.
func (b *Backend) loadSlot(v *vu.VectorUnit, bank *regBank, phys Reg, vreg int) {
	switch bank.kind {
	case bankInt:
		b.asm.LoadAddr(RAX, v.IntRegAddr(vreg))
		b.asm.MovzxRegMem16(phys, RAX, 0)
	case bankVec:
		b.asm.LoadAddr(RAX, v.VecRegAddr(vreg))
		b.asm.MovupsRegMem(phys, RAX, 0)
	}
}

// flushRegs writes every live register in both banks back to guest state and
// releases all slots. Virtual register 0 is hardwired in each bank and never
// flushed.
func (b *Backend) flushRegs(v *vu.VectorUnit) {
	for _, bank := range []*regBank{&b.intBank, &b.vecBank} {
		for i := range bank.slots {
			if !bank.slots[i].inUse {
				continue
			}
			if bank.slots[i].vreg != 0 {
				b.flushSlot(v, bank, Reg(i))
			}
			bank.slots[i].inUse = false
			bank.slots[i].age = 0
		}
	}
}
