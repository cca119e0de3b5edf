// Package vu models the guest vector unit: program counter, register file
// and instruction memory. It is the ground truth between compiled-block
// executions; the JIT backend reads and writes it through the address
// accessors below.
package vu

import "unsafe"

const (
	NumIntRegs   = 16
	NumVecRegs   = 32
	InstrMemSize = 16 * 1024
)

// VectorUnit is the guest processor state. Integer registers are 16 bits
// wide; vector registers are four packed float32 lanes. Register 0 of each
// bank is architecturally hardwired: vi0 = 0, vf0 = (0, 0, 0, 1).
type VectorUnit struct {
	PC      uint32
	IntRegs [NumIntRegs]uint16
	VecRegs [NumVecRegs][4]float32

	instrMem []byte
}

func New() *VectorUnit {
	v := &VectorUnit{instrMem: make([]byte, InstrMemSize)}
	v.VecRegs[0] = [4]float32{0, 0, 0, 1}
	return v
}

// InstrMem returns the guest instruction memory.
func (v *VectorUnit) InstrMem() []byte {
	return v.instrMem
}

// PCAddr returns the host address of the program counter field. Generated
// code stores jump targets through this address.
func (v *VectorUnit) PCAddr() uintptr {
	return uintptr(unsafe.Pointer(&v.PC))
}

// IntRegAddr returns the host address of integer register i.
func (v *VectorUnit) IntRegAddr(i int) uintptr {
	return uintptr(unsafe.Pointer(&v.IntRegs[i]))
}

// VecRegAddr returns the host address of vector register i.
func (v *VectorUnit) VecRegAddr(i int) uintptr {
	return uintptr(unsafe.Pointer(&v.VecRegs[i]))
}
