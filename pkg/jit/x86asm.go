package jit

import "encoding/binary"

// Reg is an x86-64 register encoding. The same values name the XMM bank
// (0 = XMM0 .. 15 = XMM15) when passed to the MOVUPS primitives.
type Reg byte

const (
	RAX Reg = 0
	RCX Reg = 1
	RDX Reg = 2
	RBX Reg = 3
	RSP Reg = 4
	RBP Reg = 5
	RSI Reg = 6
	RDI Reg = 7
	R8  Reg = 8
	R9  Reg = 9
	R10 Reg = 10
	R11 Reg = 11
	R12 Reg = 12
	R13 Reg = 13
	R14 Reg = 14
	R15 Reg = 15
)

// Assembler appends x86-64 machine code to a fixed buffer. Every primitive
// emits exactly one host instruction.
type Assembler struct {
	buf    []byte
	offset int
}

func NewAssembler(buf []byte) *Assembler {
	return &Assembler{buf: buf}
}

// Offset returns the current write position.
func (a *Assembler) Offset() int {
	return a.offset
}

// Bytes returns the code emitted so far.
func (a *Assembler) Bytes() []byte {
	return a.buf[:a.offset]
}

func (a *Assembler) emit(bytes ...byte) {
	copy(a.buf[a.offset:], bytes)
	a.offset += len(bytes)
}

func (a *Assembler) emitUint16(v uint16) {
	binary.LittleEndian.PutUint16(a.buf[a.offset:], v)
	a.offset += 2
}

func (a *Assembler) emitUint32(v uint32) {
	binary.LittleEndian.PutUint32(a.buf[a.offset:], v)
	a.offset += 4
}

func (a *Assembler) emitUint64(v uint64) {
	binary.LittleEndian.PutUint64(a.buf[a.offset:], v)
	a.offset += 8
}

// rex builds a REX prefix: 0100WRXB.
func rex(w, r, x, b bool) byte {
	var prefix byte = 0x40
	if w {
		prefix |= 0x08
	}
	if r {
		prefix |= 0x04
	}
	if x {
		prefix |= 0x02
	}
	if b {
		prefix |= 0x01
	}
	return prefix
}

// rexW returns the REX.W prefix for a 64-bit reg/rm pair.
func rexW(reg, rm Reg) byte {
	return rex(true, reg >= 8, false, rm >= 8)
}

// modRM builds a ModR/M byte. mod is pre-shifted: 0x00 = no disp,
// 0x40 = disp8, 0x80 = disp32, 0xC0 = register direct.
func modRM(mod byte, reg, rm Reg) byte {
	return mod | ((byte(reg) & 7) << 3) | (byte(rm) & 7)
}

// emitMemOperand emits ModR/M (plus SIB and displacement where the base
// register demands them) for a [base+disp] operand.
func (a *Assembler) emitMemOperand(reg, base Reg, disp int32) {
	if base == RSP || base == R12 {
		if disp == 0 {
			a.emit(modRM(0x00, reg, RSP), 0x24)
		} else if disp >= -128 && disp <= 127 {
			a.emit(modRM(0x40, reg, RSP), 0x24, byte(disp))
		} else {
			a.emit(modRM(0x80, reg, RSP), 0x24)
			a.emitUint32(uint32(disp))
		}
	} else if base == RBP || base == R13 {
		if disp >= -128 && disp <= 127 {
			a.emit(modRM(0x40, reg, base), byte(disp))
		} else {
			a.emit(modRM(0x80, reg, base))
			a.emitUint32(uint32(disp))
		}
	} else if disp == 0 {
		a.emit(modRM(0x00, reg, base))
	} else if disp >= -128 && disp <= 127 {
		a.emit(modRM(0x40, reg, base), byte(disp))
	} else {
		a.emit(modRM(0x80, reg, base))
		a.emitUint32(uint32(disp))
	}
}

// LoadAddr materializes a 64-bit literal host address: mov reg, imm64.
func (a *Assembler) LoadAddr(reg Reg, addr uintptr) {
	a.MovRegImm64(reg, uint64(addr))
}

// MovRegImm64: mov reg, imm64
func (a *Assembler) MovRegImm64(reg Reg, imm uint64) {
	a.emit(rex(true, false, false, reg >= 8), 0xB8|byte(reg&7))
	a.emitUint64(imm)
}

// Mov32RegImm: mov reg32, imm32 (zero-extends into the full register)
func (a *Assembler) Mov32RegImm(reg Reg, imm uint32) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xB8 | byte(reg&7))
	a.emitUint32(imm)
}

// Mov16RegImm: mov reg16, imm16
func (a *Assembler) Mov16RegImm(reg Reg, imm uint16) {
	a.emit(0x66)
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xB8 | byte(reg&7))
	a.emitUint16(imm)
}

// Mov16RegReg: mov dst16, src16
func (a *Assembler) Mov16RegReg(dst, src Reg) {
	a.emit(0x66)
	if dst >= 8 || src >= 8 {
		a.emit(rex(false, src >= 8, false, dst >= 8))
	}
	a.emit(0x89, modRM(0xC0, src, dst))
}

// MovRegReg: mov dst, src (64-bit)
func (a *Assembler) MovRegReg(dst, src Reg) {
	a.emit(rexW(src, dst), 0x89, modRM(0xC0, src, dst))
}

// Add16RegImm: add reg16, imm16
func (a *Assembler) Add16RegImm(reg Reg, imm uint16) {
	a.emit(0x66)
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x81, modRM(0xC0, 0, reg))
	a.emitUint16(imm)
}

// Shl32RegImm8: shl reg32, imm8
func (a *Assembler) Shl32RegImm8(reg Reg, imm byte) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xC1, modRM(0xC0, 4, reg), imm)
}

// Mov64RegMem: mov reg, [base+disp] (64-bit load)
func (a *Assembler) Mov64RegMem(reg, base Reg, disp int32) {
	a.emit(rexW(reg, base), 0x8B)
	a.emitMemOperand(reg, base, disp)
}

// Mov64MemReg: mov [base+disp], reg (64-bit store)
func (a *Assembler) Mov64MemReg(base Reg, disp int32, reg Reg) {
	a.emit(rexW(reg, base), 0x89)
	a.emitMemOperand(reg, base, disp)
}

// Mov32MemReg: mov [base+disp], reg32
func (a *Assembler) Mov32MemReg(base Reg, disp int32, reg Reg) {
	if reg >= 8 || base >= 8 {
		a.emit(rex(false, reg >= 8, false, base >= 8))
	}
	a.emit(0x89)
	a.emitMemOperand(reg, base, disp)
}

// Mov32MemImm: mov dword [base+disp], imm32
func (a *Assembler) Mov32MemImm(base Reg, disp int32, imm uint32) {
	if base >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xC7)
	a.emitMemOperand(0, base, disp)
	a.emitUint32(imm)
}

// Mov16MemReg: mov [base+disp], reg16
func (a *Assembler) Mov16MemReg(base Reg, disp int32, reg Reg) {
	a.emit(0x66)
	if reg >= 8 || base >= 8 {
		a.emit(rex(false, reg >= 8, false, base >= 8))
	}
	a.emit(0x89)
	a.emitMemOperand(reg, base, disp)
}

// MovzxRegMem16: movzx reg, word [base+disp] (zero-extends to 64-bit)
func (a *Assembler) MovzxRegMem16(reg, base Reg, disp int32) {
	a.emit(rexW(reg, base), 0x0F, 0xB7)
	a.emitMemOperand(reg, base, disp)
}

// MovupsRegMem: movups xmm, [base+disp] (128-bit unaligned load)
func (a *Assembler) MovupsRegMem(xmm, base Reg, disp int32) {
	if xmm >= 8 || base >= 8 {
		a.emit(rex(false, xmm >= 8, false, base >= 8))
	}
	a.emit(0x0F, 0x10)
	a.emitMemOperand(xmm, base, disp)
}

// MovupsMemReg: movups [base+disp], xmm (128-bit unaligned store)
func (a *Assembler) MovupsMemReg(base Reg, disp int32, xmm Reg) {
	if xmm >= 8 || base >= 8 {
		a.emit(rex(false, xmm >= 8, false, base >= 8))
	}
	a.emit(0x0F, 0x11)
	a.emitMemOperand(xmm, base, disp)
}

// CallReg: call reg
func (a *Assembler) CallReg(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF, modRM(0xC0, 2, reg))
}

// Push: push reg
func (a *Assembler) Push(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 | byte(reg&7))
}

// Pop: pop reg
func (a *Assembler) Pop(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 | byte(reg&7))
}

// Ret: ret
func (a *Assembler) Ret() {
	a.emit(0xC3)
}
