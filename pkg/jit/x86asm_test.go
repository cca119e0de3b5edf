package jit

import (
	"bytes"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *Assembler)
		want []byte
	}{
		{"mov cx, 0x1234", func(a *Assembler) { a.Mov16RegImm(RCX, 0x1234) }, []byte{0x66, 0xB9, 0x34, 0x12}},
		{"mov r9w, 1", func(a *Assembler) { a.Mov16RegImm(R9, 1) }, []byte{0x66, 0x41, 0xB9, 0x01, 0x00}},
		{"mov dx, cx", func(a *Assembler) { a.Mov16RegReg(RDX, RCX) }, []byte{0x66, 0x89, 0xCA}},
		{"mov rbp, rsp", func(a *Assembler) { a.MovRegReg(RBP, RSP) }, []byte{0x48, 0x89, 0xE5}},
		{"mov rax, imm64", func(a *Assembler) { a.MovRegImm64(RAX, 0x1122334455667788) },
			[]byte{0x48, 0xB8, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}},
		{"mov eax, 7", func(a *Assembler) { a.Mov32RegImm(RAX, 7) }, []byte{0xB8, 0x07, 0x00, 0x00, 0x00}},
		{"add cx, 3", func(a *Assembler) { a.Add16RegImm(RCX, 3) }, []byte{0x66, 0x81, 0xC1, 0x03, 0x00}},
		{"shl ecx, 3", func(a *Assembler) { a.Shl32RegImm8(RCX, 3) }, []byte{0xC1, 0xE1, 0x03}},
		{"mov dword [rax], 0x40", func(a *Assembler) { a.Mov32MemImm(RAX, 0, 0x40) },
			[]byte{0xC7, 0x00, 0x40, 0x00, 0x00, 0x00}},
		{"mov [rax], ecx", func(a *Assembler) { a.Mov32MemReg(RAX, 0, RCX) }, []byte{0x89, 0x08}},
		{"mov [rax], cx", func(a *Assembler) { a.Mov16MemReg(RAX, 0, RCX) }, []byte{0x66, 0x89, 0x08}},
		{"movzx rcx, word [rax]", func(a *Assembler) { a.MovzxRegMem16(RCX, RAX, 0) },
			[]byte{0x48, 0x0F, 0xB7, 0x08}},
		{"movups xmm1, [rax]", func(a *Assembler) { a.MovupsRegMem(1, RAX, 0) }, []byte{0x0F, 0x10, 0x08}},
		{"movups [rax], xmm9", func(a *Assembler) { a.MovupsMemReg(RAX, 0, 9) }, []byte{0x44, 0x0F, 0x11, 0x08}},
		{"mov [rax+8], rbx", func(a *Assembler) { a.Mov64MemReg(RAX, 8, RBX) }, []byte{0x48, 0x89, 0x58, 0x08}},
		{"mov rbx, [rax+8]", func(a *Assembler) { a.Mov64RegMem(RBX, RAX, 8) }, []byte{0x48, 0x8B, 0x58, 0x08}},
		{"call rax", func(a *Assembler) { a.CallReg(RAX) }, []byte{0xFF, 0xD0}},
		{"push rbp", func(a *Assembler) { a.Push(RBP) }, []byte{0x55}},
		{"pop rbp", func(a *Assembler) { a.Pop(RBP) }, []byte{0x5D}},
		{"push r12", func(a *Assembler) { a.Push(R12) }, []byte{0x41, 0x54}},
		{"ret", func(a *Assembler) { a.Ret() }, []byte{0xC3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(make([]byte, 64))
			tt.emit(a)
			if !bytes.Equal(a.Bytes(), tt.want) {
				t.Errorf("emitted % x, want % x", a.Bytes(), tt.want)
			}
		})
	}
}

// Every primitive must decode as exactly one instruction with the expected
// mnemonic.
func TestEncodingsDecode(t *testing.T) {
	tests := []struct {
		emit func(a *Assembler)
		op   x86asm.Op
	}{
		{func(a *Assembler) { a.Mov16RegImm(RCX, 0x1234) }, x86asm.MOV},
		{func(a *Assembler) { a.Mov16RegReg(RDX, RCX) }, x86asm.MOV},
		{func(a *Assembler) { a.MovRegImm64(RAX, 0xDEADBEEF) }, x86asm.MOV},
		{func(a *Assembler) { a.Add16RegImm(RCX, 3) }, x86asm.ADD},
		{func(a *Assembler) { a.Shl32RegImm8(RCX, 3) }, x86asm.SHL},
		{func(a *Assembler) { a.MovzxRegMem16(RCX, RAX, 0) }, x86asm.MOVZX},
		{func(a *Assembler) { a.MovupsRegMem(1, RAX, 0) }, x86asm.MOVUPS},
		{func(a *Assembler) { a.MovupsMemReg(RAX, 0, 9) }, x86asm.MOVUPS},
		{func(a *Assembler) { a.CallReg(RAX) }, x86asm.CALL},
		{func(a *Assembler) { a.Push(RBP) }, x86asm.PUSH},
		{func(a *Assembler) { a.Ret() }, x86asm.RET},
	}

	for _, tt := range tests {
		a := NewAssembler(make([]byte, 64))
		tt.emit(a)
		inst, err := x86asm.Decode(a.Bytes(), 64)
		if err != nil {
			t.Errorf("decode % x: %v", a.Bytes(), err)
			continue
		}
		if inst.Op != tt.op {
			t.Errorf("decoded % x as %v, want %v", a.Bytes(), inst.Op, tt.op)
		}
		if inst.Len != a.Offset() {
			t.Errorf("decoded % x: length %d, emitted %d", a.Bytes(), inst.Len, a.Offset())
		}
	}
}
