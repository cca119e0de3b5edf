//go:build linux && amd64

// vujit compiles and runs a small hand-assembled guest program through the
// JIT backend, then prints the resulting guest state. Set VUJIT_DISASM=1 to
// dump the generated code for each block.
package main

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"

	"vujit/pkg/ir"
	"vujit/pkg/jit"
	"vujit/pkg/vu"
)

// demoTranslator plays the role of the IR translator for a fixed two-block
// program: the entry block seeds some integer registers and jumps; the
// target block consumes them.
type demoTranslator struct{}

func (demoTranslator) Translate(pc uint32, instrMem []byte) (*ir.Block, error) {
	switch pc {
	case 0:
		block := ir.NewBlock(4)
		block.Add(ir.Instruction{Op: ir.LoadConst, Dest: 3, Imm: 0x1234})
		block.Add(ir.Instruction{Op: ir.MoveIntReg, Dest: 4, Source: 3})
		block.Add(ir.Instruction{Op: ir.AddUnsignedImm, Dest: 5, Source: 2, Imm: 0x10})
		block.Add(ir.Instruction{Op: ir.JumpAndLink, JumpDest: 0x40, Dest: 15, ReturnAddr: 0x8})
		return block, nil
	case 0x40:
		block := ir.NewBlock(2)
		block.Add(ir.Instruction{Op: ir.AddUnsignedImm, Dest: 6, Source: 5, Imm: 1})
		block.Add(ir.Instruction{Op: ir.Jump, JumpDest: 0})
		return block, nil
	}
	return nil, fmt.Errorf("no program at $%04X", pc)
}

func main() {
	quanta := env.Int("VUJIT_QUANTA", 2)

	backend, err := jit.New(demoTranslator{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vujit: %v\n", err)
		os.Exit(1)
	}
	defer backend.Free()

	v := vu.New()
	v.IntRegs[2] = 7

	var total uint64
	for i := 0; i < quanta; i++ {
		cycles, err := backend.Run(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vujit: %v\n", err)
			os.Exit(1)
		}
		total += cycles
		fmt.Printf("quantum %d: %d cycles, PC=$%04X\n", i, cycles, v.PC)
	}

	fmt.Printf("total cycles: %d\n", total)
	for i, r := range v.IntRegs {
		if r != 0 {
			fmt.Printf("vi%-2d = %#06x\n", i, r)
		}
	}
}
