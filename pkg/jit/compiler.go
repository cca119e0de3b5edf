//go:build linux && amd64

package jit

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"

	"vujit/pkg/ir"
	"vujit/pkg/vu"
)

// Translator converts raw guest instruction words into an IR block for one
// guest basic block. It is supplied by the caller; the backend only consumes
// its output.
type Translator interface {
	Translate(pc uint32, instrMem []byte) (*ir.Block, error)
}

// Backend is one per-guest-context JIT compiler instance: the register
// banks, ABI staging counters and code cache it owns must not be shared
// across concurrent compilations.
type Backend struct {
	cache      *CodeCache
	translator Translator
	asm        *Assembler

	intBank regBank
	vecBank regBank

	abiIntCount int
	abiXMMCount int

	// guest is the state instance compiled blocks bake addresses of. Code
	// compiled for one instance must never be dispatched against another.
	guest *vu.VectorUnit

	disasm bool
}

// New creates a backend with a fresh code cache. The arena size can be
// overridden with VUJIT_CACHE_SIZE; VUJIT_DISASM=1 dumps each compiled block.
func New(translator Translator) (*Backend, error) {
	cache, err := NewCodeCache(env.Int("VUJIT_CACHE_SIZE", DefaultCacheSize))
	if err != nil {
		return nil, err
	}

	b := &Backend{
		cache:      cache,
		translator: translator,
		intBank:    regBank{kind: bankInt, name: "vi", numVirtual: vu.NumIntRegs},
		vecBank:    regBank{kind: bankVec, name: "vf", numVirtual: vu.NumVecRegs},
		disasm:     env.Bool("VUJIT_DISASM"),
	}
	if err := b.Reset(); err != nil {
		cache.Free()
		return nil, err
	}
	return b, nil
}

// Reset clears both register banks, re-locks the permanently reserved
// integer slots, zeroes the ABI staging counters and discards all compiled
// blocks. Called from New and for full cache invalidation.
func (b *Backend) Reset() error {
	b.discardCompileState()
	b.guest = nil
	return b.cache.FlushAll()
}

// discardCompileState drops every register binding and staged ABI argument
// without emitting flushes. Both banks are per-compile state: every block
// starts with them empty, either through the end-of-block flush on success
// or through this on an aborted compile.
func (b *Backend) discardCompileState() {
	b.intBank.reset()
	b.vecBank.reset()

	// RAX is the scratch accumulator every flush/load goes through; RSP is
	// the host stack pointer. Neither may ever be handed out.
	b.intBank.slots[RAX].locked = true
	b.intBank.slots[RSP].locked = true

	b.abiIntCount = 0
	b.abiXMMCount = 0
}

// Free releases the code cache.
func (b *Backend) Free() error {
	return b.cache.Free()
}

func (b *Backend) loadConst(v *vu.VectorUnit, instr ir.Instruction) error {
	dest, err := b.allocIntReg(v, instr.Dest, false)
	if err != nil {
		return err
	}
	b.asm.Mov16RegImm(dest, instr.Imm)
	return nil
}

func (b *Backend) moveIntReg(v *vu.VectorUnit, instr ir.Instruction) error {
	// Destination first: if dest and source are the same virtual register
	// the reuse path hands back one slot before the source load could evict.
	dest, err := b.allocIntReg(v, instr.Dest, false)
	if err != nil {
		return err
	}
	source, err := b.allocIntReg(v, instr.Source, true)
	if err != nil {
		return err
	}
	b.asm.Mov16RegReg(dest, source)
	return nil
}

func (b *Backend) jump(v *vu.VectorUnit, instr ir.Instruction) error {
	// Only the guest PC changes.
	b.asm.LoadAddr(RAX, v.PCAddr())
	b.asm.Mov32MemImm(RAX, 0, instr.JumpDest)
	return nil
}

func (b *Backend) jumpAndLink(v *vu.VectorUnit, instr ir.Instruction) error {
	b.asm.LoadAddr(RAX, v.PCAddr())
	b.asm.Mov32MemImm(RAX, 0, instr.JumpDest)

	link, err := b.allocIntReg(v, instr.Dest, false)
	if err != nil {
		return err
	}
	b.asm.Mov16RegImm(link, instr.ReturnAddr)
	return nil
}

func (b *Backend) jumpIndirect(v *vu.VectorUnit, instr ir.Instruction) error {
	source, err := b.allocIntReg(v, instr.Source, true)
	if err != nil {
		return err
	}

	// Guest instructions are 8 bytes: shift the instruction index held in
	// the register into a byte address.
	b.asm.Shl32RegImm8(source, 3)

	b.asm.LoadAddr(RAX, v.PCAddr())
	b.asm.Mov32MemReg(RAX, 0, source)
	return nil
}

func (b *Backend) addUnsignedImm(v *vu.VectorUnit, instr ir.Instruction) error {
	dest, err := b.allocIntReg(v, instr.Dest, false)
	if err != nil {
		return err
	}
	source, err := b.allocIntReg(v, instr.Source, true)
	if err != nil {
		return err
	}
	b.asm.Mov16RegReg(dest, source)
	b.asm.Add16RegImm(dest, instr.Imm)
	return nil
}

func (b *Backend) mulVectorByScalar(v *vu.VectorUnit, instr ir.Instruction) error {
	// TODO: per-lane multiply-broadcast semantics are not yet defined for
	// this opcode set revision; the destination is reserved so it still
	// participates in eviction and flush.
	_, err := b.allocVecReg(v, instr.Dest, false)
	return err
}

func (b *Backend) compileInstruction(v *vu.VectorUnit, instr ir.Instruction) error {
	switch instr.Op {
	case ir.LoadConst:
		return b.loadConst(v, instr)
	case ir.MoveIntReg:
		return b.moveIntReg(v, instr)
	case ir.Jump:
		return b.jump(v, instr)
	case ir.JumpAndLink:
		return b.jumpAndLink(v, instr)
	case ir.JumpIndirect:
		return b.jumpIndirect(v, instr)
	case ir.AddUnsignedImm:
		return b.addUnsignedImm(v, instr)
	case ir.VMulVectorByScalar:
		return b.mulVectorByScalar(v, instr)
	default:
		return fmt.Errorf("jit: unknown IR instruction %d", instr.Op)
	}
}

// recompileBlock walks every IR instruction of the block in one forward
// pass, emits the native body plus prologue/epilogue, flushes all live
// registers back to guest state, and finalizes the cache buffer. Any opcode
// failure aborts the whole compilation; the buffer is never marked
// executable and never dispatched.
func (b *Backend) recompileBlock(v *vu.VectorUnit, block *ir.Block) (uintptr, error) {
	buf, err := b.cache.AllocBlock(v.PC)
	if err != nil {
		return 0, err
	}
	b.asm = NewAssembler(buf)

	b.asm.Push(RBP)
	b.asm.MovRegReg(RBP, RSP)

	for block.HasNext() {
		instr := block.TakeNext()
		if err := b.compileInstruction(v, instr); err != nil {
			// The dead block's register bindings and arena reservation
			// must not leak into the next compile.
			b.discardCompileState()
			b.cache.ReleaseCurrent()
			return 0, fmt.Errorf("compile block $%04X: %w", v.PC, err)
		}
	}

	b.flushRegs(v)

	// The caller advances guest timing by the value returned in RAX.
	b.asm.Mov32RegImm(RAX, block.CycleCount())

	b.asm.Pop(RBP)
	b.asm.Ret()

	if err := b.cache.MarkExecutable(b.asm.Offset()); err != nil {
		b.cache.ReleaseCurrent()
		return 0, err
	}

	entry := b.cache.CurrentBlockEntry()
	if b.disasm {
		fmt.Fprintf(os.Stderr, "block $%04X:\n%s", v.PC, Disasm(b.cache.CurrentBlockCode(), uint64(entry)))
	}
	return entry, nil
}

// Execute returns the entry pointer of the compiled block for the current
// guest PC, compiling it first on a cache miss. Compilation is deterministic
// per PC and instruction memory snapshot, so a failed compile will fail
// identically on retry; the block should be treated as invalid.
//
// The cache is keyed by PC but the compiled code addresses one specific
// guest instance, so switching instances discards every compiled block.
func (b *Backend) Execute(v *vu.VectorUnit) (uintptr, error) {
	if v != b.guest {
		if b.guest != nil {
			if err := b.cache.FlushAll(); err != nil {
				return 0, err
			}
		}
		b.guest = v
	}

	if entry, ok := b.cache.Find(v.PC); ok {
		return entry, nil
	}

	block, err := b.translator.Translate(v.PC, v.InstrMem())
	if err != nil {
		return 0, fmt.Errorf("translate block $%04X: %w", v.PC, err)
	}
	return b.recompileBlock(v, block)
}
