// Package ir defines the intermediate representation consumed by the JIT
// backend: one Instruction per guest operation, grouped into a Block that
// ends at a guest control-flow boundary.
package ir

// Opcode tags an IR instruction.
type Opcode int

const (
	LoadConst Opcode = iota
	MoveIntReg
	Jump
	JumpAndLink
	JumpIndirect
	AddUnsignedImm
	VMulVectorByScalar
)

func (op Opcode) String() string {
	switch op {
	case LoadConst:
		return "LoadConst"
	case MoveIntReg:
		return "MoveIntReg"
	case Jump:
		return "Jump"
	case JumpAndLink:
		return "JumpAndLink"
	case JumpIndirect:
		return "JumpIndirect"
	case AddUnsignedImm:
		return "AddUnsignedImm"
	case VMulVectorByScalar:
		return "VMulVectorByScalar"
	}
	return "Unknown"
}

// Instruction carries an opcode and its operand fields. Which fields are
// meaningful depends on the opcode.
type Instruction struct {
	Op         Opcode
	Dest       int    // destination register index
	Source     int    // source register index
	Imm        uint16 // immediate operand
	JumpDest   uint32 // absolute jump target
	ReturnAddr uint16 // link value for JumpAndLink
}

// Block is one translation unit: an ordered run of instructions plus the
// precomputed cycle cost of executing them. Instructions are taken in a
// single forward pass; the backing slice is retained so a failed compile can
// be inspected or retried via Rewind.
type Block struct {
	instrs []Instruction
	cursor int
	cycles uint32
}

func NewBlock(cycles uint32) *Block {
	return &Block{cycles: cycles}
}

func (b *Block) Add(instr Instruction) {
	b.instrs = append(b.instrs, instr)
}

// HasNext reports whether instructions remain to be taken.
func (b *Block) HasNext() bool {
	return b.cursor < len(b.instrs)
}

// TakeNext returns the next instruction and advances the cursor.
func (b *Block) TakeNext() Instruction {
	instr := b.instrs[b.cursor]
	b.cursor++
	return instr
}

// CycleCount returns the guest cycles this block accounts for.
func (b *Block) CycleCount() uint32 {
	return b.cycles
}

// Len returns the total number of instructions in the block.
func (b *Block) Len() int {
	return len(b.instrs)
}

// Rewind resets the cursor to the first instruction.
func (b *Block) Rewind() {
	b.cursor = 0
}
