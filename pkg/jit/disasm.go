package jit

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disasm formats generated code one instruction per line, for debug dumps
// and encoder tests.
func Disasm(code []byte, entry uint64) string {
	var sb strings.Builder
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			fmt.Fprintf(&sb, "%016x: db %02x\n", entry+uint64(off), code[off])
			off++
			continue
		}
		fmt.Fprintf(&sb, "%016x: %s\n", entry+uint64(off), x86asm.IntelSyntax(inst, entry+uint64(off), nil))
		off += inst.Len
	}
	return sb.String()
}
