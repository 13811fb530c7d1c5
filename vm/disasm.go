package tyvm

import (
	"fmt"
	"strings"
)

// Disassemble renders img as one line per instruction, grouped by
// subroutine (main last, matching the teacher's PrintProgram layout of
// printing each routine's body followed by its terminating Return). Pure
// presentation: it re-decodes operand widths the same way Step does, but
// never executes anything.
func Disassemble(img *BytecodeImage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "; %d subroutine(s), main @%d\n", len(img.Subroutines), img.MainAddress)
	for _, sr := range img.Subroutines {
		name := sr.Name
		if name == "" {
			name = fmt.Sprintf("<anon @%d>", sr.Address)
		}
		fmt.Fprintf(&b, "\n%s:\n", name)
		disassembleBody(&b, img.Bin, sr.Address)
	}
	return b.String()
}

// disassembleBody walks one subroutine's instructions starting at addr and
// stops after printing the first Return it meets. A body placed inline in
// the subroutine (a type-argument default or a Distribute loop body) ends
// with its own Return, so for such subroutines the listing stops there and
// the instructions after that inline body are not printed.
func disassembleBody(b *strings.Builder, bin []byte, addr uint32) {
	ip := addr
	for int(ip) < len(bin) {
		op := Opcode(bin[ip])
		width := op.OperandWidth()
		fmt.Fprintf(b, "  %6d  %-14s", ip, op.String())

		switch op {
		case OpCall, OpTailCall:
			fmt.Fprintf(b, " addr=%d argc=%d", readUint32(bin, ip+1), readUint16(bin, ip+5))
		case OpStringLiteral, OpNumberLiteral, OpBigIntLiteral:
			fmt.Fprintf(b, " %q", readStorage(bin, readUint32(bin, ip+1)))
		case OpFunctionRef, OpJump, OpDistribute, OpSet:
			fmt.Fprintf(b, " %d", readUint32(bin, ip+1))
		case OpJumpCondition:
			fmt.Fprintf(b, " then=%d else=%d", readUint16(bin, ip+1), readUint16(bin, ip+3))
		case OpLoads:
			fmt.Fprintf(b, " frame=%d idx=%d", readUint16(bin, ip+1), readUint16(bin, ip+3))
		case OpInstantiate, OpCallExpression:
			fmt.Fprintf(b, " %d", readUint16(bin, ip+1))
		case OpError:
			fmt.Fprintf(b, " code=%d", readUint16(bin, ip+1))
		}
		b.WriteByte('\n')

		ip += uint32(width) + 1
		if op == OpReturn {
			return
		}
	}
}
