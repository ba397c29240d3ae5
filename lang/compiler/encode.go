package compiler

// Instruction encoding: one opcode byte, optionally preceded by a WIDE
// prefix byte, followed by that opcode's operands. Each operand normally
// occupies one byte; a WIDE prefix doubles every operand of the
// instruction it precedes to two bytes, big-endian. A jump instruction's *last* operand is its relative
// pc offset (signed); every other operand (e.g. JMPT/JMPF/JMPNU's tested
// register) is an ordinary unsigned index. Jump instructions are always
// emitted WIDE, so a one-pass compiler can reserve a fixed-width
// placeholder and patch it in once the jump target is known, without
// having to grow or shrink already-emitted code.

// EmitOp appends one instruction to code and returns the extended slice
// along with the byte offset of its jump-offset operand if op is a jump
// (for later patching via PatchOperand), or -1 otherwise.
func EmitOp(code []byte, op Opcode, operands ...int32) (out []byte, jumpOperandOff int) {
	n := op.numOperands()
	if len(operands) != n {
		panic("compiler: wrong operand count for " + op.String())
	}
	jump := isJump(op)
	wide := jump
	if !wide {
		for _, v := range operands {
			if v < 0 || v > 0xff {
				wide = true
				break
			}
		}
	}
	if wide {
		code = append(code, byte(WIDE))
	}
	code = append(code, byte(op))
	jumpOperandOff = -1
	for i, v := range operands {
		if jump && i == n-1 {
			jumpOperandOff = len(code)
		}
		if wide {
			code = append(code, byte(uint16(v)>>8), byte(uint16(v)))
		} else {
			code = append(code, byte(uint8(v)))
		}
	}
	return code, jumpOperandOff
}

// PatchOperand overwrites the 2-byte signed operand at byte offset off
// (as returned by EmitOp for a jump instruction) with v.
func PatchOperand(code []byte, off int, v int32) {
	code[off] = byte(uint16(v) >> 8)
	code[off+1] = byte(uint16(v))
}

// DecodeOp reads one instruction starting at pc, returning its opcode, up
// to 4 operands, and the pc of the following instruction.
func DecodeOp(code []byte, pc uint32) (op Opcode, operands [4]int32, next uint32) {
	wide := false
	op = Opcode(code[pc])
	pc++
	if op == WIDE {
		wide = true
		op = Opcode(code[pc])
		pc++
	}
	n := op.numOperands()
	jump := isJump(op)
	for i := 0; i < n; i++ {
		var v int32
		if wide {
			v = int32(uint16(code[pc])<<8 | uint16(code[pc+1]))
			if jump && i == n-1 {
				v = int32(int16(v))
			}
			pc += 2
		} else {
			v = int32(code[pc])
			pc++
		}
		operands[i] = v
	}
	next = pc
	return op, operands, next
}
