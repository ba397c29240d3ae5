package compiler

import "fmt"

// Increment this to force recompilation of saved bytecode files.
const Version = 0

// Opcode identifies one register-machine instruction. Every opcode that
// touches data names its operand registers explicitly; there is no
// implicit operand stack.
type Opcode uint8

//nolint:revive
const (
	NOP Opcode = iota

	// WIDE is not a real instruction: it is a one-byte prefix that doubles
	// the width of every operand of the instruction that immediately
	// follows it, from one byte to two (big-endian). It lets most code stay
	// compact (register counts and small constant tables fit in a byte)
	// while still reaching a 16-bit constant table or register file when a
	// function is unusually large.
	WIDE

	// data movement
	CONST  // CONST dst, k        dst = constants[k]
	MOV    // MOV dst, src        dst = src (replaces; never writes through a cell)
	SET    // SET dst, src        *dst = src (writes through a cell if dst holds one)
	BMOV   // BMOV dst, src, n    regs[dst:dst+n] = regs[src:src+n], used to shuffle args down for a tail call
	CLRREG // CLRREG r            regs[r] = Undefined

	// control flow
	JMP   // JMP off             pc += off
	JMPT  // JMPT r, off         pc += off if truthy(regs[r])
	JMPF  // JMPF r, off         pc += off if falsy(regs[r])
	JMPNU // JMPNU r, off        pc += off if regs[r] != Undefined
	RET   // RET r               return regs[r], no defers run (used when the body has none)
	SRET  // SRET r              run this frame's defers (LIFO), then return regs[r]

	// calls
	CALL    // CALL callee, argc, result    args occupy regs[callee+1:callee+1+argc]
	TCALL   // TCALL callee, argc           tail call: reuses the current frame
	CALLG   // CALLG argStart, global, argc, result   callee is a known global slot
	TCALLG  // TCALLG global, argc          args are already shuffled to regs[1:]
	CALLM   // CALLM argStart, argc, result self-recursive call via the running chunk/closure
	TCALLM  // TCALLM argc                  args are already shuffled to regs[1:]
	CLOSE   // CLOSE dst, src               materialize a closure from the lambda at src
	DEFER   // DEFER src                    register regs[src] (a lambda) as a defer thunk
	DFRPOP  // DFRPOP                       pop and run one defer of the current frame
	CALLCC  // CALLCC dst, f                capture the call chain as a continuation, call f with it

	// arithmetic / bitwise
	ADD
	SUB
	MUL
	DIV
	IDIV // integer/floor division
	MOD
	BAND
	BOR
	BXOR
	SHL
	SHR
	NEG    // NEG dst, a       dst = -a
	BNOT   // BNOT dst, a      dst = ^a
	NOT    // NOT dst, a       dst = !truthy(a)
	LENGTH // LENGTH dst, a    dst = #a

	// comparison / equality
	LT
	LE
	GT
	GE
	EQ  // structural equality (aggregates), bit-identity for floats
	NEQ

	// list/pair
	LIST // LIST dst, start, end    allocate a proper list from regs[start:end]
	APND // APND dst, start, end    concatenate list-like regs[start:end] (last may be an improper tail)
	XAR  // XAR pair, val           mutate car; Nil auto-promotes to a fresh pair
	XDR  // XDR pair, val           mutate cdr; Nil auto-promotes to a fresh pair

	// generic sequence access, used to lower destructuring patterns over
	// any sequence-like value (vector, list, string) without caring which
	ELEM     // ELEM dst, src, idx        dst = src[idx], src may be vector/list/string; out of range is an error
	ELEMU    // ELEMU dst, src, idx       like ELEM but out of range yields Undefined (optional pattern slots)
	RESTFROM // RESTFROM dst, src, idx    dst = a List view of src from idx onward

	// vector
	VEC  // VEC dst, start, end     allocate a vector from regs[start:end]
	VGET // VGET dst, vec, idx
	VSET // VSET vec, idx, val
	VLEN // VLEN dst, vec

	// map
	MAPNEW // MAPNEW dst
	MGET   // MGET dst, map, key
	MSET   // MSET map, key, val
	MLEN   // MLEN dst, map

	// bytes
	BYTESNEW // BYTESNEW dst, start, end
	BGET     // BGET dst, bytes, idx
	BSET     // BSET bytes, idx, val
	BLEN     // BLEN dst, bytes

	// property access
	GETPROP // GETPROP dst, obj, key
	SETPROP // SETPROP obj, key, val

	// globals
	GLOBAL    // GLOBAL dst, slot
	SETGLOBAL // SETGLOBAL slot, src

	// errors
	ERRNEW // ERRNEW dst, keyword_k, data   build an Error value, does not raise it
	RAISE  // RAISE r                       raise regs[r] (an Error), unwinding to the nearest handler

	OpcodeMax = RAISE
)

// operandCounts gives the number of operands each opcode takes, so the
// encoder/decoder never needs a per-opcode special case beyond this table.
// Jump instructions are the one exception: their last operand is a signed
// offset rather than an index, handled by isJump below.
var operandCounts = [...]int8{
	NOP:    0,
	WIDE:   0,
	CONST:  2,
	MOV:    2,
	SET:    2,
	BMOV:   3,
	CLRREG: 1,

	JMP:   1,
	JMPT:  2,
	JMPF:  2,
	JMPNU: 2,
	RET:   1,
	SRET:  1,

	CALL:   3,
	TCALL:  2,
	CALLG:  4,
	TCALLG: 2,
	CALLM:  3,
	TCALLM: 1,
	CLOSE:  2,
	DEFER:  1,
	DFRPOP: 0,
	CALLCC: 2,

	ADD: 3, SUB: 3, MUL: 3, DIV: 3, IDIV: 3, MOD: 3,
	BAND: 3, BOR: 3, BXOR: 3, SHL: 3, SHR: 3,
	NEG: 2, BNOT: 2, NOT: 2, LENGTH: 2,

	LT: 3, LE: 3, GT: 3, GE: 3, EQ: 3, NEQ: 3,

	LIST: 3, APND: 3, XAR: 2, XDR: 2,

	ELEM: 3, ELEMU: 3, RESTFROM: 3,

	VEC: 3, VGET: 3, VSET: 3, VLEN: 2,

	MAPNEW: 1, MGET: 3, MSET: 3, MLEN: 2,

	BYTESNEW: 3, BGET: 3, BSET: 3, BLEN: 2,

	GETPROP: 3, SETPROP: 3,

	GLOBAL: 2, SETGLOBAL: 2,

	ERRNEW: 3, RAISE: 1,
}

// isJump reports whether op's last operand is a relative pc offset
// (signed) rather than a register/constant/slot index (unsigned).
func isJump(op Opcode) bool {
	switch op {
	case JMP, JMPT, JMPF, JMPNU:
		return true
	}
	return false
}

var opcodeNames = [...]string{
	NOP: "nop", WIDE: "wide",
	CONST: "const", MOV: "mov", SET: "set", BMOV: "bmov", CLRREG: "clrreg",
	JMP: "jmp", JMPT: "jmpt", JMPF: "jmpf", JMPNU: "jmpnu", RET: "ret", SRET: "sret",
	CALL: "call", TCALL: "tcall", CALLG: "callg", TCALLG: "tcallg",
	CALLM: "callm", TCALLM: "tcallm", CLOSE: "close", DEFER: "defer", DFRPOP: "dfrpop",
	CALLCC: "callcc",
	ADD:    "add", SUB: "sub", MUL: "mul", DIV: "div", IDIV: "idiv", MOD: "mod",
	BAND: "band", BOR: "bor", BXOR: "bxor", SHL: "shl", SHR: "shr",
	NEG: "neg", BNOT: "bnot", NOT: "not", LENGTH: "length",
	LT: "lt", LE: "le", GT: "gt", GE: "ge", EQ: "eq", NEQ: "neq",
	LIST: "list", APND: "apnd", XAR: "xar", XDR: "xdr",
	ELEM: "elem", ELEMU: "elemu", RESTFROM: "restfrom",
	VEC: "vec", VGET: "vget", VSET: "vset", VLEN: "vlen",
	MAPNEW: "mapnew", MGET: "mget", MSET: "mset", MLEN: "mlen",
	BYTESNEW: "bytesnew", BGET: "bget", BSET: "bset", BLEN: "blen",
	GETPROP: "getprop", SETPROP: "setprop",
	GLOBAL: "global", SETGLOBAL: "setglobal",
	ERRNEW: "errnew", RAISE: "raise",
}

var reverseLookupOpcode = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, s := range opcodeNames {
		if s != "" {
			m[s] = Opcode(op)
		}
	}
	return m
}()

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("illegal op (%d)", op)
}

func (op Opcode) numOperands() int {
	if int(op) < len(operandCounts) {
		return int(operandCounts[op])
	}
	return 0
}

// NumOperands is numOperands exported for package vm, which needs it to size
// a decoded instruction's encoded width (see vm's codeLen).
func (op Opcode) NumOperands() int { return op.numOperands() }
