package compiler

import (
	"github.com/mna/lispcore/lang/intern"
	"github.com/mna/lispcore/lang/value"
)

// Operator heads (+, -, <, equal?, band, list, ...) compile straight to
// their typed opcodes rather than through the call machinery: the operand
// registers are named in the instruction, so no frame push, no arity
// record, no builtin table entry.

// operatorForm dispatches sym as an operator head, reporting false when it
// is not one.
func (c *Compiler) operatorForm(f *fstate, symID intern.ID, args []value.Value, dest int32) (bool, error) {
	sp := c.sp
	switch symID {
	case sp.Add:
		return true, c.compileChain(f, args, dest, ADD, NOP)
	case sp.Sub:
		return true, c.compileChain(f, args, dest, SUB, NEG)
	case sp.Mul:
		return true, c.compileChain(f, args, dest, MUL, NOP)
	case sp.Div:
		return true, c.compileChain(f, args, dest, DIV, NOP)
	case sp.IDiv:
		return true, c.compileChain(f, args, dest, IDIV, NOP)
	case sp.Mod:
		return true, c.compileBinOp(f, args, dest, MOD)
	case sp.BAnd:
		return true, c.compileChain(f, args, dest, BAND, NOP)
	case sp.BOr:
		return true, c.compileChain(f, args, dest, BOR, NOP)
	case sp.BXor:
		return true, c.compileChain(f, args, dest, BXOR, NOP)
	case sp.Shl:
		return true, c.compileBinOp(f, args, dest, SHL)
	case sp.Shr:
		return true, c.compileBinOp(f, args, dest, SHR)
	case sp.BNot:
		return true, c.compileUnOp(f, args, dest, BNOT)
	case sp.NumEq, sp.EqualP:
		return true, c.compileBinOp(f, args, dest, EQ)
	case sp.NumNeq:
		return true, c.compileBinOp(f, args, dest, NEQ)
	case sp.Lt:
		return true, c.compileBinOp(f, args, dest, LT)
	case sp.Le:
		return true, c.compileBinOp(f, args, dest, LE)
	case sp.Gt:
		return true, c.compileBinOp(f, args, dest, GT)
	case sp.Ge:
		return true, c.compileBinOp(f, args, dest, GE)
	case sp.Not:
		return true, c.compileUnOp(f, args, dest, NOT)
	case sp.Len:
		return true, c.compileUnOp(f, args, dest, LENGTH)
	case sp.List:
		return true, c.compileRange(f, args, dest, LIST)
	case sp.Vec:
		return true, c.compileRange(f, args, dest, VEC)
	case sp.XarBang:
		return true, c.compileXarBang(f, args, dest, XAR)
	case sp.XdrBang:
		return true, c.compileXarBang(f, args, dest, XDR)
	}
	return false, nil
}

// compileChain lowers a variadic left-fold: (+ a b c) becomes two ADDs
// accumulating into one register. A single operand is the value itself,
// except when unary is set (so (- a) negates).
func (c *Compiler) compileChain(f *fstate, args []value.Value, dest int32, op, unary Opcode) error {
	if len(args) == 0 {
		return errf("%s: want at least 1 form", op)
	}
	f.tail = false
	if len(args) == 1 {
		if unary != NOP {
			a := int32(f.syms.AllocReg())
			if err := c.compileExpr(f, args[0], a); err != nil {
				return err
			}
			f.emit(unary, dest, a)
			return nil
		}
		return c.compileExpr(f, args[0], dest)
	}
	acc := int32(f.syms.AllocReg())
	if err := c.compileExpr(f, args[0], acc); err != nil {
		return err
	}
	for _, a := range args[1:] {
		t := int32(f.syms.AllocReg())
		if err := c.compileExpr(f, a, t); err != nil {
			return err
		}
		f.emit(op, acc, acc, t)
	}
	f.emit(MOV, dest, acc)
	return nil
}

func (c *Compiler) compileBinOp(f *fstate, args []value.Value, dest int32, op Opcode) error {
	if len(args) != 2 {
		return errf("%s: want 2 forms, got %d", op, len(args))
	}
	f.tail = false
	block := f.reserveRegs(2)
	for i, a := range args {
		if err := c.compileExpr(f, a, block[i]); err != nil {
			return err
		}
	}
	f.emit(op, dest, block[0], block[1])
	return nil
}

func (c *Compiler) compileUnOp(f *fstate, args []value.Value, dest int32, op Opcode) error {
	if len(args) != 1 {
		return errf("%s: want 1 form, got %d", op, len(args))
	}
	f.tail = false
	a := int32(f.syms.AllocReg())
	if err := c.compileExpr(f, args[0], a); err != nil {
		return err
	}
	f.emit(op, dest, a)
	return nil
}

// compileRange lowers LIST/VEC: every element into one contiguous reserved
// block, then a single allocation over the register range.
func (c *Compiler) compileRange(f *fstate, args []value.Value, dest int32, op Opcode) error {
	f.tail = false
	if len(args) == 0 {
		f.emit(op, dest, 0, 0)
		return nil
	}
	block := f.reserveRegs(len(args))
	for i, a := range args {
		if err := c.compileExpr(f, a, block[i]); err != nil {
			return err
		}
	}
	f.emit(op, dest, block[0], block[0]+int32(len(args)))
	return nil
}

// compileXarBang lowers (xar! p v)/(xdr! p v): the mutated pair is also
// the form's result.
func (c *Compiler) compileXarBang(f *fstate, args []value.Value, dest int32, op Opcode) error {
	if len(args) != 2 {
		return errf("%s: want 2 forms, got %d", op, len(args))
	}
	f.tail = false
	block := f.reserveRegs(2)
	for i, a := range args {
		if err := c.compileExpr(f, a, block[i]); err != nil {
			return err
		}
	}
	f.emit(op, block[0], block[1])
	f.emit(MOV, dest, block[0])
	return nil
}
