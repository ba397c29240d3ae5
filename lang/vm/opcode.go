package vm

import "github.com/mna/lispcore/lang/compiler"

// Opcode aliases compiler.Opcode so the dispatch loop in run.go can switch
// on bare mnemonics (CONST, MOV, CALL, ...) instead of qualifying every case
// with compiler.; the chunk bytecode it decodes is produced by package
// compiler and the two packages must agree on exactly one opcode set.
type Opcode = compiler.Opcode

const (
	NOP    = compiler.NOP
	WIDE   = compiler.WIDE
	CONST  = compiler.CONST
	MOV    = compiler.MOV
	SET    = compiler.SET
	BMOV   = compiler.BMOV
	CLRREG = compiler.CLRREG

	JMP   = compiler.JMP
	JMPT  = compiler.JMPT
	JMPF  = compiler.JMPF
	JMPNU = compiler.JMPNU
	RET   = compiler.RET
	SRET  = compiler.SRET

	CALL   = compiler.CALL
	TCALL  = compiler.TCALL
	CALLG  = compiler.CALLG
	TCALLG = compiler.TCALLG
	CALLM  = compiler.CALLM
	TCALLM = compiler.TCALLM
	CLOSE  = compiler.CLOSE
	DEFER  = compiler.DEFER
	DFRPOP = compiler.DFRPOP
	CALLCC = compiler.CALLCC

	ADD    = compiler.ADD
	SUB    = compiler.SUB
	MUL    = compiler.MUL
	DIV    = compiler.DIV
	IDIV   = compiler.IDIV
	MOD    = compiler.MOD
	BAND   = compiler.BAND
	BOR    = compiler.BOR
	BXOR   = compiler.BXOR
	SHL    = compiler.SHL
	SHR    = compiler.SHR
	NEG    = compiler.NEG
	BNOT   = compiler.BNOT
	NOT    = compiler.NOT
	LENGTH = compiler.LENGTH

	LT  = compiler.LT
	LE  = compiler.LE
	GT  = compiler.GT
	GE  = compiler.GE
	EQ  = compiler.EQ
	NEQ = compiler.NEQ

	LIST = compiler.LIST
	APND = compiler.APND
	XAR  = compiler.XAR
	XDR  = compiler.XDR

	ELEM     = compiler.ELEM
	ELEMU    = compiler.ELEMU
	RESTFROM = compiler.RESTFROM

	VEC  = compiler.VEC
	VGET = compiler.VGET
	VSET = compiler.VSET
	VLEN = compiler.VLEN

	MAPNEW = compiler.MAPNEW
	MGET   = compiler.MGET
	MSET   = compiler.MSET
	MLEN   = compiler.MLEN

	BYTESNEW = compiler.BYTESNEW
	BGET     = compiler.BGET
	BSET     = compiler.BSET
	BLEN     = compiler.BLEN

	GETPROP = compiler.GETPROP
	SETPROP = compiler.SETPROP

	GLOBAL    = compiler.GLOBAL
	SETGLOBAL = compiler.SETGLOBAL

	ERRNEW = compiler.ERRNEW
	RAISE  = compiler.RAISE
)
