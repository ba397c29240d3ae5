package compiler

import "github.com/mna/lispcore/lang/intern"

// specials interns, once per Compiler, the well-known symbols that the
// expression dispatcher matches the head of a list form against, plus
// the destructuring markers recognized in parameter lists and
// let/vector/map patterns.
type specials struct {
	Fn, Macro, Def, SetBang, Let, If                    intern.ID
	Quote, Quasiquote, Unquote, UnquoteSplice            intern.ID
	Do, And, Or, Defer, OnError, While, Return, CallCC intern.ID
	ThisFn, GetProp, SetProp, Err                         intern.ID
	Percent, Walrus, Amp                                  intern.ID

	// operator heads, compiled straight to their typed opcodes
	Add, Sub, Mul, Div, IDiv, Mod                   intern.ID
	BAnd, BOr, BXor, Shl, Shr, BNot                 intern.ID
	NumEq, NumNeq, Lt, Le, Gt, Ge, EqualP, Not, Len intern.ID
	List, Vec, XarBang, XdrBang                     intern.ID
}

func newSpecials(it *intern.Table) *specials {
	return &specials{
		Fn:             it.Intern("fn"),
		Macro:          it.Intern("macro"),
		Def:            it.Intern("def"),
		SetBang:        it.Intern("set!"),
		Let:            it.Intern("let"),
		If:             it.Intern("if"),
		Quote:          it.Intern("quote"),
		Quasiquote:     it.Intern("quasiquote"),
		Unquote:        it.Intern("unquote"),
		UnquoteSplice:  it.Intern("unquote-splice"),
		Do:             it.Intern("do"),
		And:            it.Intern("and"),
		Or:             it.Intern("or"),
		Defer:          it.Intern("defer"),
		OnError:        it.Intern("on-error"),
		While:          it.Intern("while"),
		Return:         it.Intern("return"),
		CallCC:         it.Intern("call/cc"),
		ThisFn:         it.Intern("this-fn"),
		GetProp:        it.Intern("get-prop"),
		SetProp:        it.Intern("set-prop"),
		Err:            it.Intern("err"),
		Percent:        it.Intern("%"),
		Walrus:         it.Intern(":="),
		Amp:            it.Intern("&"),

		Add:    it.Intern("+"),
		Sub:    it.Intern("-"),
		Mul:    it.Intern("*"),
		Div:    it.Intern("/"),
		IDiv:   it.Intern("//"),
		Mod:    it.Intern("rem"),
		BAnd:   it.Intern("band"),
		BOr:    it.Intern("bor"),
		BXor:   it.Intern("bxor"),
		Shl:    it.Intern("shl"),
		Shr:    it.Intern("shr"),
		BNot:   it.Intern("bnot"),
		NumEq:  it.Intern("="),
		NumNeq: it.Intern("/="),
		Lt:     it.Intern("<"),
		Le:     it.Intern("<="),
		Gt:     it.Intern(">"),
		Ge:     it.Intern(">="),
		EqualP: it.Intern("equal?"),
		Not:    it.Intern("not"),
		Len:    it.Intern("len"),
		List:   it.Intern("list"),
		Vec:    it.Intern("vec"),
		XarBang: it.Intern("xar!"),
		XdrBang: it.Intern("xdr!"),
	}
}
