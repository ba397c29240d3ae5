package compiler

import (
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/value"
)

// compileQuote loads its single argument form as a literal constant,
// unevaluated -- legal because every form is already a Value, so "quoting"
// it is just refusing to treat it as code.
func (c *Compiler) compileQuote(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 1 {
		return errf("quote: want 1 form, got %d", len(args))
	}
	f.emit(CONST, dest, f.addConst(args[0]))
	return nil
}

func (c *Compiler) compileQuasiquote(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 1 {
		return errf("quasiquote: want 1 form, got %d", len(args))
	}
	return c.compileQQ(f, args[0], 1, dest)
}

// compileQQ compiles form as a quasiquote template at the given nesting
// depth: mostly a literal, except an (unquote x) at depth 1 evaluates x,
// and nested (quasiquote ...)/(unquote ...) shift the depth. Only proper
// lists and vectors are walked for embedded unquotes; a dotted pair
// template is treated as an opaque literal (unquote inside one is not
// supported).
func (c *Compiler) compileQQ(f *fstate, form value.Value, depth int, dest int32) error {
	hd, ok := form.(heap.Handle)
	if !ok {
		f.emit(CONST, dest, f.addConst(form))
		return nil
	}
	switch hd.Kind {
	case heap.KindVector:
		return c.compileQQVector(f, hd, depth, dest)
	case heap.KindPair:
		if elems, err := c.Heap.ListSlice(hd); err == nil && len(elems) == 2 {
			if sym, ok := elems[0].(value.Symbol); ok {
				switch sym.ID {
				case c.sp.Unquote:
					if depth == 1 {
						f.tail = false
						return c.compileExpr(f, elems[1], dest)
					}
					return c.compileQQWrapped(f, elems[0], elems[1], depth-1, dest)
				case c.sp.Quasiquote:
					return c.compileQQWrapped(f, elems[0], elems[1], depth+1, dest)
				}
			}
		}
		return c.compileQQPair(f, hd, depth, dest)
	default:
		f.emit(CONST, dest, f.addConst(form))
		return nil
	}
}

// compileQQWrapped rebuilds a 2-element (head tail) list whose head is a
// literal symbol (quasiquote/unquote) and whose tail is compiled
// recursively at the adjusted depth -- used when a nested quasiquote or a
// non-splicing-depth unquote must be preserved as data rather than spliced.
func (c *Compiler) compileQQWrapped(f *fstate, head, tail value.Value, depth int, dest int32) error {
	headReg := int32(f.syms.AllocReg())
	f.emit(CONST, headReg, f.addConst(head))
	tailReg := int32(f.syms.AllocReg())
	if err := c.compileQQ(f, tail, depth, tailReg); err != nil {
		return err
	}
	f.emit(LIST, dest, headReg, headReg+2)
	return nil
}

func (c *Compiler) compileQQPair(f *fstate, hd heap.Handle, depth int, dest int32) error {
	elems, err := c.Heap.ListSlice(hd)
	if err != nil {
		// an improper list template: treat as opaque data
		f.emit(CONST, dest, f.addConst(hd))
		return nil
	}

	forms := make([]value.Value, len(elems))
	splice := make([]bool, len(elems))
	anySplice := false
	for i, el := range elems {
		if inner, ok := c.matchUnquoteSplice(el); ok && depth == 1 {
			forms[i] = inner
			splice[i] = true
			anySplice = true
		} else {
			forms[i] = el
		}
	}

	start := int32(f.syms.AllocReg())
	for i := 1; i < len(forms); i++ {
		f.syms.AllocReg()
	}
	for i, form := range forms {
		reg := start + int32(i)
		if splice[i] {
			f.tail = false
			if err := c.compileExpr(f, form, reg); err != nil {
				return err
			}
			continue
		}
		if err := c.compileQQ(f, form, depth, reg); err != nil {
			return err
		}
		if anySplice {
			// wrap as a singleton list so a single APND below can treat
			// every register in range uniformly as a list to concatenate
			f.emit(LIST, reg, reg, reg+1)
		}
	}
	end := start + int32(len(forms))
	if anySplice {
		f.emit(APND, dest, start, end)
	} else {
		f.emit(LIST, dest, start, end)
	}
	return nil
}

// compileQQVector lowers a vector template element by element; splicing
// inside a vector template is not supported.
func (c *Compiler) compileQQVector(f *fstate, hd heap.Handle, depth int, dest int32) error {
	elems, err := c.Heap.VectorSlice(hd)
	if err != nil {
		return err
	}
	if len(elems) == 0 {
		f.emit(VEC, dest, 0, 0)
		return nil
	}
	start := int32(f.syms.AllocReg())
	for i := 1; i < len(elems); i++ {
		f.syms.AllocReg()
	}
	for i, el := range elems {
		if err := c.compileQQ(f, el, depth, start+int32(i)); err != nil {
			return err
		}
	}
	f.emit(VEC, dest, start, start+int32(len(elems)))
	return nil
}

// matchUnquoteSplice reports whether form is syntactically
// (unquote-splice x), returning x.
func (c *Compiler) matchUnquoteSplice(form value.Value) (value.Value, bool) {
	hd, ok := form.(heap.Handle)
	if !ok || hd.Kind != heap.KindPair {
		return nil, false
	}
	elems, err := c.Heap.ListSlice(hd)
	if err != nil || len(elems) != 2 {
		return nil, false
	}
	sym, ok := elems[0].(value.Symbol)
	if !ok || sym.ID != c.sp.UnquoteSplice {
		return nil, false
	}
	return elems[1], true
}
