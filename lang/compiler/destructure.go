package compiler

import (
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/value"
)

// paramDecl is one parsed parameter or destructuring-pattern slot: either a
// plain symbol to bind, or a nested vector/map pattern to further
// destructure, with an optional default expression when it follows a `%`
// marker.
type paramDecl struct {
	isPattern bool
	sym       value.Symbol
	pattern   value.Value

	optional bool
	def      value.Value // non-nil only when optional and a `:=` default follows
}

// paramSpec is the parsed form of a fn/macro parameter vector or a
// destructuring pattern's element list: required parameters, then `%`-
// marked optional ones, then at most one `&rest` parameter. A bare `&`
// with no name (restAnon) permits trailing elements without binding them.
type paramSpec struct {
	required []paramDecl
	optional []paramDecl
	rest     *paramDecl
	restAnon bool
}

// parseParams walks a parameter vector's elements recognizing the `%`
// (start of optionals), `:=` (default for the preceding optional) and `&`
// (rest parameter) markers. The same grammar lowers both fn/macro
// parameter lists and vector destructuring patterns.
func (c *Compiler) parseParams(elems []value.Value) (*paramSpec, error) {
	sp := c.sp
	spec := &paramSpec{}
	inOptional := false

	i := 0
	for i < len(elems) {
		e := elems[i]
		if sym, ok := e.(value.Symbol); ok {
			switch sym.ID {
			case sp.Percent:
				inOptional = true
				i++
				continue
			case sp.Amp:
				i++
				if i >= len(elems) {
					spec.restAnon = true
					continue
				}
				restSym, ok := elems[i].(value.Symbol)
				if !ok {
					return nil, errf("parameter list: rest parameter must be a symbol")
				}
				spec.rest = &paramDecl{sym: restSym}
				i++
				continue
			case sp.Walrus:
				return nil, errf("parameter list: ':=' without a preceding parameter")
			}
		}

		decl := paramDecl{optional: inOptional}
		switch t := e.(type) {
		case value.Symbol:
			decl.sym = t
		case heap.Handle:
			if t.Kind != heap.KindVector && t.Kind != heap.KindMap {
				return nil, errf("parameter list: invalid parameter form")
			}
			decl.isPattern = true
			decl.pattern = t
		default:
			return nil, errf("parameter list: invalid parameter form")
		}
		i++

		if i < len(elems) {
			if sym, ok := elems[i].(value.Symbol); ok && sym.ID == sp.Walrus {
				if !inOptional {
					return nil, errf("parameter list: ':=' default without a preceding '%%'")
				}
				i++
				if i >= len(elems) {
					return nil, errf("parameter list: ':=' must be followed by a default expression")
				}
				decl.def = elems[i]
				i++
			}
		}

		if inOptional {
			spec.optional = append(spec.optional, decl)
		} else {
			spec.required = append(spec.required, decl)
		}
	}
	return spec, nil
}

// compileDestructure lowers a vector or map pattern, binding every name it
// contains by reading out of the value already sitting in srcReg.
func (c *Compiler) compileDestructure(f *fstate, pattern value.Value, srcReg int32) error {
	hd, ok := pattern.(heap.Handle)
	if !ok {
		return errf("invalid destructuring pattern")
	}
	switch hd.Kind {
	case heap.KindVector:
		return c.compileVectorPattern(f, hd, srcReg)
	case heap.KindMap:
		return c.compileMapPattern(f, hd, srcReg)
	default:
		return errf("invalid destructuring pattern")
	}
}

// emitDestructureRaise emits an ERRNEW/RAISE pair carrying dataReg, the
// failure path for a pattern the source value cannot satisfy.
func (f *fstate) emitDestructureRaise(dataReg int32) {
	errReg := int32(f.syms.AllocReg())
	f.emit(ERRNEW, errReg, f.addConst(f.c.vmErrKW), dataReg)
	f.emit(RAISE, errReg)
}

// compileVectorPattern lowers a `[a b % c := 1 & rest]`-style pattern,
// reusing the exact grammar fn parameter lists use. Required slots read
// with ELEM (out of range raises), optional slots with ELEMU followed by
// the JMPNU default fill-in; without a `&` the source must not hold more
// elements than the pattern names, which is checked at runtime.
func (c *Compiler) compileVectorPattern(f *fstate, hd heap.Handle, srcReg int32) error {
	elems, err := c.Heap.VectorSlice(hd)
	if err != nil {
		return err
	}
	spec, err := c.parseParams(elems)
	if err != nil {
		return err
	}

	idx := int32(0)
	bindOne := func(decl paramDecl, optional bool) error {
		elReg := int32(f.syms.AllocReg())
		if optional {
			f.emit(ELEMU, elReg, srcReg, idx)
		} else {
			f.emit(ELEM, elReg, srcReg, idx)
		}
		idx++
		if optional {
			jmp := f.emit(JMPNU, elReg, 0)
			if decl.def != nil {
				if err := c.compileExpr(f, decl.def, elReg); err != nil {
					return err
				}
			} else {
				f.emit(CONST, elReg, f.addConst(value.Nil))
			}
			f.patchTo(jmp, f.here())
		}
		if decl.isPattern {
			return c.compileDestructure(f, decl.pattern, elReg)
		}
		f.syms.Bind(decl.sym.ID, decl.sym.Name, int(elReg))
		return nil
	}

	for _, decl := range spec.required {
		if err := bindOne(decl, false); err != nil {
			return err
		}
	}
	for _, decl := range spec.optional {
		if err := bindOne(decl, true); err != nil {
			return err
		}
	}
	switch {
	case spec.rest != nil:
		restReg := int32(f.syms.AllocReg())
		f.emit(RESTFROM, restReg, srcReg, idx)
		f.syms.Bind(spec.rest.sym.ID, spec.rest.sym.Name, int(restReg))
	case spec.restAnon:
		// trailing elements allowed, nothing bound
	default:
		lenReg := int32(f.syms.AllocReg())
		f.emit(LENGTH, lenReg, srcReg)
		maxReg := int32(f.syms.AllocReg())
		f.emit(CONST, maxReg, f.addConst(value.Int(idx)))
		cmpReg := int32(f.syms.AllocReg())
		f.emit(GT, cmpReg, lenReg, maxReg)
		j := f.emit(JMPF, cmpReg, 0)
		f.emitDestructureRaise(srcReg)
		f.patchTo(j, f.here())
	}
	return nil
}

// compileMapPattern lowers a `{a :a, b :b}`-style pattern: each key in the
// pattern map is the local name to bind (or a nested pattern), and each
// value is the key to look up in the source. A missing key raises at
// runtime; the source may be an actual map, or any sequence read either by
// integer index or as alternating key/value entries (see the vm's MGET).
func (c *Compiler) compileMapPattern(f *fstate, hd heap.Handle, srcReg int32) error {
	var firstErr error
	err := c.Heap.MapEach(hd, func(target, key value.Value) bool {
		keyReg := int32(f.syms.AllocReg())
		f.emit(CONST, keyReg, f.addConst(key))
		elReg := int32(f.syms.AllocReg())
		f.emit(MGET, elReg, srcReg, keyReg)
		jmp := f.emit(JMPNU, elReg, 0)
		f.emitDestructureRaise(keyReg)
		f.patchTo(jmp, f.here())

		switch t := target.(type) {
		case value.Symbol:
			f.syms.Bind(t.ID, t.Name, int(elReg))
		case heap.Handle:
			if t.Kind == heap.KindVector || t.Kind == heap.KindMap {
				if derr := c.compileDestructure(f, t, elReg); derr != nil {
					firstErr = derr
					return false
				}
				return true
			}
			firstErr = errf("map pattern: key must be a symbol or nested pattern")
			return false
		default:
			firstErr = errf("map pattern: key must be a symbol or nested pattern")
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return firstErr
}
