package vm

import (
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/intern"
	"github.com/mna/lispcore/lang/value"
)

// Thread implements compiler.MacroExpander: wire a Thread into
// Compiler.Macros and `(macro ...)` definitions expand at compile time by
// running their compiled body against the unevaluated argument forms.

// IsMacro reports whether the global bound to id holds a lambda or closure
// compiled from a `macro` form, or a value whose quoted symbol carries a
// truthy `:macro` property.
func (th *Thread) IsMacro(id intern.ID) bool {
	if th.Table == nil {
		return false
	}
	slot, ok := th.Table.Lookup(id)
	if !ok {
		return false
	}
	lam, ok := th.Globals.Get(slot).(heap.Handle)
	if !ok {
		return false
	}
	if lam.Kind == heap.KindClosure {
		l, err := th.Heap.ClosureLambda(lam)
		if err != nil {
			return false
		}
		lam = l
	}
	if lam.Kind != heap.KindLambda {
		return false
	}
	if isMacro, err := th.Heap.LambdaIsMacro(lam); err == nil && isMacro {
		return true
	}
	name, _ := th.Interner.Get(id)
	sym := value.NewSymbol(id, name)
	kw := value.NewKeyword(th.Interner.Intern("macro"), "macro")
	if v, ok := th.getProp(sym, kw); ok {
		return value.Truthy(v)
	}
	return false
}

// Expand runs the macro bound to id with the unevaluated argument forms
// and returns the expansion for the compiler to lower in its place.
func (th *Thread) Expand(id intern.ID, args []value.Value) (value.Value, error) {
	slot, ok := th.Table.Lookup(id)
	if !ok {
		name, _ := th.Interner.Get(id)
		return nil, th.vmErrorf("macro %s has no global slot", name)
	}
	return th.Call(th.Globals.Get(slot), args)
}
