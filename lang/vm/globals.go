package vm

import "github.com/mna/lispcore/lang/value"

// Globals holds the runtime value assigned to each slot compiler.GlobalTable
// hands out. It is the runtime half of compiler.GlobalTable: the compiler
// only ever assigns and remembers slot numbers, the VM is the one that
// actually stores values in them. Property metadata attached to a global's
// name (the `:macro` tag, user doc strings) is not stored here: it goes
// through GETPROP/SETPROP against the quoted Symbol value itself, in the
// Thread's general-purpose property table (see props.go).
type Globals struct {
	values []value.Value
}

// NewGlobals returns a Globals with every slot initialized to
// value.Undefined, so referencing a global before its `def` has run fails
// the same way an unassigned local would.
func NewGlobals() *Globals {
	return &Globals{}
}

// grow extends the backing slice so slot is valid, filling new slots with
// value.Undefined. Slots are handed out densely by compiler.GlobalTable, so
// this only ever appends.
func (g *Globals) grow(slot int) {
	for len(g.values) <= slot {
		g.values = append(g.values, value.Undefined)
	}
}

func (g *Globals) Get(slot int) value.Value {
	if slot < 0 || slot >= len(g.values) {
		return value.Undefined
	}
	return g.values[slot]
}

func (g *Globals) Set(slot int, v value.Value) {
	g.grow(slot)
	g.values[slot] = v
}

// Roots returns every global value currently assigned, used by the VM to
// seed Heap.Collect's root set alongside the live register stack.
func (g *Globals) Roots() []value.Value {
	out := make([]value.Value, len(g.values))
	copy(out, g.values)
	return out
}
