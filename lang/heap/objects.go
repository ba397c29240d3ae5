package heap

import (
	"github.com/dolthub/swiss"
	"github.com/mna/lispcore/lang/value"
)

// pairObj is a cons cell, the building block of lists.
type pairObj struct {
	car, cdr value.Value
}

// vectorObj is a mutable, randomly-indexable sequence.
type vectorObj struct {
	elems []value.Value
}

// mapObj is a hash association from value.Value to value.Value, backed by
// a swiss.Map for lookup with a parallel key slice preserving insertion
// order for iteration.
type mapObj struct {
	m    *swiss.Map[value.Value, value.Value]
	keys []value.Value
}

// bytesObj is a mutable byte string.
type bytesObj struct {
	b []byte
}

// stringObj is a mutable text buffer. Immutable string literals are
// represented by value.StringConst instead and never touch the heap.
type stringObj struct {
	s []byte
}

// lambdaObj is the static template produced once per fn/macro form by the
// compiler: its code plus enough metadata to format and debug it. Code is
// an opaque reference to the compiler's Chunk type; heap cannot import
// package compiler (compiler imports heap to build quoted heap literals),
// so the VM, which imports both, is the only package that type-asserts it
// back.
type lambdaObj struct {
	Code    any
	Name    string
	IsMacro bool
}

// closureObj is a runtime instantiation of a lambdaObj with its captured
// free variables bound to cells.
type closureObj struct {
	Lambda   Handle
	Captures []Handle // each a KindCell handle
}

// frameObj is one activation record, always heap-allocated (rather than a
// plain Go stack) so that call/cc can capture a snapshot of the call chain
// simply by retaining handles to it.
type frameObj struct {
	Closure Handle
	Regs    []value.Value
	Parent  Handle // zero Handle at the toplevel
	PC      uint32

	// Defers is the stack of zero-argument thunks (`defer` bodies) this frame
	// must still run on any exit path, in registration order; unwound LIFO.
	Defers []Handle
}

// continuationObj is an immutable snapshot of a call-frame chain captured
// by call/cc. Invoking it transfers control by splicing this chain back in
// as the thread's call stack.
type continuationObj struct {
	Frames []Handle // innermost first
	Dest   int32    // register in Frames[0] that receives the resumed value
}

// cellObj is an indirection box for a captured variable, shared between the
// defining frame's register slot and every closure that captures it.
type cellObj struct {
	V value.Value
}

// errorObj is a raised condition: a keyword tag plus arbitrary associated
// data, along the lines of Scheme condition objects.
type errorObj struct {
	Keyword string
	Data    value.Value
	Message string
}
