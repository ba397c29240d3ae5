package compiler

import "github.com/mna/lispcore/lang/intern"

// scopeKind classifies where a Symbols table sits in the lexical nest.
// There is no separate resolver pass: the compiler walks a Value form
// directly, so local/free/global classification happens inline as each
// symbol reference is compiled.
type scopeKind uint8

const (
	scopeFunction scopeKind = iota // a fn/macro body: owns registers, a capture list
	scopeLet                       // a let body: introduces registers in the parent function's frame
)

// capture records one free variable a chunk closes over: name/id for
// debugging plus the register in the *enclosing* frame holding the value's
// cell.
type capture struct {
	id       intern.ID
	name     string
	srcReg   int // register in the enclosing frame holding the captured cell
	localReg int // register in this chunk's own frame that CLOSE populates
}

// Symbols is the compile-time scope chain: a mapping from interned symbol
// id to register index, one per lexical scope, chained to its parent. The
// register-vs-free/global classification happens by walking this chain
// outward at reference time instead of in a separate resolver pass.
type Symbols struct {
	kind   scopeKind
	parent *Symbols // enclosing scope; nil only for the outermost function scope of a chunk... see fn below
	fn     *Symbols // nearest enclosing scopeFunction (== self if kind == scopeFunction)

	names map[intern.ID]int // interned id -> register index, this scope only
	order []intern.ID       // insertion order, for destructuring/debug

	// only meaningful when kind == scopeFunction:
	outerFn    *Symbols // nearest enclosing scopeFunction, nil at the top level
	captures   []capture
	capturedBy map[intern.ID]int // id -> index into captures, memoized
	nextReg    int                // next free register in this function's frame
}

// NewFunctionScope creates the root Symbols table for a new chunk.
// Register 0 is reserved for the frame's result/first parameter.
func NewFunctionScope(parent *Symbols) *Symbols {
	s := &Symbols{
		kind:       scopeFunction,
		parent:     parent,
		names:      make(map[intern.ID]int),
		capturedBy: make(map[intern.ID]int),
		nextReg:    1,
	}
	s.fn = s
	if parent != nil {
		s.outerFn = parent.fn
	}
	return s
}

// NewLetScope creates a child scope for a `let` body: it shares its parent
// function's register allocator (registers are not reused across lets in
// the same function; CLRREG-ing them after exit only clears GC roots, not
// the indices) but starts a fresh name lookup layer so let bindings shadow
// without clobbering the parent's register for the same name.
func NewLetScope(parent *Symbols) *Symbols {
	return &Symbols{
		kind:   scopeLet,
		parent: parent,
		fn:     parent.fn,
		names:  make(map[intern.ID]int),
	}
}

// AllocReg reserves and returns the next free register in the enclosing
// function's frame.
func (s *Symbols) AllocReg() int {
	fn := s.fn
	r := fn.nextReg
	fn.nextReg++
	return r
}

// IsBound reports whether id is lexically bound anywhere in the scope
// chain, without recording a capture the way Resolve would.
func (s *Symbols) IsBound(id intern.ID) bool {
	for sc := s; sc != nil; sc = sc.parent {
		if _, ok := sc.names[id]; ok {
			return true
		}
	}
	return false
}

// Bind introduces name into this scope at register reg.
func (s *Symbols) Bind(id intern.ID, name string, reg int) {
	if s.names == nil {
		s.names = make(map[intern.ID]int)
	}
	if _, ok := s.names[id]; !ok {
		s.order = append(s.order, id)
	}
	s.names[id] = reg
}

// refKind is the outcome of resolving a symbol reference.
type refKind uint8

const (
	refUnbound refKind = iota
	refLocal           // bound in the current function's scope chain: reg is valid directly
	refFree            // bound in an enclosing function: needs a capture
	refGlobal          // not lexically bound: falls through to a global slot
)

// Resolve classifies how name should be referenced from scope s. For a
// refFree result, it has already threaded a capture through every
// intermediate function scope between s's function and the one that binds
// id (a closure of a closure), and the returned register is local to s's
// own function -- the caller never needs to walk the chain itself.
func (s *Symbols) Resolve(id intern.ID, name string) (refKind, int) {
	for sc := s; sc != nil; sc = sc.parent {
		if reg, ok := sc.names[id]; ok {
			if sc.fn == s.fn {
				return refLocal, reg
			}
			return refFree, captureThroughChain(s.fn, sc.fn, id, name, reg)
		}
	}
	return refUnbound, 0
}

// captureThroughChain ensures fn, and every function scope strictly between
// fn and target, has a capture for id, threading the register through each
// intervening CLOSE. srcReg is id's register in target's own frame.
func captureThroughChain(fn, target *Symbols, id intern.ID, name string, srcReg int) int {
	if fn == target {
		return srcReg
	}
	outerReg := captureThroughChain(fn.outerFn, target, id, name, srcReg)
	return fn.AddCapture(id, name, outerReg)
}

// AddCapture records that this chunk (scope s's function) closes over id,
// whose value lives in register srcReg of the immediately enclosing
// function's frame. It memoizes by id so repeated references share one
// capture slot, and returns the local register that CLOSE will populate
// with the capture's cell.
func (s *Symbols) AddCapture(id intern.ID, name string, srcReg int) int {
	fn := s.fn
	if idx, ok := fn.capturedBy[id]; ok {
		return fn.captures[idx].localReg
	}
	idx := len(fn.captures)
	reg := fn.AllocReg()
	fn.captures = append(fn.captures, capture{id: id, name: name, srcReg: srcReg, localReg: reg})
	fn.capturedBy[id] = idx
	fn.Bind(id, name, reg)
	return reg
}

// Captures returns the capture list in slot order (source registers in the
// enclosing frame), for Chunk.Captures.
func (s *Symbols) Captures() []capture { return s.fn.captures }
