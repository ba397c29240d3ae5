// Package vm executes compiled chunks on a register-frame interpreter. It
// owns the heap, the interned-name table, global storage and the builtin
// registration table, and is the only package that type-asserts a heap
// lambda's opaque Code field back to *compiler.Chunk (package heap cannot
// import compiler; see heap/lambda.go).
package vm

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/mna/lispcore/lang/compiler"
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/intern"
	"github.com/mna/lispcore/lang/value"
)

// builtinEntry pairs a registered builtin's name with its Go implementation,
// indexed by value.Builtin.ID.
type builtinEntry struct {
	name string
	fn   BuiltinFunc
}

// BuiltinFunc is the signature a native (Go-implemented) function must have
// to be callable from compiled code. Arguments arrive already unreffed; the
// returned value lands in the caller's result register.
type BuiltinFunc func(th *Thread, args []value.Value) (value.Value, error)

// Thread is one execution context: a heap, an interner, global storage,
// the builtin table and the cooperative cancellation/step-budget state.
// A Thread is strictly single-threaded; embedders wanting parallelism run
// one Thread (with its own Heap) per goroutine.
type Thread struct {
	Name string

	Heap     *heap.Heap
	Interner *intern.Table
	Globals  *Globals
	Table    *compiler.GlobalTable

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// MaxSteps bounds the number of instructions this Thread will execute
	// before RunProgram returns an :interrupted error; 0 means unbounded.
	MaxSteps uint64
	// MaxCallDepth bounds the depth of nested non-tail calls (Go recursion
	// through run); 0 means unbounded. NewThread sets it to 10000.
	MaxCallDepth int

	props    *props
	builtins []builtinEntry

	// frameStack mirrors the Go call stack of nested th.run invocations
	// (innermost last), kept explicitly so CALLCC has something concrete to
	// snapshot into a heap.Continuation and so Collect's roots cover every
	// live frame, not just the innermost one run() itself can see.
	frameStack []heap.Handle
	// liveConts tracks which captured continuations are still within their
	// call/cc's dynamic extent (see lang/vm/continuation.go): invoking one
	// after its call/cc has already returned is a :vm error rather than an
	// uncaught panic.
	liveConts map[heap.Handle]bool
	ctx       context.Context
	cancelled atomic.Bool
	steps     uint64
	callDepth int
}

// NewThread returns a ready Thread sharing hp/it/g/table with whatever other
// Threads and the Compiler that produced the chunks it will run. gt may be
// nil only if the embedder never compiles anything referencing globals.
func NewThread(name string, hp *heap.Heap, it *intern.Table, gt *compiler.GlobalTable) *Thread {
	th := &Thread{
		Name:         name,
		Heap:         hp,
		Interner:     it,
		Globals:      NewGlobals(),
		Table:        gt,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Stdin:        os.Stdin,
		MaxCallDepth: 10000,
		props:        newProps(),
		liveConts:    make(map[heap.Handle]bool),
	}
	return th
}

// Cancel requests cooperative interruption: the next instruction boundary
// this Thread reaches returns an :interrupted error instead of continuing.
func (th *Thread) Cancel() { th.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called on this Thread.
func (th *Thread) Cancelled() bool { return th.cancelled.Load() }

// Steps returns the number of instructions executed so far across every
// RunProgram/Call on this Thread.
func (th *Thread) Steps() uint64 { return th.steps }

func (th *Thread) checkCancel() error {
	th.steps++
	if th.cancelled.Load() {
		return th.newError(":interrupted", "execution cancelled")
	}
	if th.MaxSteps > 0 && th.steps > th.MaxSteps {
		return th.newError(":interrupted", "step limit exceeded: %d", th.MaxSteps)
	}
	if th.ctx != nil {
		select {
		case <-th.ctx.Done():
			return th.newError(":interrupted", "%v", th.ctx.Err())
		default:
		}
	}
	return nil
}

// RegisterBuiltin installs fn under name, reachable from compiled code as a
// global (the same slot a `(def name ...)` at the top level would use), and
// returns the value.Builtin recorded there. Register every builtin before
// compiling code that references it by name.
func (th *Thread) RegisterBuiltin(name string, fn BuiltinFunc) value.Builtin {
	id := int32(len(th.builtins))
	th.builtins = append(th.builtins, builtinEntry{name: name, fn: fn})
	b := value.NewBuiltin(id, name)
	if th.Table != nil {
		slot := th.Table.Slot(th.Interner.Intern(name))
		th.Globals.Set(slot, b)
	}
	return b
}

func (th *Thread) builtin(id int32) (builtinEntry, error) {
	if id < 0 || int(id) >= len(th.builtins) {
		return builtinEntry{}, th.vmErrorf("unknown builtin id %d", id)
	}
	return th.builtins[id], nil
}

// roots returns every value currently reachable directly from this Thread's
// own state (globals; the live register file of whatever frame is
// executing is supplied by the caller, since it is local to run's stack),
// for Heap.Collect/MaybeCollect.
func (th *Thread) roots(extra ...value.Value) []value.Value {
	out := th.Globals.Roots()
	out = append(out, th.props.roots()...)
	out = append(out, extra...)
	return out
}

// RunProgram compiles nothing itself: it takes an already-compiled
// top-level Chunk (see compiler.CompileToplevel), wraps it in a lambda and
// runs it to completion, returning its result value. ctx, if non-nil, is
// polled at each instruction boundary alongside MaxSteps and Cancel.
func (th *Thread) RunProgram(ctx context.Context, chunk *compiler.Chunk) (value.Value, error) {
	if ctx != nil {
		th.ctx = ctx
	}
	th.pinConstants(chunk, make(map[*compiler.Chunk]bool))
	lambdaHandle := th.Heap.NewLambda(chunk, chunk.Name, false)
	return th.Call(lambdaHandle, nil)
}

// pinConstants marks every heap handle reachable from chunk's constant
// pool (recursively, since a nested fn literal's own chunk has its own
// constants) as a GC root for this Thread's lifetime: a quoted list or a
// lambda constant sits in Constants from the moment it is compiled, long
// before any CONST instruction loads it into a live register or global,
// and Collect only traces registers/globals/sticky handles (see
// heap.Collect).
func (th *Thread) pinConstants(chunk *compiler.Chunk, seen map[*compiler.Chunk]bool) {
	if seen[chunk] {
		return
	}
	seen[chunk] = true
	for _, k := range chunk.Constants {
		if lv, ok := k.(heap.ListView); ok {
			th.Heap.Sticky(lv.Vec)
			continue
		}
		hd, ok := k.(heap.Handle)
		if !ok {
			continue
		}
		th.Heap.Sticky(hd)
		if hd.Kind != heap.KindLambda {
			continue
		}
		if code, err := th.Heap.LambdaCode(hd); err == nil {
			if inner, ok := code.(*compiler.Chunk); ok {
				th.pinConstants(inner, seen)
			}
		}
	}
}
