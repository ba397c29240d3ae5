package vm

import (
	"strconv"

	"github.com/mna/lispcore/lang/compiler"
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/value"
)

// chunkOf returns the compiler.Chunk backing a lambda or closure handle,
// type-asserting the heap's opaque Code field back (package heap cannot
// import compiler; see lang/heap/lambda.go).
func (th *Thread) chunkOf(callee heap.Handle) (*compiler.Chunk, error) {
	var lambdaHandle heap.Handle
	switch callee.Kind {
	case heap.KindLambda:
		lambdaHandle = callee
	case heap.KindClosure:
		lh, err := th.Heap.ClosureLambda(callee)
		if err != nil {
			return nil, th.vmErrorf("%v", err)
		}
		lambdaHandle = lh
	default:
		return nil, th.typeErrorf("value of type %s is not callable", callee.Kind)
	}
	code, err := th.Heap.LambdaCode(lambdaHandle)
	if err != nil {
		return nil, th.vmErrorf("%v", err)
	}
	chunk, ok := code.(*compiler.Chunk)
	if !ok {
		return nil, th.vmErrorf("corrupt lambda: code is %T, not *compiler.Chunk", code)
	}
	return chunk, nil
}

// prepareCall builds the register file for a fresh invocation of callee with
// args: arity-checks (Args <= n <= Args+OptArgs, or Args <= n with Rest),
// binds positional/optional/rest parameters, and for a closure
// populates its capture registers from the closure's own cells. It performs
// no heap.NewFrame allocation, so both Call (a fresh frame) and a tail call
// (FrameReplace reusing the current one) can share it.
func (th *Thread) prepareCall(callee heap.Handle, args []value.Value) ([]value.Value, *compiler.Chunk, error) {
	chunk, err := th.chunkOf(callee)
	if err != nil {
		return nil, nil, err
	}

	n := len(args)
	max := chunk.Args + chunk.OptArgs
	if n < chunk.Args || (!chunk.Rest && n > max) {
		name := chunk.Name
		if name == "" {
			name = "<anonymous>"
		}
		return nil, nil, th.arityErrorf("%s: wants %d..%s arguments, got %d", name, chunk.Args, arityUpper(chunk), n)
	}

	regs := make([]value.Value, chunk.TotalRegs())
	for i := range regs {
		regs[i] = value.Undefined
	}
	bound := n
	if bound > max {
		bound = max
	}
	for i := 0; i < bound; i++ {
		regs[i+1] = args[i]
	}
	nextReg := max + 1
	if chunk.Rest {
		var rest []value.Value
		if n > max {
			rest = args[max:]
		}
		regs[nextReg] = th.Heap.NewListView(rest)
	}

	if callee.Kind == heap.KindClosure {
		for i, cs := range chunk.Captures {
			cell, err := th.Heap.ClosureCapture(callee, i)
			if err != nil {
				return nil, nil, th.vmErrorf("%v", err)
			}
			regs[cs.LocalReg] = cell
		}
	}

	return regs, chunk, nil
}

func arityUpper(chunk *compiler.Chunk) string {
	if chunk.Rest {
		return "*"
	}
	return strconv.Itoa(chunk.Args + chunk.OptArgs)
}

// Call is the general invocation entry point, used both by the embedder
// (RunProgram) and by any builtin that needs to invoke a Value it was
// handed (map/filter/apply-style higher-order builtins; a defer or
// on-error thunk). Bytecode-to-bytecode calls the VM itself dispatches
// (CALL/CALLG/CALLM) also go through here for their non-tail form.
func (th *Thread) Call(callee value.Value, args []value.Value) (value.Value, error) {
	switch c := callee.(type) {
	case value.Builtin:
		entry, err := th.builtin(c.ID)
		if err != nil {
			return nil, err
		}
		return entry.fn(th, args)
	case heap.Handle:
		switch c.Kind {
		case heap.KindLambda, heap.KindClosure:
			return th.callCompiled(c, args)
		case heap.KindContinuation:
			return th.invokeContinuation(c, args)
		}
		return nil, th.typeErrorf("value of type %s is not callable", c.Kind)
	}
	return nil, th.typeErrorf("value of type %s is not callable", callee.Type())
}

func (th *Thread) callCompiled(callee heap.Handle, args []value.Value) (value.Value, error) {
	th.callDepth++
	defer func() { th.callDepth-- }()
	if th.MaxCallDepth > 0 && th.callDepth > th.MaxCallDepth {
		return nil, th.vmErrorf("call stack depth exceeded (%d)", th.MaxCallDepth)
	}

	regs, _, err := th.prepareCall(callee, args)
	if err != nil {
		return nil, err
	}
	var parent heap.Handle
	if n := len(th.frameStack); n > 0 {
		parent = th.frameStack[n-1]
	}
	frameHandle := th.Heap.NewFrame(callee, parent, regs)

	th.frameStack = append(th.frameStack, frameHandle)
	defer func() { th.frameStack = th.frameStack[:len(th.frameStack)-1] }()

	return th.run(frameHandle)
}

// liveRoots reports every value currently alive on the Go-level call stack (one
// register file per nested th.run, innermost last), folded in alongside
// Globals.Roots for Heap.Collect/MaybeCollect.
func (th *Thread) liveRoots() []value.Value {
	out := th.roots()
	for _, f := range th.frameStack {
		out = append(out, f)
	}
	return out
}
