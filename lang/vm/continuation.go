package vm

import (
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/value"
)

// contJump is the panic payload a continuation invocation uses to unwind the
// Go call stack back to the execCallCC frame that captured it. handle
// disambiguates nested call/cc sites: a jump whose handle doesn't match the
// recover point's own continuation is re-panicked so it keeps unwinding
// toward its actual target.
type contJump struct {
	handle heap.Handle
	val    value.Value
}

// execCallCC implements CALLCC dst, f: it snapshots the current Go call
// chain (th.frameStack, innermost first) as a heap.Continuation, calls f
// with that continuation as its sole argument, and writes whichever value
// comes back into dst — either f's own return value, or the value an
// invocation of the continuation escaped with.
//
// Continuations here are escape-only: invoking one unwinds the Go stack
// back to this call (via panic/recover) rather than literally reinstalling
// a saved register file, so a continuation can only be called within the
// dynamic extent of the call/cc that produced it. liveConts enforces that
// restriction: invokeContinuation consults it and fails with a :vm error
// instead of panicking once the extent has ended.
func (th *Thread) execCallCC(frameHandle heap.Handle, dst, fReg int32) error {
	fVal, err := th.readReg(frameHandle, fReg)
	if err != nil {
		return err
	}

	idx := -1
	for i := len(th.frameStack) - 1; i >= 0; i-- {
		if th.frameStack[i] == frameHandle {
			idx = i
			break
		}
	}
	if idx < 0 {
		return th.vmErrorf("call/cc: frame is not active on the call stack")
	}
	frames := make([]heap.Handle, idx+1)
	for i := range frames {
		frames[i] = th.frameStack[idx-i]
	}

	contHandle := th.Heap.NewContinuation(frames, dst)
	th.Heap.Sticky(contHandle)
	th.liveConts[contHandle] = true
	defer func() {
		delete(th.liveConts, contHandle)
		th.Heap.Unsticky(contHandle)
	}()

	result, callErr := th.callCatchingJump(contHandle, fVal)
	if callErr != nil {
		return callErr
	}
	return th.writeReg(frameHandle, dst, result)
}

// callCatchingJump calls fVal with contHandle as its argument, recovering a
// contJump aimed at contHandle and turning it into an ordinary return; a
// contJump aimed at a different (ancestor) continuation is re-panicked so it
// keeps unwinding.
func (th *Thread) callCatchingJump(contHandle heap.Handle, fVal value.Value) (result value.Value, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cj, ok := r.(contJump)
		if !ok || cj.handle != contHandle {
			panic(r)
		}
		result, err = cj.val, nil
	}()
	return th.Call(fVal, []value.Value{contHandle})
}

// invokeContinuation is Call's dispatch for a heap.KindContinuation callee:
// applying a captured continuation to args. Only the first argument (or Nil
// if none) is delivered, mirroring a single-value RET.
func (th *Thread) invokeContinuation(hd heap.Handle, args []value.Value) (value.Value, error) {
	if !th.liveConts[hd] {
		return nil, th.vmErrorf("continuation invoked outside its call/cc's dynamic extent")
	}
	frames, err := th.Heap.ContinuationFrames(hd)
	if err != nil {
		return nil, th.vmErrorf("%v", err)
	}
	target := frames[0]

	// Run the defers of every frame between here and the call/cc site,
	// innermost first, mirroring ordinary error unwinding: a
	// continuation invocation is a non-local exit from each of those frames.
	for i := len(th.frameStack) - 1; i >= 0; i-- {
		fh := th.frameStack[i]
		if fh == target {
			break
		}
		if derr := th.runDefersNormal(fh); derr != nil {
			return nil, derr
		}
	}

	v := value.Value(value.Nil)
	if len(args) > 0 {
		v = args[0]
	}
	panic(contJump{handle: hd, val: v})
}
