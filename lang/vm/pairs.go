package vm

import (
	"github.com/mna/lispcore/lang/compiler"
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/value"
)

// execXar implements XAR/XDR: mutate the car (isCar) or cdr of the pair
// register pairReg in place to val. Nil auto-promotes to a fresh pair; a
// read-only heap.ListView cannot be mutated and raises a :heap error
// instead.
func (th *Thread) execXar(frameHandle heap.Handle, pairReg, valReg int32, isCar bool) error {
	cur, err := th.readReg(frameHandle, pairReg)
	if err != nil {
		return err
	}
	val, err := th.readReg(frameHandle, valReg)
	if err != nil {
		return err
	}

	switch t := cur.(type) {
	case value.NilType:
		var p heap.Handle
		if isCar {
			p = th.Heap.NewPair(val, value.Nil)
		} else {
			p = th.Heap.NewPair(value.Nil, val)
		}
		return th.writeReg(frameHandle, pairReg, p)
	case heap.ListView:
		return th.heapErrorf("%v", heap.ErrListReadOnly{})
	case heap.Handle:
		if t.Kind != heap.KindPair {
			return th.typeErrorf("value of type %s is not a pair", cur.Type())
		}
		if isCar {
			err = th.Heap.SetCar(t, val)
		} else {
			err = th.Heap.SetCdr(t, val)
		}
		if err != nil {
			return th.heapErrorf("%v", err)
		}
		return nil
	default:
		return th.typeErrorf("value of type %s is not a pair", cur.Type())
	}
}

// listElems materializes any list-like value (Nil, a ListView, or a proper
// Pair chain) into a Go slice, the shared groundwork for APND and the
// collections library's list-consuming builtins.
func (th *Thread) listElems(v value.Value) ([]value.Value, error) {
	switch t := v.(type) {
	case value.NilType:
		return nil, nil
	case heap.ListView:
		n, err := th.Heap.ListLen(t)
		if err != nil {
			return nil, th.vmErrorf("%v", err)
		}
		full, err := th.Heap.VectorSlice(t.Vec)
		if err != nil {
			return nil, th.vmErrorf("%v", err)
		}
		return full[t.Start : t.Start+n], nil
	case heap.Handle:
		if t.Kind == heap.KindPair {
			elems, err := th.Heap.ListSlice(t)
			if err != nil {
				return nil, th.typeErrorf("%v", err)
			}
			return elems, nil
		}
	}
	return nil, th.typeErrorf("value of type %s is not a list", v.Type())
}

// appendLists implements APND: every value but the last must be a proper
// list-like sequence and contributes its elements; the last value becomes
// the tail of the freshly consed chain, proper or not (so `(apnd a b tail)`
// can build an improper list when tail isn't itself a list).
func (th *Thread) appendLists(vals []value.Value) (value.Value, error) {
	if len(vals) == 0 {
		return value.Nil, nil
	}
	var elems []value.Value
	for _, v := range vals[:len(vals)-1] {
		es, err := th.listElems(v)
		if err != nil {
			return nil, err
		}
		elems = append(elems, es...)
	}
	result := vals[len(vals)-1]
	for i := len(elems) - 1; i >= 0; i-- {
		result = th.Heap.NewPair(elems[i], result)
	}
	return result, nil
}

// ensureCell returns the indirection cell backing register reg of
// frameHandle, boxing its current value into a fresh heap.Cell (and writing
// that cell back into the register) the first time the register is
// captured; a register already holding a cell (a name captured by more than
// one nested closure) is returned as-is so every capturing closure shares
// the exact same cell.
func (th *Thread) ensureCell(frameHandle heap.Handle, reg int32) (heap.Handle, error) {
	raw, err := th.Heap.FrameReg(frameHandle, int(reg))
	if err != nil {
		return heap.Handle{}, th.vmErrorf("%v", err)
	}
	if hd, ok := raw.(heap.Handle); ok && hd.Kind == heap.KindCell {
		return hd, nil
	}
	cell := th.Heap.NewCell(raw)
	if err := th.Heap.FrameSetReg(frameHandle, int(reg), cell); err != nil {
		return heap.Handle{}, th.vmErrorf("%v", err)
	}
	return cell, nil
}

// buildClosure implements CLOSE dst, src: src names a register holding a
// freshly-CONSTed lambda; for each of its chunk's declared Captures, box
// (or reuse an already-boxed) source register of frameHandle -- the
// enclosing frame at the moment of closure creation -- and pair the
// resulting cells with the lambda into a heap closure.
func (th *Thread) buildClosure(frameHandle heap.Handle, srcReg int32) (value.Value, error) {
	lambdaVal, err := th.readReg(frameHandle, srcReg)
	if err != nil {
		return nil, err
	}
	lambdaHandle, ok := lambdaVal.(heap.Handle)
	if !ok || lambdaHandle.Kind != heap.KindLambda {
		return nil, th.typeErrorf("close: src is %s, not a lambda", lambdaVal.Type())
	}
	code, err := th.Heap.LambdaCode(lambdaHandle)
	if err != nil {
		return nil, th.vmErrorf("%v", err)
	}
	innerChunk, ok := code.(*compiler.Chunk)
	if !ok {
		return nil, th.vmErrorf("close: corrupt lambda code")
	}

	captures := make([]heap.Handle, len(innerChunk.Captures))
	for i, cs := range innerChunk.Captures {
		cell, err := th.ensureCell(frameHandle, int32(cs.SrcReg))
		if err != nil {
			return nil, err
		}
		captures[i] = cell
	}
	return th.Heap.NewClosure(lambdaHandle, captures), nil
}
