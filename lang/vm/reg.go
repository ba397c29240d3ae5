package vm

import (
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/value"
)

// unref resolves a captured-variable indirection cell to the value it
// currently holds; every opcode that reads a register must go through this
// before inspecting the value.
func (th *Thread) unref(v value.Value) (value.Value, error) {
	hd, ok := v.(heap.Handle)
	if !ok || hd.Kind != heap.KindCell {
		return v, nil
	}
	cv, err := th.Heap.CellGet(hd)
	if err != nil {
		return nil, th.vmErrorf("%v", err)
	}
	return cv, nil
}

// readReg returns register i of frameHandle, unreffed.
func (th *Thread) readReg(frameHandle heap.Handle, i int32) (value.Value, error) {
	v, err := th.Heap.FrameReg(frameHandle, int(i))
	if err != nil {
		return nil, th.vmErrorf("%v", err)
	}
	return th.unref(v)
}

// readRegRange reads count consecutive registers starting at start, each
// unreffed, used to gather CALL/LIST/VEC/BYTESNEW-style contiguous operand
// blocks.
func (th *Thread) readRegRange(frameHandle heap.Handle, start, count int32) ([]value.Value, error) {
	out := make([]value.Value, count)
	for i := int32(0); i < count; i++ {
		v, err := th.readReg(frameHandle, start+i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// writeReg replaces register i outright (MOV semantics: never writes
// through a cell, used to shadow a name rather than assign to it).
func (th *Thread) writeReg(frameHandle heap.Handle, i int32, v value.Value) error {
	if err := th.Heap.FrameSetReg(frameHandle, int(i), v); err != nil {
		return th.vmErrorf("%v", err)
	}
	return nil
}

// writeThrough implements SET: if register i currently holds an indirection
// cell (meaning some closure has captured it), the write goes through the
// cell so every capturing closure observes it; otherwise it is a plain
// assignment, identical to writeReg.
func (th *Thread) writeThrough(frameHandle heap.Handle, i int32, v value.Value) error {
	cur, err := th.Heap.FrameReg(frameHandle, int(i))
	if err != nil {
		return th.vmErrorf("%v", err)
	}
	if hd, ok := cur.(heap.Handle); ok && hd.Kind == heap.KindCell {
		if err := th.Heap.CellSet(hd, v); err != nil {
			return th.vmErrorf("%v", err)
		}
		return nil
	}
	return th.writeReg(frameHandle, i, v)
}
