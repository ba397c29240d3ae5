package heap

import (
	"fmt"

	"github.com/mna/lispcore/lang/value"
)

func (h *Heap) frameObj(hd Handle) (*frameObj, error) {
	if hd.Kind != KindCallFrame {
		return nil, wrongKind(KindCallFrame, hd)
	}
	f, ok := h.frames.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return f, nil
}

func (h *Heap) FrameClosure(hd Handle) (Handle, error) {
	f, err := h.frameObj(hd)
	if err != nil {
		return Handle{}, err
	}
	return f.Closure, nil
}

func (h *Heap) FrameParent(hd Handle) (Handle, error) {
	f, err := h.frameObj(hd)
	if err != nil {
		return Handle{}, err
	}
	return f.Parent, nil
}

func (h *Heap) FramePC(hd Handle) (uint32, error) {
	f, err := h.frameObj(hd)
	if err != nil {
		return 0, err
	}
	return f.PC, nil
}

func (h *Heap) FrameSetPC(hd Handle, pc uint32) error {
	f, err := h.frameObj(hd)
	if err != nil {
		return err
	}
	f.PC = pc
	return nil
}

func (h *Heap) FrameReg(hd Handle, i int) (value.Value, error) {
	f, err := h.frameObj(hd)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(f.Regs) {
		return nil, fmt.Errorf("register out of range: %d", i)
	}
	return f.Regs[i], nil
}

func (h *Heap) FrameSetReg(hd Handle, i int, v value.Value) error {
	f, err := h.frameObj(hd)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(f.Regs) {
		return fmt.Errorf("register out of range: %d", i)
	}
	f.Regs[i] = v
	return nil
}

// FrameRegs returns the live backing slice of registers for direct bulk
// access (e.g. BMOV); callers must not retain it past the next GC.
func (h *Heap) FrameRegs(hd Handle) ([]value.Value, error) {
	f, err := h.frameObj(hd)
	if err != nil {
		return nil, err
	}
	return f.Regs, nil
}

// FrameReplace overwrites hd's closure and register file in place, for a
// tail call reusing its frame instead of pushing a new one; PC resets to 0.
func (h *Heap) FrameReplace(hd Handle, closure Handle, regs []value.Value) error {
	f, err := h.frameObj(hd)
	if err != nil {
		return err
	}
	f.Closure = closure
	f.Regs = regs
	f.PC = 0
	return nil
}

// FramePushDefer appends thunk to hd's defer stack (registration order).
func (h *Heap) FramePushDefer(hd Handle, thunk Handle) error {
	f, err := h.frameObj(hd)
	if err != nil {
		return err
	}
	f.Defers = append(f.Defers, thunk)
	return nil
}

// FramePopDefer pops and returns the most recently registered defer thunk
// still pending on hd, LIFO, reporting false once none remain.
func (h *Heap) FramePopDefer(hd Handle) (Handle, bool, error) {
	f, err := h.frameObj(hd)
	if err != nil {
		return Handle{}, false, err
	}
	n := len(f.Defers)
	if n == 0 {
		return Handle{}, false, nil
	}
	thunk := f.Defers[n-1]
	f.Defers = f.Defers[:n-1]
	return thunk, true, nil
}
