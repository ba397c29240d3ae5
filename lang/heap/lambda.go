package heap

func (h *Heap) lambdaObj(hd Handle) (*lambdaObj, error) {
	if hd.Kind != KindLambda {
		return nil, wrongKind(KindLambda, hd)
	}
	l, ok := h.lambdas.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return l, nil
}

// LambdaCode returns the compiler-owned code object stashed at
// construction. Callers (the VM) type-assert it back to the concrete chunk
// type.
func (h *Heap) LambdaCode(hd Handle) (any, error) {
	l, err := h.lambdaObj(hd)
	if err != nil {
		return nil, err
	}
	return l.Code, nil
}

func (h *Heap) LambdaName(hd Handle) (string, error) {
	l, err := h.lambdaObj(hd)
	if err != nil {
		return "", err
	}
	return l.Name, nil
}

func (h *Heap) LambdaIsMacro(hd Handle) (bool, error) {
	l, err := h.lambdaObj(hd)
	if err != nil {
		return false, err
	}
	return l.IsMacro, nil
}

func (h *Heap) closureObj(hd Handle) (*closureObj, error) {
	if hd.Kind != KindClosure {
		return nil, wrongKind(KindClosure, hd)
	}
	c, ok := h.closures.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return c, nil
}

func (h *Heap) ClosureLambda(hd Handle) (Handle, error) {
	c, err := h.closureObj(hd)
	if err != nil {
		return Handle{}, err
	}
	return c.Lambda, nil
}

func (h *Heap) ClosureCapture(hd Handle, i int) (Handle, error) {
	c, err := h.closureObj(hd)
	if err != nil {
		return Handle{}, err
	}
	if i < 0 || i >= len(c.Captures) {
		return Handle{}, wrongKind(KindCell, hd)
	}
	return c.Captures[i], nil
}
