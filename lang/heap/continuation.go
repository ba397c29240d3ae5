package heap

func (h *Heap) continuationObj(hd Handle) (*continuationObj, error) {
	if hd.Kind != KindContinuation {
		return nil, wrongKind(KindContinuation, hd)
	}
	c, ok := h.continuations.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return c, nil
}

// ContinuationFrames returns the snapshot chain of call frames captured at
// the call/cc site, innermost first.
func (h *Heap) ContinuationFrames(hd Handle) ([]Handle, error) {
	c, err := h.continuationObj(hd)
	if err != nil {
		return nil, err
	}
	return c.Frames, nil
}

// ContinuationDest returns the register of the call/cc site's frame
// (Frames[0]) that should receive the value passed to the continuation.
func (h *Heap) ContinuationDest(hd Handle) (int32, error) {
	c, err := h.continuationObj(hd)
	if err != nil {
		return 0, err
	}
	return c.Dest, nil
}
