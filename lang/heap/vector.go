package heap

import (
	"fmt"

	"github.com/mna/lispcore/lang/value"
)

func (h *Heap) vector(hd Handle) (*vectorObj, error) {
	if hd.Kind != KindVector {
		return nil, wrongKind(KindVector, hd)
	}
	v, ok := h.vectors.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return v, nil
}

func (h *Heap) VectorLen(hd Handle) (int, error) {
	v, err := h.vector(hd)
	if err != nil {
		return 0, err
	}
	return len(v.elems), nil
}

func (h *Heap) VectorIndex(hd Handle, i int) (value.Value, error) {
	v, err := h.vector(hd)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(v.elems) {
		return nil, fmt.Errorf("vector index out of range: %d", i)
	}
	return v.elems[i], nil
}

func (h *Heap) VectorSetIndex(hd Handle, i int, val value.Value) error {
	v, err := h.vector(hd)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(v.elems) {
		return fmt.Errorf("vector index out of range: %d", i)
	}
	v.elems[i] = val
	return nil
}

func (h *Heap) VectorAppend(hd Handle, val value.Value) error {
	v, err := h.vector(hd)
	if err != nil {
		return err
	}
	v.elems = append(v.elems, val)
	return nil
}

func (h *Heap) VectorSlice(hd Handle) ([]value.Value, error) {
	v, err := h.vector(hd)
	if err != nil {
		return nil, err
	}
	return v.elems, nil
}
