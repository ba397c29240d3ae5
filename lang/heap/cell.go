package heap

import "github.com/mna/lispcore/lang/value"

func (h *Heap) cellObj(hd Handle) (*cellObj, error) {
	if hd.Kind != KindCell {
		return nil, wrongKind(KindCell, hd)
	}
	c, ok := h.cells.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return c, nil
}

func (h *Heap) CellGet(hd Handle) (value.Value, error) {
	c, err := h.cellObj(hd)
	if err != nil {
		return nil, err
	}
	return c.V, nil
}

func (h *Heap) CellSet(hd Handle, v value.Value) error {
	c, err := h.cellObj(hd)
	if err != nil {
		return err
	}
	c.V = v
	return nil
}
