package heap

import "fmt"

func (h *Heap) bytesObj(hd Handle) (*bytesObj, error) {
	if hd.Kind != KindBytes {
		return nil, wrongKind(KindBytes, hd)
	}
	b, ok := h.bytesObjs.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return b, nil
}

func (h *Heap) BytesLen(hd Handle) (int, error) {
	b, err := h.bytesObj(hd)
	if err != nil {
		return 0, err
	}
	return len(b.b), nil
}

func (h *Heap) BytesIndex(hd Handle, i int) (byte, error) {
	b, err := h.bytesObj(hd)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(b.b) {
		return 0, fmt.Errorf("bytes index out of range: %d", i)
	}
	return b.b[i], nil
}

func (h *Heap) BytesSetIndex(hd Handle, i int, v byte) error {
	b, err := h.bytesObj(hd)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(b.b) {
		return fmt.Errorf("bytes index out of range: %d", i)
	}
	b.b[i] = v
	return nil
}

func (h *Heap) BytesSlice(hd Handle) ([]byte, error) {
	b, err := h.bytesObj(hd)
	if err != nil {
		return nil, err
	}
	return b.b, nil
}

func (h *Heap) BytesAppend(hd Handle, more []byte) error {
	b, err := h.bytesObj(hd)
	if err != nil {
		return err
	}
	b.b = append(b.b, more...)
	return nil
}
