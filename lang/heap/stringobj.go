package heap

func (h *Heap) stringObj(hd Handle) (*stringObj, error) {
	if hd.Kind != KindString {
		return nil, wrongKind(KindString, hd)
	}
	s, ok := h.strings.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return s, nil
}

func (h *Heap) StringText(hd Handle) (string, error) {
	s, err := h.stringObj(hd)
	if err != nil {
		return "", err
	}
	return string(s.s), nil
}

func (h *Heap) StringSet(hd Handle, text string) error {
	s, err := h.stringObj(hd)
	if err != nil {
		return err
	}
	s.s = []byte(text)
	return nil
}

func (h *Heap) StringAppend(hd Handle, more string) error {
	s, err := h.stringObj(hd)
	if err != nil {
		return err
	}
	s.s = append(s.s, more...)
	return nil
}
