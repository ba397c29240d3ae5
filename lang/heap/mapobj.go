package heap

import "github.com/mna/lispcore/lang/value"

func (h *Heap) mapObj(hd Handle) (*mapObj, error) {
	if hd.Kind != KindMap {
		return nil, wrongKind(KindMap, hd)
	}
	m, ok := h.maps.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return m, nil
}

func (h *Heap) MapGet(hd Handle, k value.Value) (value.Value, bool, error) {
	m, err := h.mapObj(hd)
	if err != nil {
		return nil, false, err
	}
	v, ok := m.m.Get(k)
	return v, ok, nil
}

func (h *Heap) MapSet(hd Handle, k, v value.Value) error {
	m, err := h.mapObj(hd)
	if err != nil {
		return err
	}
	if _, exists := m.m.Get(k); !exists {
		m.keys = append(m.keys, k)
	}
	m.m.Put(k, v)
	return nil
}

func (h *Heap) MapDelete(hd Handle, k value.Value) error {
	m, err := h.mapObj(hd)
	if err != nil {
		return err
	}
	if m.m.Delete(k) {
		for i, key := range m.keys {
			if key == k {
				m.keys = append(m.keys[:i], m.keys[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (h *Heap) MapLen(hd Handle) (int, error) {
	m, err := h.mapObj(hd)
	if err != nil {
		return 0, err
	}
	return m.m.Count(), nil
}

// MapEach calls fn for every key/value pair in insertion order. fn
// returning false stops the iteration early.
func (h *Heap) MapEach(hd Handle, fn func(k, v value.Value) bool) error {
	m, err := h.mapObj(hd)
	if err != nil {
		return err
	}
	for _, k := range m.keys {
		v, ok := m.m.Get(k)
		if !ok {
			continue
		}
		if !fn(k, v) {
			return nil
		}
	}
	return nil
}
