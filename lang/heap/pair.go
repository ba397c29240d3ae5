package heap

import "github.com/mna/lispcore/lang/value"

func (h *Heap) pair(hd Handle) (*pairObj, error) {
	if hd.Kind != KindPair {
		return nil, wrongKind(KindPair, hd)
	}
	p, ok := h.pairs.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return p, nil
}

func (h *Heap) Car(hd Handle) (value.Value, error) {
	p, err := h.pair(hd)
	if err != nil {
		return nil, err
	}
	return p.car, nil
}

func (h *Heap) Cdr(hd Handle) (value.Value, error) {
	p, err := h.pair(hd)
	if err != nil {
		return nil, err
	}
	return p.cdr, nil
}

func (h *Heap) SetCar(hd Handle, v value.Value) error {
	p, err := h.pair(hd)
	if err != nil {
		return err
	}
	p.car = v
	return nil
}

func (h *Heap) SetCdr(hd Handle, v value.Value) error {
	p, err := h.pair(hd)
	if err != nil {
		return err
	}
	p.cdr = v
	return nil
}

// ConsList builds a proper list from vals, returning the Nil value.Value
// directly if vals is empty (an empty list is not heap-allocated).
func (h *Heap) ConsList(vals []value.Value) value.Value {
	var tail value.Value = value.Nil
	for i := len(vals) - 1; i >= 0; i-- {
		tail = h.NewPair(vals[i], tail)
	}
	return tail
}

// ListSlice reads a proper list into a Go slice. It returns an error if v
// is not Nil or a chain of pairs terminated by Nil (an improper/dotted
// list), since most list operations need a proper list.
func (h *Heap) ListSlice(v value.Value) ([]value.Value, error) {
	var out []value.Value
	for {
		if v == value.Nil {
			return out, nil
		}
		hd, ok := v.(Handle)
		if !ok || hd.Kind != KindPair {
			return nil, errImproperList
		}
		p, err := h.pair(hd)
		if err != nil {
			return nil, err
		}
		out = append(out, p.car)
		v = p.cdr
	}
}

var errImproperList = errImproperListErr{}

type errImproperListErr struct{}

func (errImproperListErr) Error() string { return "heap: improper list" }
