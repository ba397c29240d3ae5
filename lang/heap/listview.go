package heap

import "github.com/mna/lispcore/lang/value"

// ListView is a read-only slice of a heap vector exposed as a pair-like
// sequence. It needs no arena slot of
// its own -- it is small and immutable, so it is simply a value carried by
// copy, the way Int or Byte are, even though it refers into heap-owned
// storage.
type ListView struct {
	Vec   Handle
	Start int
}

var _ value.Value = ListView{}

func (l ListView) String() string { return "#<list-view>" }
func (l ListView) Type() string   { return "list" }

// Car returns the element at the view's head.
func (h *Heap) ListCar(l ListView) (value.Value, error) {
	return h.VectorIndex(l.Vec, l.Start)
}

// Cdr returns the rest of the view: another ListView one slot further in,
// or Nil once the view is exhausted.
func (h *Heap) ListCdr(l ListView) (value.Value, error) {
	n, err := h.VectorLen(l.Vec)
	if err != nil {
		return nil, err
	}
	if l.Start+1 >= n {
		return value.Nil, nil
	}
	return ListView{Vec: l.Vec, Start: l.Start + 1}, nil
}

// ListLen returns the number of elements remaining in the view.
func (h *Heap) ListLen(l ListView) (int, error) {
	n, err := h.VectorLen(l.Vec)
	if err != nil {
		return 0, err
	}
	return n - l.Start, nil
}

// ErrListReadOnly is returned when VM code attempts to mutate a ListView as
// if it were a Pair.
type ErrListReadOnly struct{}

func (ErrListReadOnly) Error() string { return "heap: cannot mutate a read-only list view" }

// NewListView builds a ListView over a fresh vector holding vals; used to
// materialize a function's rest-parameter or a vector-pattern's `&rest`
// binding, which deliberately share this one representation.
func (h *Heap) NewListView(vals []value.Value) value.Value {
	if len(vals) == 0 {
		return value.Nil
	}
	return ListView{Vec: h.NewVector(vals), Start: 0}
}
