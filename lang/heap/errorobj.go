package heap

import (
	"fmt"

	"github.com/mna/lispcore/lang/value"
)

func (h *Heap) errorObj(hd Handle) (*errorObj, error) {
	if hd.Kind != KindError {
		return nil, wrongKind(KindError, hd)
	}
	e, ok := h.errors.get(hd.Idx, hd.Gen)
	if !ok {
		return nil, stale(hd)
	}
	return e, nil
}

func (h *Heap) ErrorKeyword(hd Handle) (string, error) {
	e, err := h.errorObj(hd)
	if err != nil {
		return "", err
	}
	return e.Keyword, nil
}

func (h *Heap) ErrorData(hd Handle) (value.Value, error) {
	e, err := h.errorObj(hd)
	if err != nil {
		return nil, err
	}
	return e.Data, nil
}

func (h *Heap) ErrorMessage(hd Handle) (string, error) {
	e, err := h.errorObj(hd)
	if err != nil {
		return "", err
	}
	return e.Message, nil
}

// AsGoError wraps an error Handle so it implements Go's error interface,
// letting a raised condition flow out of Compile/Run exactly like any other
// Go error while still carrying its keyword and data for on-error handlers
// that want to inspect it structurally.
func (h *Heap) AsGoError(hd Handle) error {
	return &GoError{Heap: h, Handle: hd}
}

// GoError adapts a heap-allocated error record to Go's error interface.
type GoError struct {
	Heap   *Heap
	Handle Handle
}

// Error formats as `error [<keyword>]: <message or display of data>`, the
// form an embedder surfaces to the user.
func (e *GoError) Error() string {
	eo, err := e.Heap.errorObj(e.Handle)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	if eo.Message != "" {
		return fmt.Sprintf("error [%s]: %s", eo.Keyword, eo.Message)
	}
	return fmt.Sprintf("error [%s]: %s", eo.Keyword, e.Heap.Display(eo.Data))
}

func (e *GoError) Keyword() (string, error)   { return e.Heap.ErrorKeyword(e.Handle) }
func (e *GoError) Data() (value.Value, error) { return e.Heap.ErrorData(e.Handle) }
