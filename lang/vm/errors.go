package vm

import (
	"fmt"

	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/value"
)

// newError allocates a heap error record tagged with keyword and wraps it
// as a Go error via heap.AsGoError, the single boundary where an internal
// VM failure becomes both a language-level Error value (for an `on-error`
// handler to inspect) and an ordinary Go error (for Run to return).
func (th *Thread) newError(keyword, format string, args ...any) error {
	hd := th.Heap.NewError(keyword, fmt.Sprintf(format, args...), value.Nil)
	return th.Heap.AsGoError(hd)
}

func (th *Thread) typeErrorf(format string, args ...any) error {
	return th.newError(":type", format, args...)
}

func (th *Thread) arityErrorf(format string, args ...any) error {
	return th.newError(":arity", format, args...)
}

func (th *Thread) vmErrorf(format string, args ...any) error {
	return th.newError(":vm", format, args...)
}

func (th *Thread) heapErrorf(format string, args ...any) error {
	return th.newError(":heap", format, args...)
}

// errorHandle extracts the heap Error handle carried by err, wrapping a
// plain Go error (one that never passed through newError, e.g. one bubbled
// up from package heap or value) into a fresh `:vm` error record so every
// raised condition an `on-error` handler sees is a uniform Error value.
func (th *Thread) errorHandle(err error) heap.Handle {
	if ge, ok := err.(*heap.GoError); ok {
		return ge.Handle
	}
	return th.Heap.NewError(":vm", err.Error(), value.Nil)
}
