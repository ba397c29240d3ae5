package heap

import (
	"strings"

	"github.com/mna/lispcore/lang/value"
)

// Display renders v the way the REPL would print it: scalars via their own
// String, pair chains as (a b c) with a dotted tail when improper, list
// views the same as the pair chain they stand in for, vectors as [a b c],
// maps as {k v, ...} in insertion order. Handles into freed storage render
// as a placeholder rather than erroring, since Display is used on error
// paths.
func (h *Heap) Display(v value.Value) string {
	var b strings.Builder
	h.displayInto(&b, v, 0)
	return b.String()
}

func (h *Heap) displayInto(b *strings.Builder, v value.Value, depth int) {
	if depth > 100 {
		b.WriteString("...")
		return
	}
	switch t := v.(type) {
	case nil:
		b.WriteString("nil")
	case ListView:
		b.WriteByte('(')
		n, err := h.ListLen(t)
		if err != nil {
			b.WriteString("#<stale>)")
			return
		}
		for i := 0; i < n; i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			el, err := h.VectorIndex(t.Vec, t.Start+i)
			if err != nil {
				b.WriteString("#<stale>")
				break
			}
			h.displayInto(b, el, depth+1)
		}
		b.WriteByte(')')
	case Handle:
		h.displayHandle(b, t, depth)
	default:
		b.WriteString(v.String())
	}
}

func (h *Heap) displayHandle(b *strings.Builder, hd Handle, depth int) {
	switch hd.Kind {
	case KindPair:
		b.WriteByte('(')
		var cur value.Value = hd
		first := true
		for {
			if cur == value.Value(value.Nil) {
				break
			}
			p, ok := cur.(Handle)
			if !ok || p.Kind != KindPair {
				b.WriteString(" . ")
				h.displayInto(b, cur, depth+1)
				break
			}
			car, err := h.Car(p)
			if err != nil {
				b.WriteString("#<stale>")
				break
			}
			if !first {
				b.WriteByte(' ')
			}
			first = false
			h.displayInto(b, car, depth+1)
			cdr, err := h.Cdr(p)
			if err != nil {
				b.WriteString(" #<stale>")
				break
			}
			cur = cdr
		}
		b.WriteByte(')')
	case KindVector:
		elems, err := h.VectorSlice(hd)
		if err != nil {
			b.WriteString(hd.String())
			return
		}
		b.WriteByte('[')
		for i, el := range elems {
			if i > 0 {
				b.WriteByte(' ')
			}
			h.displayInto(b, el, depth+1)
		}
		b.WriteByte(']')
	case KindMap:
		b.WriteByte('{')
		first := true
		_ = h.MapEach(hd, func(k, v value.Value) bool {
			if !first {
				b.WriteString(", ")
			}
			first = false
			h.displayInto(b, k, depth+1)
			b.WriteByte(' ')
			h.displayInto(b, v, depth+1)
			return true
		})
		b.WriteByte('}')
	case KindString:
		s, err := h.StringText(hd)
		if err != nil {
			b.WriteString(hd.String())
			return
		}
		b.WriteByte('"')
		b.WriteString(s)
		b.WriteByte('"')
	case KindError:
		eo, err := h.errorObj(hd)
		if err != nil {
			b.WriteString(hd.String())
			return
		}
		b.WriteString("error [")
		b.WriteString(eo.Keyword)
		b.WriteString("]: ")
		if eo.Message != "" {
			b.WriteString(eo.Message)
		} else {
			h.displayInto(b, eo.Data, depth+1)
		}
	default:
		b.WriteString(hd.String())
	}
}
