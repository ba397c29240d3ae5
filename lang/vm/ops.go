package vm

import (
	"math"

	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/token"
	"github.com/mna/lispcore/lang/value"
)

// binaryOp dispatches an arithmetic/bitwise opcode to whichever operand's
// HasBinary implementation accepts it. value.Int/Float/Byte all decline
// (return nil, nil) rather than erroring when y is not their own concrete
// type, so a mismatched pair (e.g. int + float) falls through to a type
// error here instead of silently promoting -- this runtime has no numeric
// tower.
func (th *Thread) binaryOp(op token.Token, a, b value.Value) (value.Value, error) {
	if hb, ok := a.(value.HasBinary); ok {
		v, err := hb.Binary(op, b, value.Left)
		if err != nil {
			return nil, th.typeErrorf("%v", err)
		}
		if v != nil {
			return v, nil
		}
	}
	if hb, ok := b.(value.HasBinary); ok {
		v, err := hb.Binary(op, a, value.Right)
		if err != nil {
			return nil, th.typeErrorf("%v", err)
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, th.typeErrorf("unsupported operand types for %s: %s and %s", op, a.Type(), b.Type())
}

func (th *Thread) unaryOp(op token.Token, a value.Value) (value.Value, error) {
	if hu, ok := a.(value.HasUnary); ok {
		v, err := hu.Unary(op)
		if err != nil {
			return nil, th.typeErrorf("%v", err)
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, th.typeErrorf("unsupported operand type for %s: %s", op, a.Type())
}

// compareOp implements LT/LE/GT/GE via value.Ordered, erroring (rather than
// panicking) when the operands are of different concrete types, since
// Ordered.Cmp assumes same-type operands.
func (th *Thread) compareOp(op token.Token, a, b value.Value) (value.Value, error) {
	ord, ok := a.(value.Ordered)
	if !ok {
		return nil, th.typeErrorf("%s is not ordered", a.Type())
	}
	if _, ok := b.(value.Ordered); !ok || a.Type() != b.Type() {
		return nil, th.typeErrorf("cannot compare %s with %s", a.Type(), b.Type())
	}
	c, err := ord.Cmp(b)
	if err != nil {
		return nil, th.typeErrorf("%v", err)
	}
	switch op {
	case token.LT:
		return value.Bool(c < 0), nil
	case token.LE:
		return value.Bool(c <= 0), nil
	case token.GT:
		return value.Bool(c > 0), nil
	case token.GE:
		return value.Bool(c >= 0), nil
	}
	return nil, th.vmErrorf("compareOp: bad token %s", op)
}

// equalValues implements structural equality (the language's "equal?"): heap
// aggregates compare element-wise, Float compares by bit pattern (so +0 and
// -0 differ here, unlike Cmp), and everything else defers to HasEqual or
// falls back to Handle/scalar identity. This cannot be a value.Value method
// since comparing aggregates needs *heap.Heap to dereference Handles, so it
// lives in the vm package instead.
func (th *Thread) equalValues(a, b value.Value) (bool, error) {
	return th.equalDepth(a, b, 0)
}

func (th *Thread) equalDepth(a, b value.Value, depth int) (bool, error) {
	if depth > 1000 {
		return false, th.vmErrorf("equal?: structure too deep (cyclic?)")
	}
	if fa, ok := a.(value.Float); ok {
		fb, ok := b.(value.Float)
		return ok && math.Float32bits(float32(fa)) == math.Float32bits(float32(fb)), nil
	}
	ha, aIsHandle := a.(heap.Handle)
	hb, bIsHandle := b.(heap.Handle)
	if aIsHandle && bIsHandle {
		return th.equalHandles(ha, hb, depth)
	}
	if aIsHandle != bIsHandle {
		return false, nil
	}
	if eq, ok := a.(value.HasEqual); ok {
		return eq.Equal(b)
	}
	return a == b, nil
}

func (th *Thread) equalHandles(a, b heap.Handle, depth int) (bool, error) {
	if a == b {
		return true, nil
	}
	if a.Kind != b.Kind {
		return false, nil
	}
	switch a.Kind {
	case heap.KindPair:
		carA, err := th.Heap.Car(a)
		if err != nil {
			return false, err
		}
		carB, err := th.Heap.Car(b)
		if err != nil {
			return false, err
		}
		if ok, err := th.equalDepth(carA, carB, depth+1); err != nil || !ok {
			return ok, err
		}
		cdrA, err := th.Heap.Cdr(a)
		if err != nil {
			return false, err
		}
		cdrB, err := th.Heap.Cdr(b)
		if err != nil {
			return false, err
		}
		return th.equalDepth(cdrA, cdrB, depth+1)
	case heap.KindVector:
		ea, err := th.Heap.VectorSlice(a)
		if err != nil {
			return false, err
		}
		eb, err := th.Heap.VectorSlice(b)
		if err != nil {
			return false, err
		}
		if len(ea) != len(eb) {
			return false, nil
		}
		for i := range ea {
			ok, err := th.equalDepth(ea[i], eb[i], depth+1)
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	case heap.KindMap:
		na, err := th.Heap.MapLen(a)
		if err != nil {
			return false, err
		}
		nb, err := th.Heap.MapLen(b)
		if err != nil {
			return false, err
		}
		if na != nb {
			return false, nil
		}
		var mismatch bool
		innerErr := error(nil)
		err = th.Heap.MapEach(a, func(k, v value.Value) bool {
			bv, found, ferr := th.Heap.MapGet(b, k)
			if ferr != nil {
				innerErr = ferr
				return false
			}
			if !found {
				mismatch = true
				return false
			}
			ok, eerr := th.equalDepth(v, bv, depth+1)
			if eerr != nil {
				innerErr = eerr
				return false
			}
			if !ok {
				mismatch = true
				return false
			}
			return true
		})
		if err != nil {
			return false, err
		}
		if innerErr != nil {
			return false, innerErr
		}
		return !mismatch, nil
	case heap.KindBytes:
		ba, err := th.Heap.BytesSlice(a)
		if err != nil {
			return false, err
		}
		bb, err := th.Heap.BytesSlice(b)
		if err != nil {
			return false, err
		}
		if len(ba) != len(bb) {
			return false, nil
		}
		for i := range ba {
			if ba[i] != bb[i] {
				return false, nil
			}
		}
		return true, nil
	case heap.KindString:
		sa, err := th.Heap.StringText(a)
		if err != nil {
			return false, err
		}
		sb, err := th.Heap.StringText(b)
		if err != nil {
			return false, err
		}
		return sa == sb, nil
	default:
		return false, nil
	}
}

// lengthOf implements LENGTH/# over every sequence-like kind: heap vectors,
// pair chains, list views, byte strings, heap strings and string constants.
func (th *Thread) lengthOf(v value.Value) (int, error) {
	switch t := v.(type) {
	case value.NilType:
		return 0, nil
	case value.StringConst:
		return t.Len(), nil
	case heap.ListView:
		return th.Heap.ListLen(t)
	case heap.Handle:
		switch t.Kind {
		case heap.KindVector:
			return th.Heap.VectorLen(t)
		case heap.KindPair:
			elems, err := th.Heap.ListSlice(t)
			if err != nil {
				return 0, th.typeErrorf("%v", err)
			}
			return len(elems), nil
		case heap.KindBytes:
			return th.Heap.BytesLen(t)
		case heap.KindString:
			s, err := th.Heap.StringText(t)
			if err != nil {
				return 0, err
			}
			return len([]rune(s)), nil
		case heap.KindMap:
			return th.Heap.MapLen(t)
		}
	}
	return 0, th.typeErrorf("value of type %s has no length", v.Type())
}

// elemAt implements ELEM: read the i'th element of src, whatever
// sequence-like kind it is. An index past the end is a :vm error, which is
// what makes a destructuring pattern with more required names than the
// source has elements fail at runtime.
func (th *Thread) elemAt(src value.Value, i int) (value.Value, error) {
	switch t := src.(type) {
	case value.StringConst:
		return t.Index(i)
	case heap.ListView:
		n, err := th.Heap.ListLen(t)
		if err != nil {
			return nil, err
		}
		if i < 0 || i >= n {
			return nil, th.vmErrorf("destructure: index %d out of range", i)
		}
		return th.Heap.VectorIndex(t.Vec, t.Start+i)
	case heap.Handle:
		switch t.Kind {
		case heap.KindVector:
			n, err := th.Heap.VectorLen(t)
			if err != nil {
				return nil, th.vmErrorf("%v", err)
			}
			if i < 0 || i >= n {
				return nil, th.vmErrorf("destructure: index %d out of range", i)
			}
			return th.Heap.VectorIndex(t, i)
		case heap.KindPair:
			elems, err := th.Heap.ListSlice(t)
			if err != nil {
				return nil, th.typeErrorf("%v", err)
			}
			if i < 0 || i >= len(elems) {
				return nil, th.vmErrorf("destructure: index %d out of range", i)
			}
			return elems[i], nil
		case heap.KindString:
			s, err := th.Heap.StringText(t)
			if err != nil {
				return nil, err
			}
			r := []rune(s)
			if i < 0 || i >= len(r) {
				return nil, th.vmErrorf("destructure: index %d out of range", i)
			}
			return value.CodePoint(r[i]), nil
		}
	case value.NilType:
		return nil, th.vmErrorf("destructure: index %d out of range", i)
	}
	return nil, th.typeErrorf("value of type %s is not indexable", src.Type())
}

// elemAtOrUndefined implements ELEMU, the optional-slot variant of ELEM: an
// index past the end yields Undefined instead of an error, so the JMPNU
// default machinery following it can fill the slot in.
func (th *Thread) elemAtOrUndefined(src value.Value, i int) (value.Value, error) {
	n, err := th.lengthOf(src)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return value.Undefined, nil
	}
	return th.elemAt(src, i)
}

// collectionGet implements MGET, the lookup a map destructuring pattern
// lowers to. The source may be a map (key lookup), or any sequence: an Int
// key indexes the sequence, any other key is searched for plist-style (the
// sequence read as alternating key/value entries). A missing key yields
// Undefined so required bindings can detect and reject it.
func (th *Thread) collectionGet(src, key value.Value) (value.Value, error) {
	if hd, ok := src.(heap.Handle); ok && hd.Kind == heap.KindMap {
		v, found, err := th.Heap.MapGet(hd, key)
		if err != nil {
			return nil, th.vmErrorf("%v", err)
		}
		if !found {
			return value.Undefined, nil
		}
		return v, nil
	}
	if idx, ok := key.(value.Int); ok {
		return th.elemAtOrUndefined(src, int(idx))
	}
	n, err := th.lengthOf(src)
	if err != nil {
		return nil, err
	}
	for i := 0; i+1 < n; i += 2 {
		k, err := th.elemAt(src, i)
		if err != nil {
			return nil, err
		}
		eq, err := th.equalValues(k, key)
		if err != nil {
			return nil, err
		}
		if eq {
			return th.elemAt(src, i+1)
		}
	}
	return value.Undefined, nil
}

// restFrom implements RESTFROM: a read-only List view of src from i onward.
// A Vector or existing ListView shares its backing vector (no copy); any
// other sequence kind is materialized into a fresh vector.
func (th *Thread) restFrom(src value.Value, i int) (value.Value, error) {
	switch t := src.(type) {
	case heap.ListView:
		n, err := th.Heap.ListLen(t)
		if err != nil {
			return nil, err
		}
		if i >= n {
			return value.Nil, nil
		}
		return heap.ListView{Vec: t.Vec, Start: t.Start + i}, nil
	case heap.Handle:
		if t.Kind == heap.KindVector {
			n, err := th.Heap.VectorLen(t)
			if err != nil {
				return nil, err
			}
			if i >= n {
				return value.Nil, nil
			}
			return heap.ListView{Vec: t, Start: i}, nil
		}
	}
	n, err := th.lengthOf(src)
	if err != nil {
		return nil, err
	}
	rest := make([]value.Value, 0, n-i)
	for j := i; j < n; j++ {
		el, err := th.elemAt(src, j)
		if err != nil {
			return nil, err
		}
		rest = append(rest, el)
	}
	return th.Heap.NewListView(rest), nil
}
