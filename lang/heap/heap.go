package heap

import (
	"github.com/dolthub/swiss"
	"github.com/mna/lispcore/lang/value"
)

// Heap owns every compound or mutable runtime object. Create one with New:
// the zero Heap has no sticky table, so Sticky panics on it.
type Heap struct {
	pairs         arena[pairObj]
	vectors       arena[vectorObj]
	maps          arena[mapObj]
	bytesObjs     arena[bytesObj]
	strings       arena[stringObj]
	lambdas       arena[lambdaObj]
	closures      arena[closureObj]
	continuations arena[continuationObj]
	frames        arena[frameObj]
	cells         arena[cellObj]
	errors        arena[errorObj]

	pauseDepth int
	sticky     map[Handle]int

	allocsSinceGC int
	gcThreshold   int
}

// New returns a ready Heap. gcThreshold is the number of allocations
// between automatic collections when the embedder calls MaybeCollect; a
// value <= 0 picks a reasonable default.
func New(gcThreshold int) *Heap {
	if gcThreshold <= 0 {
		gcThreshold = 10000
	}
	return &Heap{sticky: make(map[Handle]int), gcThreshold: gcThreshold}
}

// Pause suspends collection. Calls nest: Collect and MaybeCollect are no-ops
// while the pause depth is above zero. Every Pause must be matched by an
// Unpause.
func (h *Heap) Pause() { h.pauseDepth++ }

// Unpause reverses one Pause call.
func (h *Heap) Unpause() {
	if h.pauseDepth > 0 {
		h.pauseDepth--
	}
}

// Sticky pins h so that Collect always treats it as a root, independent of
// whether it is reachable from the caller-supplied roots. Pins nest: an
// object pinned twice needs two Unsticky calls before it can be collected.
func (h *Heap) Sticky(hd Handle) { h.sticky[hd]++ }

// Unsticky reverses one Sticky call on hd.
func (h *Heap) Unsticky(hd Handle) {
	if n := h.sticky[hd]; n > 1 {
		h.sticky[hd] = n - 1
	} else {
		delete(h.sticky, hd)
	}
}

// NeedsCollect reports whether enough allocations have happened since the
// last collection for a Collect to be worthwhile. Callers with expensive
// root sets check it before gathering them.
func (h *Heap) NeedsCollect() bool {
	return h.pauseDepth == 0 && h.allocsSinceGC >= h.gcThreshold
}

// MaybeCollect runs Collect if NeedsCollect reports true, otherwise it is
// a no-op.
func (h *Heap) MaybeCollect(roots []value.Value) {
	if !h.NeedsCollect() {
		return
	}
	h.Collect(roots)
}

// ---- allocation ----

func (h *Heap) track() { h.allocsSinceGC++ }

func (h *Heap) NewPair(car, cdr value.Value) Handle {
	h.track()
	idx, gen := h.pairs.alloc(pairObj{car: car, cdr: cdr})
	return Handle{Kind: KindPair, Idx: idx, Gen: gen}
}

func (h *Heap) NewVector(elems []value.Value) Handle {
	h.track()
	idx, gen := h.vectors.alloc(vectorObj{elems: elems})
	return Handle{Kind: KindVector, Idx: idx, Gen: gen}
}

func (h *Heap) NewMap(size int) Handle {
	h.track()
	idx, gen := h.maps.alloc(mapObj{m: swiss.NewMap[value.Value, value.Value](uint32(size))})
	return Handle{Kind: KindMap, Idx: idx, Gen: gen}
}

func (h *Heap) NewBytes(b []byte) Handle {
	h.track()
	idx, gen := h.bytesObjs.alloc(bytesObj{b: b})
	return Handle{Kind: KindBytes, Idx: idx, Gen: gen}
}

func (h *Heap) NewString(s string) Handle {
	h.track()
	idx, gen := h.strings.alloc(stringObj{s: []byte(s)})
	return Handle{Kind: KindString, Idx: idx, Gen: gen}
}

func (h *Heap) NewLambda(code any, name string, isMacro bool) Handle {
	h.track()
	idx, gen := h.lambdas.alloc(lambdaObj{Code: code, Name: name, IsMacro: isMacro})
	return Handle{Kind: KindLambda, Idx: idx, Gen: gen}
}

func (h *Heap) NewClosure(lambda Handle, captures []Handle) Handle {
	h.track()
	idx, gen := h.closures.alloc(closureObj{Lambda: lambda, Captures: captures})
	return Handle{Kind: KindClosure, Idx: idx, Gen: gen}
}

func (h *Heap) NewFrame(closure, parent Handle, regs []value.Value) Handle {
	h.track()
	idx, gen := h.frames.alloc(frameObj{Closure: closure, Parent: parent, Regs: regs})
	return Handle{Kind: KindCallFrame, Idx: idx, Gen: gen}
}

func (h *Heap) NewContinuation(frames []Handle, dest int32) Handle {
	h.track()
	idx, gen := h.continuations.alloc(continuationObj{Frames: frames, Dest: dest})
	return Handle{Kind: KindContinuation, Idx: idx, Gen: gen}
}

func (h *Heap) NewCell(v value.Value) Handle {
	h.track()
	idx, gen := h.cells.alloc(cellObj{V: v})
	return Handle{Kind: KindCell, Idx: idx, Gen: gen}
}

func (h *Heap) NewError(keyword, message string, data value.Value) Handle {
	h.track()
	idx, gen := h.errors.alloc(errorObj{Keyword: keyword, Message: message, Data: data})
	return Handle{Kind: KindError, Idx: idx, Gen: gen}
}

// ---- collection ----

// Collect performs a mark-sweep pass rooted at roots plus every sticky
// handle. It is a no-op while the heap is paused.
func (h *Heap) Collect(roots []value.Value) {
	if h.pauseDepth > 0 {
		return
	}
	marked := make(map[Handle]bool)
	var mark func(v value.Value)
	mark = func(v value.Value) {
		if lv, ok := v.(ListView); ok {
			mark(lv.Vec)
			return
		}
		hd, ok := v.(Handle)
		if !ok || hd.Zero() || marked[hd] {
			return
		}
		marked[hd] = true
		switch hd.Kind {
		case KindPair:
			if p, ok := h.pairs.get(hd.Idx, hd.Gen); ok {
				mark(p.car)
				mark(p.cdr)
			}
		case KindVector:
			if v2, ok := h.vectors.get(hd.Idx, hd.Gen); ok {
				for _, e := range v2.elems {
					mark(e)
				}
			}
		case KindMap:
			if m, ok := h.maps.get(hd.Idx, hd.Gen); ok && m.m != nil {
				for _, k := range m.keys {
					mark(k)
					if v, ok := m.m.Get(k); ok {
						mark(v)
					}
				}
			}
		case KindClosure:
			if c, ok := h.closures.get(hd.Idx, hd.Gen); ok {
				mark(c.Lambda)
				for _, cap := range c.Captures {
					mark(cap)
				}
			}
		case KindCallFrame:
			if f, ok := h.frames.get(hd.Idx, hd.Gen); ok {
				mark(f.Closure)
				mark(f.Parent)
				for _, r := range f.Regs {
					mark(r)
				}
				for _, d := range f.Defers {
					mark(d)
				}
			}
		case KindContinuation:
			if c, ok := h.continuations.get(hd.Idx, hd.Gen); ok {
				for _, fr := range c.Frames {
					mark(fr)
				}
			}
		case KindCell:
			if c, ok := h.cells.get(hd.Idx, hd.Gen); ok {
				mark(c.V)
			}
		case KindError:
			if e, ok := h.errors.get(hd.Idx, hd.Gen); ok {
				mark(e.Data)
			}
		case KindBytes, KindString, KindLambda:
			// leaf objects: no outgoing Value references
		}
	}

	for _, r := range roots {
		mark(r)
	}
	for hd := range h.sticky {
		mark(hd)
	}

	sweepArena(&h.pairs, KindPair, marked)
	sweepArena(&h.vectors, KindVector, marked)
	sweepArena(&h.maps, KindMap, marked)
	sweepArena(&h.bytesObjs, KindBytes, marked)
	sweepArena(&h.strings, KindString, marked)
	sweepArena(&h.lambdas, KindLambda, marked)
	sweepArena(&h.closures, KindClosure, marked)
	sweepArena(&h.continuations, KindContinuation, marked)
	sweepArena(&h.frames, KindCallFrame, marked)
	sweepArena(&h.cells, KindCell, marked)
	sweepArena(&h.errors, KindError, marked)

	h.allocsSinceGC = 0
}

func sweepArena[T any](a *arena[T], kind Kind, marked map[Handle]bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		hd := Handle{Kind: kind, Idx: uint32(i), Gen: s.gen}
		if !marked[hd] {
			a.freeSlot(uint32(i))
		}
	}
}

// Stats reports live object counts per kind, for diagnostics and tests.
func (h *Heap) Stats() map[string]int {
	return map[string]int{
		KindPair.String():         h.pairs.liveCount(),
		KindVector.String():       h.vectors.liveCount(),
		KindMap.String():          h.maps.liveCount(),
		KindBytes.String():        h.bytesObjs.liveCount(),
		KindString.String():       h.strings.liveCount(),
		KindLambda.String():       h.lambdas.liveCount(),
		KindClosure.String():      h.closures.liveCount(),
		KindContinuation.String(): h.continuations.liveCount(),
		KindCallFrame.String():    h.frames.liveCount(),
		KindCell.String():         h.cells.liveCount(),
		KindError.String():        h.errors.liveCount(),
	}
}

func wrongKind(want Kind, h Handle) error {
	return ErrWrongKind{Want: want, Got: h.Kind}
}

func stale(h Handle) error { return ErrStaleHandle{Handle: h} }
