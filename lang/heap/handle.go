// Package heap implements the managed heap: every compound or mutable
// runtime datum (pairs, vectors, maps, bytes, strings, lambdas, closures,
// continuations, call frames, cells and errors) lives here, addressed
// indirectly through a Handle rather than a Go pointer. The indirection is
// what makes mark-sweep collection, a reentrant-pausable GC and stale-handle
// detection possible: a Handle that outlives its generation is simply
// invalid, not a dangling pointer.
package heap

import (
	"fmt"

	"github.com/mna/lispcore/lang/value"
)

// Kind identifies which arena a Handle indexes into.
type Kind uint8

const (
	KindPair Kind = iota
	KindVector
	KindMap
	KindBytes
	KindString
	KindLambda
	KindClosure
	KindContinuation
	KindCallFrame
	KindCell
	KindError
	numKinds
)

var kindNames = [numKinds]string{
	KindPair:         "pair",
	KindVector:       "vector",
	KindMap:          "map",
	KindBytes:        "bytes",
	KindString:       "string",
	KindLambda:       "lambda",
	KindClosure:      "closure",
	KindContinuation: "continuation",
	KindCallFrame:    "call-frame",
	KindCell:         "cell",
	KindError:        "error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown-kind"
}

// Handle is an indirect, generation-checked reference to a heap object. It
// implements value.Value so it can flow through registers, pairs, vectors
// and map slots exactly like any immediate value.
//
// Equality and hashing on a bare Handle are identity-based (same kind,
// index and generation): this is the "eq?" notion of equality for mutable
// aggregates. Structural ("equal?") comparison requires walking the heap
// and is implemented in package vm (Thread.equalValues), not by the Handle
// type itself.
type Handle struct {
	Kind Kind
	Idx  uint32
	Gen  uint32
}

var (
	_ value.Value    = Handle{}
	_ value.HasEqual = Handle{}
	_ value.Hashable = Handle{}
)

// Zero reports whether h is the zero Handle, used as a nil-ish sentinel for
// optional references (e.g. a call frame with no parent).
func (h Handle) Zero() bool { return h == Handle{} }

func (h Handle) String() string { return fmt.Sprintf("#<%s %d.%d>", h.Kind, h.Idx, h.Gen) }
func (h Handle) Type() string   { return h.Kind.String() }

func (h Handle) Equal(y value.Value) (bool, error) {
	g, ok := y.(Handle)
	return ok && h == g, nil
}

func (h Handle) Hash() (uint64, error) {
	x := uint64(h.Kind)
	x = x*1099511628211 ^ uint64(h.Idx)
	x = x*1099511628211 ^ uint64(h.Gen)
	return x, nil
}

// ErrStaleHandle is returned by an accessor when a Handle's generation no
// longer matches the live object at its index: the slot was freed and
// reused (or never allocated).
type ErrStaleHandle struct{ Handle Handle }

func (e ErrStaleHandle) Error() string {
	return fmt.Sprintf("heap: stale handle %s", e.Handle)
}

// ErrWrongKind is returned when an accessor for one kind (e.g. Car) is
// called with a Handle of another kind (e.g. a vector).
type ErrWrongKind struct {
	Want, Got Kind
}

func (e ErrWrongKind) Error() string {
	return fmt.Sprintf("heap: expected %s handle, got %s", e.Want, e.Got)
}
