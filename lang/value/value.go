// Package value defines the uniform tagged datum that the compiler and VM
// manipulate everywhere: Value. Rather than a hand-rolled tagged union, each
// variant is a distinct Go type implementing the Value interface -- the
// idiomatic Go expression of a tagged sum type, and a type switch or
// assertion on a Value is the tag dispatch.
//
// This package holds only the scalar variants that need no heap allocation:
// immediates (Byte, Int, Float, CodePoint, CharCluster, Bool, Nil,
// Undefined) and interned scalars (Symbol, Keyword, StringConst, Special,
// Builtin). Heap-allocated variants (String, Vector, Map, Bytes, Pair, List,
// Lambda, Closure, Continuation, CallFrame, Cell, Error) live in package
// heap, which imports this package.
package value

import "github.com/mna/lispcore/lang/token"

// Value is implemented by every datum the VM and compiler manipulate.
type Value interface {
	// String returns the display representation of the value.
	String() string
	// Type returns a short name for the value's variant, used in error
	// messages (e.g. "int", "pair", "closure").
	Type() string
}

// Truthy reports the truthiness of v. Only False and Nil are falsy; every
// other value, including 0, Undefined and empty aggregates, is truthy.
func Truthy(v Value) bool {
	switch v {
	case False, Nil:
		return false
	}
	return true
}

// Ordered is implemented by types whose values have a total order.
type Ordered interface {
	Value
	// Cmp compares the receiver to y, which is guaranteed by callers to be of
	// the same concrete type. It returns <0, 0 or >0.
	Cmp(y Value) (int, error)
}

// HasEqual is implemented by types that define their own structural equality
// instead of ordering or identity equality.
type HasEqual interface {
	Value
	Equal(y Value) (bool, error)
}

// HasBinary is implemented by a type that can appear as either operand of a
// binary operator. Side indicates whether the receiver is the left or right
// operand. Returning (nil, nil) declines to handle the operation, letting
// the other operand (if any) try.
type HasBinary interface {
	Value
	Binary(op token.Token, y Value, side Side) (Value, error)
}

// Side indicates which operand of a binary operator a HasBinary receiver is.
type Side bool

const (
	Left  Side = false
	Right Side = true
)

// HasUnary is implemented by a type that supports a unary operator. As with
// HasBinary, (nil, nil) declines the operation.
type HasUnary interface {
	Value
	Unary(op token.Token) (Value, error)
}

// Hashable is implemented by types usable as Map keys. Hash must agree with
// whatever equality the type uses for comparison (Cmp or Equal): equal
// values must hash equally.
type Hashable interface {
	Value
	Hash() (uint64, error)
}

// Iterator yields the elements of a Sequence or Iterable one at a time. Done
// must be called once the caller is finished with the iterator.
type Iterator interface {
	Next(p *Value) bool
	Done()
}

// Iterable is implemented by values that can produce an Iterator.
type Iterable interface {
	Value
	Iterate() Iterator
}

// Sequence is an Iterable of known length.
type Sequence interface {
	Iterable
	Len() int
}

// Indexable is a sequence of known length supporting random access.
type Indexable interface {
	Value
	Index(i int) (Value, error)
	Len() int
}

// HasSetIndex is an Indexable whose elements may be assigned.
type HasSetIndex interface {
	Indexable
	SetIndex(i int, v Value) error
}

// Mapping is implemented by key/value associative values.
type Mapping interface {
	Value
	Get(k Value) (v Value, found bool, err error)
}

// HasSetKey supports map update (m[k] = v).
type HasSetKey interface {
	Mapping
	SetKey(k, v Value) error
}

// HasAttrs is implemented by a value whose fields or methods may be read via
// property access (get-prop obj key).
type HasAttrs interface {
	Value
	Attr(name string) (Value, error)
	AttrNames() []string
}

// HasSetField supports property assignment (set-prop obj key val).
type HasSetField interface {
	HasAttrs
	SetField(name string, v Value) error
}

// Callable is implemented by any value that may appear as the callee of a
// call form.
type Callable interface {
	Value
	Name() string
}
