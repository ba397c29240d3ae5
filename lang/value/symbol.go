package value

import (
	"fmt"

	"github.com/mna/lispcore/lang/intern"
)

// Symbol is an identifier reference: a variable or special-form name as it
// appears in source. Two symbols are the same variable iff their ids are
// equal; name is carried alongside the id purely so String/error messages
// never need to thread an intern.Table through value formatting.
type Symbol struct {
	ID   intern.ID
	Name string
}

var _ HasEqual = Symbol{}
var _ Hashable = Symbol{}

func NewSymbol(id intern.ID, name string) Symbol { return Symbol{ID: id, Name: name} }

func (s Symbol) String() string { return s.Name }
func (s Symbol) Type() string   { return "symbol" }

func (s Symbol) Equal(y Value) (bool, error) {
	t, ok := y.(Symbol)
	return ok && s.ID == t.ID, nil
}

func (s Symbol) Hash() (uint64, error) { return uint64(s.ID), nil }

// Keyword is a self-evaluating interned atom written :name, commonly used as
// an enum-like tag or map key.
type Keyword struct {
	ID   intern.ID
	Name string
}

var _ HasEqual = Keyword{}
var _ Hashable = Keyword{}

func NewKeyword(id intern.ID, name string) Keyword { return Keyword{ID: id, Name: name} }

func (k Keyword) String() string { return ":" + k.Name }
func (k Keyword) Type() string   { return "keyword" }

func (k Keyword) Equal(y Value) (bool, error) {
	l, ok := y.(Keyword)
	return ok && k.ID == l.ID, nil
}

func (k Keyword) Hash() (uint64, error) { return uint64(k.ID) ^ 0x5bd1e995, nil }

// StringConst is an interned, immutable string literal. It is distinct from
// the heap String type: a StringConst is never mutated and compares and
// hashes by its interned id, so repeated occurrences of the same literal in
// compiled code are cheap to compare.
type StringConst struct {
	ID   intern.ID
	Text string
}

var (
	_ Ordered   = StringConst{}
	_ Hashable  = StringConst{}
	_ Indexable = StringConst{}
)

func NewStringConst(id intern.ID, text string) StringConst {
	return StringConst{ID: id, Text: text}
}

func (s StringConst) String() string { return s.Text }
func (s StringConst) Type() string   { return "string" }

func (s StringConst) Cmp(y Value) (int, error) {
	t, ok := y.(StringConst)
	if !ok {
		return 0, fmt.Errorf("cannot compare string with %s", y.Type())
	}
	return cmpOrdered(s.Text, t.Text), nil
}

func (s StringConst) Hash() (uint64, error) {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s.Text); i++ {
		h ^= uint64(s.Text[i])
		h *= 1099511628211
	}
	return h, nil
}

func (s StringConst) Len() int { return len([]rune(s.Text)) }

func (s StringConst) Index(i int) (Value, error) {
	r := []rune(s.Text)
	if i < 0 || i >= len(r) {
		return nil, fmt.Errorf("string index out of range: %d", i)
	}
	return CodePoint(r[i]), nil
}

// Special is a unique, uninterned sentinel value: every call to NewSpecial
// produces a symbol that is equal only to itself, the idiom used for
// generated (gensym) bindings that must never collide with a user-written
// name.
type Special struct {
	ID   intern.ID
	Name string
}

var _ HasEqual = Special{}

func NewSpecial(id intern.ID, name string) Special { return Special{ID: id, Name: name} }

func (s Special) String() string { return fmt.Sprintf("#<special %s>", s.Name) }
func (s Special) Type() string   { return "special" }

func (s Special) Equal(y Value) (bool, error) {
	t, ok := y.(Special)
	return ok && s.ID == t.ID, nil
}
