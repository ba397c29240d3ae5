package value

import "fmt"

// Builtin is a reference to a native (Go-implemented) function. The VM keeps
// the actual Go func values in its own registration table indexed by ID;
// package value only needs enough to name, print and call-dispatch on the
// reference without importing the VM (which would create an import cycle).
type Builtin struct {
	ID   int32
	name string
}

var _ Callable = Builtin{}

func NewBuiltin(id int32, name string) Builtin { return Builtin{ID: id, name: name} }

func (b Builtin) String() string { return fmt.Sprintf("#<builtin %s>", b.name) }
func (b Builtin) Type() string   { return "builtin" }

// Name implements Callable.
func (b Builtin) Name() string { return b.name }
