package value

// NilType is the type of Nil, the unique empty list.
type NilType struct{}

// Nil is the unique empty list value.
var Nil = NilType{}

func (NilType) String() string { return "nil" }
func (NilType) Type() string   { return "nil" }

// UndefinedType is the type of Undefined, which marks uninitialized storage
// and is distinct from Nil: arithmetic or any other operation on Undefined
// is a VM error.
type UndefinedType struct{}

// Undefined marks a storage location (register, optional parameter, map
// slot) that has not been assigned a value yet.
var Undefined = UndefinedType{}

func (UndefinedType) String() string { return "#<undefined>" }
func (UndefinedType) Type() string   { return "undefined" }
