package value

import (
	"fmt"

	"github.com/mna/lispcore/lang/token"
)

// Byte is a single octet, the element type of a Bytes object.
type Byte uint8

var (
	_ Ordered   = Byte(0)
	_ HasBinary = Byte(0)
	_ Hashable  = Byte(0)
)

func (b Byte) String() string { return fmt.Sprintf("#x%02x", uint8(b)) }
func (b Byte) Type() string   { return "byte" }

func (b Byte) Cmp(y Value) (int, error) {
	c, ok := y.(Byte)
	if !ok {
		return 0, fmt.Errorf("cannot compare byte with %s", y.Type())
	}
	return cmpOrdered(b, c), nil
}

func (b Byte) Hash() (uint64, error) { return uint64(b), nil }

func (b Byte) Binary(op token.Token, y Value, side Side) (Value, error) {
	c, ok := y.(Byte)
	if !ok {
		return nil, nil
	}
	x, z := b, c
	if side == Right {
		x, z = z, x
	}
	switch op {
	case token.PLUS:
		return x + z, nil
	case token.MINUS:
		return x - z, nil
	case token.AMPERSAND:
		return x & z, nil
	case token.PIPE:
		return x | z, nil
	case token.CIRCUMFLEX:
		return x ^ z, nil
	}
	return nil, nil
}
