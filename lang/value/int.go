package value

import (
	"fmt"
	"strconv"

	"github.com/mna/lispcore/lang/token"
)

// Int is a signed 56-bit integer, the numeric range a tagged 8-byte
// representation leaves for an immediate. Rather than hand-bit-pack a
// primitive (which buys nothing once the value sits behind the Value
// interface), Int is a plain int64 whose range is validated at
// construction: [MinInt56, MaxInt56].
type Int int64

const (
	MaxInt56 = 1<<55 - 1
	MinInt56 = -1 << 55
)

var (
	_ Ordered   = Int(0)
	_ HasBinary = Int(0)
	_ HasUnary  = Int(0)
	_ Hashable  = Int(0)
)

// NewInt validates n against the 56-bit signed range and returns an error if
// it overflows.
func NewInt(n int64) (Int, error) {
	if n < MinInt56 || n > MaxInt56 {
		return 0, fmt.Errorf("int out of range: %d", n)
	}
	return Int(n), nil
}

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }
func (i Int) Type() string   { return "int" }

func (i Int) Cmp(y Value) (int, error) {
	j, ok := y.(Int)
	if !ok {
		return 0, fmt.Errorf("cannot compare int with %s", y.Type())
	}
	return cmpOrdered(i, j), nil
}

func (i Int) Hash() (uint64, error) { return uint64(i), nil }

func (i Int) Binary(op token.Token, y Value, side Side) (Value, error) {
	j, ok := y.(Int)
	if !ok {
		return nil, nil
	}
	x, z := int64(i), int64(j)
	if side == Right {
		x, z = z, x
	}
	switch op {
	case token.PLUS:
		return NewInt(x + z)
	case token.MINUS:
		return NewInt(x - z)
	case token.STAR:
		return NewInt(x * z)
	case token.SLASH, token.SLASHSLASH:
		if z == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		q := x / z
		if (x%z != 0) && ((x < 0) != (z < 0)) {
			q-- // floor division
		}
		return NewInt(q)
	case token.PERCENT:
		if z == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		m := x % z
		if m != 0 && ((m < 0) != (z < 0)) {
			m += z
		}
		return NewInt(m)
	case token.AMPERSAND:
		return NewInt(x & z)
	case token.PIPE:
		return NewInt(x | z)
	case token.CIRCUMFLEX:
		return NewInt(x ^ z)
	case token.LTLT:
		return NewInt(x << uint(z))
	case token.GTGT:
		return NewInt(x >> uint(z))
	}
	return nil, nil
}

func (i Int) Unary(op token.Token) (Value, error) {
	switch op {
	case token.UPLUS:
		return i, nil
	case token.UMINUS:
		return NewInt(-int64(i))
	case token.UTILDE:
		return NewInt(^int64(i))
	}
	return nil, nil
}
