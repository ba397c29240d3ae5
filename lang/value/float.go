package value

import (
	"fmt"
	"math"
	"strconv"

	"github.com/mna/lispcore/lang/token"
)

// Float is a single-precision floating-point number. Map keys hash floats
// by bit pattern, which only makes sense at a fixed width, so Float is
// backed by float32 rather than Go's default float64.
type Float float32

var (
	_ Ordered   = Float(0)
	_ HasBinary = Float(0)
	_ HasUnary  = Float(0)
	_ Hashable  = Float(0)
)

func (f Float) String() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

func (f Float) Type() string { return "float" }

func (f Float) Cmp(y Value) (int, error) {
	g, ok := y.(Float)
	if !ok {
		return 0, fmt.Errorf("cannot compare float with %s", y.Type())
	}
	return cmpOrdered(f, g), nil
}

// Hash hashes by bit pattern, so two NaNs with the same bit pattern hash
// equally, while +0 and -0 hash differently even though Cmp reports them
// equal.
func (f Float) Hash() (uint64, error) {
	return uint64(math.Float32bits(float32(f))), nil
}

func (f Float) Binary(op token.Token, y Value, side Side) (Value, error) {
	g, ok := y.(Float)
	if !ok {
		return nil, nil
	}
	x, z := float32(f), float32(g)
	if side == Right {
		x, z = z, x
	}
	switch op {
	case token.PLUS:
		return Float(x + z), nil
	case token.MINUS:
		return Float(x - z), nil
	case token.STAR:
		return Float(x * z), nil
	case token.SLASH:
		if z == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Float(x / z), nil
	case token.SLASHSLASH:
		if z == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Float(math.Floor(float64(x / z))), nil
	case token.PERCENT:
		if z == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return Float(math.Mod(float64(x), float64(z))), nil
	}
	return nil, nil
}

func (f Float) Unary(op token.Token) (Value, error) {
	switch op {
	case token.UPLUS:
		return f, nil
	case token.UMINUS:
		return -f, nil
	}
	return nil, nil
}
