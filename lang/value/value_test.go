package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/lispcore/lang/token"
)

func TestTruthy(t *testing.T) {
	falsy := []Value{False, Nil}
	for _, v := range falsy {
		assert.False(t, Truthy(v), "%s", v)
	}
	truthy := []Value{True, Int(0), Float(0), Byte(0), Undefined, NewStringConst(0, ""), CodePoint('a')}
	for _, v := range truthy {
		assert.True(t, Truthy(v), "%s", v)
	}
}

func TestNilAndUndefinedDistinct(t *testing.T) {
	assert.NotEqual(t, Value(Nil), Value(Undefined))
	assert.Equal(t, "nil", Nil.String())
	assert.Equal(t, "nil", Nil.Type())
	assert.Equal(t, "undefined", Undefined.Type())
}

func TestNewIntRange(t *testing.T) {
	_, err := NewInt(MaxInt56)
	require.NoError(t, err)
	_, err = NewInt(MinInt56)
	require.NoError(t, err)
	_, err = NewInt(MaxInt56 + 1)
	require.Error(t, err)
	_, err = NewInt(MinInt56 - 1)
	require.Error(t, err)
}

func TestIntBinary(t *testing.T) {
	add, err := Int(2).Binary(token.PLUS, Int(3), Left)
	require.NoError(t, err)
	assert.Equal(t, Int(5), add)

	// floor division and euclidean-style modulo
	q, err := Int(-7).Binary(token.SLASHSLASH, Int(2), Left)
	require.NoError(t, err)
	assert.Equal(t, Int(-4), q)

	m, err := Int(-7).Binary(token.PERCENT, Int(2), Left)
	require.NoError(t, err)
	assert.Equal(t, Int(1), m)

	// Side flips the operands: 10 - 2 when the receiver is the right side
	sub, err := Int(2).Binary(token.MINUS, Int(10), Right)
	require.NoError(t, err)
	assert.Equal(t, Int(8), sub)

	_, err = Int(1).Binary(token.SLASH, Int(0), Left)
	require.Error(t, err)

	// declines a non-int operand
	v, err := Int(1).Binary(token.PLUS, Float(2), Left)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestIntUnary(t *testing.T) {
	v, err := Int(5).Unary(token.UMINUS)
	require.NoError(t, err)
	assert.Equal(t, Int(-5), v)

	v, err = Int(0).Unary(token.UTILDE)
	require.NoError(t, err)
	assert.Equal(t, Int(-1), v)
}

func TestIntCmpAndHash(t *testing.T) {
	c, err := Int(1).Cmp(Int(2))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	_, err = Int(1).Cmp(Float(2))
	require.Error(t, err)

	h1, _ := Int(42).Hash()
	h2, _ := Int(42).Hash()
	assert.Equal(t, h1, h2)
}

func TestFloatHashBitPattern(t *testing.T) {
	h, err := Float(1.5).Hash()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.Float32bits(1.5)), h)

	hn1, _ := Float(math.NaN()).Hash()
	hn2, _ := Float(math.NaN()).Hash()
	assert.Equal(t, hn1, hn2, "same NaN bit pattern hashes equally")
}

func TestFloatBinary(t *testing.T) {
	v, err := Float(1).Binary(token.SLASH, Float(2), Left)
	require.NoError(t, err)
	assert.Equal(t, Float(0.5), v)

	_, err = Float(1).Binary(token.SLASH, Float(0), Left)
	require.Error(t, err)
}

func TestByteBinary(t *testing.T) {
	v, err := Byte(0xf0).Binary(token.AMPERSAND, Byte(0x3c), Left)
	require.NoError(t, err)
	assert.Equal(t, Byte(0x30), v)
	assert.Equal(t, "#x30", v.String())
}

func TestCharCluster(t *testing.T) {
	cc, err := NewCharCluster("é")
	require.NoError(t, err)
	assert.Equal(t, "é", cc.String())

	_, err = NewCharCluster("")
	require.Error(t, err)
	_, err = NewCharCluster("toolongcluster")
	require.Error(t, err)

	eq, err := cc.Equal(cc)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestStringConst(t *testing.T) {
	s := NewStringConst(1, "héllo")
	assert.Equal(t, 5, s.Len(), "length in code points, not bytes")

	cp, err := s.Index(1)
	require.NoError(t, err)
	assert.Equal(t, CodePoint('é'), cp)

	_, err = s.Index(9)
	require.Error(t, err)

	var got []rune
	it := s.Iterate()
	var v Value
	for it.Next(&v) {
		got = append(got, rune(v.(CodePoint)))
	}
	it.Done()
	assert.Equal(t, []rune("héllo"), got)
}

func TestSymbolKeywordIdentity(t *testing.T) {
	a1 := NewSymbol(1, "a")
	a2 := NewSymbol(1, "a")
	b := NewSymbol(2, "b")

	eq, _ := a1.Equal(a2)
	assert.True(t, eq)
	eq, _ = a1.Equal(b)
	assert.False(t, eq)

	k := NewKeyword(1, "a")
	eq, _ = k.Equal(a1)
	assert.False(t, eq, "a keyword never equals a symbol")
	assert.Equal(t, ":a", k.String())

	hs, _ := a1.Hash()
	hk, _ := k.Hash()
	assert.NotEqual(t, hs, hk, "symbol and keyword of the same id hash apart")
}

func TestBoolCmp(t *testing.T) {
	c, _ := False.Cmp(True)
	assert.Equal(t, -1, c)
	assert.Equal(t, "#t", True.String())
	assert.Equal(t, "#f", False.String())
}
