package value

import "fmt"

// CodePoint is a single Unicode scalar value, the element type produced by
// iterating a String by code point.
type CodePoint rune

var (
	_ Ordered  = CodePoint(0)
	_ Hashable = CodePoint(0)
)

func (c CodePoint) String() string { return string(rune(c)) }
func (c CodePoint) Type() string   { return "codepoint" }

func (c CodePoint) Cmp(y Value) (int, error) {
	d, ok := y.(CodePoint)
	if !ok {
		return 0, fmt.Errorf("cannot compare codepoint with %s", y.Type())
	}
	return cmpOrdered(c, d), nil
}

func (c CodePoint) Hash() (uint64, error) { return uint64(c), nil }

// CharCluster is an extended grapheme cluster: one or more code points that
// a user perceives as a single character, produced by iterating a String
// cluster-wise rather than code-point-wise. Clusters arising from normal
// text are short, so the bytes are stored inline rather than on the heap.
type CharCluster struct {
	n     uint8
	bytes [6]byte // UTF-8 bytes, stored inline; NewCharCluster rejects longer clusters
}

var _ Hashable = CharCluster{}

// NewCharCluster builds a CharCluster from its UTF-8 encoding. It returns an
// error if s is empty or longer than the inline capacity.
func NewCharCluster(s string) (CharCluster, error) {
	if len(s) == 0 {
		return CharCluster{}, fmt.Errorf("empty char cluster")
	}
	if len(s) > len(CharCluster{}.bytes) {
		return CharCluster{}, fmt.Errorf("char cluster too long: %d bytes", len(s))
	}
	var cc CharCluster
	cc.n = uint8(len(s))
	copy(cc.bytes[:], s)
	return cc, nil
}

func (c CharCluster) String() string { return string(c.bytes[:c.n]) }
func (c CharCluster) Type() string   { return "char-cluster" }

func (c CharCluster) Equal(y Value) (bool, error) {
	d, ok := y.(CharCluster)
	if !ok {
		return false, nil
	}
	return c == d, nil
}

func (c CharCluster) Hash() (uint64, error) {
	var h uint64 = 14695981039346656037 // FNV-1a offset basis
	for i := uint8(0); i < c.n; i++ {
		h ^= uint64(c.bytes[i])
		h *= 1099511628211
	}
	return h, nil
}
