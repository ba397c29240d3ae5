package value

import "unicode/utf8"

var _ Sequence = StringConst{}

// Iterate yields the string's characters one code point at a time. A
// grapheme-cluster-wise walk (producing CharCluster values) belongs to the
// collections library layered above the core; code-point iteration is what
// the opcodes themselves need.
func (s StringConst) Iterate() Iterator { return &stringIter{rest: s.Text} }

type stringIter struct{ rest string }

func (it *stringIter) Next(p *Value) bool {
	if it.rest == "" {
		return false
	}
	r, size := utf8.DecodeRuneInString(it.rest)
	it.rest = it.rest[size:]
	*p = CodePoint(r)
	return true
}

func (it *stringIter) Done() {}
