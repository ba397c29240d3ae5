package value

import "golang.org/x/exp/constraints"

// cmpOrdered is the shared three-way comparison behind every Ordered
// scalar's Cmp method.
func cmpOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
