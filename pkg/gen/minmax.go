// Package gen contains a bunch of generic functions that will probably be in the Go std lib someday
package gen

import "golang.org/x/exp/constraints"

func Abs[T constraints.Integer | constraints.Float](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

func Clamp[T constraints.Ordered](v, min, max T) T {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
