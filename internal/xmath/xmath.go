// Package xmath has small generic numeric helpers shared by the rasterizer,
// the texture sampler and the pixel codecs.
package xmath

import "golang.org/x/exp/constraints"

func Min[T constraints.Ordered](x, y T) T {
	if x < y {
		return x
	}
	return y
}

func Max[T constraints.Ordered](x, y T) T {
	if x > y {
		return x
	}
	return y
}

// Clamp limits x to the closed interval [lo, hi].
func Clamp[T constraints.Ordered](x, lo, hi T) T {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// DivCeil returns x/y rounded towards positive infinity for non-negative x
// and positive y.
func DivCeil[T constraints.Integer](x, y T) T {
	return (x + y - 1) / y
}

// IsPow2 reports whether x is a positive power of two.
func IsPow2[T constraints.Integer](x T) bool {
	return x > 0 && x&(x-1) == 0
}

// Lerp interpolates linearly between a and b.
func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}
