package pixel

import (
	"fmt"
	"math"

	"github.com/clktmr/tileraster/internal/xmath"
)

// DepthFormat identifies a packed depth (and optionally stencil) format.
type DepthFormat uint32

const (
	DepthNone DepthFormat = iota
	// Z16 is 16 bit normalized depth.
	Z16
	// Z32 is 32 bit normalized depth.
	Z32
	// Z24S8 stores 24 bit depth in bits 8-31 and stencil in bits 0-7.
	Z24S8
	// S8Z24 stores stencil in bits 24-31 and 24 bit depth in bits 0-23.
	S8Z24
)

func (f DepthFormat) String() string {
	switch f {
	case DepthNone:
		return "none"
	case Z16:
		return "Z16"
	case Z32:
		return "Z32"
	case Z24S8:
		return "Z24S8"
	case S8Z24:
		return "S8Z24"
	}
	return fmt.Sprintf("DepthFormat(%d)", uint32(f))
}

func (f DepthFormat) Valid() bool { return f <= S8Z24 }

// Bits returns the number of bits of the depth channel.
func (f DepthFormat) Bits() int {
	switch f {
	case Z16:
		return 16
	case Z32:
		return 32
	case Z24S8, S8Z24:
		return 24
	}
	return 0
}

// Bytes returns the storage size of one pixel.
func (f DepthFormat) Bytes() int {
	switch f {
	case Z16:
		return 2
	case Z32, Z24S8, S8Z24:
		return 4
	}
	return 0
}

func (f DepthFormat) maxValue() float64 {
	return float64(uint64(1)<<f.Bits() - 1)
}

// PackDepth converts a normalized depth value into the depth bits of format
// f, positioned as in the packed pixel.  Stencil bits are zero.
func PackDepth(f DepthFormat, z float32) uint32 {
	if f == DepthNone {
		return 0
	}
	v := uint32(math.Floor(float64(xmath.Clamp(z, 0, 1))*f.maxValue() + 0.5))
	if f == Z24S8 {
		return v << 8
	}
	return v
}

// UnpackDepth returns the normalized depth of a packed pixel.
func UnpackDepth(f DepthFormat, p uint32) float32 {
	if f == DepthNone {
		return 0
	}
	return float32(float64(DepthValue(f, p)) / f.maxValue())
}

// DepthValue extracts the integer depth of a packed pixel.  Values of the
// same format compare like the depths they represent.
func DepthValue(f DepthFormat, p uint32) uint32 {
	switch f {
	case Z16:
		return p & 0xffff
	case Z24S8:
		return p >> 8
	case S8Z24:
		return p & 0xffffff
	}
	return p
}

// StencilMask returns the bits of a packed pixel holding stencil.
func StencilMask(f DepthFormat) uint32 {
	switch f {
	case Z24S8:
		return 0x000000ff
	case S8Z24:
		return 0xff000000
	}
	return 0
}

// MergeDepth replaces the depth bits of old with those of z, keeping the
// stencil bits.
func MergeDepth(f DepthFormat, old, z uint32) uint32 {
	m := StencilMask(f)
	return old&m | z&^m
}
