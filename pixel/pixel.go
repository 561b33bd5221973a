// Package pixel defines the packed color and depth formats of framebuffers
// and textures and converts between packed and unpacked representation.
//
// Unpacked colors are four float32 channels in R, G, B, A order.  Packing
// rounds to the nearest 8 bit value, so Unpack(f, Pack(f, c)) == c holds for
// every color whose channels are multiples of 1/255.
package pixel

import (
	"fmt"
	"image/color"
	"math"

	"github.com/clktmr/tileraster/internal/xmath"
)

// Color is an unpacked color with channels R, G, B, A in [0, 1].
type Color [4]float32

const (
	R = iota
	G
	B
	A
)

// Format identifies a packed 32 bit color format.
type Format uint32

const (
	// A8R8G8B8 stores alpha in bits 24-31, red in 16-23, green in 8-15 and
	// blue in 0-7.  In little endian memory the byte order is B, G, R, A.
	A8R8G8B8 Format = iota + 1
	// B8G8R8A8 stores blue in bits 24-31, green in 16-23, red in 8-15 and
	// alpha in 0-7.  In little endian memory the byte order is A, R, G, B.
	B8G8R8A8
)

func (f Format) String() string {
	switch f {
	case A8R8G8B8:
		return "A8R8G8B8"
	case B8G8R8A8:
		return "B8G8R8A8"
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

func (f Format) Valid() bool { return f == A8R8G8B8 || f == B8G8R8A8 }

// shifts returns the bit position of the R, G, B and A channel.
func (f Format) shifts() [4]uint {
	if f == B8G8R8A8 {
		return [4]uint{8, 16, 24, 0}
	}
	return [4]uint{16, 8, 0, 24}
}

func quantize8(c float32) uint32 {
	if c != c { // NaN
		return 0
	}
	return uint32(math.Floor(float64(xmath.Clamp(c, 0, 1))*255 + 0.5))
}

// Pack converts c to format f.
func Pack(f Format, c Color) uint32 {
	s := f.shifts()
	return quantize8(c[R])<<s[R] | quantize8(c[G])<<s[G] |
		quantize8(c[B])<<s[B] | quantize8(c[A])<<s[A]
}

// Unpack converts a packed pixel of format f.
func Unpack(f Format, p uint32) (c Color) {
	s := f.shifts()
	for i := range c {
		c[i] = float32(p>>s[i]&0xff) / 255
	}
	return
}

// Convert repacks a pixel from format src to dst without going through
// floating point.
func Convert(dst, src Format, p uint32) uint32 {
	if dst == src {
		return p
	}
	ss, ds := src.shifts(), dst.shifts()
	var q uint32
	for i := range ss {
		q |= (p >> ss[i] & 0xff) << ds[i]
	}
	return q
}

// RGBA returns the packed pixel as non-premultiplied 8 bit color.
func RGBA(f Format, p uint32) color.NRGBA {
	s := f.shifts()
	return color.NRGBA{
		R: uint8(p >> s[R]), G: uint8(p >> s[G]),
		B: uint8(p >> s[B]), A: uint8(p >> s[A]),
	}
}

// FromRGBA packs an 8 bit color.
func FromRGBA(f Format, c color.NRGBA) uint32 {
	s := f.shifts()
	return uint32(c.R)<<s[R] | uint32(c.G)<<s[G] | uint32(c.B)<<s[B] | uint32(c.A)<<s[A]
}

// ChannelMask returns the bits of a packed pixel selected by mask, where
// bit i of mask selects channel i (R, G, B, A).
func ChannelMask(f Format, mask uint8) (m uint32) {
	s := f.shifts()
	for i := range s {
		if mask&(1<<i) != 0 {
			m |= 0xff << s[i]
		}
	}
	return
}
