package shader

import (
	"github.com/clktmr/tileraster/pixel"
)

type CompareFunc uint32

const (
	Never CompareFunc = iota
	Less
	Equal
	LessEqual
	Greater
	NotEqual
	GreaterEqual
	Always
)

// Compare reports whether a passes against b.
func (f CompareFunc) Compare(a, b uint32) bool {
	switch f {
	case Less:
		return a < b
	case Equal:
		return a == b
	case LessEqual:
		return a <= b
	case Greater:
		return a > b
	case NotEqual:
		return a != b
	case GreaterEqual:
		return a >= b
	case Always:
		return true
	}
	return false
}

// DepthStencil is the depth-stencil parameter block.  Stencil bits are
// preserved but never tested.
type DepthStencil struct {
	DepthTest  bool
	DepthWrite bool
	_          [2]byte
	DepthFunc  CompareFunc
}

type Factor uint32

const (
	Zero Factor = iota
	One
	SrcColor
	OneMinusSrcColor
	SrcAlpha
	OneMinusSrcAlpha
	DstColor
	OneMinusDstColor
	DstAlpha
	OneMinusDstAlpha
	ConstantColor
	OneMinusConstantColor
)

type Equation uint32

const (
	Add Equation = iota
	Subtract
	ReverseSubtract
	Min
	Max
)

// ColorMaskAll writes every channel.
const ColorMaskAll = 1<<pixel.R | 1<<pixel.G | 1<<pixel.B | 1<<pixel.A

// Blend is the blend parameter block.
type Blend struct {
	Enable bool
	// ColorMask selects the written channels, bit i for channel i.
	ColorMask uint8
	_         [2]byte
	Src, Dst  Factor
	Equation  Equation
	Constant  pixel.Color
}

// DefaultBlend writes the fragment color unmodified.
var DefaultBlend = Blend{ColorMask: ColorMaskAll, Src: One, Dst: Zero}

func (b *Blend) factor(f Factor, src, dst pixel.Color) (w pixel.Color) {
	for i := range w {
		switch f {
		case Zero:
		case One:
			w[i] = 1
		case SrcColor:
			w[i] = src[i]
		case OneMinusSrcColor:
			w[i] = 1 - src[i]
		case SrcAlpha:
			w[i] = src[pixel.A]
		case OneMinusSrcAlpha:
			w[i] = 1 - src[pixel.A]
		case DstColor:
			w[i] = dst[i]
		case OneMinusDstColor:
			w[i] = 1 - dst[i]
		case DstAlpha:
			w[i] = dst[pixel.A]
		case OneMinusDstAlpha:
			w[i] = 1 - dst[pixel.A]
		case ConstantColor:
			w[i] = b.Constant[i]
		case OneMinusConstantColor:
			w[i] = 1 - b.Constant[i]
		}
	}
	return
}

// Apply combines the fragment color src with the framebuffer color dst.
func (b *Blend) Apply(src, dst pixel.Color) (c pixel.Color) {
	sf := b.factor(b.Src, src, dst)
	df := b.factor(b.Dst, src, dst)
	for i := range c {
		s, d := src[i]*sf[i], dst[i]*df[i]
		switch b.Equation {
		case Add:
			c[i] = s + d
		case Subtract:
			c[i] = s - d
		case ReverseSubtract:
			c[i] = d - s
		case Min:
			c[i] = min(src[i], dst[i])
		case Max:
			c[i] = max(src[i], dst[i])
		}
	}
	return
}
