package shader

import (
	"github.com/clktmr/tileraster/pixel"
)

// FragmentProgram computes the color of a fragment.
type FragmentProgram func(ctx *QuadContext, in *Attribs) pixel.Color

// IDs of the fragment programs every worker links.
const (
	// ProgramPassThrough outputs attribute 1.
	ProgramPassThrough uint32 = iota
	// ProgramModulateTexture0 multiplies attribute 1 by the texture of
	// unit 0 sampled at the coordinates in attribute 2.
	ProgramModulateTexture0
	// ProgramTexture0 outputs the texture of unit 0 sampled at the
	// coordinates in attribute 2.
	ProgramTexture0
	// ProgramConstant outputs constant 0.
	ProgramConstant
)

var programs = map[uint32]FragmentProgram{
	ProgramPassThrough: PassThrough,
	ProgramModulateTexture0: func(ctx *QuadContext, in *Attribs) (c pixel.Color) {
		t := sampleUnit0(ctx, in)
		for i := range c {
			c[i] = in[1][i] * t[i]
		}
		return
	},
	ProgramTexture0: sampleUnit0,
	ProgramConstant: func(ctx *QuadContext, _ *Attribs) pixel.Color {
		return ctx.Constant(0)
	},
}

// PassThrough is the default fragment program.
func PassThrough(_ *QuadContext, in *Attribs) pixel.Color { return in[1] }

func sampleUnit0(ctx *QuadContext, in *Attribs) pixel.Color {
	if ctx.Textures == nil {
		return pixel.Color{}
	}
	return ctx.Textures.Sample(0, 0, in[2][0], in[2][1])
}

// LookupProgram returns the fragment program with the given id.
func LookupProgram(id uint32) (FragmentProgram, bool) {
	p, ok := programs[id]
	return p, ok
}
