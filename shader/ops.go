package shader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/clktmr/tileraster/pixel"
)

// FragmentOps tests and stores the fragments of a quad.  Failing fragments
// are removed from q.Mask.
type FragmentOps interface {
	Run(ctx *QuadContext, q *Quad)
}

// Native is the statically compiled fragment operations driven by the
// context's depth-stencil and blend parameter blocks.
type Native struct{}

func (Native) Run(ctx *QuadContext, q *Quad) {
	runFragmentOps(ctx, q, &ctx.DepthStencil, &ctx.Blend)
}

func runFragmentOps(ctx *QuadContext, q *Quad, ds *DepthStencil, bl *Blend) {
	fb := ctx.Framebuffer
	depth := ds.DepthTest && ctx.Depth != nil && fb.HasDepth()
	df := fb.DepthFormat
	for i := range 4 {
		if q.Mask&(1<<i) == 0 {
			continue
		}
		x, y := q.Pos(i)
		if depth {
			bpp := df.Bytes()
			old := ctx.Depth.Pixel(x, y, bpp)
			z := pixel.PackDepth(df, q.Attr[i][0][2])
			if !ds.DepthFunc.Compare(pixel.DepthValue(df, z), pixel.DepthValue(df, old)) {
				q.Mask &^= 1 << i
				continue
			}
			if ds.DepthWrite {
				ctx.Depth.SetPixel(x, y, bpp, pixel.MergeDepth(df, old, z))
				ctx.DepthWritten = true
			}
		}
		if bl.ColorMask == 0 || ctx.Color == nil {
			continue
		}
		storeColor(ctx, bl, x, y, ctx.Program(ctx, &q.Attr[i]))
	}
}

func storeColor(ctx *QuadContext, bl *Blend, x, y int, c pixel.Color) {
	cf := ctx.Framebuffer.ColorFormat
	old := ctx.Color.U32(x, y)
	if bl.Enable {
		c = bl.Apply(c, pixel.Unpack(cf, old))
	}
	p := pixel.Pack(cf, c)
	if bl.ColorMask != ColorMaskAll {
		m := pixel.ChannelMask(cf, bl.ColorMask)
		p = p&m | old&^m
	}
	ctx.Color.SetU32(x, y, p)
	ctx.ColorWritten = true
}

// Ops are the fragment operations for front and back facing quads.
type Ops struct {
	Front, Back FragmentOps
}

// NativeOps runs Native for both facings.
var NativeOps = Ops{Native{}, Native{}}

func (o *Ops) Run(ctx *QuadContext, q *Quad) {
	if q.Front {
		o.Front.Run(ctx, q)
	} else {
		o.Back.Run(ctx, q)
	}
}

// Installed runs a program loaded from a code blob.
type Installed struct {
	ID  uint32
	run func(ctx *QuadContext, q *Quad)
}

func (o *Installed) Run(ctx *QuadContext, q *Quad) { o.run(ctx, q) }

// A Loader prepares an installed program from its parameters.
type Loader func(params []byte) (func(ctx *QuadContext, q *Quad), error)

// IDs of the fragment operations every worker links.
const (
	// OpsReplace stores the fragment color, ignoring depth and blend.
	OpsReplace uint32 = iota + 1
	// OpsDepthLess tests and writes depth with LESS, then stores color.
	OpsDepthLess
	// OpsSpecialized runs with the DepthStencil and Blend blocks encoded
	// in its parameters instead of the context's.
	OpsSpecialized
	// OpsDiscard drops every fragment.
	OpsDiscard
)

var loaders = map[uint32]Loader{
	OpsReplace: func([]byte) (func(*QuadContext, *Quad), error) {
		return func(ctx *QuadContext, q *Quad) {
			runFragmentOps(ctx, q, &DepthStencil{}, &DefaultBlend)
		}, nil
	},
	OpsDepthLess: func([]byte) (func(*QuadContext, *Quad), error) {
		ds := DepthStencil{DepthTest: true, DepthWrite: true, DepthFunc: Less}
		return func(ctx *QuadContext, q *Quad) {
			runFragmentOps(ctx, q, &ds, &DefaultBlend)
		}, nil
	},
	OpsSpecialized: func(params []byte) (func(*QuadContext, *Quad), error) {
		var p struct {
			DepthStencil DepthStencil
			Blend        Blend
		}
		err := binary.Read(bytes.NewReader(params), binary.LittleEndian, &p)
		if err != nil {
			return nil, err
		}
		return func(ctx *QuadContext, q *Quad) {
			runFragmentOps(ctx, q, &p.DepthStencil, &p.Blend)
		}, nil
	},
	OpsDiscard: func([]byte) (func(*QuadContext, *Quad), error) {
		return func(_ *QuadContext, q *Quad) { q.Mask = 0 }, nil
	},
}

// Register adds a fragment operations program to the table installed code
// blobs are resolved against.  It panics if id is already registered.
func Register(id uint32, l Loader) {
	if _, ok := loaders[id]; ok {
		panic(fmt.Sprintf("shader: fragment ops %d registered twice", id))
	}
	loaders[id] = l
}

func load(code []byte, off uint32) (*Installed, error) {
	id, params, err := entry(code, off)
	if err != nil {
		return nil, err
	}
	l, ok := loaders[id]
	if !ok {
		return nil, fmt.Errorf("%w: fragment ops %d", ErrUnknownProgram, id)
	}
	run, err := l(params)
	if err != nil {
		return nil, fmt.Errorf("shader: fragment ops %d: %w", id, err)
	}
	return &Installed{ID: id, run: run}, nil
}

// Install loads code into buf and resolves the front and back entries.  On
// error the returned ops are NativeOps, which is always usable.
func Install(buf *CodeBuffer, code []byte, front, back uint32) (Ops, error) {
	code, err := buf.Load(code)
	if err != nil {
		return NativeOps, err
	}
	f, err := load(code, front)
	if err != nil {
		return NativeOps, err
	}
	b, err := load(code, back)
	if err != nil {
		return NativeOps, err
	}
	return Ops{f, b}, nil
}
