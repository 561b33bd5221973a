package render

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/buildkite/shellwords"

	"github.com/clktmr/tileraster/control"
	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/protocol"
	"github.com/clktmr/tileraster/raster"
	"github.com/clktmr/tileraster/shader"
	"github.com/clktmr/tileraster/texture"
	"github.com/clktmr/tileraster/tile"
)

var errSyntax = errors.New("syntax error")

var compareFuncs = map[string]shader.CompareFunc{
	"never":    shader.Never,
	"less":     shader.Less,
	"equal":    shader.Equal,
	"lequal":   shader.LessEqual,
	"greater":  shader.Greater,
	"notequal": shader.NotEqual,
	"gequal":   shader.GreaterEqual,
	"always":   shader.Always,
}

var cullModes = map[string]raster.CullMode{
	"none":  raster.CullNone,
	"front": raster.CullFront,
	"back":  raster.CullBack,
}

// Vertices carry position, color and texture coordinates.
const numAttribs = 3

// interpreter translates script lines into command batches.
type interpreter struct {
	host *control.Host
	fb   tile.Framebuffer
	e    protocol.Encoder

	color [4]float32
	z     float32
	ds    shader.DepthStencil
	rs    raster.State
}

func newInterpreter(host *control.Host, fb tile.Framebuffer) *interpreter {
	s := &interpreter{host: host, fb: fb, color: [4]float32{1, 1, 1, 1}}
	control.SetFramebuffer(&s.e, &s.fb)
	layout := protocol.StateVertexLayout{Op: protocol.OpStateVertexLayout, NumAttribs: numAttribs}
	for i := range numAttribs {
		layout.Formats[i] = shader.Float32 | 4
	}
	s.e.Encode(&layout)
	return s
}

func (s *interpreter) run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		if err := s.exec(sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return s.finish()
}

func floats(args []string, dst ...*float32) error {
	if len(args) != len(dst) {
		return fmt.Errorf("%w: want %d numbers, got %d", errSyntax, len(dst), len(args))
	}
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return err
		}
		*dst[i] = float32(v)
	}
	return nil
}

func (s *interpreter) exec(line string) error {
	args, err := shellwords.SplitPosix(line)
	if err != nil {
		return err
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return nil
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "clear":
		if len(args) != 2 {
			return fmt.Errorf("%w: clear color|depth value", errSyntax)
		}
		switch args[0] {
		case "color":
			v, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return err
			}
			s.e.Clear(uint32(tile.Color), uint32(v))
		case "depth":
			var z float32
			if err := floats(args[1:], &z); err != nil {
				return err
			}
			s.e.Clear(uint32(tile.Depth), pixel.PackDepth(s.fb.DepthFormat, z))
		default:
			return fmt.Errorf("%w: unknown surface %q", errSyntax, args[0])
		}

	case "color":
		c := &s.color
		if err := floats(args, &c[0], &c[1], &c[2], &c[3]); err != nil {
			return err
		}

	case "z":
		if err := floats(args, &s.z); err != nil {
			return err
		}

	case "tri":
		var p [6]float32
		if err := floats(args, &p[0], &p[1], &p[2], &p[3], &p[4], &p[5]); err != nil {
			return err
		}
		s.draw(raster.Triangles, [][2]float32{{p[0], p[1]}, {p[2], p[3]}, {p[4], p[5]}}, nil)

	case "rect":
		var x0, y0, x1, y1 float32
		if err := floats(args, &x0, &y0, &x1, &y1); err != nil {
			return err
		}
		s.draw(raster.TriangleStrip,
			[][2]float32{{x0, y0}, {x1, y0}, {x0, y1}, {x1, y1}},
			[][2]float32{{0, 0}, {1, 0}, {0, 1}, {1, 1}})

	case "depth":
		switch {
		case len(args) == 1 && args[0] == "off":
			s.ds = shader.DepthStencil{}
		case len(args) == 2 && args[0] == "on":
			f, ok := compareFuncs[args[1]]
			if !ok {
				return fmt.Errorf("%w: unknown depth function %q", errSyntax, args[1])
			}
			s.ds = shader.DepthStencil{DepthTest: true, DepthWrite: true, DepthFunc: f}
		default:
			return fmt.Errorf("%w: depth on <func>|off", errSyntax)
		}
		s.e.Encode(&protocol.StateDepthStencil{Op: protocol.OpStateDepthStencil, DepthStencil: s.ds})

	case "cull":
		m, ok := cullModes[strings.Join(args, " ")]
		if !ok {
			return fmt.Errorf("%w: cull none|front|back", errSyntax)
		}
		s.rs.Cull = m
		s.e.Encode(&protocol.StateRasterizer{Op: protocol.OpStateRasterizer, State: s.rs})

	case "texture":
		if len(args) != 1 {
			return fmt.Errorf("%w: texture <file>|off", errSyntax)
		}
		return s.texture(args[0])

	case "finish":
		if len(args) != 0 {
			return fmt.Errorf("%w: finish takes no arguments", errSyntax)
		}
		return s.finish()

	default:
		return fmt.Errorf("%w: unknown command %q", errSyntax, cmd)
	}
	return s.flush(false)
}

// draw encodes vertices with the current color and depth.
func (s *interpreter) draw(prim raster.Primitive, pos, st [][2]float32) {
	verts := make([][][4]float32, len(pos))
	b := raster.Rect{X0: 1 << 30, Y0: 1 << 30, X1: -1 << 30, Y1: -1 << 30}
	for i, p := range pos {
		var tc [4]float32
		if st != nil {
			tc = [4]float32{st[i][0], st[i][1], 0, 1}
		}
		verts[i] = [][4]float32{{p[0], p[1], s.z, 1}, s.color, tc}
		b.X0 = min(b.X0, int32(p[0]))
		b.Y0 = min(b.Y0, int32(p[1]))
		b.X1 = max(b.X1, int32(p[0])+1)
		b.Y1 = max(b.Y1, int32(p[1])+1)
	}
	s.e.Render(protocol.Render{
		Prim:       prim,
		VertexSize: 16 * numAttribs,
		Xmin:       b.X0,
		Ymin:       b.Y0,
		Xmax:       b.X1,
		Ymax:       b.Y1,
	}, nil, protocol.Vertices(verts...))
}

// texture binds the texture stored in file to unit 0, or unbinds it.
func (s *interpreter) texture(file string) error {
	if file == "off" {
		s.e.Encode(&protocol.StateFragmentProgram{Op: protocol.OpStateFragmentProgram, ID: shader.ProgramPassThrough})
		return s.flush(false)
	}
	r, err := os.Open(file)
	if err != nil {
		return err
	}
	defer r.Close()
	tex, err := texture.Load(r)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	levels, err := tex.Upload(s.host.Memory())
	if err != nil {
		return err
	}
	cmd := protocol.StateTexture{
		Op:        protocol.OpStateTexture,
		Format:    tex.Format,
		NumLevels: uint32(len(levels)),
	}
	for i, l := range levels {
		cmd.Levels[i] = protocol.LevelInfo{
			Addr: l.Addr, Width: uint32(l.Width), Height: uint32(l.Height), Depth: uint32(l.Depth),
		}
	}
	s.e.Encode(&cmd)
	s.e.Encode(&protocol.StateFragmentProgram{Op: protocol.OpStateFragmentProgram, ID: shader.ProgramModulateTexture0})
	return s.flush(false)
}

// flush submits the pending batch once it is half full, or always if
// force is set.
func (s *interpreter) flush(force bool) error {
	if s.e.Len() == 0 || !force && s.e.Len() < protocol.MaxBatchSize/2 {
		return nil
	}
	err := s.host.Submit(&s.e)
	s.e.Reset()
	return err
}

func (s *interpreter) finish() error {
	if err := s.flush(true); err != nil {
		return err
	}
	return s.host.Finish()
}
