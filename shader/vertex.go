package shader

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AttribFormat is the layout of an attribute in a vertex array.  The low
// byte is the component count.
type AttribFormat uint32

const (
	Float32 AttribFormat = 1 << 8
	Unorm8  AttribFormat = 2 << 8
)

func (f AttribFormat) Kind() AttribFormat { return f &^ 0xff }
func (f AttribFormat) Components() int    { return int(f & 0xff) }

// Size returns the number of bytes an attribute of format f occupies.
func (f AttribFormat) Size() int {
	switch f.Kind() {
	case Float32:
		return 4 * f.Components()
	case Unorm8:
		return f.Components()
	}
	return 0
}

// AttributeFetch converts raw attribute bytes into a float4.  Missing
// components default to (0, 0, 0, 1).
type AttributeFetch interface {
	Fetch(attr int, src []byte, dst *[4]float32)
}

// FetchFloat32 reads every attribute as up to four float32.
type FetchFloat32 struct{}

func (FetchFloat32) Fetch(_ int, src []byte, dst *[4]float32) {
	fetch(Float32|4, src, dst)
}

// FetchFormats reads attribute i in format i.  A worker without installed
// fetch code uses the formats of its vertex layout.
type FetchFormats [MaxAttribs]AttribFormat

func (f *FetchFormats) Fetch(attr int, src []byte, dst *[4]float32) {
	fetch(f[attr], src, dst)
}

// fetch decodes at most as many components as src holds.
func fetch(f AttribFormat, src []byte, dst *[4]float32) {
	*dst = [4]float32{0, 0, 0, 1}
	n := min(f.Components(), 4)
	switch f.Kind() {
	case Float32:
		for i := range min(n, len(src)/4) {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		}
	case Unorm8:
		for i := range min(n, len(src)) {
			dst[i] = float32(src[i]) / 255
		}
	}
}

// IDs of the attribute fetchers in attribute fetch code.
const (
	FetchIDFloat32 uint32 = iota + 1
	// FetchIDFormats carries one AttribFormat per attribute.
	FetchIDFormats
)

// InstallFetch resolves the attribute fetch code at offset 0 of code.  On
// error the returned fetcher is FetchFloat32.
func InstallFetch(buf *CodeBuffer, code []byte) (AttributeFetch, error) {
	code, err := buf.Load(code)
	if err != nil {
		return FetchFloat32{}, err
	}
	id, params, err := entry(code, 0)
	if err != nil {
		return FetchFloat32{}, err
	}
	switch id {
	case FetchIDFloat32:
		return FetchFloat32{}, nil
	case FetchIDFormats:
		var f FetchFormats
		for i := range min(len(params)/4, MaxAttribs) {
			f[i] = AttribFormat(binary.LittleEndian.Uint32(params[4*i:]))
		}
		return &f, nil
	}
	return FetchFloat32{}, fmt.Errorf("%w: attribute fetch %d", ErrUnknownProgram, id)
}

// VertexProgram transforms fetched attributes into output attributes with
// the position in clip coordinates.
type VertexProgram func(in *Attribs, uniforms []float32, out *Attribs)

const (
	VertexIdentity uint32 = iota
	// VertexTransform multiplies the position by the column major 4×4
	// matrix in uniforms[0:16].
	VertexTransform
)

var vertexPrograms = map[uint32]VertexProgram{
	VertexIdentity: Identity,
	VertexTransform: func(in *Attribs, uniforms []float32, out *Attribs) {
		*out = *in
		if len(uniforms) < 16 {
			return
		}
		p := in[0]
		for r := range 4 {
			out[0][r] = uniforms[r]*p[0] + uniforms[4+r]*p[1] + uniforms[8+r]*p[2] + uniforms[12+r]*p[3]
		}
	},
}

// Identity is the default vertex program.
func Identity(in *Attribs, _ []float32, out *Attribs) { *out = *in }

func LookupVertexProgram(id uint32) (VertexProgram, bool) {
	p, ok := vertexPrograms[id]
	return p, ok
}
