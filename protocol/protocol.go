// Package protocol defines the command batches the producer sends to the
// workers, the mailbox messages announcing them and the status blocks both
// sides use to synchronize.
//
// A batch is a sequence of little endian records.  Every record starts on a
// 16 byte boundary with a 4 byte opcode and occupies a multiple of 16
// bytes.
package protocol

import (
	"fmt"

	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/raster"
	"github.com/clktmr/tileraster/shader"
	"github.com/clktmr/tileraster/texture"
	"github.com/clktmr/tileraster/tile"
)

// MaxBatchSize is the size of a batch slot.
const MaxBatchSize = 16 << 10

// RecordAlign is the alignment and size granularity of records.
const RecordAlign = mainmem.QwordSize

type Opcode uint32

const (
	OpClear Opcode = iota + 1
	OpRender
	OpFinish
	OpFence
	OpStateFramebuffer
	OpStateFragmentOps
	OpStateFragmentProgram
	OpStateConstants
	OpStateRasterizer
	OpStateSampler
	OpStateTexture
	OpStateVertexLayout
	OpStateViewport
	OpStateUniforms
	OpStateVertexArrayInfo
	OpStateAttributeFetchCode
	OpReleaseVertexBuffer
	OpFlushBufferRange
	OpStateDepthStencil
	OpStateBlend
	numOpcodes
)

var opNames = [...]string{
	OpClear:                   "Clear",
	OpRender:                  "Render",
	OpFinish:                  "Finish",
	OpFence:                   "Fence",
	OpStateFramebuffer:        "StateFramebuffer",
	OpStateFragmentOps:        "StateFragmentOps",
	OpStateFragmentProgram:    "StateFragmentProgram",
	OpStateConstants:          "StateConstants",
	OpStateRasterizer:         "StateRasterizer",
	OpStateSampler:            "StateSampler",
	OpStateTexture:            "StateTexture",
	OpStateVertexLayout:       "StateVertexLayout",
	OpStateViewport:           "StateViewport",
	OpStateUniforms:           "StateUniforms",
	OpStateVertexArrayInfo:    "StateVertexArrayInfo",
	OpStateAttributeFetchCode: "StateAttributeFetchCode",
	OpReleaseVertexBuffer:     "ReleaseVertexBuffer",
	OpFlushBufferRange:        "FlushBufferRange",
	OpStateDepthStencil:       "StateDepthStencil",
	OpStateBlend:              "StateBlend",
}

func (op Opcode) Valid() bool { return op > 0 && op < numOpcodes }

func (op Opcode) String() string {
	if op.Valid() {
		return opNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", uint32(op))
}

type Clear struct {
	Op      Opcode
	Surface uint32 // tile.Surface
	Value   uint32 // packed in the surface's format
}

func (c *Clear) Target() tile.Surface { return tile.Surface(c.Surface) }

type Finish struct{ Op Opcode }

// Fence signals the worker's fence status block once every preceding
// command was processed.
type Fence struct{ Op Opcode }

type StateFramebuffer struct {
	Op                   Opcode
	ColorAddr, DepthAddr mainmem.Addr
	ColorFormat          pixel.Format
	DepthFormat          pixel.DepthFormat
	Width, Height        uint32
}

// StateFragmentOps is followed by Total-FragmentOpsHeaderSize bytes of
// code.  Front and Back are entry offsets into the code.
type StateFragmentOps struct {
	Op          Opcode
	Total       uint32
	Front, Back uint32
}

type StateFragmentProgram struct {
	Op Opcode
	ID uint32
}

// StateConstants is followed by Count float32.  Each value becomes a
// constant with all four lanes set to it.
type StateConstants struct {
	Op    Opcode
	Count uint32
}

type StateRasterizer struct {
	Op    Opcode
	State raster.State
}

type StateSampler struct {
	Op      Opcode
	Unit    uint32
	Sampler texture.Sampler
}

type LevelInfo struct {
	Addr                 mainmem.Addr
	Width, Height, Depth uint32
}

type StateTexture struct {
	Op        Opcode
	Unit      uint32
	Format    pixel.Format
	NumLevels uint32
	Levels    [texture.MaxLevels]LevelInfo
}

type StateVertexLayout struct {
	Op         Opcode
	NumAttribs uint32
	// Program is the vertex program run on vertices fetched from arrays.
	Program uint32
	Formats [shader.MaxAttribs]shader.AttribFormat
}

// StateViewport maps normalized device coordinates to window coordinates.
type StateViewport struct {
	Op                  Opcode
	X, Y, Width, Height float32
	Near, Far           float32
}

// StateUniforms hands over the uniform block read by vertex programs.
type StateUniforms struct {
	Op   Opcode
	Addr mainmem.Addr
	Size uint32
}

type VertexArray struct {
	Addr   mainmem.Addr
	Stride uint32
}

type StateVertexArrayInfo struct {
	Op     Opcode
	Arrays [shader.MaxAttribs]VertexArray
}

// StateAttributeFetchCode is followed by Total-8 bytes of code.
type StateAttributeFetchCode struct {
	Op    Opcode
	Total uint32
}

type ReleaseVertexBuffer struct {
	Op   Opcode
	Slot uint32
}

// FlushBufferRange announces that the producer modified [Base, Base+Size)
// of main memory.
type FlushBufferRange struct {
	Op   Opcode
	Base mainmem.Addr
	Size uint32
}

type StateDepthStencil struct {
	Op           Opcode
	DepthStencil shader.DepthStencil
}

type StateBlend struct {
	Op    Opcode
	Blend shader.Blend
}

// Source selects where Render reads its vertices from.
type Source uint32

const (
	// Inline vertices follow the indices in the record.
	Inline Source = iota
	// Buffer vertices are read from VertexAddr.
	Buffer
	// Arrays vertices are assembled from the vertex arrays and transformed
	// by the vertex program.
	Arrays
)

// Render draws primitives.  The header is followed by NumIndexes uint16
// indices, padded to 16 bytes, and NumVerts*VertexSize bytes of vertices
// if Source is Inline.  Without indices vertices are used in order.
//
// Inline and Buffer vertices are VertexSize/16 float4 attributes, the first
// being the window position.  Xmin, Ymin, Xmax and Ymax bound the
// primitives in pixels, max exclusive.
type Render struct {
	Op                     Opcode
	Prim                   raster.Primitive
	NumVerts               uint32
	NumIndexes             uint32
	VertexSize             uint32
	VertexAddr             mainmem.Addr
	Source                 Source
	Xmin, Ymin, Xmax, Ymax int32
}

// Bounds returns the pixel bounds of the primitives.
func (r *Render) Bounds() raster.Rect {
	return raster.Rect{X0: r.Xmin, Y0: r.Ymin, X1: r.Xmax, Y1: r.Ymax}
}

// IndexBytes returns the padded size of the indices.
func (r *Render) IndexBytes() int {
	return mainmem.RoundUp(2*int(r.NumIndexes), RecordAlign)
}
