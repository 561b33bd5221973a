package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Encoder appends records to a batch.
type Encoder struct {
	buf bytes.Buffer
}

func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }
func (e *Encoder) Len() int      { return e.buf.Len() }
func (e *Encoder) Reset()        { e.buf.Reset() }

func (e *Encoder) pad() {
	for e.buf.Len()%RecordAlign != 0 {
		e.buf.WriteByte(0)
	}
}

// Encode appends a fixed size record.  The record's Op field must be set.
func (e *Encoder) Encode(rec any) {
	binary.Write(&e.buf, binary.LittleEndian, rec)
	e.pad()
}

func (e *Encoder) Clear(surface uint32, value uint32) {
	e.Encode(&Clear{Op: OpClear, Surface: surface, Value: value})
}

func (e *Encoder) Finish() { e.Encode(&Finish{Op: OpFinish}) }
func (e *Encoder) Fence()  { e.Encode(&Fence{Op: OpFence}) }

// FragmentOps appends a StateFragmentOps record carrying code.
func (e *Encoder) FragmentOps(front, back uint32, code []byte) {
	e.Encode(&StateFragmentOps{
		Op:    OpStateFragmentOps,
		Total: uint32(FragmentOpsHeaderSize + len(code)),
		Front: front,
		Back:  back,
	})
	e.unpad(FragmentOpsHeaderSize)
	e.buf.Write(code)
	e.pad()
}

// AttributeFetchCode appends a StateAttributeFetchCode record carrying
// code.
func (e *Encoder) AttributeFetchCode(code []byte) {
	e.Encode(&StateAttributeFetchCode{
		Op:    OpStateAttributeFetchCode,
		Total: uint32(FetchCodeHeaderSize + len(code)),
	})
	e.unpad(FetchCodeHeaderSize)
	e.buf.Write(code)
	e.pad()
}

// unpad removes the padding Encode added after a header of n bytes.
func (e *Encoder) unpad(n int) {
	e.buf.Truncate(e.buf.Len() - padded(n) + n)
}

func (e *Encoder) Constants(values []float32) {
	e.Encode(&StateConstants{Op: OpStateConstants, Count: uint32(len(values))})
	e.unpad(ConstantsHeaderSize)
	for _, v := range values {
		binary.Write(&e.buf, binary.LittleEndian, math.Float32bits(v))
	}
	e.pad()
}

// Render appends a Render record.  vertices are only written for Inline
// sources.
func (e *Encoder) Render(r Render, indices []uint16, vertices []byte) {
	r.Op = OpRender
	r.NumIndexes = uint32(len(indices))
	if r.Source == Inline && r.VertexSize > 0 {
		r.NumVerts = uint32(len(vertices)) / r.VertexSize
	}
	e.Encode(&r)
	binary.Write(&e.buf, binary.LittleEndian, indices)
	e.pad()
	if r.Source == Inline {
		e.buf.Write(vertices)
		e.pad()
	}
}

// Vertices encodes float4 attributes as Inline or Buffer vertex data.
func Vertices(verts ...[][4]float32) []byte {
	var b bytes.Buffer
	for _, v := range verts {
		binary.Write(&b, binary.LittleEndian, v)
	}
	return b.Bytes()
}
