package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/clktmr/tileraster/mainmem"
)

var (
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrTruncated     = errors.New("record exceeds batch")
	ErrRecordSize    = errors.New("invalid record size")
)

var fixedRecords = map[Opcode]any{
	OpClear:                Clear{},
	OpFinish:               Finish{},
	OpFence:                Fence{},
	OpStateFramebuffer:     StateFramebuffer{},
	OpStateFragmentProgram: StateFragmentProgram{},
	OpStateRasterizer:      StateRasterizer{},
	OpStateSampler:         StateSampler{},
	OpStateTexture:         StateTexture{},
	OpStateVertexLayout:    StateVertexLayout{},
	OpStateViewport:        StateViewport{},
	OpStateUniforms:        StateUniforms{},
	OpStateVertexArrayInfo: StateVertexArrayInfo{},
	OpReleaseVertexBuffer:  ReleaseVertexBuffer{},
	OpFlushBufferRange:     FlushBufferRange{},
	OpStateDepthStencil:    StateDepthStencil{},
	OpStateBlend:           StateBlend{},
}

var fixedSizes = func() (s [numOpcodes]int) {
	for op, rec := range fixedRecords {
		s[op] = padded(binary.Size(rec))
	}
	return
}()

// Sizes of the headers of the variable length records.
var (
	FragmentOpsHeaderSize = binary.Size(StateFragmentOps{})
	FetchCodeHeaderSize   = binary.Size(StateAttributeFetchCode{})
	ConstantsHeaderSize   = binary.Size(StateConstants{})
	RenderHeaderSize      = padded(binary.Size(Render{}))
)

func padded(n int) int { return mainmem.RoundUp(n, RecordAlign) }

func u32(b []byte, off int) uint32 {
	if off+4 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint32(b[off:])
}

// RecordSize returns the size of the record at the start of b.  The size is
// computed from the record's header and isn't checked against len(b).
func RecordSize(b []byte) (int, error) {
	if len(b) < 4 {
		return 0, ErrTruncated
	}
	op := Opcode(u32(b, 0))
	if !op.Valid() {
		return 0, fmt.Errorf("%w %d", ErrUnknownOpcode, uint32(op))
	}
	if n := fixedSizes[op]; n > 0 {
		return n, nil
	}
	var n uint64
	switch op {
	case OpStateFragmentOps, OpStateAttributeFetchCode:
		hdr := FragmentOpsHeaderSize
		if op == OpStateAttributeFetchCode {
			hdr = FetchCodeHeaderSize
		}
		n = uint64(u32(b, 4))
		if n < uint64(hdr) {
			return 0, fmt.Errorf("%w: %v total %d", ErrRecordSize, op, n)
		}
	case OpStateConstants:
		n = uint64(ConstantsHeaderSize) + 4*uint64(u32(b, 4))
	case OpRender:
		if len(b) < binary.Size(Render{}) {
			return 0, ErrTruncated
		}
		var r Render
		if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &r); err != nil {
			return 0, err
		}
		n = uint64(RenderHeaderSize) + uint64(mainmem.RoundUp(2*int(r.NumIndexes), RecordAlign))
		if r.Source == Inline {
			n += uint64(r.NumVerts) * uint64(r.VertexSize)
		}
	}
	if n > MaxBatchSize {
		return 0, fmt.Errorf("%w: %v of %d bytes", ErrRecordSize, op, n)
	}
	return padded(int(n)), nil
}

// Decoder splits a batch into records.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(batch []byte) *Decoder { return &Decoder{buf: batch} }

// Offset returns the position of the next record.
func (d *Decoder) Offset() int { return d.off }

// More reports whether records are left.
func (d *Decoder) More() bool { return d.off < len(d.buf) }

// Next returns the next record including its header.
func (d *Decoder) Next() (Opcode, []byte, error) {
	rest := d.buf[d.off:]
	n, err := RecordSize(rest)
	if err != nil {
		return 0, nil, err
	}
	if n > len(rest) {
		return Opcode(u32(rest, 0)), nil, fmt.Errorf("%w: %d bytes at %d, %d left", ErrTruncated, n, d.off, len(rest))
	}
	d.off += n
	return Opcode(u32(rest, 0)), rest[:n:n], nil
}

// Decode reads the fixed part of a record into v.
func Decode(rec []byte, v any) error {
	return binary.Read(bytes.NewReader(rec), binary.LittleEndian, v)
}

// Payload returns the bytes of a record following its fixed header of
// hdr bytes.
func Payload(rec []byte, hdr int) []byte {
	return rec[min(hdr, len(rec)):]
}

// Constants decodes the values of a StateConstants record.
func Constants(rec []byte) []float32 {
	n := int(u32(rec, 4))
	p := Payload(rec, ConstantsHeaderSize)
	vals := make([]float32, min(n, len(p)/4))
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[4*i:]))
	}
	return vals
}

// RenderData splits a Render record into its header, indices and inline
// vertices.
func RenderData(rec []byte) (r Render, indices []uint16, vertices []byte, err error) {
	if err = Decode(rec, &r); err != nil {
		return
	}
	p := Payload(rec, RenderHeaderSize)
	if 2*int(r.NumIndexes) > len(p) {
		err = ErrTruncated
		return
	}
	indices = make([]uint16, r.NumIndexes)
	for i := range indices {
		indices[i] = binary.LittleEndian.Uint16(p[2*i:])
	}
	if r.Source == Inline {
		p = Payload(p, r.IndexBytes())
		n := int(r.NumVerts) * int(r.VertexSize)
		if n > len(p) {
			err = ErrTruncated
			return
		}
		vertices = p[:n]
	}
	return
}
