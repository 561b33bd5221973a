package protocol

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/clktmr/tileraster/raster"
	"github.com/clktmr/tileraster/shader"
)

func TestMessage(t *testing.T) {
	tests := map[string]struct {
		msg   Message
		class Class
		slot  int
		size  int
		op    Opcode
	}{
		"exit":     {ExitMessage(), MsgExit, 0, 0, 0},
		"batch":    {BatchMessage(3, MaxBatchSize), MsgBatch, 3, MaxBatchSize, 0},
		"dispatch": {DispatchMessage(OpFinish), MsgDispatch, 0, 0, OpFinish},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m := tc.msg
			if m.Class() != tc.class {
				t.Fatalf("class %v, want %v", m.Class(), tc.class)
			}
			if tc.class == MsgBatch && (m.Slot() != tc.slot || m.Size() != tc.size) {
				t.Fatalf("slot %d size %d", m.Slot(), m.Size())
			}
			if tc.class == MsgDispatch && m.Opcode() != tc.op {
				t.Fatalf("opcode %v", m.Opcode())
			}
		})
	}
	if got := BatchMessage(1, 0x40); got != 0x00400102 {
		t.Fatalf("batch word %#08x", uint32(got))
	}
}

func TestStatusAddr(t *testing.T) {
	if got := BufferStatusAddr(0x100, 2, 4, 1); got != 0x100+9*16 {
		t.Fatalf("buffer status %#x", got)
	}
	if got := FenceAddr(0x200, 3); got != 0x230 {
		t.Fatalf("fence %#x", got)
	}
	if n := binary.Size(InitInfo{}); n > InitInfoSize {
		t.Fatalf("InitInfo is %d bytes", n)
	}
}

func TestRecordsAligned(t *testing.T) {
	var e Encoder
	e.Clear(0, 0xff00ff00)
	e.Encode(&StateRasterizer{Op: OpStateRasterizer, State: raster.State{Cull: raster.CullBack}})
	e.FragmentOps(0, 8, shader.AppendEntry(nil, shader.OpsReplace, nil))
	e.Constants([]float32{1, 2, 3})
	e.AttributeFetchCode(shader.AppendEntry(nil, shader.FetchIDFloat32, nil))
	verts := Vertices(
		[][4]float32{{0, 0, 0, 1}, {1, 0, 0, 1}},
		[][4]float32{{8, 0, 0, 1}, {0, 1, 0, 1}},
		[][4]float32{{0, 8, 0, 1}, {0, 0, 1, 1}},
	)
	e.Render(Render{Prim: raster.Triangles, VertexSize: 32, Xmax: 8, Ymax: 8}, []uint16{0, 1, 2}, verts)
	e.Fence()
	e.Finish()

	want := []Opcode{
		OpClear, OpStateRasterizer, OpStateFragmentOps, OpStateConstants,
		OpStateAttributeFetchCode, OpRender, OpFence, OpFinish,
	}
	var got []Opcode
	d := NewDecoder(e.Bytes())
	for d.More() {
		if d.Offset()%RecordAlign != 0 {
			t.Fatalf("record at %d", d.Offset())
		}
		op, rec, err := d.Next()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, op)

		switch op {
		case OpStateRasterizer:
			var r StateRasterizer
			if err := Decode(rec, &r); err != nil || r.State.Cull != raster.CullBack {
				t.Fatalf("rasterizer %+v, %v", r, err)
			}
		case OpStateConstants:
			if c := Constants(rec); !slices.Equal(c, []float32{1, 2, 3}) {
				t.Fatalf("constants %v", c)
			}
		case OpStateFragmentOps:
			var f StateFragmentOps
			Decode(rec, &f)
			code := Payload(rec, FragmentOpsHeaderSize)[:f.Total-uint32(FragmentOpsHeaderSize)]
			if len(code) != shader.EntryHeaderSize || f.Back != 8 {
				t.Fatalf("fragment ops %+v", f)
			}
		case OpRender:
			r, idx, v, err := RenderData(rec)
			if err != nil {
				t.Fatal(err)
			}
			if r.NumVerts != 3 || !slices.Equal(idx, []uint16{0, 1, 2}) || len(v) != 96 {
				t.Fatalf("render %+v, %v, %d bytes", r, idx, len(v))
			}
		}
	}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecoderErrors(t *testing.T) {
	record := func(words ...uint32) []byte {
		b := make([]byte, 16)
		for i, w := range words {
			binary.LittleEndian.PutUint32(b[4*i:], w)
		}
		return b
	}
	tests := map[string]struct {
		batch []byte
		err   error
	}{
		"unknown opcode":   {record(99), ErrUnknownOpcode},
		"zero opcode":      {record(0), ErrUnknownOpcode},
		"zero size":        {record(uint32(OpStateFragmentOps), 0), ErrRecordSize},
		"past batch end":   {record(uint32(OpStateAttributeFetchCode), 64), ErrTruncated},
		"huge":             {record(uint32(OpStateConstants), 1 << 30), ErrRecordSize},
		"truncated fixed":  {record(uint32(OpStateTexture)), ErrTruncated},
		"truncated render": {record(uint32(OpRender)), ErrTruncated},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := NewDecoder(tc.batch).Next()
			if !errors.Is(err, tc.err) {
				t.Fatalf("got %v, want %v", err, tc.err)
			}
		})
	}
}
