package dma

import (
	"bytes"
	"testing"

	"github.com/clktmr/tileraster/mainmem"
)

func TestGetPut(t *testing.T) {
	mem := mainmem.New(4096)
	src := mem.MustAlloc(256, 16)
	dst := mem.MustAlloc(256, 16)
	for i := range mem.Bytes(src, 256) {
		mem.Bytes(src, 256)[i] = byte(i)
	}

	e := New(mem)
	local := make([]byte, 256)
	e.Get(local, src, 3)
	e.WaitOnMaskAll(Mask(3))
	if !bytes.Equal(local, mem.Bytes(src, 256)) {
		t.Fatal("local copy differs from main memory")
	}

	e.Put(local, dst, 4)
	if done := e.WaitOnMask(Mask(4)); done != Mask(4) {
		t.Fatalf("expected tag 4 to complete, got %#x", done)
	}
	if !bytes.Equal(mem.Bytes(dst, 256), mem.Bytes(src, 256)) {
		t.Fatal("put didn't reach main memory")
	}

	stats := e.Stats()
	if stats.Gets != 1 || stats.Puts != 1 || stats.BytesIn != 256 || stats.BytesOut != 256 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestWaitOnMaskAny(t *testing.T) {
	mem := mainmem.New(4096)
	e := New(mem)

	// Tag 7 has nothing outstanding, so waiting on {5, 7} returns at least 7.
	local := make([]byte, 64)
	e.Get(local, 64, 5)
	done := e.WaitOnMask(Mask(5, 7))
	if done&Mask(7) == 0 {
		t.Fatalf("idle tag not reported: %#x", done)
	}
	e.WaitOnMaskAll(AllTags)
	if n := e.Pending(5); n != 0 {
		t.Fatalf("expected no pending transfers, got %d", n)
	}
}

func TestTrace(t *testing.T) {
	mem := mainmem.New(4096)
	var got []Transfer
	e := New(mem, WithTrace(func(tr Transfer) { got = append(got, tr) }))

	buf := make([]byte, 32)
	e.GetSync(buf, 128, 1)
	e.PutSync(buf, 256, 2)

	want := []Transfer{{Get, 128, 32, 1}, {Put, 256, 32, 2}}
	if len(got) != len(want) {
		t.Fatalf("expected %d transfers, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transfer %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestManyTransfersSameTag(t *testing.T) {
	mem := mainmem.New(64 << 10)
	e := New(mem)
	locals := make([][]byte, 64)
	for i := range locals {
		locals[i] = bytes.Repeat([]byte{byte(i)}, 16)
		e.Put(locals[i], mainmem.Addr(16*(i+1)), 9)
	}
	e.WaitOnMaskAll(Mask(9))
	for i := range locals {
		if got := mem.Bytes(mainmem.Addr(16*(i+1)), 16); !bytes.Equal(got, locals[i]) {
			t.Fatalf("qword %d: got %v", i, got)
		}
	}
}
