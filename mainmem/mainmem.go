// Package mainmem models the main memory shared by the control core and all
// workers.  Workers have no coherent view of it; they only reach it through
// DMA transfers, see package dma.
package mainmem

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/clktmr/tileraster/debug"
)

// Addr represents a byte address in main memory.  The zero address is never
// handed out by Alloc and serves as null pointer in commands.
type Addr uint32

// QwordSize is the transfer granularity of DMA and the storage unit of
// command batches.
const QwordSize = 16

var (
	ErrOutOfBounds = errors.New("mainmem: address out of bounds")
	ErrOutOfMemory = errors.New("mainmem: out of memory")
)

func AlignDown(a Addr, align uint32) Addr { return a &^ Addr(align-1) }
func AlignUp(a Addr, align uint32) Addr   { return (a + Addr(align-1)) &^ Addr(align-1) }
func IsAligned(a Addr, align uint32) bool { return uint32(a)&(align-1) == 0 }

// RoundUp rounds a size up to a multiple of align, which must be a power of
// two.
func RoundUp(n int, align int) int { return (n + align - 1) &^ (align - 1) }

// Memory is a flat byte addressed memory.  Concurrent accesses are safe as
// long as they don't overlap, which the tile ownership rules guarantee for
// all writes issued by workers.
type Memory struct {
	data []byte

	// Transfers hold mtx shared, status word accesses exclusively.
	mtx sync.RWMutex

	allocMtx sync.Mutex
	next     Addr
}

// New returns a zeroed memory of size bytes.  The first qword is reserved so
// that zero stays an invalid address.
func New(size int) *Memory {
	debug.Assert(size > QwordSize, "mainmem: memory too small")
	return &Memory{
		data: make([]byte, size),
		next: QwordSize,
	}
}

func (m *Memory) Size() int { return len(m.data) }

// Alloc reserves size bytes aligned to align, which must be a power of two
// and at least QwordSize.  Allocations are never freed.
func (m *Memory) Alloc(size int, align uint32) (Addr, error) {
	if align < QwordSize {
		align = QwordSize
	}
	m.allocMtx.Lock()
	defer m.allocMtx.Unlock()

	addr := AlignUp(m.next, align)
	end := uint64(addr) + uint64(RoundUp(size, QwordSize))
	if end > uint64(len(m.data)) {
		return 0, ErrOutOfMemory
	}
	m.next = Addr(end)
	return addr, nil
}

// MustAlloc is like Alloc but panics if memory is exhausted.
func (m *Memory) MustAlloc(size int, align uint32) Addr {
	addr, err := m.Alloc(size, align)
	if err != nil {
		panic(err)
	}
	return addr
}

// ReadAt copies memory starting at off into p.
func (m *Memory) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, ErrOutOfBounds
	}
	m.mtx.RLock()
	n = copy(p, m.data[off:])
	m.mtx.RUnlock()
	if n < len(p) {
		err = io.EOF
	}
	return
}

// WriteAt copies p into memory starting at off.
func (m *Memory) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, ErrOutOfBounds
	}
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return copy(m.data[off:], p), nil
}

// Load32 reads the little endian word at addr.  Unlike Bytes it may be used
// to poll status words that workers update concurrently.
func (m *Memory) Load32(addr Addr) uint32 {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return binary.LittleEndian.Uint32(m.data[addr:])
}

// Store32 writes the little endian word v at addr.
func (m *Memory) Store32(addr Addr, v uint32) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	binary.LittleEndian.PutUint32(m.data[addr:], v)
}

// Bytes returns a view of n bytes at addr.  It is meant for the control core
// and tests, which synchronize with workers through the fence and finish
// protocol before looking at the contents.
func (m *Memory) Bytes(addr Addr, n int) []byte {
	return m.data[addr : int(addr)+n : int(addr)+n]
}
