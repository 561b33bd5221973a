package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrCodeBufferFull = errors.New("shader: code buffer allocation failed")
	ErrUnknownProgram = errors.New("shader: unknown program")
	ErrBadEntry       = errors.New("shader: bad code entry")
)

// CodeBuffer holds installed code.  It grows to fit larger code and never
// shrinks.
type CodeBuffer struct {
	buf   []byte
	limit int
}

// NewCodeBuffer returns an empty buffer that fails to grow beyond limit
// bytes.  A limit of 0 means no limit.
func NewCodeBuffer(limit int) *CodeBuffer {
	return &CodeBuffer{limit: limit}
}

func (b *CodeBuffer) Cap() int { return cap(b.buf) }

// Load copies code into the buffer, reallocating it if code doesn't fit.
// The returned slice aliases the buffer and is valid until the next Load.
func (b *CodeBuffer) Load(code []byte) ([]byte, error) {
	if len(code) > cap(b.buf) {
		if b.limit > 0 && len(code) > b.limit {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrCodeBufferFull, len(code), b.limit)
		}
		b.buf = make([]byte, len(code))
	}
	b.buf = b.buf[:len(code)]
	copy(b.buf, code)
	return b.buf, nil
}

// EntryHeaderSize is the size of the id and length words before an entry's
// parameters.
const EntryHeaderSize = 8

// entry decodes the program at off in code.
func entry(code []byte, off uint32) (id uint32, params []byte, err error) {
	if uint64(off)+EntryHeaderSize > uint64(len(code)) {
		return 0, nil, fmt.Errorf("%w: offset %d beyond %d bytes", ErrBadEntry, off, len(code))
	}
	id = binary.LittleEndian.Uint32(code[off:])
	n := binary.LittleEndian.Uint32(code[off+4:])
	start := uint64(off) + EntryHeaderSize
	if start+uint64(n) > uint64(len(code)) {
		return 0, nil, fmt.Errorf("%w: program %d has %d bytes of parameters", ErrBadEntry, id, n)
	}
	return id, code[start : start+uint64(n)], nil
}

// AppendEntry appends a program entry to code.
func AppendEntry(code []byte, id uint32, params []byte) []byte {
	code = binary.LittleEndian.AppendUint32(code, id)
	code = binary.LittleEndian.AppendUint32(code, uint32(len(params)))
	return append(code, params...)
}
