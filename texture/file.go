package texture

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sigurn/crc8"

	"github.com/clktmr/tileraster/mainmem"
	"github.com/clktmr/tileraster/pixel"
)

var magic = [4]byte{'T', 'T', 'E', 'X'}

var crcTable = crc8.MakeTable(crc8.CRC8)

var (
	ErrFormat   = errors.New("texture: invalid file")
	ErrChecksum = errors.New("texture: header checksum mismatch")
)

// headerSize is the encoded size of header.
const headerSize = 16

type header struct {
	Magic         [4]byte
	Format        pixel.Format
	Width, Height uint16
	Levels        uint8
	_             [3]byte
}

// File is a tiled texture with its mip chain, as stored on disk.
type File struct {
	Format        pixel.Format
	Width, Height int
	// Levels holds the tiled pixels of each mip level, largest first.
	Levels [][]byte
}

// LevelSize returns the size of mip level i.
func (f *File) LevelSize(i int) (w, h int) {
	return max(f.Width>>i, 1), max(f.Height>>i, 1)
}

// checkHeader validates everything but the level data.
func (f *File) checkHeader(levels int) error {
	if !f.Format.Valid() || f.Width <= 0 || f.Height <= 0 || f.Width > MaxDimension || f.Height > MaxDimension {
		return fmt.Errorf("%w: %v %dx%d", ErrFormat, f.Format, f.Width, f.Height)
	}
	if levels == 0 || levels > MaxLevels {
		return fmt.Errorf("%w: %d levels", ErrFormat, levels)
	}
	return nil
}

func (f *File) validate() error {
	if err := f.checkHeader(len(f.Levels)); err != nil {
		return err
	}
	for i, data := range f.Levels {
		w, h := f.LevelSize(i)
		if l := NewLevel(0, w, h, 1); len(data) != l.BytesPerImage {
			return fmt.Errorf("%w: level %d has %d bytes, want %d", ErrFormat, i, len(data), l.BytesPerImage)
		}
	}
	return nil
}

// Load reads a texture written by Store.
func Load(r io.Reader) (*File, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var raw [headerSize + 1]byte
	if _, err = io.ReadFull(zr, raw[:]); err != nil {
		return nil, err
	}
	if crc8.Checksum(raw[:len(raw)-1], crcTable) != raw[len(raw)-1] {
		return nil, ErrChecksum
	}
	var hdr header
	err = binary.Read(bytes.NewReader(raw[:]), binary.BigEndian, &hdr)
	if err != nil {
		return nil, err
	}
	if hdr.Magic != magic {
		return nil, ErrFormat
	}

	f := &File{Format: hdr.Format, Width: int(hdr.Width), Height: int(hdr.Height)}
	if err = f.checkHeader(int(hdr.Levels)); err != nil {
		return nil, err
	}
	f.Levels = make([][]byte, hdr.Levels)
	for i := range f.Levels {
		w, h := f.LevelSize(i)
		f.Levels[i] = make([]byte, NewLevel(0, w, h, 1).BytesPerImage)
		if _, err = io.ReadFull(zr, f.Levels[i]); err != nil {
			return nil, err
		}
	}
	if err = f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Store(w io.Writer) error {
	if err := f.validate(); err != nil {
		return err
	}

	hdr := header{
		Magic:  magic,
		Format: f.Format,
		Width:  uint16(f.Width),
		Height: uint16(f.Height),
		Levels: uint8(len(f.Levels)),
	}
	var buf bytes.Buffer
	err := binary.Write(&buf, binary.BigEndian, hdr)
	if err != nil {
		return err
	}
	buf.WriteByte(crc8.Checksum(buf.Bytes(), crcTable))

	zw := zlib.NewWriter(w)
	if _, err = zw.Write(buf.Bytes()); err != nil {
		return err
	}
	for _, data := range f.Levels {
		if _, err = zw.Write(data); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Upload copies all levels into main memory and returns their descriptors.
func (f *File) Upload(mem *mainmem.Memory) ([]Level, error) {
	levels := make([]Level, len(f.Levels))
	for i, data := range f.Levels {
		addr, err := mem.Alloc(len(data), TileBytes)
		if err != nil {
			return nil, err
		}
		if _, err = mem.WriteAt(data, int64(addr)); err != nil {
			return nil, err
		}
		w, h := f.LevelSize(i)
		levels[i] = NewLevel(addr, w, h, 1)
	}
	return levels, nil
}
