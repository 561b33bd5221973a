package texture

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"
	"golang.org/x/image/draw"

	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/tile"
)

// Resampler reduces a mip level to w×h texels.
type Resampler func(src *image.NRGBA, w, h int) *image.NRGBA

// Mip level resamplers.
var (
	Box Resampler = func(src *image.NRGBA, w, h int) *image.NRGBA {
		return imaging.Resize(src, w, h, imaging.Box)
	}
	Bilinear Resampler = func(src *image.NRGBA, w, h int) *image.NRGBA {
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return dst
	}
)

// FromImage converts img into a tiled texture of format f with up to levels
// box filtered mip levels.
func FromImage(img image.Image, f pixel.Format, levels int) *File {
	return MipChain(img, f, levels, Box)
}

// MipChain is like FromImage, but reduces each level from the previous one
// with r.
func MipChain(img image.Image, f pixel.Format, levels int, r Resampler) *File {
	b := img.Bounds()
	tex := &File{Format: f, Width: b.Dx(), Height: b.Dy()}

	prev := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(prev, prev.Bounds(), img, b.Min, draw.Src)
	for i := 0; i < min(levels, MaxLevels); i++ {
		if i > 0 {
			if pw, ph := tex.LevelSize(i - 1); pw == 1 && ph == 1 {
				break
			}
			w, h := tex.LevelSize(i)
			prev = r(prev, w, h)
		}
		tex.Levels = append(tex.Levels, Tile(prev, f))
	}
	return tex
}

// Tile converts img into the tiled layout.  Texels outside of img are
// transparent black.
func Tile(img *image.NRGBA, f pixel.Format) []byte {
	b := img.Bounds()
	l := NewLevel(0, b.Dx(), b.Dy(), 1)
	data := make([]byte, l.BytesPerImage)
	var t tile.Tile
	for ty := 0; ty*tile.Size < b.Dy(); ty++ {
		for tx := 0; tx*tile.Size < b.Dx(); tx++ {
			t.Fill(4, 0)
			for y := range tile.Size {
				for x := range tile.Size {
					px, py := tx*tile.Size+x, ty*tile.Size+y
					if px < b.Dx() && py < b.Dy() {
						c := img.NRGBAAt(b.Min.X+px, b.Min.Y+py)
						t.SetU32(x, y, pixel.FromRGBA(f, c))
					}
				}
			}
			off := int(l.TileAddr(tx, ty))
			copy(data[off:off+TileBytes], t[:TileBytes])
		}
	}
	return data
}

// Untile converts level i of a texture back into an image.
func (f *File) Untile(i int) *image.NRGBA {
	w, h := f.LevelSize(i)
	l := NewLevel(0, w, h, 1)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	var t tile.Tile
	for ty := 0; ty*tile.Size < h; ty++ {
		for tx := 0; tx*tile.Size < w; tx++ {
			off := int(l.TileAddr(tx, ty))
			copy(t[:TileBytes], f.Levels[i][off:off+TileBytes])
			for y := range min(tile.Size, h-ty*tile.Size) {
				for x := range min(tile.Size, w-tx*tile.Size) {
					img.SetNRGBA(tx*tile.Size+x, ty*tile.Size+y, pixel.RGBA(f.Format, t.U32(x, y)))
				}
			}
		}
	}
	return img
}

// Quantize reduces img to at most n colors.  Dithering uses Floyd-Steinberg
// error diffusion.
func Quantize(img image.Image, n int, dither bool) *image.Paletted {
	q := quantize.MedianCutQuantizer{}
	p := q.Quantize(make(color.Palette, 0, n), img)
	dst := image.NewPaletted(img.Bounds(), p)
	var d draw.Drawer = draw.Src
	if dither {
		d = draw.FloydSteinberg
	}
	d.Draw(dst, dst.Bounds(), img, img.Bounds().Min)
	return dst
}
