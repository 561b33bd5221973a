package texture

import (
	"math"

	"github.com/clktmr/tileraster/debug"
	"github.com/clktmr/tileraster/internal/xmath"
	"github.com/clktmr/tileraster/pixel"
)

// Textures holds the texture units of a worker and the cache they share.
type Textures struct {
	Cache    *Cache
	Units    [MaxUnits]Descriptor
	Samplers [MaxUnits]Sampler
}

func NewTextures(c *Cache) *Textures {
	t := &Textures{Cache: c}
	for i := range t.Samplers {
		t.Samplers[i] = DefaultSampler
	}
	return t
}

// SetTexture binds levels of format f to a unit.  The cache is invalidated
// when the texture's identity changes.
func (t *Textures) SetTexture(unit int, f pixel.Format, levels []Level) {
	debug.Assertf(unit < MaxUnits, "texture: unit %d", unit)
	u := &t.Units[unit]
	if !u.Bound() || len(levels) == 0 || u.Levels[0].Addr != levels[0].Addr || u.Format != f {
		t.Cache.InvalidateAll()
	}
	u.Format = f
	u.Levels = append(u.Levels[:0], levels...)
	u.Update(t.Samplers[unit])
}

// SetSampler changes the sampler state of a unit.
func (t *Textures) SetSampler(unit int, s Sampler) {
	debug.Assertf(unit < MaxUnits, "texture: unit %d", unit)
	t.Samplers[unit] = s
	t.Units[unit].Update(s)
}

func (t *Textures) level(unit, level int) (*Descriptor, *Level) {
	u := &t.Units[unit]
	if !u.Bound() {
		return u, nil
	}
	return u, &u.Levels[xmath.Clamp(level, 0, len(u.Levels)-1)]
}

func (t *Textures) texel(u *Descriptor, l *Level, x, y int) pixel.Color {
	x = wrap(x, l.Width, l.MaskS)
	y = wrap(y, l.Height, l.MaskT)
	return pixel.Unpack(u.Format, t.Cache.Texel(l, x, y))
}

func floor(f float32) int { return int(math.Floor(float64(f))) }

// SampleNearest returns the texel nearest to (s, t) of level 0.  Unbound
// units sample as transparent black.
func (t *Textures) SampleNearest(unit int, s, tc float32) pixel.Color {
	return t.sampleNearest(unit, 0, s, tc)
}

func (t *Textures) sampleNearest(unit, level int, s, tc float32) pixel.Color {
	u, l := t.level(unit, level)
	if l == nil {
		return pixel.Color{}
	}
	return t.texel(u, l, floor(s*l.ScaleS), floor(tc*l.ScaleT))
}

// SampleBilinear interpolates the four texels around (s, t) of level 0.
// The texels may come from up to four different tiles.
func (t *Textures) SampleBilinear(unit int, s, tc float32) pixel.Color {
	return t.sampleBilinear(unit, 0, s, tc)
}

func (t *Textures) sampleBilinear(unit, level int, s, tc float32) (c pixel.Color) {
	u, l := t.level(unit, level)
	if l == nil {
		return
	}
	fx := s*l.ScaleS - 0.5
	fy := tc*l.ScaleT - 0.5
	x0, y0 := floor(fx), floor(fy)
	wx, wy := fx-float32(x0), fy-float32(y0)

	c00 := t.texel(u, l, x0, y0)
	c10 := t.texel(u, l, x0+1, y0)
	c01 := t.texel(u, l, x0, y0+1)
	c11 := t.texel(u, l, x0+1, y0+1)
	for i := range c {
		top := xmath.Lerp(c00[i], c10[i], wx)
		bottom := xmath.Lerp(c01[i], c11[i], wx)
		c[i] = xmath.Lerp(top, bottom, wy)
	}
	return
}

// Sample filters according to the unit's sampler.  The biased level of
// detail selects the mip level; level 0 is magnified and all others are
// minified.
func (t *Textures) Sample(unit int, lod, s, tc float32) pixel.Color {
	smp := &t.Samplers[unit]
	level := max(floor(lod+smp.LodBias+0.5), 0)
	f := smp.MagFilter
	if level > 0 {
		f = smp.MinFilter
	}
	if f == Linear {
		return t.sampleBilinear(unit, level, s, tc)
	}
	return t.sampleNearest(unit, level, s, tc)
}
