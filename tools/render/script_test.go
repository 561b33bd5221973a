package render

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clktmr/tileraster/control"
	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/texture"
)

func render(t *testing.T, df pixel.DepthFormat, script string) *image.NRGBA {
	t.Helper()
	host, err := control.New(control.Config{Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	fb, err := host.NewFramebuffer(pixel.A8R8G8B8, df, 96, 64)
	if err != nil {
		t.Fatal(err)
	}
	if err := newInterpreter(host, fb).run(strings.NewReader(script)); err != nil {
		t.Fatal(err)
	}
	img := host.Image(&fb)
	if err := host.Close(); err != nil {
		t.Fatal(err)
	}
	return img
}

func TestScript(t *testing.T) {
	red := color.NRGBA{0xff, 0, 0, 0xff}
	blue := color.NRGBA{0, 0, 0xff, 0xff}
	gray := color.NRGBA{0x80, 0x80, 0x80, 0xff}

	img := render(t, pixel.Z16, `
# background
clear color 0xff808080
clear depth 1
depth on less

color 1 0 0 1
z 0.25
rect 10 10 60 40

# behind the red rectangle
color 0 0 1 1
z "0.5"
rect 40 20 90 60
tri 0 63 20 63 0 50
`)
	tests := map[string]struct {
		x, y int
		want color.NRGBA
	}{
		"background": {5, 5, gray},
		"front":      {15, 15, red},
		"overlap":    {50, 30, red},
		"back":       {70, 50, blue},
		"triangle":   {1, 62, blue},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if c := img.NRGBAAt(tc.x, tc.y); c != tc.want {
				t.Fatalf("(%d,%d) = %v, want %v", tc.x, tc.y, c, tc.want)
			}
		})
	}
}

func TestScriptErrors(t *testing.T) {
	tests := map[string]string{
		"unknown command": "circle 1 2 3",
		"arguments":       "tri 1 2 3",
		"number":          "color 1 0 x 1",
		"surface":         "clear stencil 0",
		"depth func":      "depth on sometimes",
		"cull":            "cull sideways",
	}
	host, err := control.New(control.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()
	fb, err := host.NewFramebuffer(pixel.A8R8G8B8, pixel.DepthNone, 32, 32)
	if err != nil {
		t.Fatal(err)
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			if err := newInterpreter(host, fb).exec(line); err == nil {
				t.Fatalf("%q accepted", line)
			}
		})
	}
	if err := newInterpreter(host, fb).exec("circle"); !errors.Is(err, errSyntax) {
		t.Fatalf("unknown command: %v", err)
	}
}

func TestScriptTexture(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			src.SetNRGBA(x, y, color.NRGBA{0, 0xff, 0, 0xff})
		}
	}
	file := filepath.Join(t.TempDir(), "green.ttex")
	w, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := texture.FromImage(src, pixel.A8R8G8B8, 1).Store(w); err != nil {
		t.Fatal(err)
	}
	w.Close()

	img := render(t, pixel.DepthNone, `
clear color 0xff000000
texture "`+file+`"
rect 0 0 32 32
texture off
color 1 0 0 1
rect 32 0 64 32
`)
	if c := img.NRGBAAt(16, 16); c != (color.NRGBA{0, 0xff, 0, 0xff}) {
		t.Fatalf("textured: %v", c)
	}
	if c := img.NRGBAAt(48, 16); c != (color.NRGBA{0xff, 0, 0, 0xff}) {
		t.Fatalf("untextured: %v", c)
	}
	if c := img.NRGBAAt(80, 16); c != (color.NRGBA{0, 0, 0, 0xff}) {
		t.Fatalf("cleared: %v", c)
	}
}
