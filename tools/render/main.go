package render

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"

	"github.com/clktmr/tileraster/control"
	"github.com/clktmr/tileraster/pixel"
)

var (
	flags = flag.NewFlagSet("render", flag.ExitOnError)

	workers = flags.Int("workers", 4, "number of workers")
	width   = flags.Int("width", 320, "framebuffer width")
	height  = flags.Int("height", 240, "framebuffer height")
	depth   = flags.String("depth", "z16", "depth format: none, z16, z32, z24s8")
	output  = flags.String("o", "out.png", "output image, png or bmp")
	stats   = flags.Bool("stats", false, "print per worker statistics")

	scriptfile string
)

var depthFormats = map[string]pixel.DepthFormat{
	"none":  pixel.DepthNone,
	"z16":   pixel.Z16,
	"z32":   pixel.Z32,
	"z24s8": pixel.Z24S8,
}

const usageString = `Rasterize a drawing script.

Usage: %s [flags] <script>

Each line of the script is one command:

	clear color 0xAARRGGBB
	clear depth z
	color r g b a
	z depth
	tri x0 y0 x1 y1 x2 y2
	rect x0 y0 x1 y1
	depth on less|lequal|greater|gequal|equal|notequal|always|never
	depth off
	cull none|front|back
	texture file.ttex|off
	finish

`

func usage() {
	fmt.Fprintf(flags.Output(), usageString, "render")
	flags.PrintDefaults()
}

func Main(args []string) {
	flags.Usage = usage
	flags.Parse(args[1:])

	if flags.NArg() == 1 {
		scriptfile = flags.Arg(0)
	} else {
		flags.Usage()
		os.Exit(1)
	}
	df, ok := depthFormats[*depth]
	if !ok {
		log.Fatal("unsupported depth format: ", *depth)
	}

	var r io.Reader = os.Stdin
	if scriptfile != "-" {
		f, err := os.Open(scriptfile)
		if err != nil {
			log.Fatalln(err)
		}
		defer f.Close()
		r = f
	}

	host, err := control.New(control.Config{Workers: *workers})
	if err != nil {
		log.Fatalln(err)
	}
	fb, err := host.NewFramebuffer(pixel.A8R8G8B8, df, *width, *height)
	if err != nil {
		log.Fatalln(err)
	}
	if err := newInterpreter(host, fb).run(r); err != nil {
		host.Close()
		log.Fatalln(err)
	}
	img := host.Image(&fb)
	if *stats {
		for _, w := range host.Workers() {
			log.Printf("worker %d: %+v %+v", w.ID, w.Stats(), w.Store().Stats())
		}
	}
	if err := host.Close(); err != nil {
		log.Fatalln(err)
	}

	w, err := os.Create(*output)
	if err != nil {
		log.Fatalln(err)
	}
	defer w.Close()
	if err := encode(w, filepath.Ext(*output), img); err != nil {
		log.Fatalln(err)
	}
}

func encode(w io.Writer, ext string, img image.Image) error {
	switch ext {
	case ".png":
		return png.Encode(w, img)
	case ".bmp":
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("unsupported image format %q", ext)
}
