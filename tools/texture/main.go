package texture

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"github.com/clktmr/tileraster/pixel"
	"github.com/clktmr/tileraster/texture"
)

var (
	flags = flag.NewFlagSet("texture", flag.ExitOnError)

	format = flags.String("format", "argb", "pixel format, argb or bgra")
	levels = flags.Int("levels", texture.MaxLevels, "maximum number of mipmap levels")
	filter = flags.String("filter", "box", "mipmap filter, box or bilinear")
	colors = flags.Int("colors", 0, "reduce to this many colors before tiling")
	dither = flags.Bool("dither", false, "enable Floyd-Steinberg error diffusion when reducing colors")
	output = flags.String("o", "", "output file, defaults to the image name with .ttex extension")

	imagefile string
)

const usageString = `Image to tiled texture converter.

Usage: %s [flags] <image>

`

func usage() {
	fmt.Fprintf(flags.Output(), usageString, "texture")
	flags.PrintDefaults()
}

func Main(args []string) {
	flags.Usage = usage
	flags.Parse(args[1:])

	if flags.NArg() == 1 {
		imagefile = flags.Arg(0)
	} else {
		flags.Usage()
		os.Exit(1)
	}

	var f pixel.Format
	switch *format {
	case "argb":
		f = pixel.A8R8G8B8
	case "bgra":
		f = pixel.B8G8R8A8
	default:
		log.Fatal("unsupported format: ", *format)
	}

	r, err := os.Open(imagefile)
	if err != nil {
		log.Fatalln(err)
	}
	src, _, err := image.Decode(r)
	r.Close()
	if err != nil {
		log.Fatalln(err)
	}

	if *colors > 0 {
		src = texture.Quantize(src, *colors, *dither)
	}
	var resample texture.Resampler
	switch *filter {
	case "box":
		resample = texture.Box
	case "bilinear":
		resample = texture.Bilinear
	default:
		log.Fatal("unsupported filter: ", *filter)
	}
	tex := texture.MipChain(src, f, *levels, resample)

	outfile := *output
	if outfile == "" {
		outfile = strings.TrimSuffix(imagefile, filepath.Ext(imagefile)) + ".ttex"
	}
	w, err := os.Create(outfile)
	if err != nil {
		log.Fatalln(err)
	}
	defer w.Close()

	if err = tex.Store(w); err != nil {
		log.Fatalln(err)
	}
	log.Printf("%s: %dx%d, %d levels", outfile, tex.Width, tex.Height, len(tex.Levels))
}
