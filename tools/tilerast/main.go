package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/clktmr/tileraster/tools/render"
	"github.com/clktmr/tileraster/tools/texture"
)

const usageString = `tilerast drives the tile rasterizer from the command line.

Usage:

	%s <command> [arguments]

The commands are:

	render   rasterize a drawing script into an image
	texture  convert images to tiled textures
`

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), usageString, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.Default().SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "render":
		render.Main(flag.Args())
	case "texture":
		texture.Main(flag.Args())
	default:
		fmt.Fprintf(flag.CommandLine.Output(), "unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
}
