// Package main provides a command-line utility to inspect GeoTIFF files.
// It prints the format variant, overview pyramid, storage layout, and raw
// georeferencing keys of a local file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/scigolib/geotiff"
)

func main() {
	keys := flag.Bool("keys", false, "Dump raw GeoKey entries")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: coginfo [flags] <file.tif>")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		return
	}

	src := geotiff.NewFileSource()
	defer src.Close()

	ctx := context.Background()
	g, err := geotiff.Open(ctx, args[0], src)
	if err != nil {
		log.Fatalf("Failed to open file: %v", err)
	}
	defer g.Close()

	variant := "TIFF"
	if g.BigTIFF() {
		variant = "BigTIFF"
	}
	fmt.Printf("%s: %s, %dx%d, %d band(s), %s\n",
		args[0], variant, g.Width(), g.Height(), g.Bands(), g.DType())

	if nodata, ok := g.Nodata(); ok {
		fmt.Printf("nodata: %g\n", nodata)
	}
	if transform, err := g.Transform(); err == nil {
		fmt.Printf("transform: %v\n", transform.Coefficients())
		if left, bottom, right, top, err := g.Bounds(); err == nil {
			fmt.Printf("bounds: (%g, %g) - (%g, %g)\n", left, bottom, right, top)
		}
	} else {
		fmt.Printf("transform: %v\n", err)
	}

	fmt.Println("overviews:")
	for _, ov := range g.Overviews() {
		layout := "striped"
		if ov.IsTiled() {
			layout = "tiled"
		}
		mask := ""
		if ov.HasMask() {
			mask = ", mask"
		}
		fmt.Printf("  %d: %dx%d, %s %dx%d, %s%s\n",
			ov.Level(), ov.Width(), ov.Height(),
			layout, ov.TileWidth(), ov.TileHeight(), ov.Compression(), mask)
	}

	if *keys {
		fmt.Println("geokeys:")
		for _, k := range g.GeoKeys() {
			fmt.Printf("  %d: %v\n", k.ID, k.Value)
		}
	}
}
