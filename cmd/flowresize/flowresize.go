package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/flowcore/pkg/flo"
	"github.com/cyclopcam/flowcore/pkg/imagefile"
	"github.com/cyclopcam/flowcore/pkg/resample"
	"github.com/cyclopcam/logs"
)

// Resize a flow field, an object id image, or a regular image, to a new resolution.
// Flow vectors are rescaled so that they remain in units of output pixels.

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	logger, err := logs.NewLog()
	check(err)

	parser := argparse.NewParser("flowresize", "Resize flow, object ids, and images")
	flowFile := parser.String("f", "flow", &argparse.Options{Help: "Input .flo file", Default: ""})
	idsFile := parser.String("i", "ids", &argparse.Options{Help: "Input object id image (resized with nearest neighbour)", Default: ""})
	imageFile := parser.String("", "image", &argparse.Options{Help: "Input image (resized with a linear filter)", Default: ""})
	height := parser.Int("", "height", &argparse.Options{Help: "Output height", Required: true})
	width := parser.Int("", "width", &argparse.Options{Help: "Output width", Required: true})
	odir := parser.String("o", "out", &argparse.Options{Help: "Output directory. Files keep their names.", Required: true})
	err = parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}
	if *flowFile == "" && *idsFile == "" && *imageFile == "" {
		logger.Errorf("Nothing to do. Specify at least one of --flow, --ids, --image")
		os.Exit(1)
	}
	check(os.MkdirAll(*odir, 0755))
	outName := func(in string) string {
		return filepath.Join(*odir, filepath.Base(in))
	}
	fail := func(what string, err error) {
		logger.Errorf("Failed to resize %v: %v", what, err)
		os.Exit(1)
	}

	if *flowFile != "" {
		f, err := flo.ReadFile(*flowFile)
		if err != nil {
			fail(*flowFile, err)
		}
		out, err := resample.Flow(f, *height, *width)
		if err != nil {
			fail(*flowFile, err)
		}
		check(flo.WriteFile(outName(*flowFile), out))
		logger.Infof("Flow %v -> %v", f.Shape(), out.Shape())
	}
	if *idsFile != "" {
		ids, err := imagefile.Load(*idsFile)
		if err != nil {
			fail(*idsFile, err)
		}
		out, err := resample.ObjectIds(ids, *height, *width)
		if err != nil {
			fail(*idsFile, err)
		}
		check(imagefile.Save(outName(*idsFile), out))
		logger.Infof("Object ids %v -> %v", ids.Shape(), out.Shape())
	}
	if *imageFile != "" {
		img, err := imagefile.Load(*imageFile)
		if err != nil {
			fail(*imageFile, err)
		}
		out, err := resample.Image(img, *height, *width)
		if err != nil {
			fail(*imageFile, err)
		}
		check(imagefile.Save(outName(*imageFile), out))
		logger.Infof("Image %v -> %v", img.Shape(), out.Shape())
	}
}
