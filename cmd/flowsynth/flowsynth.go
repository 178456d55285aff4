package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/flowcore/pkg/synth"
	"github.com/cyclopcam/logs"
)

// Render a synthetic sequence of moving rectangles, with flow, back flow, object ids,
// correspondences, occlusions and alpha. Useful for exercising the other tools.

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	logger, err := logs.NewLog()
	check(err)

	parser := argparse.NewParser("flowsynth", "Render a synthetic flow sequence")
	odir := parser.String("o", "odir", &argparse.Options{Help: "Output directory", Required: true})
	width := parser.Int("", "width", &argparse.Options{Help: "Frame width", Default: 320})
	height := parser.Int("", "height", &argparse.Options{Help: "Frame height", Default: 240})
	frames := parser.Int("", "frames", &argparse.Options{Help: "Number of frames", Default: 10})
	objects := parser.Int("", "objects", &argparse.Options{Help: "Number of moving objects", Default: 8})
	seed := parser.Int("", "seed", &argparse.Options{Help: "Random seed", Default: 1})
	corrupt := parser.Float("", "corrupt", &argparse.Options{Help: "Fraction of foreground occlusion values to invert in every frame", Default: 0.0})
	err = parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(int64(*seed)))
	scene := synth.RandomScene(*width, *height, *frames, *objects, rng)
	seq, err := synth.Generate(scene)
	if err != nil {
		logger.Errorf("Failed to generate sequence: %v", err)
		os.Exit(1)
	}
	if *corrupt > 0 {
		for i := range seq {
			n := synth.Corrupt(&seq[i], *corrupt, rng)
			logger.Infof("Frame %v: inverted %v occlusion values", i+1, n)
		}
	}
	if err := synth.WriteSequence(*odir, seq); err != nil {
		logger.Errorf("Failed to write sequence: %v", err)
		os.Exit(1)
	}
	logger.Infof("Wrote %v frames of %vx%v to %v", len(seq), *width, *height, *odir)
}
