package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/flowcore/pkg/flo"
	"github.com/cyclopcam/flowcore/pkg/frameset"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/imagefile"
	"github.com/cyclopcam/flowcore/pkg/occlusion"
	"github.com/cyclopcam/flowcore/pkg/perfstats"
	"github.com/cyclopcam/logs"
)

// Compute occlusions from forward flow of frame N, and back flow of frame N+1.
// A pixel is occluded if following the forward flow, and then the back flow,
// does not return to the same pixel.

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	logger, err := logs.NewLog()
	check(err)

	parser := argparse.NewParser("flowocc", "Compute occlusions from forward and back flow")
	flowPattern := parser.String("", "flow_pattern", &argparse.Options{Help: "Glob pattern for forward flow .flo files, eg 'dir/flow*.flo'", Required: true})
	backPattern := parser.String("", "backflow_pattern", &argparse.Options{Help: "Glob pattern for back flow .flo files", Required: true})
	threshold := parser.Float("", "threshold", &argparse.Options{Help: "Maximum disagreement, in pixels, between forward and back flow", Default: occlusion.RenderThreshold})
	odir := parser.String("", "odir", &argparse.Options{Help: "Output directory", Required: true})
	framesCSV := parser.String("", "frames", &argparse.Options{Help: "Comma separated frame numbers to process, eg '1,5,7'. Default is all frames.", Default: ""})
	workers := parser.Int("", "workers", &argparse.Options{Help: "Number of frames to process concurrently", Default: runtime.NumCPU()})
	err = parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	set := frameset.Set{}
	_, err = set.AddGlob(*flowPattern, frameset.KindFlow, true)
	check(err)
	_, err = set.AddGlob(*backPattern, frameset.KindBackFlow, true)
	check(err)

	frames := set.OcclusionFrames()
	wanted, err := frameset.ParseFrameList(*framesCSV)
	check(err)
	if wanted != nil {
		all := frames
		frames = frameset.Intersect(frames, wanted)
		logger.Infof("Only processing frames %v out of %v", frames, all)
	} else {
		logger.Infof("Processing frames %v", frames)
	}
	if len(frames) == 0 {
		logger.Errorf("No frames with forward flow, and back flow in the next frame")
		os.Exit(1)
	}
	check(os.MkdirAll(*odir, 0755))

	loadTime := perfstats.TimeAccumulator{}
	saveTime := perfstats.TimeAccumulator{}
	loaders := make([]occlusion.PairLoader, len(frames))
	for i, n := range frames {
		loaders[i] = func() (forward, back *grid.Flow, err error) {
			err = loadTime.Time(func() error {
				if forward, err = flo.ReadFile(set.File(n, frameset.KindFlow)); err != nil {
					return err
				}
				back, err = flo.ReadFile(set.File(n+1, frameset.KindBackFlow))
				return err
			})
			return forward, back, err
		}
	}
	start := time.Now()
	err = occlusion.DetectSequence(context.Background(), loaders, float32(*threshold), *workers, func(i int, occ *grid.Image) error {
		fn := filepath.Join(*odir, fmt.Sprintf("occlusions%06d.png", frames[i]))
		if err := saveTime.Time(func() error { return imagefile.Save(fn, occ) }); err != nil {
			return err
		}
		logger.Infof("Frame %v: %.2f%% occluded -> %v", frames[i], occlusion.OccludedFraction(occ, nil)*100, fn)
		return nil
	})
	if err != nil {
		logger.Errorf("Failed to compute occlusions: %v", err)
		os.Exit(1)
	}
	logger.Infof("Wrote %v occlusion images in %.1f seconds (per frame: load %v, save %v)",
		len(frames), time.Since(start).Seconds(), loadTime.Average(), saveTime.Average())
}
