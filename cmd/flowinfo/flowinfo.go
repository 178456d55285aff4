package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/flowcore/pkg/flo"
	"github.com/cyclopcam/flowcore/pkg/flowstats"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/imagefile"
	"github.com/cyclopcam/flowcore/pkg/iox"
	"github.com/cyclopcam/flowcore/pkg/packzip"
	"github.com/cyclopcam/logs"
	"golang.org/x/sync/errgroup"
)

// Collect motion statistics from a packed flow zip, or a directory of flows,
// without writing the decompressed flows to disk.

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	logger, err := logs.NewLog()
	check(err)

	parser := argparse.NewParser("flowinfo", "Motion statistics of a packed flow zip or a flow directory")
	flowZip := parser.String("", "flowzip", &argparse.Options{Help: "Read all flows from a packed flow zip", Default: ""})
	flowDir := parser.String("", "flowdir", &argparse.Options{Help: "Read all .flo files in this directory", Default: ""})
	objIdDir := parser.String("", "objiddir", &argparse.Options{Help: "Only consider pixels with a non-black object id in objectid%06d.png", Default: ""})
	outFile := parser.String("o", "out_file", &argparse.Options{Help: "Output text file", Required: true})
	threshold := parser.Float("", "threshold", &argparse.Options{Help: "Magnitude above which a pixel is moving", Default: flowstats.DefaultThreshold})
	workers := parser.Int("", "workers", &argparse.Options{Help: "Number of frames to analyze concurrently", Default: runtime.NumCPU()})
	err = parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}
	if (*flowZip == "") == (*flowDir == "") {
		logger.Errorf("Must set exactly one of --flowzip or --flowdir")
		os.Exit(1)
	}

	// Each loader returns one flow
	var loaders []func() (*grid.Flow, error)
	if *flowZip != "" {
		flows, err := packzip.UnpackFlowsFile(*flowZip)
		if err != nil {
			logger.Errorf("Failed to read %v: %v", *flowZip, err)
			os.Exit(1)
		}
		logger.Infof("Read %v flows from zip", len(flows))
		for _, f := range flows {
			loaders = append(loaders, func() (*grid.Flow, error) { return f, nil })
		}
	} else {
		files, err := filepath.Glob(filepath.Join(*flowDir, "*.flo"))
		check(err)
		sort.Strings(files)
		logger.Infof("Found %v flow files", len(files))
		for _, fn := range files {
			loaders = append(loaders, func() (*grid.Flow, error) { return flo.ReadFile(fn) })
		}
	}

	summary := &flowstats.Summary{Threshold: *threshold, Frames: make([]flowstats.FrameStats, len(loaders))}
	g := errgroup.Group{}
	g.SetLimit(max(1, *workers))
	for i, load := range loaders {
		g.Go(func() error {
			flow, err := load()
			if err != nil {
				return err
			}
			var mask *grid.Image
			if *objIdDir != "" {
				mask, err = imagefile.Load(filepath.Join(*objIdDir, fmt.Sprintf("objectid%06d.png", i+1)))
				if err != nil {
					return fmt.Errorf("object ids of frame %v: %w", i+1, err)
				}
			}
			fs, err := flowstats.Analyze(flow, mask, *threshold)
			if err != nil {
				return fmt.Errorf("frame %v: %w", i+1, err)
			}
			summary.Frames[i] = fs
			if i == len(loaders)-1 {
				summary.Height = flow.Height
				summary.Width = flow.Width
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	err = iox.WriteFileAtomic(*outFile, func(w io.Writer) error {
		return flowstats.WriteReport(w, summary)
	})
	check(err)
	logger.Infof("%v of %v frames have motion, %.3f%% moving pixels on average. Wrote %v",
		summary.MotionFrames(), len(summary.Frames), summary.MeanMovingFraction()*100, *outFile)
}
