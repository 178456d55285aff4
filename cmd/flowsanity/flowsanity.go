package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/flowcore/pkg/flo"
	"github.com/cyclopcam/flowcore/pkg/frameset"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/imagefile"
	"github.com/cyclopcam/flowcore/pkg/sanity"
	"github.com/cyclopcam/logs"
)

// Check that flow, object ids, correspondences and occlusions of a rendered
// sequence agree with each other, on a random sample of foreground pixels.

func check(err error) {
	if err != nil {
		panic(err)
	}
}

// Pattern keys, shared by flags and the config file
var patternKinds = []struct {
	key  string
	kind frameset.Kind
	help string
}{
	{"flow_pattern", frameset.KindFlow, "Glob pattern for flow .flo files of all frames"},
	{"objectid_pattern", frameset.KindObjectId, "Glob pattern for object id PNG files of all frames"},
	{"corresp_pattern", frameset.KindCorresp, "Glob pattern for correspondence PNG files of all frames"},
	{"occlusion_pattern", frameset.KindOcclusion, "Glob pattern for occlusion PNG files of all frames"},
	{"alpha_pattern", frameset.KindAlpha, "Glob pattern for alpha PNG files of all frames"},
}

func main() {
	logger, err := logs.NewLog()
	check(err)

	def := sanity.DefaultConfig()
	parser := argparse.NewParser("flowsanity", "Cross check flow against object ids, correspondences and occlusions")
	patterns := map[string]*string{}
	for _, p := range patternKinds {
		patterns[p.key] = parser.String("", p.key, &argparse.Options{Help: p.help, Default: ""})
	}
	npixels := parser.Int("", sanity.KeyPixelsPerFrame, &argparse.Options{Help: "Number of pixels to test per frame", Default: def.PixelsPerFrame})
	nframes := parser.Int("", sanity.KeyMaxFrames, &argparse.Options{Help: "Number of frames to test; -1 tests all", Default: def.MaxFrames})
	minSanity := parser.Float("", sanity.KeyMinSanity, &argparse.Options{Help: "Fail if the fraction of sane pixels is below this", Default: def.MinSanity})
	maxOcc := parser.Float("", sanity.KeyMaxOcclusionFraction, &argparse.Options{Help: "If positive, fail if the average fraction of occluded foreground pixels is above this", Default: def.MaxOcclusionFraction})
	workers := parser.Int("", sanity.KeyWorkers, &argparse.Options{Help: "Number of frames to check concurrently", Default: def.Workers})
	debugFile := parser.String("", "debug_output_file", &argparse.Options{Help: "Write an image illustrating the category of every pixel of one frame", Default: ""})
	debugFrame := parser.Int("", "debug_frame", &argparse.Options{Help: "Only check this frame, and use it for the debug image", Default: -1})
	debugOnlyOnFailure := parser.Flag("", "debug_only_on_failure", &argparse.Options{Help: "Only write the debug image if the checks fail", Default: false})
	seed := parser.Int("", "seed", &argparse.Options{Help: "Random seed. 0 seeds from the clock.", Default: 0})
	configFile := parser.String("c", "config", &argparse.Options{Help: "YAML, TOML or JSON file with any of the above settings. Flags that are not left at their defaults override the file.", Default: ""})
	err = parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	// defaults <- config file <- explicit flags
	cfg := def
	if *configFile != "" {
		v, err := sanity.ReadConfigFile(*configFile)
		if err != nil {
			logger.Errorf("Failed to read config file '%v': %v", *configFile, err)
			os.Exit(1)
		}
		cfg = sanity.ConfigFromViper(v, cfg)
		for _, p := range patternKinds {
			if *patterns[p.key] == "" {
				*patterns[p.key] = v.GetString(p.key)
			}
		}
	}
	if *npixels != def.PixelsPerFrame {
		cfg.PixelsPerFrame = *npixels
	}
	if *nframes != def.MaxFrames {
		cfg.MaxFrames = *nframes
	}
	if *minSanity != def.MinSanity {
		cfg.MinSanity = *minSanity
	}
	if *maxOcc != def.MaxOcclusionFraction {
		cfg.MaxOcclusionFraction = *maxOcc
	}
	if *workers != def.Workers {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	set := frameset.Set{}
	for _, p := range patternKinds {
		if *patterns[p.key] == "" {
			logger.Errorf("--%v is required (as a flag, or in the config file)", p.key)
			os.Exit(1)
		}
		_, err := set.AddGlob(*patterns[p.key], p.kind, false)
		check(err)
	}
	frames := set.SanityFrames()
	if len(frames) == 0 {
		logger.Errorf("%v", sanity.ErrNoFrames)
		os.Exit(1)
	}
	if *debugFrame >= 0 {
		if !slices.Contains(frames, *debugFrame) {
			logger.Errorf("Cannot debug frame %v, not enough data. Use --debug_frame to set frame", *debugFrame)
			os.Exit(1)
		}
		logger.Infof("Computing sanity only for --debug_frame %v", *debugFrame)
		frames = []int{*debugFrame}
	}

	if *seed == 0 {
		*seed = int(time.Now().UnixNano())
	}
	logger.Infof("Random seed %v", *seed)
	rng := rand.New(rand.NewSource(int64(*seed)))

	sources := make([]sanity.FrameSource, len(frames))
	for i, n := range frames {
		sources[i] = sanity.FrameSource{Frame: n, Load: func() (*sanity.PairData, *grid.Image, error) {
			return loadFrame(set, n)
		}}
	}
	report, err := sanity.CheckDataset(context.Background(), sources, cfg, rng, logger)
	if err != nil {
		logger.Errorf("Sanity check failed: %v", err)
		os.Exit(1)
	}
	for c := sanity.Category(0); c < sanity.NumCategories; c++ {
		logger.Infof("%-40v %v", c.String(), report.Counts[c])
	}
	verr := report.Validate(cfg)

	if *debugFile != "" && (!*debugOnlyOnFailure || verr != nil) {
		n := *debugFrame
		if n < 0 {
			n = report.Frames[0].Frame
		}
		if err := writeDebugImage(set, n, *debugFile); err != nil {
			logger.Errorf("Failed to write debug image: %v", err)
			os.Exit(1)
		}
		logger.Infof("Wrote debug image of frame %v to %v", n, *debugFile)
	}

	if verr != nil {
		logger.Errorf("%v (%v frames, alphas %v)", verr, report.FramesTested, *patterns["alpha_pattern"])
		os.Exit(1)
	}
}

func loadFrame(set frameset.Set, n int) (*sanity.PairData, *grid.Image, error) {
	flow, err := flo.ReadFile(set.File(n, frameset.KindFlow))
	if err != nil {
		return nil, nil, err
	}
	images := []struct {
		frame int
		kind  frameset.Kind
	}{
		{n, frameset.KindObjectId},
		{n + 1, frameset.KindObjectId},
		{n, frameset.KindCorresp},
		{n + 1, frameset.KindCorresp},
		{n, frameset.KindOcclusion},
		{n, frameset.KindAlpha},
	}
	loaded := make([]*grid.Image, len(images))
	for i, im := range images {
		// Ids and correspondences are compared as RGB, so that frames with and
		// without transparency can be compared with each other
		load := imagefile.Load
		if im.kind == frameset.KindObjectId || im.kind == frameset.KindCorresp {
			load = imagefile.LoadRGB
		}
		loaded[i], err = load(set.File(im.frame, im.kind))
		if err != nil {
			return nil, nil, err
		}
	}
	in := sanity.NewPairData(flow, loaded[0], loaded[1], loaded[2], loaded[3], loaded[4])
	return in, loaded[5], nil
}

func writeDebugImage(set frameset.Set, n int, filename string) error {
	in, alpha, err := loadFrame(set, n)
	if err != nil {
		return err
	}
	img, err := sanity.DebugImage(in, alpha)
	if err != nil {
		return err
	}
	return imagefile.Save(filename, img)
}
