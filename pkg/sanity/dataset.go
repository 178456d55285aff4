package sanity

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/logs"
	"golang.org/x/sync/errgroup"
)

var ErrNoFrames = errors.New("no frames with sufficient flow, object id, correspondence, occlusion and alpha data")
var ErrValidation = errors.New("sanity validation failed")
var ErrConfig = errors.New("invalid sanity config")

// FrameLoader loads the pair data and alpha of one frame
type FrameLoader func() (*PairData, *grid.Image, error)

// FrameSource is a frame that can be checked
type FrameSource struct {
	Frame int
	Load  FrameLoader
}

type Config struct {
	PixelsPerFrame       int     // Number of pixels to test per frame
	MaxFrames            int     // Number of frames to test, chosen at random. -1 tests all frames.
	MinSanity            float64 // Minimum fraction of sane pixels
	MinTestedFraction    float64 // Minimum fraction of the expected number of pixels that must be tested
	MaxOcclusionFraction float64 // Maximum average fraction of occluded foreground pixels. <= 0 disables the check.
	Workers              int     // Number of frames checked concurrently. <= 0 uses the number of CPUs.
}

func DefaultConfig() Config {
	return Config{
		PixelsPerFrame:       1000,
		MaxFrames:            20,
		MinSanity:            1.0,
		MinTestedFraction:    0.5,
		MaxOcclusionFraction: -1,
		Workers:              runtime.NumCPU(),
	}
}

// Validate returns ErrConfig if any setting is out of range
func (c *Config) Validate() error {
	if c.PixelsPerFrame < 0 {
		return fmt.Errorf("%w: %v must not be negative, but is %v", ErrConfig, KeyPixelsPerFrame, c.PixelsPerFrame)
	}
	if c.MinSanity < 0 || c.MinSanity > 1 {
		return fmt.Errorf("%w: %v must be between 0 and 1, but is %v", ErrConfig, KeyMinSanity, c.MinSanity)
	}
	if c.MinTestedFraction < 0 || c.MinTestedFraction > 1 {
		return fmt.Errorf("%w: %v must be between 0 and 1, but is %v", ErrConfig, KeyMinTestedFraction, c.MinTestedFraction)
	}
	return nil
}

// Report is the outcome of CheckDataset
type Report struct {
	Frames           []FrameResult // In ascending frame order
	Counts           Counts
	Expected         int     // Number of pixels that would be tested if every frame had enough foreground
	FramesTested     int     // Frames that were not skipped
	OccludedFraction float64 // Average of the per-frame occluded fraction, over the tested frames
}

func (r *Report) Tested() int {
	return r.Counts.Tested()
}

func (r *Report) Ratio() float64 {
	return r.Counts.Ratio()
}

// SelectFrames picks the frames to test.
// If maxFrames is negative, all frames are returned. Otherwise a random subset of
// at most maxFrames frames is chosen. The result is in ascending frame order.
func SelectFrames(frames []FrameSource, maxFrames int, rng *rand.Rand) []FrameSource {
	chosen := append([]FrameSource{}, frames...)
	if maxFrames >= 0 && maxFrames < len(chosen) {
		rng.Shuffle(len(chosen), func(i, j int) { chosen[i], chosen[j] = chosen[j], chosen[i] })
		chosen = chosen[:maxFrames]
	}
	sort.Slice(chosen, func(i, j int) bool { return chosen[i].Frame < chosen[j].Frame })
	return chosen
}

// CheckDataset checks a sample of pixels in a sample of frames.
// Frames are loaded and checked concurrently. Every frame receives its own random
// seed from rng before any work starts, so the result depends only on rng and not on scheduling.
// The returned report is not validated; call Report.Validate for that.
func CheckDataset(ctx context.Context, frames []FrameSource, cfg Config, rng *rand.Rand, log logs.Log) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	chosen := SelectFrames(frames, cfg.MaxFrames, rng)
	seeds := make([]int64, len(chosen))
	for i := range seeds {
		seeds[i] = rng.Int63()
	}
	log.Infof("Evaluating sanity for %v frames out of %v", len(chosen), len(frames))

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]FrameResult, len(chosen))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range chosen {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			in, alpha, err := src.Load()
			if err != nil {
				return fmt.Errorf("frame %v: %w", src.Frame, err)
			}
			res, err := CheckFrame(in, alpha, cfg.PixelsPerFrame, rand.New(rand.NewSource(seeds[i])), log)
			if err != nil {
				return fmt.Errorf("frame %v: %w", src.Frame, err)
			}
			res.Frame = src.Frame
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Frames:   results,
		Expected: len(chosen) * cfg.PixelsPerFrame,
	}
	occSum := 0.0
	for _, res := range results {
		if res.Skipped != "" {
			log.Infof("Skipping frame %v: %v", res.Frame, res.Skipped)
			continue
		}
		report.FramesTested++
		report.Counts.Add(res.Counts)
		occSum += res.OccludedFraction
		log.Infof("Frame sanity (frame %v) %.2f: %v / %v", res.Frame, res.Counts.Ratio(), res.Counts.Sane(), res.Counts.Tested())
	}
	if report.FramesTested != 0 {
		report.OccludedFraction = occSum / float64(report.FramesTested)
	}
	log.Infof("Sanity %.2f: %v / %v", report.Ratio(), report.Counts.Sane(), report.Tested())
	return report, nil
}

type Gate string

const (
	GateTested    Gate = "tested"    // Too few pixels were tested
	GateSanity    Gate = "sanity"    // Too few pixels were sane
	GateOcclusion Gate = "occlusion" // Too many pixels were occluded
)

// ValidationError is returned by Report.Validate
type ValidationError struct {
	Gate      Gate
	Value     float64
	Threshold float64
	Counts    Counts
}

func (e *ValidationError) Error() string {
	switch e.Gate {
	case GateTested:
		return fmt.Sprintf("less than %.0f expected pixels were tested: %v", e.Threshold, e.Value)
	case GateSanity:
		return fmt.Sprintf("failed minimum sanity check: %.2f (%.2f required)", e.Value, e.Threshold)
	case GateOcclusion:
		return fmt.Sprintf("failed max occlusion check: %.2f (max %.2f allowed)", e.Value, e.Threshold)
	}
	return fmt.Sprintf("failed %v check: %v (threshold %v)", e.Gate, e.Value, e.Threshold)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validate applies the acceptance gates of cfg, in order: tested count, sanity ratio, occlusion.
func (r *Report) Validate(cfg Config) error {
	minTested := float64(r.Expected) * cfg.MinTestedFraction
	if float64(r.Tested()) < minTested {
		return &ValidationError{Gate: GateTested, Value: float64(r.Tested()), Threshold: minTested, Counts: r.Counts}
	}
	if r.Ratio() < cfg.MinSanity {
		return &ValidationError{Gate: GateSanity, Value: r.Ratio(), Threshold: cfg.MinSanity, Counts: r.Counts}
	}
	if cfg.MaxOcclusionFraction > 0 && r.OccludedFraction > cfg.MaxOcclusionFraction {
		return &ValidationError{Gate: GateOcclusion, Value: r.OccludedFraction, Threshold: cfg.MaxOcclusionFraction, Counts: r.Counts}
	}
	return nil
}
